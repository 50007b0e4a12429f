package auth

import "github.com/golang-jwt/jwt/v5"

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
	// TokenTypeSocket is a short-lived ticket valid for one socket path.
	TokenTypeSocket TokenType = "socket"
)

// Claims are the only JWT shape this service accepts. Display names are
// resolved through the user directory, never read from the token.
type Claims struct {
	jwt.RegisteredClaims

	UserID    string    `json:"user_id"`
	TokenType TokenType `json:"token_type"`
	// Path is set on socket tickets only.
	Path string `json:"path,omitempty"`
}
