package auth

import (
	"errors"
	"fmt"
	"time"

	"langswap/internal/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrTokenType   = errors.New("token_type mismatch")
	ErrNoSubject   = errors.New("user_id missing")
	ErrTicketScope = errors.New("socket ticket issued for another path")
)

// clockSkew is tolerated on exp/iat checks.
const clockSkew = 30 * time.Second

// Manager signs and verifies HS256 tokens. Access and refresh tokens are
// normally minted by the account service with the same secret.
type Manager struct {
	secret   []byte
	issuer   string
	audience string
	ttl      map[TokenType]time.Duration
}

func NewManager(cfg config.AuthConfig) (*Manager, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	socketTTL := cfg.SocketTicketTTL
	if socketTTL <= 0 {
		socketTTL = time.Minute
	}
	return &Manager{
		secret:   []byte(cfg.JWTSecret),
		issuer:   cfg.JWTIssuer,
		audience: cfg.JWTAudience,
		ttl: map[TokenType]time.Duration{
			TokenTypeAccess:  cfg.AccessTokenTTL,
			TokenTypeRefresh: cfg.RefreshTokenTTL,
			TokenTypeSocket:  socketTTL,
		},
	}, nil
}

type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// IssuePair mints tokens for a user. Production tokens come from the account
// service; this exists for the issue-token command and tests.
func (m *Manager) IssuePair(now time.Time, userID string) (TokenPair, error) {
	if userID == "" {
		return TokenPair{}, errors.New("user_id required")
	}
	access, _, err := m.sign(now, Claims{UserID: userID, TokenType: TokenTypeAccess})
	if err != nil {
		return TokenPair{}, err
	}
	refresh, _, err := m.sign(now, Claims{UserID: userID, TokenType: TokenTypeRefresh})
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// SocketTicket is what clients put in ?token= when dialing a socket.
type SocketTicket struct {
	Token     string    `json:"ticket"`
	Path      string    `json:"path"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IssueSocketTicket mints a ticket bound to one request path, e.g.
// "/signal/<room_id>". Callers check the user may open that path.
func (m *Manager) IssueSocketTicket(now time.Time, userID, path string) (SocketTicket, error) {
	if userID == "" || path == "" {
		return SocketTicket{}, errors.New("user_id and path required")
	}
	tok, exp, err := m.sign(now, Claims{UserID: userID, TokenType: TokenTypeSocket, Path: path})
	if err != nil {
		return SocketTicket{}, err
	}
	return SocketTicket{Token: tok, Path: path, ExpiresAt: exp}, nil
}

func (m *Manager) Verify(tokenString string, expected TokenType, now time.Time) (Claims, error) {
	claims, err := m.parse(tokenString, now)
	if err != nil {
		return Claims{}, err
	}
	if claims.TokenType != expected {
		return Claims{}, ErrTokenType
	}
	return claims, nil
}

// VerifySocketTicket accepts a socket ticket only on the path it was issued for.
func (m *Manager) VerifySocketTicket(tokenString, path string, now time.Time) (Claims, error) {
	claims, err := m.Verify(tokenString, TokenTypeSocket, now)
	if err != nil {
		return Claims{}, err
	}
	if claims.Path != path {
		return Claims{}, ErrTicketScope
	}
	return claims, nil
}

func (m *Manager) parse(tokenString string, now time.Time) (Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithLeeway(clockSkew),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}
	if m.audience != "" {
		opts = append(opts, jwt.WithAudience(m.audience))
	}

	var claims Claims
	_, err := jwt.NewParser(opts...).ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	})
	if err != nil {
		return Claims{}, err
	}
	if claims.UserID == "" {
		return Claims{}, ErrNoSubject
	}
	return claims, nil
}

// sign fills the registered claims of c from the manager settings and the
// TTL of c.TokenType.
func (m *Manager) sign(now time.Time, c Claims) (string, time.Time, error) {
	ttl, ok := m.ttl[c.TokenType]
	if !ok {
		return "", time.Time{}, fmt.Errorf("unknown token type %q", c.TokenType)
	}
	exp := now.Add(ttl)
	c.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    m.issuer,
		Subject:   c.UserID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
		ID:        uuid.NewString(),
	}
	if m.audience != "" {
		c.Audience = jwt.ClaimStrings{m.audience}
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return tok, exp, nil
}
