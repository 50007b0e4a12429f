package matches

import (
	"context"
	"errors"
)

var (
	ErrUserNotFound  = errors.New("matches: user not found")
	ErrMatchNotFound = errors.New("matches: match not found")
)

// Directory is the identity and match-authorization collaborator.
type Directory interface {
	User(ctx context.Context, userID string) (User, error)
	Match(ctx context.Context, matchID string) (Match, error)
	// HasActiveMatch reports whether the user is part of any active match.
	HasActiveMatch(ctx context.Context, userID string) (bool, error)
}

// Username resolves a display name, falling back to the id so events are never
// sent with an empty name.
func Username(ctx context.Context, d Directory, userID string) string {
	u, err := d.User(ctx, userID)
	if err != nil || u.Username == "" {
		return userID
	}
	return u.Username
}
