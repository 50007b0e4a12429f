package invitations

import (
	"errors"
	"time"
)

var (
	ErrNotFound         = errors.New("invitations: not found")
	ErrAccessDenied     = errors.New("invitations: access denied")
	ErrPartnerOffline   = errors.New("invitations: partner is not online")
	ErrDuplicatePending = errors.New("invitations: pending invitation already exists")
	ErrInvalidState     = errors.New("invitations: invitation expired or already responded")
	ErrInvalidArgument  = errors.New("invitations: invalid argument")
	ErrStorage          = errors.New("invitations: storage failure")
)

// PartnerOfflineError carries the receiver's last-seen time.
// errors.Is(err, ErrPartnerOffline) matches it.
type PartnerOfflineError struct {
	LastSeen time.Time
}

func (e *PartnerOfflineError) Error() string { return ErrPartnerOffline.Error() }

func (e *PartnerOfflineError) Is(target error) bool { return target == ErrPartnerOffline }
