package auth

import (
	"context"
	"time"
)

// Store persists registration, login-code and legacy-token state.
type Store interface {
	// CreatePending fails with ErrPendingExists when an unconsumed, unexpired record
	// already exists for the same triple, compared case-insensitively.
	CreatePending(ctx context.Context, p PendingRegistration) error
	GetPending(ctx context.Context, id string) (PendingRegistration, error)
	// LatestPending returns the newest unconsumed record for the triple, compared case-insensitively.
	LatestPending(ctx context.Context, orgName, username, email string) (PendingRegistration, error)
	// IncrementAttempts returns the new attempt count.
	IncrementAttempts(ctx context.Context, id string) (int, error)
	// ConsumePending fails with ErrAlreadyConsumed when the record was consumed concurrently.
	ConsumePending(ctx context.Context, id string, at time.Time) error
	// ReleasePending clears consumed_at so the record can be confirmed again.
	ReleasePending(ctx context.Context, id string) error

	CreateLoginCode(ctx context.Context, c LoginCode) error
	// LatestLoginCode returns the newest code for the account with the given value.
	LatestLoginCode(ctx context.Context, accountID, code string) (LoginCode, error)
	ConsumeLoginCode(ctx context.Context, id string, at time.Time) error

	// GetOrCreateLegacyToken stores candidate unless the account already has a token, and returns the stored one.
	GetOrCreateLegacyToken(ctx context.Context, accountID, candidate string) (string, error)
	AccountForLegacyToken(ctx context.Context, token string) (string, error)
}
