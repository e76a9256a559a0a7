package statuslist

import "context"

// MutateFunc decides a mutation given the locked current row, or nil when none exists.
type MutateFunc func(current *Credential) (Mutation, error)

// Store persists current rows and history.
type Store interface {
	// Mutate runs fn while holding an exclusive lock on (organization, status list id)
	// and applies its result atomically. It returns the resulting current row.
	Mutate(ctx context.Context, organizationID, statusListID string, fn MutateFunc) (Credential, error)
	// List returns current rows ordered by status list id.
	List(ctx context.Context, organizationID string) ([]Credential, error)
	Get(ctx context.Context, organizationID, statusListID string) (Credential, error)
	// History returns archived versions, oldest first.
	History(ctx context.Context, organizationID, statusListID string) ([]HistoryEntry, error)
	// Delete removes the current row and its history.
	Delete(ctx context.Context, organizationID, statusListID string) error
}
