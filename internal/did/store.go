package did

import (
	"context"
	"strings"
	"time"
)

// Store persists organization DIDs and public keys.
type Store interface {
	// CreateDID fails with ErrDIDTaken when any organization already holds the DID.
	CreateDID(ctx context.Context, d OrganizationDID) error
	GetDID(ctx context.Context, organizationID, id string) (OrganizationDID, error)
	ListDIDs(ctx context.Context, organizationID string) ([]OrganizationDID, error)
	// ListUnresolved returns SUBMITTED and RESOLUTION_FAILED records, oldest first.
	ListUnresolved(ctx context.Context, limit int) ([]OrganizationDID, error)
	// MarkResolved upserts keys by (organization, key id) and advances the DID to RESOLVED in one transaction.
	MarkResolved(ctx context.Context, organizationID, id string, keys []PublicKey, at time.Time) (OrganizationDID, []PublicKey, error)
	MarkFailed(ctx context.Context, organizationID, id, reason string, at time.Time) (OrganizationDID, error)
	// Revoke marks the DID REVOKED and deactivates every key it controls.
	Revoke(ctx context.Context, organizationID, id, reason string, at time.Time) (OrganizationDID, error)

	UpsertKey(ctx context.Context, k PublicKey) (PublicKey, error)
	GetKey(ctx context.Context, organizationID, keyID string) (PublicKey, error)
	// ListKeys returns active keys only.
	ListKeys(ctx context.Context, f KeyFilter) ([]PublicKey, error)
	DeleteKey(ctx context.Context, organizationID, keyID string) error
}

// ControlledBy reports whether key k belongs to did, either as controller or by key id fragment.
func ControlledBy(k PublicKey, did string) bool {
	return k.Controller == did || strings.HasPrefix(k.KeyID, did+"#")
}
