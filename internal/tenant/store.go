package tenant

import (
	"context"
	"time"
)

// Store persists organizations, accounts and memberships.
// Uniqueness (organization name, username, account+organization) is enforced by the store.
type Store interface {
	Provision(ctx context.Context, p Provisioning) error

	GetOrganization(ctx context.Context, id string) (Organization, error)
	FindOrganizationByName(ctx context.Context, name string) (Organization, error)
	RenameOrganization(ctx context.Context, id, name string, at time.Time) (Organization, error)
	DeleteOrganization(ctx context.Context, id string) error

	GetAccount(ctx context.Context, id string) (Account, error)
	FindAccountByUsername(ctx context.Context, username string) (Account, error)
	FindAccountByEmail(ctx context.Context, email string) (Account, error)

	GetMembership(ctx context.Context, accountID, organizationID string) (Membership, error)
	GetMembershipByID(ctx context.Context, organizationID, membershipID string) (Membership, error)
	ListMemberships(ctx context.Context, accountID string) ([]Membership, error)
	DeleteMembership(ctx context.Context, organizationID, membershipID string) error
}
