package tenant

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vcsync.org/internal/apperr"
)

type fixture struct {
	dir   *Directory
	store *InMemory
	clock time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: NewInMemory(), clock: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	f.dir = NewDirectory(f.store, WithClock(func() time.Time {
		f.clock = f.clock.Add(time.Second)
		return f.clock
	}))
	return f
}

func (f *fixture) account(t *testing.T, username string) Account {
	t.Helper()
	acc := Account{Username: username, Email: username + "@example.com", PasswordHash: "x"}
	require.NoError(t, f.dir.Provision(context.Background(), Provisioning{Account: &acc}))
	return acc
}

func (f *fixture) org(t *testing.T, name string) Organization {
	t.Helper()
	org, err := f.dir.CreateOrganization(context.Background(), name)
	require.NoError(t, err)
	return org
}

func (f *fixture) join(t *testing.T, acc Account, org Organization, role Role) Membership {
	t.Helper()
	m := Membership{AccountID: acc.ID, OrganizationID: org.ID, Role: role}
	require.NoError(t, f.dir.Provision(context.Background(), Provisioning{Membership: &m}))
	return m
}

func TestCreateOrganizationNameIsCaseInsensitiveUnique(t *testing.T) {
	f := newFixture(t)
	f.org(t, "Acme Health")

	_, err := f.dir.CreateOrganization(context.Background(), "  acme HEALTH ")
	require.ErrorIs(t, err, ErrOrganizationExists)
	require.ErrorIs(t, err, apperr.ErrConflict)

	_, err = f.dir.CreateOrganization(context.Background(), "   ")
	require.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestMembershipIsUniquePerAccountAndOrganization(t *testing.T) {
	f := newFixture(t)
	acc := f.account(t, "alice")
	org := f.org(t, "Acme")
	f.join(t, acc, org, RoleUser)

	second := Membership{AccountID: acc.ID, OrganizationID: org.ID, Role: RoleAdmin}
	err := f.dir.Provision(context.Background(), Provisioning{Membership: &second})
	require.ErrorIs(t, err, ErrMembershipExists)

	list, err := f.dir.Memberships(context.Background(), acc.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, RoleUser, list[0].Role)
}

func TestProvisionIsAllOrNothing(t *testing.T) {
	f := newFixture(t)
	f.org(t, "Taken")

	acc := Account{Username: "bob", Email: "bob@example.com"}
	org := Organization{Name: "taken"}
	m := Membership{Role: RoleAdmin}
	err := f.dir.Provision(context.Background(), Provisioning{Organization: &org, Account: &acc, Membership: &m})
	require.ErrorIs(t, err, ErrOrganizationExists)

	_, err = f.dir.AccountByUsername(context.Background(), "bob")
	require.ErrorIs(t, err, ErrAccountNotFound)
}

func TestResolveAdminOrganization(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	admin := f.account(t, "admin")
	orgA := f.org(t, "Org A")
	orgB := f.org(t, "Org B")
	other := f.org(t, "Org C")
	f.join(t, admin, orgA, RoleAdmin)

	org, _, err := f.dir.ResolveAdminOrganization(ctx, admin.ID, OrganizationRef{})
	require.NoError(t, err)
	assert.Equal(t, orgA.ID, org.ID)

	f.join(t, admin, orgB, RoleOwner)
	_, _, err = f.dir.ResolveAdminOrganization(ctx, admin.ID, OrganizationRef{})
	require.ErrorIs(t, err, ErrAmbiguousOrganization)
	require.ErrorIs(t, err, apperr.ErrForbidden)

	org, m, err := f.dir.ResolveAdminOrganization(ctx, admin.ID, OrganizationRef{Name: "org b"})
	require.NoError(t, err)
	assert.Equal(t, orgB.ID, org.ID)
	assert.Equal(t, RoleOwner, m.Role)

	org, _, err = f.dir.ResolveAdminOrganization(ctx, admin.ID, OrganizationRef{ID: orgA.ID})
	require.NoError(t, err)
	assert.Equal(t, orgA.ID, org.ID)

	_, _, err = f.dir.ResolveAdminOrganization(ctx, admin.ID, OrganizationRef{ID: other.ID})
	require.ErrorIs(t, err, ErrInsufficientRole)

	_, _, err = f.dir.ResolveAdminOrganization(ctx, admin.ID, OrganizationRef{Name: "does not exist"})
	require.ErrorIs(t, err, ErrInsufficientRole)

	_, _, err = f.dir.ResolveAdminOrganization(ctx, admin.ID, OrganizationRef{ID: orgA.ID, Name: "Org B"})
	require.ErrorIs(t, err, apperr.ErrInvalidInput)

	worker := f.account(t, "worker")
	f.join(t, worker, orgA, RoleUser)
	_, _, err = f.dir.ResolveAdminOrganization(ctx, worker.ID, OrganizationRef{})
	require.ErrorIs(t, err, ErrNotAdmin)
}

func TestRequireRoleHidesExistence(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	acc := f.account(t, "carol")
	org := f.org(t, "Org")
	f.join(t, acc, org, RoleUser)

	_, err := f.dir.RequireRole(ctx, acc.ID, "missing-org", RoleAdmin)
	require.ErrorIs(t, err, ErrNotMember)

	_, err = f.dir.RequireRole(ctx, acc.ID, org.ID, ManagerRoles...)
	require.ErrorIs(t, err, ErrInsufficientRole)

	m, err := f.dir.RequireMember(ctx, acc.ID, org.ID)
	require.NoError(t, err)
	assert.Equal(t, RoleUser, m.Role)
}

func TestRemoveMember(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	admin := f.account(t, "admin")
	worker := f.account(t, "worker")
	org := f.org(t, "Org")
	adminMembership := f.join(t, admin, org, RoleAdmin)
	workerMembership := f.join(t, worker, org, RoleUser)

	require.ErrorIs(t, f.dir.RemoveMember(ctx, admin.ID, org.ID, adminMembership.ID), ErrSelfRemoval)
	require.ErrorIs(t, f.dir.RemoveMember(ctx, worker.ID, org.ID, adminMembership.ID), ErrInsufficientRole)
	require.NoError(t, f.dir.RemoveMember(ctx, admin.ID, org.ID, workerMembership.ID))
	require.ErrorIs(t, f.dir.RemoveMember(ctx, admin.ID, org.ID, workerMembership.ID), ErrMembershipNotFound)
}

func TestRenameAndDeleteOrganization(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	admin := f.account(t, "admin")
	org := f.org(t, "Old Name")
	f.org(t, "Other")
	f.join(t, admin, org, RoleAdmin)

	renamed, err := f.dir.RenameOrganization(ctx, admin.ID, org.ID, "New Name")
	require.NoError(t, err)
	assert.Equal(t, "New Name", renamed.Name)
	assert.True(t, renamed.UpdatedAt.After(org.UpdatedAt))

	_, err = f.dir.RenameOrganization(ctx, admin.ID, org.ID, "other")
	require.ErrorIs(t, err, ErrOrganizationExists)

	require.NoError(t, f.dir.DeleteOrganization(ctx, admin.ID, org.ID))
	_, err = f.dir.Organization(ctx, org.ID)
	require.ErrorIs(t, err, ErrOrganizationNotFound)
	list, err := f.dir.Memberships(ctx, admin.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestNormalizeEmail(t *testing.T) {
	_, err := NormalizeEmail("not-an-email")
	require.ErrorIs(t, err, apperr.ErrInvalidInput)
	_, err = NormalizeEmail("Name <a@b.co>")
	require.ErrorIs(t, err, apperr.ErrInvalidInput)
	got, err := NormalizeEmail(" a@b.co ")
	require.NoError(t, err)
	assert.Equal(t, "a@b.co", got)
}

type recordingPurger struct{ purged []string }

func (p *recordingPurger) PurgeOrganization(ctx context.Context, organizationID string) error {
	p.purged = append(p.purged, organizationID)
	return nil
}

func TestDeleteOrganizationRunsPurgers(t *testing.T) {
	ctx := context.Background()
	p := &recordingPurger{}
	store := NewInMemory()
	dir := NewDirectory(store, WithPurgers(p))

	admin := Account{Username: "admin", PasswordHash: "x"}
	org := Organization{Name: "Acme"}
	require.NoError(t, dir.Provision(ctx, Provisioning{
		Organization: &org, Account: &admin, Membership: &Membership{Role: RoleAdmin},
	}))
	outsider := Account{Username: "outsider", PasswordHash: "x"}
	require.NoError(t, dir.Provision(ctx, Provisioning{Account: &outsider}))

	require.ErrorIs(t, dir.DeleteOrganization(ctx, outsider.ID, org.ID), apperr.ErrForbidden)
	assert.Empty(t, p.purged)

	require.NoError(t, dir.DeleteOrganization(ctx, admin.ID, org.ID))
	assert.Equal(t, []string{org.ID}, p.purged)
}
