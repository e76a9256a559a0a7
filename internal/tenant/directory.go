package tenant

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"vcsync.org/internal/apperr"
	"vcsync.org/internal/ids"
)

const (
	maxOrganizationName = 255
	maxUsername         = 150
)

// Directory implements tenant rules on top of a Store: role checks,
// organization disambiguation and membership management.
type Directory struct {
	store   Store
	purgers []OrganizationPurger
	now     func() time.Time
}

// OrganizationPurger removes records another store keeps for an organization.
// Stores without foreign-key cascades register one so deletion reaches them.
type OrganizationPurger interface {
	PurgeOrganization(ctx context.Context, organizationID string) error
}

// DirectoryOption configures a Directory.
type DirectoryOption func(*Directory)

// WithClock overrides the time source.
func WithClock(fn func() time.Time) DirectoryOption {
	return func(d *Directory) {
		if fn != nil {
			d.now = fn
		}
	}
}

// WithPurgers registers stores to clear when an organization is deleted.
func WithPurgers(p ...OrganizationPurger) DirectoryOption {
	return func(d *Directory) {
		d.purgers = append(d.purgers, p...)
	}
}

// NewDirectory wraps store.
func NewDirectory(store Store, opts ...DirectoryOption) *Directory {
	d := &Directory{store: store, now: time.Now}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// NormalizeOrganizationName trims and validates an organization name.
func NormalizeOrganizationName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: organization name is required", apperr.ErrInvalidInput)
	}
	if len(name) > maxOrganizationName {
		return "", fmt.Errorf("%w: organization name is too long", apperr.ErrInvalidInput)
	}
	return name, nil
}

// NormalizeUsername trims and validates a username.
func NormalizeUsername(username string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return "", fmt.Errorf("%w: username is required", apperr.ErrInvalidInput)
	}
	if len(username) > maxUsername || strings.ContainsAny(username, " \t\r\n") {
		return "", fmt.Errorf("%w: username is invalid", apperr.ErrInvalidInput)
	}
	return username, nil
}

// NormalizeEmail validates a bare email address.
func NormalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", fmt.Errorf("%w: email is required", apperr.ErrInvalidInput)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: email is invalid", apperr.ErrInvalidInput)
	}
	return email, nil
}

// CreateOrganization registers an organization directly, without an admin.
func (d *Directory) CreateOrganization(ctx context.Context, name string) (Organization, error) {
	name, err := NormalizeOrganizationName(name)
	if err != nil {
		return Organization{}, err
	}
	now := d.now().UTC()
	org := Organization{ID: ids.New(), Name: name, CreatedAt: now, UpdatedAt: now}
	if err := d.store.Provision(ctx, Provisioning{Organization: &org}); err != nil {
		return Organization{}, err
	}
	return org, nil
}

// Provision fills ids and timestamps and creates the records atomically.
func (d *Directory) Provision(ctx context.Context, p Provisioning) error {
	now := d.now().UTC()
	if p.Organization != nil {
		name, err := NormalizeOrganizationName(p.Organization.Name)
		if err != nil {
			return err
		}
		p.Organization.Name = name
		if p.Organization.ID == "" {
			p.Organization.ID = ids.New()
		}
		p.Organization.CreatedAt, p.Organization.UpdatedAt = now, now
	}
	if p.Account != nil {
		if p.Account.ID == "" {
			p.Account.ID = ids.New()
		}
		p.Account.CreatedAt = now
	}
	if m := p.Membership; m != nil {
		if m.ID == "" {
			m.ID = ids.New()
		}
		if p.Organization != nil {
			m.OrganizationID = p.Organization.ID
		}
		if p.Account != nil {
			m.AccountID = p.Account.ID
		}
		if m.AccountID == "" || m.OrganizationID == "" {
			return fmt.Errorf("%w: membership requires account and organization", apperr.ErrInvalidInput)
		}
		if _, ok := ParseRole(string(m.Role)); !ok {
			return fmt.Errorf("%w: unknown role %q", apperr.ErrInvalidInput, m.Role)
		}
		m.CreatedAt = now
	}
	return d.store.Provision(ctx, p)
}

// Organization loads an organization by id.
func (d *Directory) Organization(ctx context.Context, id string) (Organization, error) {
	return d.store.GetOrganization(ctx, strings.TrimSpace(id))
}

// OrganizationByName loads an organization by case-insensitive name.
func (d *Directory) OrganizationByName(ctx context.Context, name string) (Organization, error) {
	return d.store.FindOrganizationByName(ctx, strings.TrimSpace(name))
}

// Account loads an account by id.
func (d *Directory) Account(ctx context.Context, id string) (Account, error) {
	return d.store.GetAccount(ctx, id)
}

// AccountByUsername loads an account by exact username.
func (d *Directory) AccountByUsername(ctx context.Context, username string) (Account, error) {
	return d.store.FindAccountByUsername(ctx, strings.TrimSpace(username))
}

// AccountByEmail loads the oldest account registered with email.
func (d *Directory) AccountByEmail(ctx context.Context, email string) (Account, error) {
	return d.store.FindAccountByEmail(ctx, strings.TrimSpace(email))
}

// Membership loads the membership of an account in an organization.
func (d *Directory) Membership(ctx context.Context, accountID, organizationID string) (Membership, error) {
	return d.store.GetMembership(ctx, accountID, organizationID)
}

// Memberships lists an account's memberships, oldest first.
func (d *Directory) Memberships(ctx context.Context, accountID string) ([]Membership, error) {
	return d.store.ListMemberships(ctx, accountID)
}

// RequireMember returns the caller's membership in organizationID.
// Callers outside the organization get ErrNotMember whether or not it exists.
func (d *Directory) RequireMember(ctx context.Context, accountID, organizationID string) (Membership, error) {
	m, err := d.store.GetMembership(ctx, accountID, organizationID)
	if errors.Is(err, ErrMembershipNotFound) {
		return Membership{}, ErrNotMember
	}
	if err != nil {
		return Membership{}, err
	}
	return m, nil
}

// RequireRole is RequireMember plus a role check.
func (d *Directory) RequireRole(ctx context.Context, accountID, organizationID string, roles ...Role) (Membership, error) {
	m, err := d.RequireMember(ctx, accountID, organizationID)
	if err != nil {
		return Membership{}, err
	}
	if !m.HasRole(roles...) {
		return Membership{}, ErrInsufficientRole
	}
	return m, nil
}

// ResolveAdminOrganization picks the organization an administrative action targets.
// An explicit ref must name an organization the account manages. Without a ref the
// account must manage exactly one organization.
func (d *Directory) ResolveAdminOrganization(ctx context.Context, accountID string, ref OrganizationRef) (Organization, Membership, error) {
	memberships, err := d.store.ListMemberships(ctx, accountID)
	if err != nil {
		return Organization{}, Membership{}, err
	}
	var managed []Membership
	for _, m := range memberships {
		if m.HasRole(ManagerRoles...) {
			managed = append(managed, m)
		}
	}
	if len(managed) == 0 {
		return Organization{}, Membership{}, ErrNotAdmin
	}

	if ref.IsZero() {
		if len(managed) > 1 {
			return Organization{}, Membership{}, ErrAmbiguousOrganization
		}
		org, err := d.store.GetOrganization(ctx, managed[0].OrganizationID)
		if err != nil {
			return Organization{}, Membership{}, err
		}
		return org, managed[0], nil
	}

	id, name := strings.TrimSpace(ref.ID), strings.TrimSpace(ref.Name)
	var org Organization
	if id != "" {
		org, err = d.store.GetOrganization(ctx, id)
	} else {
		org, err = d.store.FindOrganizationByName(ctx, name)
	}
	if errors.Is(err, ErrOrganizationNotFound) {
		return Organization{}, Membership{}, ErrInsufficientRole
	}
	if err != nil {
		return Organization{}, Membership{}, err
	}
	if id != "" && name != "" && !strings.EqualFold(org.Name, name) {
		return Organization{}, Membership{}, fmt.Errorf("%w: organization id and name do not match", apperr.ErrInvalidInput)
	}
	for _, m := range managed {
		if m.OrganizationID == org.ID {
			return org, m, nil
		}
	}
	return Organization{}, Membership{}, ErrInsufficientRole
}

// RenameOrganization changes an organization's name. Only managers may rename.
func (d *Directory) RenameOrganization(ctx context.Context, actorID, organizationID, name string) (Organization, error) {
	name, err := NormalizeOrganizationName(name)
	if err != nil {
		return Organization{}, err
	}
	if _, err := d.RequireRole(ctx, actorID, organizationID, ManagerRoles...); err != nil {
		return Organization{}, err
	}
	return d.store.RenameOrganization(ctx, organizationID, name, d.now().UTC())
}

// DeleteOrganization removes an organization and everything it owns.
func (d *Directory) DeleteOrganization(ctx context.Context, actorID, organizationID string) error {
	if _, err := d.RequireRole(ctx, actorID, organizationID, ManagerRoles...); err != nil {
		return err
	}
	if err := d.store.DeleteOrganization(ctx, organizationID); err != nil {
		return err
	}
	for _, p := range d.purgers {
		if err := p.PurgeOrganization(ctx, organizationID); err != nil {
			return fmt.Errorf("purge organization %s: %w", organizationID, err)
		}
	}
	return nil
}

// RemoveMember deletes a membership. Managers cannot remove their own membership.
func (d *Directory) RemoveMember(ctx context.Context, actorID, organizationID, membershipID string) error {
	actor, err := d.RequireRole(ctx, actorID, organizationID, ManagerRoles...)
	if err != nil {
		return err
	}
	if actor.ID == membershipID {
		return ErrSelfRemoval
	}
	return d.store.DeleteMembership(ctx, organizationID, membershipID)
}
