package pg

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"vcsync.org/internal/tenant"
)

var _ tenant.Store = (*TenantStore)(nil)

// TenantStore persists organizations, accounts and memberships.
type TenantStore struct {
	db *sql.DB
}

const (
	organizationColumns = `id, name, created_at, updated_at`
	accountColumns      = `id, username, email, password_hash, is_staff, created_at`
	membershipColumns   = `id, account_id, organization_id, role, full_name, phone_number, gender, date_of_birth, created_at`
)

func (s *TenantStore) Provision(ctx context.Context, p tenant.Provisioning) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if o := p.Organization; o != nil {
		if _, err := tx.ExecContext(ctx, `
			insert into organizations (id, name, created_at, updated_at)
			values ($1, $2, $3, $4)
		`, o.ID, o.Name, o.CreatedAt, o.UpdatedAt); err != nil {
			return provisionError(err)
		}
	}
	if a := p.Account; a != nil {
		if _, err := tx.ExecContext(ctx, `
			insert into accounts (id, username, email, password_hash, is_staff, created_at)
			values ($1, $2, $3, $4, $5, $6)
		`, a.ID, a.Username, a.Email, a.PasswordHash, a.IsStaff, a.CreatedAt); err != nil {
			return provisionError(err)
		}
	}
	if m := p.Membership; m != nil {
		if _, err := tx.ExecContext(ctx, `
			insert into memberships (id, account_id, organization_id, role, full_name, phone_number, gender, date_of_birth, created_at)
			values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, m.ID, m.AccountID, m.OrganizationID, string(m.Role),
			m.Profile.FullName, m.Profile.PhoneNumber, m.Profile.Gender, nullTime(m.Profile.DateOfBirth), m.CreatedAt); err != nil {
			return provisionError(err)
		}
	}
	return tx.Commit()
}

// provisionError picks the sentinel from the violated constraint.
func provisionError(err error) error {
	pgErr, ok := maybePgError(err)
	if !ok {
		return err
	}
	switch pgErr.Code {
	case pgErrUniqueViolation:
		switch {
		case strings.HasPrefix(pgErr.ConstraintName, "organizations_"):
			return tenant.ErrOrganizationExists
		case strings.HasPrefix(pgErr.ConstraintName, "accounts_"):
			return tenant.ErrUsernameTaken
		case strings.HasPrefix(pgErr.ConstraintName, "memberships_"):
			return tenant.ErrMembershipExists
		}
	case pgErrForeignKeyViolation:
		if strings.Contains(pgErr.ConstraintName, "account") {
			return tenant.ErrAccountNotFound
		}
		return tenant.ErrOrganizationNotFound
	}
	return err
}

func (s *TenantStore) GetOrganization(ctx context.Context, id string) (tenant.Organization, error) {
	row := s.db.QueryRowContext(ctx, `select `+organizationColumns+` from organizations where id = $1`, id)
	org, err := scanOrganization(row)
	return org, mapError(err, tenant.ErrOrganizationNotFound, nil)
}

func (s *TenantStore) FindOrganizationByName(ctx context.Context, name string) (tenant.Organization, error) {
	row := s.db.QueryRowContext(ctx, `select `+organizationColumns+` from organizations where lower(name) = lower($1)`, name)
	org, err := scanOrganization(row)
	return org, mapError(err, tenant.ErrOrganizationNotFound, nil)
}

func (s *TenantStore) RenameOrganization(ctx context.Context, id, name string, at time.Time) (tenant.Organization, error) {
	row := s.db.QueryRowContext(ctx, `
		update organizations set name = $2, updated_at = $3
		where id = $1
		returning `+organizationColumns, id, name, at)
	org, err := scanOrganization(row)
	return org, mapError(err, tenant.ErrOrganizationNotFound, tenant.ErrOrganizationExists)
}

// DeleteOrganization relies on foreign keys to cascade to every owned row.
func (s *TenantStore) DeleteOrganization(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from organizations where id = $1`, id)
	if err != nil {
		return err
	}
	return requireAffected(res, tenant.ErrOrganizationNotFound)
}

func (s *TenantStore) GetAccount(ctx context.Context, id string) (tenant.Account, error) {
	row := s.db.QueryRowContext(ctx, `select `+accountColumns+` from accounts where id = $1`, id)
	acc, err := scanAccount(row)
	return acc, mapError(err, tenant.ErrAccountNotFound, nil)
}

func (s *TenantStore) FindAccountByUsername(ctx context.Context, username string) (tenant.Account, error) {
	row := s.db.QueryRowContext(ctx, `select `+accountColumns+` from accounts where username = $1`, username)
	acc, err := scanAccount(row)
	return acc, mapError(err, tenant.ErrAccountNotFound, nil)
}

func (s *TenantStore) FindAccountByEmail(ctx context.Context, email string) (tenant.Account, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+accountColumns+` from accounts
		where lower(email) = lower($1)
		order by created_at asc, id asc
		limit 1
	`, email)
	acc, err := scanAccount(row)
	return acc, mapError(err, tenant.ErrAccountNotFound, nil)
}

func (s *TenantStore) GetMembership(ctx context.Context, accountID, organizationID string) (tenant.Membership, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+membershipColumns+` from memberships
		where account_id = $1 and organization_id = $2
	`, accountID, organizationID)
	m, err := scanMembership(row)
	return m, mapError(err, tenant.ErrMembershipNotFound, nil)
}

func (s *TenantStore) GetMembershipByID(ctx context.Context, organizationID, membershipID string) (tenant.Membership, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+membershipColumns+` from memberships
		where organization_id = $1 and id = $2
	`, organizationID, membershipID)
	m, err := scanMembership(row)
	return m, mapError(err, tenant.ErrMembershipNotFound, nil)
}

func (s *TenantStore) ListMemberships(ctx context.Context, accountID string) ([]tenant.Membership, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+membershipColumns+` from memberships
		where account_id = $1
		order by created_at asc, id asc
	`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []tenant.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *TenantStore) DeleteMembership(ctx context.Context, organizationID, membershipID string) error {
	res, err := s.db.ExecContext(ctx, `delete from memberships where organization_id = $1 and id = $2`, organizationID, membershipID)
	if err != nil {
		return err
	}
	return requireAffected(res, tenant.ErrMembershipNotFound)
}

func scanOrganization(row rowScanner) (tenant.Organization, error) {
	var o tenant.Organization
	if err := row.Scan(&o.ID, &o.Name, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return tenant.Organization{}, err
	}
	return o, nil
}

func scanAccount(row rowScanner) (tenant.Account, error) {
	var a tenant.Account
	if err := row.Scan(&a.ID, &a.Username, &a.Email, &a.PasswordHash, &a.IsStaff, &a.CreatedAt); err != nil {
		return tenant.Account{}, err
	}
	return a, nil
}

func scanMembership(row rowScanner) (tenant.Membership, error) {
	var (
		m    tenant.Membership
		role string
		dob  sql.NullTime
	)
	if err := row.Scan(&m.ID, &m.AccountID, &m.OrganizationID, &role,
		&m.Profile.FullName, &m.Profile.PhoneNumber, &m.Profile.Gender, &dob, &m.CreatedAt); err != nil {
		return tenant.Membership{}, err
	}
	m.Role = tenant.Role(role)
	m.Profile.DateOfBirth = timePtr(dob)
	return m, nil
}
