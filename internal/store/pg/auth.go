package pg

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"vcsync.org/internal/auth"
)

var _ auth.Store = (*AuthStore)(nil)

// AuthStore persists pending registrations, email login codes and legacy tokens.
type AuthStore struct {
	db *sql.DB
}

const pendingColumns = `id, org_name, admin_username, admin_email, password_hash, otp, attempts, expires_at, created_at, consumed_at`

// CreatePending serializes creators of the same lower-cased triple on an advisory
// lock and inserts only when no valid record exists.
func (s *AuthStore) CreatePending(ctx context.Context, p auth.PendingRegistration) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	lockKey := strings.ToLower(p.OrgName + "\n" + p.AdminUsername + "\n" + p.AdminEmail)
	if _, err := tx.ExecContext(ctx, `select pg_advisory_xact_lock(hashtext($1))`, lockKey); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `
		insert into pending_registrations (id, org_name, admin_username, admin_email, password_hash, otp, attempts, expires_at, created_at, consumed_at)
		select $1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		where not exists (
			select 1 from pending_registrations
			where consumed_at is null
			  and expires_at > $9
			  and lower(org_name) = lower($2)
			  and lower(admin_username) = lower($3)
			  and lower(admin_email) = lower($4)
		)
	`, p.ID, p.OrgName, p.AdminUsername, p.AdminEmail, p.PasswordHash, p.OTP, p.Attempts, p.ExpiresAt, p.CreatedAt, nullTime(p.ConsumedAt))
	if err != nil {
		return mapError(err, nil, auth.ErrPendingExists)
	}
	if err := requireAffected(res, auth.ErrPendingExists); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *AuthStore) GetPending(ctx context.Context, id string) (auth.PendingRegistration, error) {
	row := s.db.QueryRowContext(ctx, `select `+pendingColumns+` from pending_registrations where id = $1`, id)
	p, err := scanPending(row)
	return p, mapError(err, auth.ErrPendingNotFound, nil)
}

func (s *AuthStore) LatestPending(ctx context.Context, orgName, username, email string) (auth.PendingRegistration, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+pendingColumns+` from pending_registrations
		where consumed_at is null
		  and lower(org_name) = lower($1)
		  and lower(admin_username) = lower($2)
		  and lower(admin_email) = lower($3)
		order by created_at desc
		limit 1
	`, orgName, username, email)
	p, err := scanPending(row)
	return p, mapError(err, auth.ErrPendingNotFound, nil)
}

func (s *AuthStore) IncrementAttempts(ctx context.Context, id string) (int, error) {
	var attempts int
	err := s.db.QueryRowContext(ctx, `
		update pending_registrations set attempts = attempts + 1
		where id = $1
		returning attempts
	`, id).Scan(&attempts)
	return attempts, mapError(err, auth.ErrPendingNotFound, nil)
}

func (s *AuthStore) ConsumePending(ctx context.Context, id string, at time.Time) error {
	return s.consume(ctx, `pending_registrations`, id, at, auth.ErrPendingNotFound)
}

func (s *AuthStore) ReleasePending(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `update pending_registrations set consumed_at = null where id = $1`, id)
	if err != nil {
		return err
	}
	return requireAffected(res, auth.ErrPendingNotFound)
}

func (s *AuthStore) CreateLoginCode(ctx context.Context, c auth.LoginCode) error {
	_, err := s.db.ExecContext(ctx, `
		insert into email_login_codes (id, account_id, code, expires_at, created_at, consumed_at)
		values ($1, $2, $3, $4, $5, $6)
	`, c.ID, c.AccountID, c.Code, c.ExpiresAt, c.CreatedAt, nullTime(c.ConsumedAt))
	return err
}

func (s *AuthStore) LatestLoginCode(ctx context.Context, accountID, code string) (auth.LoginCode, error) {
	var (
		c        auth.LoginCode
		consumed sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		select id, account_id, code, expires_at, created_at, consumed_at
		from email_login_codes
		where account_id = $1 and code = $2
		order by created_at desc
		limit 1
	`, accountID, code).Scan(&c.ID, &c.AccountID, &c.Code, &c.ExpiresAt, &c.CreatedAt, &consumed)
	if err != nil {
		return auth.LoginCode{}, mapError(err, auth.ErrLoginCodeNotFound, nil)
	}
	c.ConsumedAt = timePtr(consumed)
	return c, nil
}

func (s *AuthStore) ConsumeLoginCode(ctx context.Context, id string, at time.Time) error {
	return s.consume(ctx, `email_login_codes`, id, at, auth.ErrLoginCodeNotFound)
}

// consume sets consumed_at once; a second caller gets ErrAlreadyConsumed.
func (s *AuthStore) consume(ctx context.Context, table, id string, at time.Time, notFound error) error {
	res, err := s.db.ExecContext(ctx, `update `+table+` set consumed_at = $2 where id = $1 and consumed_at is null`, id, at)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil || n > 0 {
		return err
	}
	var exists bool
	if err := s.db.QueryRowContext(ctx, `select exists(select 1 from `+table+` where id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return notFound
	}
	return auth.ErrAlreadyConsumed
}

func (s *AuthStore) GetOrCreateLegacyToken(ctx context.Context, accountID, candidate string) (string, error) {
	if _, err := s.db.ExecContext(ctx, `
		insert into legacy_tokens (account_id, token, created_at)
		values ($1, $2, now())
		on conflict (account_id) do nothing
	`, accountID, candidate); err != nil {
		return "", err
	}
	var token string
	err := s.db.QueryRowContext(ctx, `select token from legacy_tokens where account_id = $1`, accountID).Scan(&token)
	return token, err
}

func (s *AuthStore) AccountForLegacyToken(ctx context.Context, token string) (string, error) {
	var accountID string
	err := s.db.QueryRowContext(ctx, `select account_id from legacy_tokens where token = $1`, token).Scan(&accountID)
	return accountID, mapError(err, auth.ErrInvalidToken, nil)
}

func scanPending(row rowScanner) (auth.PendingRegistration, error) {
	var (
		p        auth.PendingRegistration
		consumed sql.NullTime
	)
	if err := row.Scan(&p.ID, &p.OrgName, &p.AdminUsername, &p.AdminEmail, &p.PasswordHash, &p.OTP,
		&p.Attempts, &p.ExpiresAt, &p.CreatedAt, &consumed); err != nil {
		return auth.PendingRegistration{}, err
	}
	p.ConsumedAt = timePtr(consumed)
	return p, nil
}
