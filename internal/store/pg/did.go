package pg

import (
	"context"
	"database/sql"
	"time"

	"vcsync.org/internal/did"
	"vcsync.org/internal/tenant"
)

var _ did.Store = (*DIDStore)(nil)

// DIDStore persists organization DIDs and public keys.
type DIDStore struct {
	db *sql.DB
}

const (
	didColumns = `id, organization_id, did, status, metadata, resolution_attempts, last_error, created_at, updated_at`
	keyColumns = `id, organization_id, key_id, key_type, public_key_multibase, public_key_hex, public_key_jwk, controller, purpose,
		is_active, expires_at, revoked_at, revocation_reason, created_at, updated_at`
)

func (s *DIDStore) CreateDID(ctx context.Context, d did.OrganizationDID) error {
	meta, err := jsonParam(d.Metadata)
	if err != nil {
		return err
	}
	if meta == nil {
		meta = "{}"
	}
	_, err = s.db.ExecContext(ctx, `
		insert into organization_dids (id, organization_id, did, status, metadata, resolution_attempts, last_error, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, d.ID, d.OrganizationID, d.DID, string(d.Status), meta, d.ResolutionAttempts, d.LastError, d.CreatedAt, d.UpdatedAt)
	return mapError(err, tenant.ErrOrganizationNotFound, did.ErrDIDTaken)
}

func (s *DIDStore) GetDID(ctx context.Context, organizationID, id string) (did.OrganizationDID, error) {
	row := s.db.QueryRowContext(ctx, `select `+didColumns+` from organization_dids where organization_id = $1 and id = $2`, organizationID, id)
	d, err := scanDID(row)
	return d, mapError(err, did.ErrDIDNotFound, nil)
}

func (s *DIDStore) ListDIDs(ctx context.Context, organizationID string) ([]did.OrganizationDID, error) {
	return s.queryDIDs(ctx, `
		select `+didColumns+` from organization_dids
		where organization_id = $1
		order by created_at asc, id asc
	`, organizationID)
}

func (s *DIDStore) ListUnresolved(ctx context.Context, limit int) ([]did.OrganizationDID, error) {
	// limit null means no limit
	var lim sql.NullInt64
	if limit > 0 {
		lim = sql.NullInt64{Int64: int64(limit), Valid: true}
	}
	return s.queryDIDs(ctx, `
		select `+didColumns+` from organization_dids
		where status in ('SUBMITTED', 'RESOLUTION_FAILED')
		order by created_at asc, id asc
		limit $1
	`, lim)
}

func (s *DIDStore) queryDIDs(ctx context.Context, query string, args ...any) ([]did.OrganizationDID, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []did.OrganizationDID
	for rows.Next() {
		d, err := scanDID(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *DIDStore) MarkResolved(ctx context.Context, organizationID, id string, keys []did.PublicKey, at time.Time) (did.OrganizationDID, []did.PublicKey, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return did.OrganizationDID{}, nil, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		update organization_dids
		set status = 'RESOLVED', resolution_attempts = resolution_attempts + 1, last_error = '', updated_at = $3
		where organization_id = $1 and id = $2
		returning `+didColumns, organizationID, id, at)
	d, err := scanDID(row)
	if err != nil {
		return did.OrganizationDID{}, nil, mapError(err, did.ErrDIDNotFound, nil)
	}
	stored := make([]did.PublicKey, 0, len(keys))
	for _, k := range keys {
		saved, err := upsertKey(ctx, tx, k)
		if err != nil {
			return did.OrganizationDID{}, nil, err
		}
		stored = append(stored, saved)
	}
	if err := tx.Commit(); err != nil {
		return did.OrganizationDID{}, nil, err
	}
	return d, stored, nil
}

func (s *DIDStore) MarkFailed(ctx context.Context, organizationID, id, reason string, at time.Time) (did.OrganizationDID, error) {
	row := s.db.QueryRowContext(ctx, `
		update organization_dids
		set status = 'RESOLUTION_FAILED', resolution_attempts = resolution_attempts + 1, last_error = $3, updated_at = $4
		where organization_id = $1 and id = $2
		returning `+didColumns, organizationID, id, reason, at)
	d, err := scanDID(row)
	return d, mapError(err, did.ErrDIDNotFound, nil)
}

func (s *DIDStore) Revoke(ctx context.Context, organizationID, id, reason string, at time.Time) (did.OrganizationDID, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return did.OrganizationDID{}, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		update organization_dids set status = 'REVOKED', updated_at = $3
		where organization_id = $1 and id = $2
		returning `+didColumns, organizationID, id, at)
	d, err := scanDID(row)
	if err != nil {
		return did.OrganizationDID{}, mapError(err, did.ErrDIDNotFound, nil)
	}
	if _, err := tx.ExecContext(ctx, `
		update public_keys
		set is_active = false, revoked_at = $3, revocation_reason = $4, updated_at = $3
		where organization_id = $1 and is_active
		  and (controller = $2 or starts_with(key_id, $2 || '#'))
	`, organizationID, d.DID, at, reason); err != nil {
		return did.OrganizationDID{}, err
	}
	if err := tx.Commit(); err != nil {
		return did.OrganizationDID{}, err
	}
	return d, nil
}

func (s *DIDStore) UpsertKey(ctx context.Context, k did.PublicKey) (did.PublicKey, error) {
	return upsertKey(ctx, s.db, k)
}

// upsertKey keeps the id and created_at of an existing (organization, key id) row.
func upsertKey(ctx context.Context, q execer, k did.PublicKey) (did.PublicKey, error) {
	jwk, err := jsonParam(k.PublicKeyJWK)
	if err != nil {
		return did.PublicKey{}, err
	}
	row := q.QueryRowContext(ctx, `
		insert into public_keys (id, organization_id, key_id, key_type, public_key_multibase, public_key_hex, public_key_jwk,
			controller, purpose, is_active, expires_at, revoked_at, revocation_reason, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		on conflict (organization_id, key_id) do update set
			key_type = excluded.key_type,
			public_key_multibase = excluded.public_key_multibase,
			public_key_hex = excluded.public_key_hex,
			public_key_jwk = excluded.public_key_jwk,
			controller = excluded.controller,
			purpose = excluded.purpose,
			is_active = excluded.is_active,
			expires_at = excluded.expires_at,
			revoked_at = excluded.revoked_at,
			revocation_reason = excluded.revocation_reason,
			updated_at = excluded.updated_at
		returning `+keyColumns,
		k.ID, k.OrganizationID, k.KeyID, k.KeyType, k.PublicKeyMultibase, k.PublicKeyHex, jwk,
		k.Controller, k.Purpose, k.IsActive, nullTime(k.ExpiresAt), nullTime(k.RevokedAt), k.RevocationReason, k.CreatedAt, k.UpdatedAt)
	saved, err := scanKey(row)
	return saved, mapError(err, tenant.ErrOrganizationNotFound, nil)
}

func (s *DIDStore) GetKey(ctx context.Context, organizationID, keyID string) (did.PublicKey, error) {
	row := s.db.QueryRowContext(ctx, `select `+keyColumns+` from public_keys where organization_id = $1 and key_id = $2`, organizationID, keyID)
	k, err := scanKey(row)
	return k, mapError(err, did.ErrKeyNotFound, nil)
}

func (s *DIDStore) ListKeys(ctx context.Context, f did.KeyFilter) ([]did.PublicKey, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+keyColumns+` from public_keys
		where is_active
		  and ($1 = '' or organization_id = $1)
		  and ($2 = '' or controller = $2)
		order by organization_id asc, key_id asc
	`, f.OrganizationID, f.Controller)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []did.PublicKey
	for rows.Next() {
		k, err := scanKey(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func (s *DIDStore) DeleteKey(ctx context.Context, organizationID, keyID string) error {
	res, err := s.db.ExecContext(ctx, `delete from public_keys where organization_id = $1 and key_id = $2`, organizationID, keyID)
	if err != nil {
		return err
	}
	return requireAffected(res, did.ErrKeyNotFound)
}

func scanDID(row rowScanner) (did.OrganizationDID, error) {
	var (
		d      did.OrganizationDID
		status string
		meta   []byte
	)
	if err := row.Scan(&d.ID, &d.OrganizationID, &d.DID, &status, &meta, &d.ResolutionAttempts, &d.LastError, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return did.OrganizationDID{}, err
	}
	d.Status = did.Status(status)
	if err := decodeJSON(meta, &d.Metadata); err != nil {
		return did.OrganizationDID{}, err
	}
	return d, nil
}

func scanKey(row rowScanner) (did.PublicKey, error) {
	var (
		k                  did.PublicKey
		jwk                []byte
		expires, revokedAt sql.NullTime
	)
	if err := row.Scan(&k.ID, &k.OrganizationID, &k.KeyID, &k.KeyType, &k.PublicKeyMultibase, &k.PublicKeyHex, &jwk,
		&k.Controller, &k.Purpose, &k.IsActive, &expires, &revokedAt, &k.RevocationReason, &k.CreatedAt, &k.UpdatedAt); err != nil {
		return did.PublicKey{}, err
	}
	if err := decodeJSON(jwk, &k.PublicKeyJWK); err != nil {
		return did.PublicKey{}, err
	}
	k.ExpiresAt = timePtr(expires)
	k.RevokedAt = timePtr(revokedAt)
	return k, nil
}
