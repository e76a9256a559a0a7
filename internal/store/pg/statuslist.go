package pg

import (
	"context"
	"database/sql"
	"errors"

	"vcsync.org/internal/statuslist"
	"vcsync.org/internal/tenant"
)

var _ statuslist.Store = (*StatusListStore)(nil)

// StatusListStore persists current status list rows and their history.
type StatusListStore struct {
	db *sql.DB
}

const (
	credentialColumns = `id, organization_id, status_list_id, issuer, purposes, version, encoded_list_hash, issuance_date,
		full_credential, created_at, updated_at`
	historyColumns = `id, status_list_credential_id, organization_id, status_list_id, issuer, purposes, version, encoded_list_hash,
		issuance_date, full_credential, archived_at`
)

// Mutate locks the current row with select ... for update. Two first inserts racing on the
// unique index are resolved by retrying once, which then sees the winner's row.
func (s *StatusListStore) Mutate(ctx context.Context, organizationID, statusListID string, fn statuslist.MutateFunc) (statuslist.Credential, error) {
	c, err := s.mutate(ctx, organizationID, statusListID, fn)
	if isUniqueViolation(err) {
		c, err = s.mutate(ctx, organizationID, statusListID, fn)
	}
	return c, err
}

func (s *StatusListStore) mutate(ctx context.Context, organizationID, statusListID string, fn statuslist.MutateFunc) (statuslist.Credential, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return statuslist.Credential{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var current *statuslist.Credential
	row := tx.QueryRowContext(ctx, `
		select `+credentialColumns+` from status_list_credentials
		where organization_id = $1 and status_list_id = $2
		for update
	`, organizationID, statusListID)
	existing, err := scanCredential(row)
	switch {
	case err == nil:
		current = &existing
	case errors.Is(err, sql.ErrNoRows):
	default:
		return statuslist.Credential{}, err
	}

	m, err := fn(current)
	if err != nil {
		return statuslist.Credential{}, err
	}
	if m.Outcome == statuslist.OutcomeUnchanged {
		return m.Next, nil
	}
	if m.Archive != nil {
		if err := insertHistory(ctx, tx, *m.Archive); err != nil {
			return statuslist.Credential{}, err
		}
	}
	purposes, err := jsonParam(purposesOrEmpty(m.Next.Purposes))
	if err != nil {
		return statuslist.Credential{}, err
	}
	full, err := jsonParam(m.Next.FullCredential)
	if err != nil {
		return statuslist.Credential{}, err
	}
	n := m.Next
	if m.Outcome == statuslist.OutcomeCreated {
		_, err = tx.ExecContext(ctx, `
			insert into status_list_credentials (id, organization_id, status_list_id, issuer, purposes, version, encoded_list_hash,
				issuance_date, full_credential, created_at, updated_at)
			values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`, n.ID, n.OrganizationID, n.StatusListID, n.Issuer, purposes, n.Version, n.EncodedListHash,
			nullTime(n.IssuanceDate), full, n.CreatedAt, n.UpdatedAt)
	} else {
		_, err = tx.ExecContext(ctx, `
			update status_list_credentials
			set issuer = $2, purposes = $3, version = $4, encoded_list_hash = $5, issuance_date = $6, full_credential = $7, updated_at = $8
			where id = $1
		`, n.ID, n.Issuer, purposes, n.Version, n.EncodedListHash, nullTime(n.IssuanceDate), full, n.UpdatedAt)
	}
	if err != nil {
		if isUniqueViolation(err) {
			return statuslist.Credential{}, err
		}
		return statuslist.Credential{}, mapError(err, tenant.ErrOrganizationNotFound, nil)
	}
	if err := tx.Commit(); err != nil {
		return statuslist.Credential{}, err
	}
	return n, nil
}

func insertHistory(ctx context.Context, tx *sql.Tx, h statuslist.HistoryEntry) error {
	purposes, err := jsonParam(purposesOrEmpty(h.Purposes))
	if err != nil {
		return err
	}
	full, err := jsonParam(h.FullCredential)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		insert into status_list_credential_history (id, status_list_credential_id, organization_id, status_list_id, issuer, purposes,
			version, encoded_list_hash, issuance_date, full_credential, archived_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, h.ID, h.CredentialID, h.OrganizationID, h.StatusListID, h.Issuer, purposes,
		h.Version, h.EncodedListHash, nullTime(h.IssuanceDate), full, h.ArchivedAt)
	return err
}

func (s *StatusListStore) List(ctx context.Context, organizationID string) ([]statuslist.Credential, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+credentialColumns+` from status_list_credentials
		where organization_id = $1
		order by status_list_id asc
	`, organizationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []statuslist.Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *StatusListStore) Get(ctx context.Context, organizationID, statusListID string) (statuslist.Credential, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+credentialColumns+` from status_list_credentials
		where organization_id = $1 and status_list_id = $2
	`, organizationID, statusListID)
	c, err := scanCredential(row)
	return c, mapError(err, statuslist.ErrNotFound, nil)
}

func (s *StatusListStore) History(ctx context.Context, organizationID, statusListID string) ([]statuslist.HistoryEntry, error) {
	var credentialID string
	err := s.db.QueryRowContext(ctx, `
		select id from status_list_credentials where organization_id = $1 and status_list_id = $2
	`, organizationID, statusListID).Scan(&credentialID)
	if err != nil {
		return nil, mapError(err, statuslist.ErrNotFound, nil)
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+historyColumns+` from status_list_credential_history
		where status_list_credential_id = $1
		order by version asc
	`, credentialID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []statuslist.HistoryEntry{}
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// Delete removes the current row; history rows cascade.
func (s *StatusListStore) Delete(ctx context.Context, organizationID, statusListID string) error {
	res, err := s.db.ExecContext(ctx, `
		delete from status_list_credentials where organization_id = $1 and status_list_id = $2
	`, organizationID, statusListID)
	if err != nil {
		return err
	}
	return requireAffected(res, statuslist.ErrNotFound)
}

func purposesOrEmpty(p []string) []string {
	if p == nil {
		return []string{}
	}
	return p
}

func scanCredential(row rowScanner) (statuslist.Credential, error) {
	var (
		c              statuslist.Credential
		purposes, full []byte
		issued         sql.NullTime
	)
	if err := row.Scan(&c.ID, &c.OrganizationID, &c.StatusListID, &c.Issuer, &purposes, &c.Version, &c.EncodedListHash,
		&issued, &full, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return statuslist.Credential{}, err
	}
	if err := decodeJSON(purposes, &c.Purposes); err != nil {
		return statuslist.Credential{}, err
	}
	c.IssuanceDate = timePtr(issued)
	c.FullCredential = append([]byte(nil), full...)
	return c, nil
}

func scanHistory(row rowScanner) (statuslist.HistoryEntry, error) {
	var (
		h              statuslist.HistoryEntry
		purposes, full []byte
		issued         sql.NullTime
	)
	if err := row.Scan(&h.ID, &h.CredentialID, &h.OrganizationID, &h.StatusListID, &h.Issuer, &purposes,
		&h.Version, &h.EncodedListHash, &issued, &full, &h.ArchivedAt); err != nil {
		return statuslist.HistoryEntry{}, err
	}
	if err := decodeJSON(purposes, &h.Purposes); err != nil {
		return statuslist.HistoryEntry{}, err
	}
	h.IssuanceDate = timePtr(issued)
	h.FullCredential = append([]byte(nil), full...)
	return h, nil
}
