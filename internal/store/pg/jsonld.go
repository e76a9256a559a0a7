package pg

import (
	"context"
	"database/sql"

	"vcsync.org/internal/jsonld"
)

var _ jsonld.Store = (*ContextStore)(nil)

// ContextStore persists the global JSON-LD context cache.
type ContextStore struct {
	db *sql.DB
}

func (s *ContextStore) Upsert(ctx context.Context, c jsonld.Context) (jsonld.Context, error) {
	row := s.db.QueryRowContext(ctx, `
		insert into jsonld_contexts (url, document, updated_at)
		values ($1, $2, $3)
		on conflict (url) do update set document = excluded.document, updated_at = excluded.updated_at
		returning url, document, updated_at
	`, c.URL, string(c.Document), c.UpdatedAt)
	return scanContext(row)
}

func (s *ContextStore) Get(ctx context.Context, url string) (jsonld.Context, error) {
	row := s.db.QueryRowContext(ctx, `select url, document, updated_at from jsonld_contexts where url = $1`, url)
	c, err := scanContext(row)
	return c, mapError(err, jsonld.ErrContextNotFound, nil)
}

func (s *ContextStore) List(ctx context.Context) ([]jsonld.Context, error) {
	rows, err := s.db.QueryContext(ctx, `select url, document, updated_at from jsonld_contexts order by url asc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []jsonld.Context{}
	for rows.Next() {
		c, err := scanContext(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanContext(row rowScanner) (jsonld.Context, error) {
	var (
		c   jsonld.Context
		doc []byte
	)
	if err := row.Scan(&c.URL, &doc, &c.UpdatedAt); err != nil {
		return jsonld.Context{}, err
	}
	c.Document = append([]byte(nil), doc...)
	return c, nil
}
