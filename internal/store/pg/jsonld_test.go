package pg

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vcsync.org/internal/jsonld"
)

func TestContextStore(t *testing.T) {
	s, mock := newMock(t)
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	doc := `{"@context":{}}`
	mock.ExpectQuery("insert into jsonld_contexts .* on conflict \\(url\\) do update").
		WithArgs("https://w3id.org/security/v2", doc, now).
		WillReturnRows(sqlmock.NewRows([]string{"url", "document", "updated_at"}).AddRow("https://w3id.org/security/v2", []byte(doc), now))
	mock.ExpectQuery("from jsonld_contexts where url = \\$1").WithArgs("https://missing").WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("from jsonld_contexts order by url").
		WillReturnRows(sqlmock.NewRows([]string{"url", "document", "updated_at"}))

	c, err := s.Contexts().Upsert(context.Background(), jsonld.Context{URL: "https://w3id.org/security/v2", Document: []byte(doc), UpdatedAt: now})
	require.NoError(t, err)
	assert.JSONEq(t, doc, string(c.Document))

	_, err = s.Contexts().Get(context.Background(), "https://missing")
	assert.ErrorIs(t, err, jsonld.ErrContextNotFound)

	list, err := s.Contexts().List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}
