package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vcsync.org/internal/statuslist"
)

var credentialCols = []string{"id", "organization_id", "status_list_id", "issuer", "purposes", "version", "encoded_list_hash", "issuance_date",
	"full_credential", "created_at", "updated_at"}

func decideWith(doc statuslist.Document, now time.Time) statuslist.MutateFunc {
	return func(current *statuslist.Credential) (statuslist.Mutation, error) {
		return statuslist.Decide("org1", current, doc, now), nil
	}
}

func testDocument(hash string) statuslist.Document {
	return statuslist.Document{
		StatusListID:    "https://issuer.example/status/1",
		Issuer:          "did:web:issuer.example",
		Purposes:        []string{"revocation"},
		EncodedListHash: hash,
		Raw:             json.RawMessage(`{"id":"https://issuer.example/status/1"}`),
	}
}

func TestStatusListMutateCreates(t *testing.T) {
	s, mock := newMock(t)
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectQuery("from status_list_credentials where organization_id = \\$1 and status_list_id = \\$2 for update").
		WithArgs("org1", "https://issuer.example/status/1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("insert into status_list_credentials").
		WithArgs(sqlmock.AnyArg(), "org1", "https://issuer.example/status/1", "did:web:issuer.example", `["revocation"]`, 1, "h1",
			nil, `{"id":"https://issuer.example/status/1"}`, now, now).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	c, err := s.StatusLists().Mutate(context.Background(), "org1", "https://issuer.example/status/1", decideWith(testDocument("h1"), now))
	require.NoError(t, err)
	assert.Equal(t, 1, c.Version)
}

func TestStatusListMutateArchivesPreviousVersion(t *testing.T) {
	s, mock := newMock(t)
	created := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	now := created.Add(time.Hour)
	mock.ExpectBegin()
	mock.ExpectQuery("for update").
		WillReturnRows(sqlmock.NewRows(credentialCols).AddRow("c1", "org1", "https://issuer.example/status/1", "did:web:issuer.example",
			[]byte(`["revocation"]`), 1, "h1", nil, []byte(`{"v":1}`), created, created))
	mock.ExpectExec("insert into status_list_credential_history").
		WithArgs(sqlmock.AnyArg(), "c1", "org1", "https://issuer.example/status/1", "did:web:issuer.example", `["revocation"]`,
			1, "h1", nil, `{"v":1}`, now).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("update status_list_credentials set").
		WithArgs("c1", "did:web:issuer.example", `["revocation"]`, 2, "h2", nil, sqlmock.AnyArg(), now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	c, err := s.StatusLists().Mutate(context.Background(), "org1", "https://issuer.example/status/1", decideWith(testDocument("h2"), now))
	require.NoError(t, err)
	assert.Equal(t, 2, c.Version)
	assert.Equal(t, "c1", c.ID)
}

func TestStatusListMutateUnchangedWritesNothing(t *testing.T) {
	s, mock := newMock(t)
	created := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectQuery("for update").
		WillReturnRows(sqlmock.NewRows(credentialCols).AddRow("c1", "org1", "https://issuer.example/status/1", "did:web:issuer.example",
			[]byte(`["revocation"]`), 3, "h1", created, []byte(`{}`), created, created))
	mock.ExpectRollback()

	c, err := s.StatusLists().Mutate(context.Background(), "org1", "https://issuer.example/status/1", decideWith(testDocument("h1"), created.Add(time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, 3, c.Version)
	require.NotNil(t, c.IssuanceDate)
}

func TestStatusListMutateRetriesRacingInsert(t *testing.T) {
	s, mock := newMock(t)
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectQuery("for update").WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("insert into status_list_credentials").
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation, ConstraintName: "status_list_credentials_org_list_key"})
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectQuery("for update").
		WillReturnRows(sqlmock.NewRows(credentialCols).AddRow("winner", "org1", "https://issuer.example/status/1", "did:web:issuer.example",
			[]byte(`["revocation"]`), 1, "h1", nil, []byte(`{}`), now, now))
	mock.ExpectRollback()

	c, err := s.StatusLists().Mutate(context.Background(), "org1", "https://issuer.example/status/1", decideWith(testDocument("h1"), now))
	require.NoError(t, err)
	assert.Equal(t, "winner", c.ID)
	assert.Equal(t, 1, c.Version)
}

func TestStatusListHistoryAndDelete(t *testing.T) {
	s, mock := newMock(t)
	now := time.Now().UTC()
	historyCols := []string{"id", "status_list_credential_id", "organization_id", "status_list_id", "issuer", "purposes", "version",
		"encoded_list_hash", "issuance_date", "full_credential", "archived_at"}
	mock.ExpectQuery("select id from status_list_credentials").WithArgs("org1", "missing").WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("select id from status_list_credentials").WithArgs("org1", "list").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("c1"))
	mock.ExpectQuery("from status_list_credential_history where status_list_credential_id = \\$1 order by version").WithArgs("c1").
		WillReturnRows(sqlmock.NewRows(historyCols).
			AddRow("h1", "c1", "org1", "list", "iss", []byte(`[]`), 1, "a", nil, []byte(`{}`), now).
			AddRow("h2", "c1", "org1", "list", "iss", []byte(`[]`), 2, "b", nil, []byte(`{}`), now))
	mock.ExpectExec("delete from status_list_credentials").WithArgs("org1", "missing").WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := s.StatusLists().History(context.Background(), "org1", "missing")
	assert.ErrorIs(t, err, statuslist.ErrNotFound)

	hist, err := s.StatusLists().History(context.Background(), "org1", "list")
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, []int{1, 2}, []int{hist[0].Version, hist[1].Version})

	assert.ErrorIs(t, s.StatusLists().Delete(context.Background(), "org1", "missing"), statuslist.ErrNotFound)
}
