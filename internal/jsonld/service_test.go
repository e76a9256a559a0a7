package jsonld

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"vcsync.org/internal/tenant"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func respond(r *http.Request, status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/ld+json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
		Request:    r,
	}
}

func TestRefreshStoresSuccessesAndReportsFailures(t *testing.T) {
	hc := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		assert.Equal(t, "application/ld+json, application/json", r.Header.Get("Accept"))
		switch r.URL.String() {
		case "https://www.w3.org/2018/credentials/v1":
			return respond(r, http.StatusOK, `{"@context":{"id":"@id"}}`), nil
		case "https://w3id.org/security/v1":
			return respond(r, http.StatusInternalServerError, "boom"), nil
		default:
			return respond(r, http.StatusOK, "<html>"), nil
		}
	})}
	store := NewInMemory()
	svc := NewService(store, tenant.NewDirectory(tenant.NewInMemory()),
		WithHTTPClient(hc, 0),
		WithDefaultURLs([]string{"https://www.w3.org/2018/credentials/v1", "https://w3id.org/security/v1", "https://w3id.org/security/v2"}),
		WithLogger(zap.NewNop()),
	)

	report, err := svc.Refresh(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://www.w3.org/2018/credentials/v1"}, report.Updated)
	require.Len(t, report.Failed, 2)
	assert.Contains(t, report.Failed[0].Error, "500")

	stored, err := store.Get(context.Background(), "https://www.w3.org/2018/credentials/v1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"@context":{"id":"@id"}}`, string(stored.Document))

	report, err = svc.Refresh(context.Background(), []string{"ftp://nope"})
	require.NoError(t, err)
	assert.Len(t, report.Failed, 1)
}

func TestUpsertRequiresStaffOrAdmin(t *testing.T) {
	ctx := context.Background()
	dir := tenant.NewDirectory(tenant.NewInMemory())
	org := tenant.Organization{Name: "Acme"}
	admin := tenant.Account{Username: "alice"}
	require.NoError(t, dir.Provision(ctx, tenant.Provisioning{
		Organization: &org, Account: &admin, Membership: &tenant.Membership{Role: tenant.RoleAdmin},
	}))
	worker := tenant.Account{Username: "bob"}
	require.NoError(t, dir.Provision(ctx, tenant.Provisioning{
		Account: &worker, Membership: &tenant.Membership{OrganizationID: org.ID, Role: tenant.RoleUser},
	}))
	svc := NewService(NewInMemory(), dir, WithLogger(zap.NewNop()))
	doc := []byte(`{"@context":{}}`)

	_, err := svc.Upsert(ctx, worker.ID, false, "https://example.com/ctx", doc)
	assert.ErrorIs(t, err, ErrNotContextAdmin)

	_, err = svc.Upsert(ctx, admin.ID, false, "https://example.com/ctx", []byte(`{"no":"context"}`))
	assert.ErrorIs(t, err, ErrInvalidDocument)
	_, err = svc.Upsert(ctx, admin.ID, false, "not a url", doc)
	assert.ErrorIs(t, err, ErrInvalidURL)

	_, err = svc.Upsert(ctx, admin.ID, false, "https://example.com/ctx", doc)
	require.NoError(t, err)
	_, err = svc.Upsert(ctx, worker.ID, true, "https://example.com/other", doc)
	require.NoError(t, err)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "https://example.com/ctx", list[0].URL)
}
