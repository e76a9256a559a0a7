package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"vcsync.org/internal/auth"
	"vcsync.org/internal/did"
	"vcsync.org/internal/jsonld"
	"vcsync.org/internal/obs"
	"vcsync.org/internal/statuslist"
	"vcsync.org/internal/tenant"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

// didDocuments serves DID documents keyed by URL; unknown URLs get 404.
func didDocuments(docs map[string]string) *http.Client {
	return &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		body, ok := docs[r.URL.String()]
		code := http.StatusOK
		if !ok {
			code, body = http.StatusNotFound, "{}"
		}
		return &http.Response{
			StatusCode: code,
			Header:     http.Header{"Content-Type": []string{"application/json"}},
			Body:       io.NopCloser(strings.NewReader(body)),
			Request:    r,
		}, nil
	})}
}

type testEnv struct {
	handler http.Handler
	dir     *tenant.Directory
	svc     Services
}

func newTestEnv(t *testing.T, docs map[string]string, rp readinessChecker) *testEnv {
	t.Helper()
	t.Cleanup(obs.SetLogger(zap.NewNop()))

	dir := tenant.NewDirectory(tenant.NewInMemory())
	tokens, err := auth.NewTokenIssuer("handler-test-secret")
	require.NoError(t, err)
	authSvc, err := auth.NewService(auth.NewInMemory(), dir, tokens, auth.WithExposeCodes(true))
	require.NoError(t, err)

	resolver := did.NewHTTPResolver(didDocuments(docs), time.Second)
	svc := Services{
		Auth:        authSvc,
		Directory:   dir,
		DIDs:        did.NewService(did.NewInMemory(), dir, resolver),
		StatusLists: statuslist.NewService(statuslist.NewInMemory(), dir),
		Contexts:    jsonld.NewService(jsonld.NewInMemory(), dir),
	}
	if rp == nil {
		rp = ReadyProbe{}
	}
	api := New(rp, "test", svc, WithRateLimit(0, 0))
	return &testEnv{handler: api.Handler(), dir: dir, svc: svc}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rdr = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.RemoteAddr = "192.0.2.10:4321"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

type session struct {
	Access       string `json:"access"`
	Refresh      string `json:"refresh"`
	Token        string `json:"token"`
	Role         string `json:"role"`
	Organization struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"organization"`
	Account struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	} `json:"account"`
}

func (e *testEnv) registerOrg(t *testing.T, org, user, email string) session {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/v1/organizations/register", "", map[string]string{
		"org_name": org, "admin_username": user, "admin_password": "s3cret-pass", "admin_email": email,
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	ticket := decodeBody[auth.RegistrationTicket](t, rr)
	require.NotEmpty(t, ticket.DebugOTP)

	rr = e.do(t, http.MethodPost, "/v1/organizations/confirm", "", map[string]string{
		"pending_id": ticket.PendingID, "otp": ticket.DebugOTP,
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return decodeBody[session](t, rr)
}

func TestRegistrationFlow(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	rr := env.do(t, http.MethodPost, "/v1/organizations/register", "", map[string]string{
		"org_name": "Acme", "admin_username": "alice", "admin_password": "s3cret-pass", "admin_email": "alice@example.com",
	})
	require.Equal(t, http.StatusCreated, rr.Code)
	ticket := decodeBody[auth.RegistrationTicket](t, rr)

	wrong := "000000"
	if ticket.DebugOTP == wrong {
		wrong = "111111"
	}
	rr = env.do(t, http.MethodPost, "/v1/organizations/confirm", "", map[string]string{"pending_id": ticket.PendingID, "otp": wrong})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "invalid OTP", decodeBody[map[string]any](t, rr)["error"])

	rr = env.do(t, http.MethodPost, "/v1/organizations/confirm", "", map[string]string{"pending_id": ticket.PendingID, "otp": ticket.DebugOTP})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	s := decodeBody[session](t, rr)
	assert.Equal(t, "Acme", s.Organization.Name)
	assert.Equal(t, string(tenant.RoleAdmin), s.Role)
	require.NotEmpty(t, s.Access)

	rr = env.do(t, http.MethodGet, "/v1/me", s.Access, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	me := decodeBody[auth.Me](t, rr)
	assert.Equal(t, "alice", me.Account.Username)
	require.Len(t, me.Memberships, 1)

	rr = env.do(t, http.MethodPost, "/v1/organizations/login", "", map[string]string{
		"username": "alice", "password": "s3cret-pass", "org_name": "acme",
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	login := decodeBody[session](t, rr)
	assert.NotEmpty(t, login.Token)

	req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
	req.Header.Set("Authorization", "Token "+login.Token)
	legacy := httptest.NewRecorder()
	env.handler.ServeHTTP(legacy, req)
	assert.Equal(t, http.StatusOK, legacy.Code)

	rr = env.do(t, http.MethodPost, "/v1/auth/token/refresh", "", map[string]string{"refresh": s.Refresh})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotEmpty(t, decodeBody[map[string]any](t, rr)["access"])
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	rr := env.do(t, http.MethodGet, "/v1/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "authentication required", decodeBody[map[string]any](t, rr)["error"])
	assert.NotEmpty(t, rr.Header().Get(requestIDHeader))

	rr = env.do(t, http.MethodGet, "/v1/me", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "invalid token", decodeBody[map[string]any](t, rr)["error"])

	s := env.registerOrg(t, "Acme", "alice", "alice@example.com")
	rr = env.do(t, http.MethodGet, "/v1/nowhere", s.Access, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestSubmitWebDIDResolvesAssertionKey(t *testing.T) {
	env := newTestEnv(t, map[string]string{
		"https://example.com/.well-known/did.json": `{
			"id": "did:web:example.com",
			"verificationMethod": [{"id": "did:web:example.com#key1", "type": "Ed25519VerificationKey2020", "publicKeyMultibase": "z6MkExample"}],
			"assertionMethod": ["did:web:example.com#key1"]
		}`,
	}, nil)
	s := env.registerOrg(t, "Acme", "alice", "alice@example.com")
	base := "/v1/organizations/" + s.Organization.ID

	rr := env.do(t, http.MethodPost, base+"/dids", s.Access, map[string]any{"did": "did:web:example.com"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	sub := decodeBody[did.Submission](t, rr)
	assert.True(t, sub.Resolved)
	assert.Equal(t, did.StatusResolved, sub.DID.Status)
	require.Len(t, sub.Keys, 1)
	assert.Equal(t, "did:web:example.com#key1", sub.Keys[0].KeyID)
	assert.Equal(t, did.PurposeAssertion, sub.Keys[0].Purpose)

	rr = env.do(t, http.MethodGet, "/v1/public-keys?did=did:web:example.com", s.Access, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	keys := decodeBody[struct {
		Keys []did.PublicKey `json:"keys"`
	}](t, rr)
	require.Len(t, keys.Keys, 1)

	rr = env.do(t, http.MethodGet, base+"/public-keys/did:web:example.com%23key1", s.Access, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "z6MkExample", decodeBody[did.PublicKey](t, rr).PublicKeyMultibase)

	other := env.registerOrg(t, "Globex", "gina", "gina@example.com")
	rr = env.do(t, http.MethodPost, "/v1/organizations/"+other.Organization.ID+"/dids", other.Access, map[string]any{"did": "did:web:example.com"})
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestSubmitUnsupportedDIDIsStoredAndListed(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	s := env.registerOrg(t, "Acme", "alice", "alice@example.com")
	base := "/v1/organizations/" + s.Organization.ID

	rr := env.do(t, http.MethodPost, base+"/dids", s.Access, map[string]any{"did": "did:example:123"})
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	sub := decodeBody[did.Submission](t, rr)
	assert.False(t, sub.Resolved)
	assert.NotEqual(t, did.StatusResolved, sub.DID.Status)
	assert.Equal(t, did.StatusResolutionFailed, sub.DID.Status)
	assert.NotEmpty(t, sub.Message)

	rr = env.do(t, http.MethodGet, base+"/dids", s.Access, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	list := decodeBody[struct {
		Items []did.OrganizationDID `json:"items"`
	}](t, rr)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "did:example:123", list.Items[0].DID)

	rr = env.do(t, http.MethodPost, base+"/dids/"+sub.DID.ID+"/resolve", s.Access, nil)
	assert.Equal(t, http.StatusAccepted, rr.Code)
}

func TestEnrollWorkerAmbiguousOrganization(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	s := env.registerOrg(t, "Acme", "alice", "alice@example.com")
	second := tenant.Organization{Name: "Globex"}
	require.NoError(t, env.dir.Provision(context.Background(), tenant.Provisioning{
		Organization: &second,
		Membership:   &tenant.Membership{AccountID: s.Account.ID, Role: tenant.RoleAdmin},
	}))

	worker := map[string]any{"username": "bob", "password": "worker-pass", "gender": "m"}
	rr := env.do(t, http.MethodPost, "/v1/workers/register", s.Access, worker)
	require.Equal(t, http.StatusForbidden, rr.Code)
	assert.Contains(t, decodeBody[map[string]any](t, rr)["error"], "specify one")
	_, err := env.dir.AccountByUsername(context.Background(), "bob")
	assert.True(t, errors.Is(err, tenant.ErrAccountNotFound))

	worker["org_id"] = 7
	rr = env.do(t, http.MethodPost, "/v1/workers/register", s.Access, worker)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	delete(worker, "org_id")
	worker["organization"] = "Globex"
	rr = env.do(t, http.MethodPost, "/v1/workers/register", s.Access, worker)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	enrolled := decodeBody[session](t, rr)
	assert.Equal(t, second.ID, enrolled.Organization.ID)
	assert.Equal(t, string(tenant.RoleUser), enrolled.Role)

	rr = env.do(t, http.MethodPost, "/v1/workers/login", "", map[string]string{"username": "bob", "password": "worker-pass", "org_name": "Globex"})
	assert.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
}

func statusListBody(id, encoded string) string {
	return `{
		"type": ["VerifiableCredential", "BitstringStatusListCredential"],
		"id": "` + id + `",
		"issuer": "did:web:example.com",
		"credentialSubject": {"type": "BitstringStatusList", "statusPurpose": "revocation", "encodedList": "` + encoded + `"}
	}`
}

func TestStatusListUpsertOverHTTP(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	s := env.registerOrg(t, "Acme", "alice", "alice@example.com")
	base := "/v1/organizations/" + s.Organization.ID + "/status-lists"

	rr := env.do(t, http.MethodPost, base, s.Access, statusListBody("https://example.com/sl/1", "H4sIAAAA"))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	first := decodeBody[statuslist.Result](t, rr)
	assert.Equal(t, statuslist.OutcomeCreated, first.Outcome)
	assert.Equal(t, 1, first.Credential.Version)

	rr = env.do(t, http.MethodPost, base, s.Access, `{"credential": `+statusListBody("https://example.com/sl/1", "H4sIAAAA")+`}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	second := decodeBody[statuslist.Result](t, rr)
	assert.Equal(t, statuslist.OutcomeUnchanged, second.Outcome)
	assert.Equal(t, 1, second.Credential.Version)

	rr = env.do(t, http.MethodPost, base, s.Access, statusListBody("https://example.com/sl/1", "H4sIBBBB"))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 2, decodeBody[statuslist.Result](t, rr).Credential.Version)

	rr = env.do(t, http.MethodGet, base+"/history?id=https://example.com/sl/1", s.Access, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	history := decodeBody[struct {
		Items []statuslist.HistoryEntry `json:"items"`
	}](t, rr)
	require.Len(t, history.Items, 1)
	assert.Equal(t, 1, history.Items[0].Version)

	rr = env.do(t, http.MethodGet, base+"/manifest", s.Access, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	manifest := decodeBody[struct {
		Items []statuslist.ManifestEntry `json:"items"`
	}](t, rr)
	require.Len(t, manifest.Items, 1)
	assert.Equal(t, 2, manifest.Items[0].Version)

	rr = env.do(t, http.MethodGet, base+"/entry", s.Access, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.do(t, http.MethodDelete, base+"?id=https://example.com/sl/1", s.Access, nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	rr = env.do(t, http.MethodGet, base+"/entry?id=https://example.com/sl/1", s.Access, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestOrganizationScopeIsEnforced(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	acme := env.registerOrg(t, "Acme", "alice", "alice@example.com")
	globex := env.registerOrg(t, "Globex", "gina", "gina@example.com")

	rr := env.do(t, http.MethodGet, "/v1/organizations/"+acme.Organization.ID+"/dids", globex.Access, nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = env.do(t, http.MethodPatch, "/v1/organizations/"+acme.Organization.ID, acme.Access, map[string]string{"name": "Acme Labs"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "Acme Labs", decodeBody[tenant.Organization](t, rr).Name)

	rr = env.do(t, http.MethodPatch, "/v1/organizations/"+acme.Organization.ID, acme.Access, map[string]string{"name": "Globex"})
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = env.do(t, http.MethodDelete, "/v1/organizations/"+acme.Organization.ID, globex.Access, nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestContextEndpoints(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	s := env.registerOrg(t, "Acme", "alice", "alice@example.com")

	rr := env.do(t, http.MethodPost, "/v1/contexts", s.Access, map[string]any{
		"url":      "https://www.w3.org/ns/credentials/v2",
		"document": map[string]any{"@context": map[string]any{"id": "@id"}},
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = env.do(t, http.MethodPost, "/v1/contexts", s.Access, map[string]any{
		"url":      "ftp://example.com/ctx",
		"document": map[string]any{"@context": map[string]any{}},
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.do(t, http.MethodGet, "/v1/contexts", s.Access, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	list := decodeBody[struct {
		Items []jsonld.Context `json:"items"`
	}](t, rr)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "https://www.w3.org/ns/credentials/v2", list.Items[0].URL)
}

type stubProbe struct{ err error }

func (p stubProbe) Check(context.Context) error { return p.err }

func TestHealthAndReadiness(t *testing.T) {
	env := newTestEnv(t, nil, stubProbe{err: errors.New("db down")})

	rr := env.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, serviceName, decodeBody[map[string]any](t, rr)["service"])

	rr = env.do(t, http.MethodGet, "/readyz", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "db down", decodeBody[map[string]any](t, rr)["error"])

	rr = env.do(t, http.MethodGet, "/v1/info", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "test", decodeBody[map[string]any](t, rr)["version"])
}

func TestUnwrapCredential(t *testing.T) {
	inner := `{"type":["BitstringStatusListCredential"]}`
	assert.JSONEq(t, inner, string(unwrapCredential([]byte(`{"credential":`+inner+`}`))))
	assert.JSONEq(t, inner, string(unwrapCredential([]byte(inner))))

	withType := `{"type":["X"],"credential":{"a":1}}`
	assert.Equal(t, withType, string(unwrapCredential([]byte(withType))))
	assert.Equal(t, "not json", string(unwrapCredential([]byte("not json"))))
}
