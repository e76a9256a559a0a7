package httpapi

import (
	"context"
	"net/http"
	"time"

	"vcsync.org/internal/auth"
	"vcsync.org/internal/did"
	"vcsync.org/internal/jsonld"
	"vcsync.org/internal/obs"
	"vcsync.org/internal/statuslist"
	"vcsync.org/internal/tenant"
)

const serviceName = "vcsync-api"

// Pinger is a dependency the readiness probe checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadyProbe pings the database and cache when they are configured.
type ReadyProbe struct {
	DB    Pinger
	Cache Pinger
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	for _, p := range []Pinger{rp.DB, rp.Cache} {
		if p == nil {
			continue
		}
		if err := p.Ping(ctx); err != nil {
			return err
		}
	}
	return nil
}

type readinessChecker interface {
	Check(ctx context.Context) error
}

// Services are the domain services the API exposes.
type Services struct {
	Auth        *auth.Service
	Directory   *tenant.Directory
	DIDs        *did.Service
	StatusLists *statuslist.Service
	Contexts    *jsonld.Service
}

// API is the HTTP layer.
type API struct {
	mux         *http.ServeMux
	readyProbe  readinessChecker
	version     string
	svc         Services
	ratePerSec  float64
	rateBurst   int
	corsOrigins []string
}

// Option configures API.
type Option func(*API)

// WithRateLimit sets the per-IP token bucket. Zero disables limiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(a *API) {
		a.ratePerSec = perSecond
		a.rateBurst = burst
	}
}

// WithCORSOrigins sets the allowed browser origins.
func WithCORSOrigins(origins []string) Option {
	return func(a *API) { a.corsOrigins = origins }
}

func New(rp readinessChecker, version string, svc Services, opts ...Option) *API {
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: rp,
		version:    version,
		svc:        svc,
		ratePerSec: 20,
		rateBurst:  40,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.routes()
	return a
}

func (a *API) routes() {
	a.mux.HandleFunc("GET /healthz", a.Healthz)
	a.mux.HandleFunc("GET /readyz", a.Ready)
	a.mux.HandleFunc("GET /v1/info", a.Info)
	a.mux.Handle("GET /metrics", obs.Handler())

	a.mux.HandleFunc("POST /v1/organizations/register", a.requestRegistration)
	a.mux.HandleFunc("POST /v1/organizations/confirm", a.confirmRegistration)
	a.mux.HandleFunc("POST /v1/organizations/login", a.organizationLogin)
	a.mux.HandleFunc("POST /v1/workers/login", a.workerLogin)
	a.mux.HandleFunc("POST /v1/workers/register", a.enrollWorker)
	a.mux.HandleFunc("POST /v1/auth/email/request-code", a.requestEmailCode)
	a.mux.HandleFunc("POST /v1/auth/email/verify-code", a.verifyEmailCode)
	a.mux.HandleFunc("POST /v1/auth/token/refresh", a.refreshToken)
	a.mux.HandleFunc("GET /v1/me", a.me)

	a.mux.HandleFunc("PATCH /v1/organizations/{org_id}", a.renameOrganization)
	a.mux.HandleFunc("DELETE /v1/organizations/{org_id}", a.deleteOrganization)
	a.mux.HandleFunc("DELETE /v1/organizations/{org_id}/members/{member_id}", a.removeMember)

	a.mux.HandleFunc("POST /v1/organizations/{org_id}/dids", a.submitDID)
	a.mux.HandleFunc("GET /v1/organizations/{org_id}/dids", a.listDIDs)
	a.mux.HandleFunc("POST /v1/organizations/{org_id}/dids/{did_id}/resolve", a.retryDID)
	a.mux.HandleFunc("POST /v1/organizations/{org_id}/dids/{did_id}/revoke", a.revokeDID)
	a.mux.HandleFunc("GET /v1/public-keys", a.listKeys)
	a.mux.HandleFunc("POST /v1/organizations/{org_id}/public-keys", a.registerKey)
	a.mux.HandleFunc("GET /v1/organizations/{org_id}/public-keys/{key_id...}", a.getKey)
	a.mux.HandleFunc("DELETE /v1/organizations/{org_id}/public-keys/{key_id...}", a.deleteKey)

	a.mux.HandleFunc("POST /v1/organizations/{org_id}/status-lists", a.upsertStatusList)
	a.mux.HandleFunc("GET /v1/organizations/{org_id}/status-lists", a.listStatusLists)
	a.mux.HandleFunc("DELETE /v1/organizations/{org_id}/status-lists", a.deleteStatusList)
	a.mux.HandleFunc("GET /v1/organizations/{org_id}/status-lists/manifest", a.statusListManifest)
	a.mux.HandleFunc("GET /v1/organizations/{org_id}/status-lists/entry", a.getStatusList)
	a.mux.HandleFunc("GET /v1/organizations/{org_id}/status-lists/history", a.statusListHistory)

	a.mux.HandleFunc("GET /v1/contexts", a.listContexts)
	a.mux.HandleFunc("POST /v1/contexts", a.upsertContext)
	a.mux.HandleFunc("POST /v1/contexts/refresh", a.refreshContexts)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "resource not found")
	})
}

// Handler returns the mux wrapped in the middleware chain.
func (a *API) Handler() http.Handler {
	h := MaxBodyBytes(a.withAuth(a.mux), maxBodyBytes)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = CORS(h, a.corsOrigins)
	h = SecurityHeaders(h)
	h = obs.Instrument(h)
	h = LoggingJSON(h)
	return RequestID(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	b := obs.CurrentBuild()
	writeJSON(w, http.StatusOK, map[string]any{
		"name":       serviceName,
		"time":       time.Now().UTC().Format(time.RFC3339),
		"version":    a.version,
		"commit":     b.Commit,
		"go_version": b.GoVersion,
	})
}
