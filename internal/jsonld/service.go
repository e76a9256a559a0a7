package jsonld

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"vcsync.org/internal/apperr"
	"vcsync.org/internal/obs"
	"vcsync.org/internal/tenant"
)

const defaultFetchTimeout = 15 * time.Second

// ErrNotContextAdmin is returned to callers who are neither staff nor an organization admin.
var ErrNotContextAdmin = fmt.Errorf("%w: staff or organization admin required", apperr.ErrForbidden)

// Service lists, edits and refreshes cached contexts.
type Service struct {
	store       Store
	dir         *tenant.Directory
	client      *resty.Client
	defaultURLs []string
	log         *zap.Logger
	now         func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithHTTPClient sets the client used by Refresh and its per-request timeout.
func WithHTTPClient(hc *http.Client, timeout time.Duration) Option {
	return func(s *Service) {
		s.client = newClient(hc, timeout)
	}
}

// WithDefaultURLs sets the URLs Refresh fetches when called without any.
func WithDefaultURLs(urls []string) Option {
	return func(s *Service) { s.defaultURLs = urls }
}

// WithClock overrides the time source.
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// NewService wires a Service.
func NewService(store Store, dir *tenant.Directory, opts ...Option) *Service {
	s := &Service{store: store, dir: dir, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = newClient(nil, defaultFetchTimeout)
	}
	if s.log == nil {
		s.log = obs.Logger()
	}
	return s
}

func newClient(hc *http.Client, timeout time.Duration) *resty.Client {
	if hc == nil {
		hc = &http.Client{}
	}
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	return resty.NewWithClient(hc).SetTimeout(timeout)
}

// List returns every cached context.
func (s *Service) List(ctx context.Context) ([]Context, error) {
	return s.store.List(ctx)
}

// Upsert stores a document supplied by staff or by an admin of any organization.
func (s *Service) Upsert(ctx context.Context, actorID string, isStaff bool, rawURL string, doc []byte) (Context, error) {
	if err := s.Authorize(ctx, actorID, isStaff); err != nil {
		return Context{}, err
	}
	u, err := NormalizeURL(rawURL)
	if err != nil {
		return Context{}, err
	}
	if err := ValidateDocument(doc); err != nil {
		return Context{}, err
	}
	return s.store.Upsert(ctx, Context{URL: u, Document: append(json.RawMessage(nil), doc...), UpdatedAt: s.now().UTC()})
}

// FetchFailure reports one URL Refresh could not store.
type FetchFailure struct {
	URL   string `json:"url"`
	Error string `json:"error"`
}

// RefreshReport summarizes a Refresh run.
type RefreshReport struct {
	Updated []string       `json:"updated"`
	Failed  []FetchFailure `json:"failed"`
}

// Refresh fetches each URL and stores the successes. One failing URL never aborts the batch.
func (s *Service) Refresh(ctx context.Context, urls []string) (RefreshReport, error) {
	if len(urls) == 0 {
		urls = s.defaultURLs
	}
	report := RefreshReport{Updated: []string{}, Failed: []FetchFailure{}}
	for _, raw := range urls {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		u, err := NormalizeURL(raw)
		if err == nil {
			err = s.fetch(ctx, u)
		}
		if err != nil {
			s.log.Warn("jsonld.fetch_failed", zap.String("url", raw), zap.Error(err))
			report.Failed = append(report.Failed, FetchFailure{URL: raw, Error: err.Error()})
			continue
		}
		report.Updated = append(report.Updated, u)
	}
	s.log.Info("jsonld.refreshed", zap.Int("updated", len(report.Updated)), zap.Int("failed", len(report.Failed)))
	return report, nil
}

func (s *Service) fetch(ctx context.Context, u string) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/ld+json, application/json").
		Get(u)
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("unexpected status %d", resp.StatusCode())
	}
	body := resp.Body()
	if !json.Valid(body) {
		return fmt.Errorf("response is not JSON")
	}
	_, err = s.store.Upsert(ctx, Context{URL: u, Document: append(json.RawMessage(nil), body...), UpdatedAt: s.now().UTC()})
	return err
}

// Authorize allows staff and accounts that administer at least one organization.
func (s *Service) Authorize(ctx context.Context, accountID string, isStaff bool) error {
	if isStaff {
		return nil
	}
	if strings.TrimSpace(accountID) == "" {
		return ErrNotContextAdmin
	}
	memberships, err := s.dir.Memberships(ctx, accountID)
	if err != nil {
		return err
	}
	for _, m := range memberships {
		if m.HasRole(tenant.ManagerRoles...) {
			return nil
		}
	}
	return ErrNotContextAdmin
}
