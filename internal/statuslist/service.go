package statuslist

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"vcsync.org/internal/cache"
	"vcsync.org/internal/obs"
	"vcsync.org/internal/tenant"
)

const defaultManifestTTL = 5 * time.Minute

// Service applies authorization, validation and manifest caching around a Store.
type Service struct {
	store           Store
	dir             *tenant.Directory
	cache           cache.KV
	cacheTTL        time.Duration
	defaultPurposes []string
	log             *zap.Logger
	now             func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithCache caches manifests in kv for ttl.
func WithCache(kv cache.KV, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = kv
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

// WithDefaultPurposes sets the purposes used when statusPurpose is absent.
func WithDefaultPurposes(p []string) Option {
	return func(s *Service) { s.defaultPurposes = p }
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

// NewService wires a Service. Without WithCache manifests are cached in process.
func NewService(store Store, dir *tenant.Directory, opts ...Option) *Service {
	s := &Service{store: store, dir: dir, cacheTTL: defaultManifestTTL, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if s.cache == nil {
		s.cache = cache.NewMemoryKV()
	}
	if s.log == nil {
		s.log = obs.Logger()
	}
	return s
}

// Upsert stores a new version of the credential when its encodedList changed.
// Every check runs before any write.
func (s *Service) Upsert(ctx context.Context, actorID, organizationID string, raw []byte) (Result, error) {
	if _, err := s.dir.RequireRole(ctx, actorID, organizationID, tenant.ManagerRoles...); err != nil {
		return Result{}, err
	}
	if _, err := s.dir.Organization(ctx, organizationID); err != nil {
		return Result{}, err
	}
	doc, err := Parse(raw, s.defaultPurposes)
	if err != nil {
		return Result{}, err
	}

	var outcome Outcome
	cred, err := s.store.Mutate(ctx, organizationID, doc.StatusListID, func(current *Credential) (Mutation, error) {
		m := Decide(organizationID, current, doc, s.now().UTC())
		outcome = m.Outcome
		return m, nil
	})
	if err != nil {
		return Result{}, err
	}
	obs.StatusListUpserted(string(outcome))
	if outcome != OutcomeUnchanged {
		s.invalidate(ctx, organizationID)
		s.log.Info("statuslist.upserted",
			zap.String("organization_id", organizationID),
			zap.String("status_list_id", cred.StatusListID),
			zap.Int("version", cred.Version),
			zap.String("outcome", string(outcome)),
		)
	}
	return Result{Credential: cred, Outcome: outcome}, nil
}

// List returns the organization's current rows for any member.
func (s *Service) List(ctx context.Context, actorID, organizationID string) ([]Credential, error) {
	if _, err := s.dir.RequireMember(ctx, actorID, organizationID); err != nil {
		return nil, err
	}
	return s.store.List(ctx, organizationID)
}

// Manifest returns the sync projection for any member, served from cache when possible.
// Cached entries are keyed by the organization's manifest generation; every mutation bumps it.
func (s *Service) Manifest(ctx context.Context, actorID, organizationID string) ([]ManifestEntry, error) {
	if _, err := s.dir.RequireMember(ctx, actorID, organizationID); err != nil {
		return nil, err
	}
	gen, cacheable := s.generation(ctx, organizationID)
	key := manifestKey(organizationID, gen)
	if cacheable {
		if raw, err := s.cache.Get(ctx, key); err == nil {
			var entries []ManifestEntry
			if json.Unmarshal([]byte(raw), &entries) == nil {
				return entries, nil
			}
		} else if !errors.Is(err, cache.ErrMiss) {
			s.log.Warn("statuslist.manifest_cache_read", zap.Error(err))
		}
	}

	creds, err := s.store.List(ctx, organizationID)
	if err != nil {
		return nil, err
	}
	entries := make([]ManifestEntry, 0, len(creds))
	for _, c := range creds {
		entries = append(entries, c.manifestEntry())
	}
	if !cacheable {
		return entries, nil
	}
	if data, err := json.Marshal(entries); err == nil {
		if err := s.cache.Set(ctx, key, string(data), s.cacheTTL); err != nil {
			s.log.Warn("statuslist.manifest_cache_write", zap.Error(err))
		}
	}
	return entries, nil
}

// Get returns one current row for any member.
func (s *Service) Get(ctx context.Context, actorID, organizationID, statusListID string) (Credential, error) {
	if _, err := s.dir.RequireMember(ctx, actorID, organizationID); err != nil {
		return Credential{}, err
	}
	return s.store.Get(ctx, organizationID, strings.TrimSpace(statusListID))
}

// History returns archived versions, oldest first, for any member.
func (s *Service) History(ctx context.Context, actorID, organizationID, statusListID string) ([]HistoryEntry, error) {
	if _, err := s.dir.RequireMember(ctx, actorID, organizationID); err != nil {
		return nil, err
	}
	return s.store.History(ctx, organizationID, strings.TrimSpace(statusListID))
}

// Delete removes a status list and its history.
func (s *Service) Delete(ctx context.Context, actorID, organizationID, statusListID string) error {
	if _, err := s.dir.RequireRole(ctx, actorID, organizationID, tenant.ManagerRoles...); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, organizationID, strings.TrimSpace(statusListID)); err != nil {
		return err
	}
	s.invalidate(ctx, organizationID)
	return nil
}

func (s *Service) invalidate(ctx context.Context, organizationID string) {
	gen, err := s.cache.Incr(ctx, generationKey(organizationID))
	if err != nil {
		s.log.Warn("statuslist.manifest_cache_invalidate", zap.Error(err))
		return
	}
	if err := s.cache.Delete(ctx, manifestKey(organizationID, strconv.FormatInt(gen-1, 10))); err != nil {
		s.log.Warn("statuslist.manifest_cache_invalidate", zap.Error(err))
	}
}

// generation reports the current manifest generation. A cache read failure disables caching for the call.
func (s *Service) generation(ctx context.Context, organizationID string) (string, bool) {
	gen, err := s.cache.Get(ctx, generationKey(organizationID))
	switch {
	case err == nil:
		return gen, true
	case errors.Is(err, cache.ErrMiss):
		return "0", true
	default:
		s.log.Warn("statuslist.manifest_cache_read", zap.Error(err))
		return "", false
	}
}

func generationKey(organizationID string) string {
	return "vcsync:statuslist:manifest-gen:" + organizationID
}

func manifestKey(organizationID, gen string) string {
	return "vcsync:statuslist:manifest:" + organizationID + ":" + gen
}
