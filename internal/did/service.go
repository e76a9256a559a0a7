package did

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"vcsync.org/internal/ids"
	"vcsync.org/internal/obs"
	"vcsync.org/internal/tenant"
)

const maxDIDLength = 500

// Service implements DID submission, resolution and key management for organizations.
type Service struct {
	store    Store
	dir      *tenant.Directory
	resolver Resolver
	log      *zap.Logger
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

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
func NewService(store Store, dir *tenant.Directory, resolver Resolver, opts ...Option) *Service {
	s := &Service{store: store, dir: dir, resolver: resolver, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = obs.Logger()
	}
	return s
}

// Submit stores did for the organization and resolves it synchronously.
// Resolution failures are reported on the returned Submission, not as an error.
func (s *Service) Submit(ctx context.Context, actorID, organizationID, did string, metadata map[string]any) (Submission, error) {
	did = strings.TrimSpace(did)
	if Method(did) == "" || len(did) > maxDIDLength {
		return Submission{}, ErrInvalidDID
	}
	if _, err := s.dir.RequireRole(ctx, actorID, organizationID, tenant.ManagerRoles...); err != nil {
		return Submission{}, err
	}
	now := s.now().UTC()
	rec := OrganizationDID{
		ID:             ids.New(),
		OrganizationID: organizationID,
		DID:            did,
		Status:         StatusSubmitted,
		Metadata:       metadata,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.CreateDID(ctx, rec); err != nil {
		return Submission{}, err
	}
	return s.resolve(ctx, rec)
}

// RetryResolution re-runs resolution for a DID that is not revoked. Resolved DIDs get their keys refreshed.
func (s *Service) RetryResolution(ctx context.Context, actorID, organizationID, didID string) (Submission, error) {
	if _, err := s.dir.RequireRole(ctx, actorID, organizationID, tenant.ManagerRoles...); err != nil {
		return Submission{}, err
	}
	rec, err := s.store.GetDID(ctx, organizationID, didID)
	if err != nil {
		return Submission{}, err
	}
	if rec.Status == StatusRevoked {
		return Submission{}, ErrDIDRevoked
	}
	return s.resolve(ctx, rec)
}

// ResolvePending retries up to limit unresolved DIDs across all organizations.
func (s *Service) ResolvePending(ctx context.Context, limit int) ([]Submission, error) {
	pending, err := s.store.ListUnresolved(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Submission, 0, len(pending))
	for _, rec := range pending {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		sub, err := s.resolve(ctx, rec)
		if err != nil {
			return out, err
		}
		out = append(out, sub)
	}
	return out, nil
}

// ListDIDs lists an organization's DIDs for any member.
func (s *Service) ListDIDs(ctx context.Context, actorID, organizationID string) ([]OrganizationDID, error) {
	if _, err := s.dir.RequireMember(ctx, actorID, organizationID); err != nil {
		return nil, err
	}
	return s.store.ListDIDs(ctx, organizationID)
}

// Revoke marks the DID revoked and deactivates its keys. Revoking twice is a no-op.
func (s *Service) Revoke(ctx context.Context, actorID, organizationID, didID, reason string) (OrganizationDID, error) {
	if _, err := s.dir.RequireRole(ctx, actorID, organizationID, tenant.ManagerRoles...); err != nil {
		return OrganizationDID{}, err
	}
	rec, err := s.store.GetDID(ctx, organizationID, didID)
	if err != nil {
		return OrganizationDID{}, err
	}
	if rec.Status == StatusRevoked {
		return rec, nil
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "did revoked"
	}
	return s.store.Revoke(ctx, organizationID, didID, reason, s.now().UTC())
}

// ListKeys returns active keys. Any authenticated caller may list; an unknown organization is NotFound.
func (s *Service) ListKeys(ctx context.Context, f KeyFilter) ([]PublicKey, error) {
	f.OrganizationID = strings.TrimSpace(f.OrganizationID)
	f.Controller = strings.TrimSpace(f.Controller)
	if f.OrganizationID != "" {
		if _, err := s.dir.Organization(ctx, f.OrganizationID); err != nil {
			return nil, err
		}
	}
	return s.store.ListKeys(ctx, f)
}

// RegisterKey upserts a key by (organization, key id) without DID resolution.
func (s *Service) RegisterKey(ctx context.Context, actorID, organizationID string, rec KeyRecord, expiresAt *time.Time) (PublicKey, error) {
	rec.KeyID = strings.TrimSpace(rec.KeyID)
	rec.KeyType = strings.TrimSpace(rec.KeyType)
	if rec.KeyID == "" || rec.KeyType == "" ||
		(rec.PublicKeyMultibase == "" && rec.PublicKeyHex == "" && len(rec.PublicKeyJWK) == 0) {
		return PublicKey{}, ErrInvalidKey
	}
	if rec.Controller == "" {
		rec.Controller, _, _ = strings.Cut(rec.KeyID, "#")
	}
	if rec.Purpose == "" {
		rec.Purpose = PurposeAssertion
	}
	if _, err := s.dir.RequireRole(ctx, actorID, organizationID, tenant.ManagerRoles...); err != nil {
		return PublicKey{}, err
	}
	k := s.newKey(organizationID, rec, s.now().UTC())
	k.ExpiresAt = expiresAt
	return s.store.UpsertKey(ctx, k)
}

// GetKey loads one key for any member of the organization.
func (s *Service) GetKey(ctx context.Context, actorID, organizationID, keyID string) (PublicKey, error) {
	if _, err := s.dir.RequireMember(ctx, actorID, organizationID); err != nil {
		return PublicKey{}, err
	}
	return s.store.GetKey(ctx, organizationID, keyID)
}

// DeleteKey hard-deletes a key.
func (s *Service) DeleteKey(ctx context.Context, actorID, organizationID, keyID string) error {
	if _, err := s.dir.RequireRole(ctx, actorID, organizationID, tenant.ManagerRoles...); err != nil {
		return err
	}
	return s.store.DeleteKey(ctx, organizationID, keyID)
}

func (s *Service) resolve(ctx context.Context, rec OrganizationDID) (Submission, error) {
	method := rec.Method()
	records, err := s.resolver.Resolve(ctx, rec.DID)
	if err != nil {
		obs.DIDResolved(method, failureOutcome(err))
		return s.fail(ctx, rec, err)
	}

	now := s.now().UTC()
	keys := make([]PublicKey, 0, len(records))
	for _, r := range records {
		keys = append(keys, s.newKey(rec.OrganizationID, r, now))
	}
	updated, stored, err := s.store.MarkResolved(ctx, rec.OrganizationID, rec.ID, keys, now)
	if err != nil {
		obs.DIDResolved(method, "persist_error")
		return s.fail(ctx, rec, err)
	}
	obs.DIDResolved(method, "resolved")
	s.log.Info("did.resolved",
		zap.String("organization_id", rec.OrganizationID),
		zap.String("did", rec.DID),
		zap.Int("keys", len(stored)),
	)
	return Submission{DID: updated, Resolved: true, Keys: stored}, nil
}

// fail records cause on the DID. The DID stays stored and the submission is still reported.
func (s *Service) fail(ctx context.Context, rec OrganizationDID, cause error) (Submission, error) {
	s.log.Warn("did.resolution_failed",
		zap.String("organization_id", rec.OrganizationID),
		zap.String("did", rec.DID),
		zap.Error(cause),
	)
	updated, err := s.store.MarkFailed(ctx, rec.OrganizationID, rec.ID, cause.Error(), s.now().UTC())
	if err != nil {
		s.log.Error("did.mark_failed",
			zap.String("organization_id", rec.OrganizationID),
			zap.String("did", rec.DID),
			zap.Error(err),
		)
		updated = rec
	}
	return Submission{
		DID:     updated,
		Message: "DID stored but resolution failed: " + cause.Error(),
	}, nil
}

func (s *Service) newKey(organizationID string, r KeyRecord, now time.Time) PublicKey {
	purpose := r.Purpose
	if purpose == "" {
		purpose = PurposeAssertion
	}
	return PublicKey{
		ID:                 ids.New(),
		OrganizationID:     organizationID,
		KeyID:              r.KeyID,
		KeyType:            r.KeyType,
		PublicKeyMultibase: r.PublicKeyMultibase,
		PublicKeyHex:       r.PublicKeyHex,
		PublicKeyJWK:       r.PublicKeyJWK,
		Controller:         r.Controller,
		Purpose:            purpose,
		IsActive:           true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

func failureOutcome(err error) string {
	switch {
	case errors.Is(err, ErrUnsupportedMethod):
		return "unsupported_method"
	case errors.Is(err, ErrNetwork):
		return "network_error"
	case errors.Is(err, ErrMalformedDocument):
		return "malformed_document"
	default:
		return "error"
	}
}
