package did

import (
	"context"
	"sort"
	"sync"
	"time"
)

var _ Store = (*InMemory)(nil)

// InMemory implements Store with in-process maps.
type InMemory struct {
	mu   sync.RWMutex
	dids map[string]OrganizationDID // id -> record
	keys map[keyRef]PublicKey
}

type keyRef struct{ org, keyID string }

// NewInMemory creates an empty store.
func NewInMemory() *InMemory {
	return &InMemory{
		dids: make(map[string]OrganizationDID),
		keys: make(map[keyRef]PublicKey),
	}
}

func (s *InMemory) CreateDID(ctx context.Context, d OrganizationDID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.dids {
		if existing.DID == d.DID {
			return ErrDIDTaken
		}
	}
	s.dids[d.ID] = d
	return nil
}

func (s *InMemory) GetDID(ctx context.Context, organizationID, id string) (OrganizationDID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.dids[id]
	if !ok || d.OrganizationID != organizationID {
		return OrganizationDID{}, ErrDIDNotFound
	}
	return d, nil
}

func (s *InMemory) ListDIDs(ctx context.Context, organizationID string) ([]OrganizationDID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []OrganizationDID
	for _, d := range s.dids {
		if d.OrganizationID == organizationID {
			out = append(out, d)
		}
	}
	sortDIDs(out)
	return out, nil
}

func (s *InMemory) ListUnresolved(ctx context.Context, limit int) ([]OrganizationDID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []OrganizationDID
	for _, d := range s.dids {
		if d.Status == StatusSubmitted || d.Status == StatusResolutionFailed {
			out = append(out, d)
		}
	}
	sortDIDs(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemory) MarkResolved(ctx context.Context, organizationID, id string, keys []PublicKey, at time.Time) (OrganizationDID, []PublicKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.dids[id]
	if !ok || d.OrganizationID != organizationID {
		return OrganizationDID{}, nil, ErrDIDNotFound
	}
	stored := make([]PublicKey, 0, len(keys))
	for _, k := range keys {
		stored = append(stored, s.upsertLocked(k))
	}
	d.Status = StatusResolved
	d.ResolutionAttempts++
	d.LastError = ""
	d.UpdatedAt = at
	s.dids[id] = d
	return d, stored, nil
}

func (s *InMemory) MarkFailed(ctx context.Context, organizationID, id, reason string, at time.Time) (OrganizationDID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.dids[id]
	if !ok || d.OrganizationID != organizationID {
		return OrganizationDID{}, ErrDIDNotFound
	}
	d.Status = StatusResolutionFailed
	d.ResolutionAttempts++
	d.LastError = reason
	d.UpdatedAt = at
	s.dids[id] = d
	return d, nil
}

func (s *InMemory) Revoke(ctx context.Context, organizationID, id, reason string, at time.Time) (OrganizationDID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.dids[id]
	if !ok || d.OrganizationID != organizationID {
		return OrganizationDID{}, ErrDIDNotFound
	}
	d.Status = StatusRevoked
	d.UpdatedAt = at
	s.dids[id] = d
	for ref, k := range s.keys {
		if ref.org != organizationID || !k.IsActive || !ControlledBy(k, d.DID) {
			continue
		}
		revokedAt := at
		k.IsActive = false
		k.RevokedAt = &revokedAt
		k.RevocationReason = reason
		k.UpdatedAt = at
		s.keys[ref] = k
	}
	return d, nil
}

func (s *InMemory) UpsertKey(ctx context.Context, k PublicKey) (PublicKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsertLocked(k), nil
}

// upsertLocked keeps the original id and creation time of an existing key.
func (s *InMemory) upsertLocked(k PublicKey) PublicKey {
	ref := keyRef{k.OrganizationID, k.KeyID}
	if existing, ok := s.keys[ref]; ok {
		k.ID = existing.ID
		k.CreatedAt = existing.CreatedAt
	}
	s.keys[ref] = k
	return k
}

func (s *InMemory) GetKey(ctx context.Context, organizationID, keyID string) (PublicKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k, ok := s.keys[keyRef{organizationID, keyID}]
	if !ok {
		return PublicKey{}, ErrKeyNotFound
	}
	return k, nil
}

func (s *InMemory) ListKeys(ctx context.Context, f KeyFilter) ([]PublicKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []PublicKey
	for _, k := range s.keys {
		if !k.IsActive ||
			(f.OrganizationID != "" && k.OrganizationID != f.OrganizationID) ||
			(f.Controller != "" && k.Controller != f.Controller) {
			continue
		}
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OrganizationID != out[j].OrganizationID {
			return out[i].OrganizationID < out[j].OrganizationID
		}
		return out[i].KeyID < out[j].KeyID
	})
	return out, nil
}

func (s *InMemory) DeleteKey(ctx context.Context, organizationID, keyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref := keyRef{organizationID, keyID}
	if _, ok := s.keys[ref]; !ok {
		return ErrKeyNotFound
	}
	delete(s.keys, ref)
	return nil
}

// PurgeOrganization drops every DID and key the organization owns.
func (s *InMemory) PurgeOrganization(ctx context.Context, organizationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, d := range s.dids {
		if d.OrganizationID == organizationID {
			delete(s.dids, id)
		}
	}
	for ref := range s.keys {
		if ref.org == organizationID {
			delete(s.keys, ref)
		}
	}
	return nil
}

func sortDIDs(ds []OrganizationDID) {
	sort.Slice(ds, func(i, j int) bool {
		if ds[i].CreatedAt.Equal(ds[j].CreatedAt) {
			return ds[i].ID < ds[j].ID
		}
		return ds[i].CreatedAt.Before(ds[j].CreatedAt)
	})
}
