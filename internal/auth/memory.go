package auth

import (
	"context"
	"strings"
	"sync"
	"time"
)

var _ Store = (*InMemory)(nil)

// InMemory implements Store with in-process maps.
type InMemory struct {
	mu      sync.Mutex
	pending map[string]*PendingRegistration
	codes   map[string]*LoginCode
	tokens  map[string]string // token -> account id
	byAcct  map[string]string // account id -> token
}

// NewInMemory creates an empty store.
func NewInMemory() *InMemory {
	return &InMemory{
		pending: make(map[string]*PendingRegistration),
		codes:   make(map[string]*LoginCode),
		tokens:  make(map[string]string),
		byAcct:  make(map[string]string),
	}
}

func (s *InMemory) CreatePending(ctx context.Context, p PendingRegistration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.pending {
		if existing.Valid(p.CreatedAt) &&
			strings.EqualFold(existing.OrgName, p.OrgName) &&
			strings.EqualFold(existing.AdminUsername, p.AdminUsername) &&
			strings.EqualFold(existing.AdminEmail, p.AdminEmail) {
			return ErrPendingExists
		}
	}
	s.pending[p.ID] = &p
	return nil
}

func (s *InMemory) GetPending(ctx context.Context, id string) (PendingRegistration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[id]
	if !ok {
		return PendingRegistration{}, ErrPendingNotFound
	}
	return *p, nil
}

func (s *InMemory) LatestPending(ctx context.Context, orgName, username, email string) (PendingRegistration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *PendingRegistration
	for _, p := range s.pending {
		if p.ConsumedAt != nil ||
			!strings.EqualFold(p.OrgName, orgName) ||
			!strings.EqualFold(p.AdminUsername, username) ||
			!strings.EqualFold(p.AdminEmail, email) {
			continue
		}
		if latest == nil || p.CreatedAt.After(latest.CreatedAt) {
			latest = p
		}
	}
	if latest == nil {
		return PendingRegistration{}, ErrPendingNotFound
	}
	return *latest, nil
}

func (s *InMemory) IncrementAttempts(ctx context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[id]
	if !ok {
		return 0, ErrPendingNotFound
	}
	p.Attempts++
	return p.Attempts, nil
}

func (s *InMemory) ConsumePending(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[id]
	if !ok {
		return ErrPendingNotFound
	}
	if p.ConsumedAt != nil {
		return ErrAlreadyConsumed
	}
	p.ConsumedAt = &at
	return nil
}

func (s *InMemory) ReleasePending(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[id]
	if !ok {
		return ErrPendingNotFound
	}
	p.ConsumedAt = nil
	return nil
}

func (s *InMemory) CreateLoginCode(ctx context.Context, c LoginCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[c.ID] = &c
	return nil
}

func (s *InMemory) LatestLoginCode(ctx context.Context, accountID, code string) (LoginCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *LoginCode
	for _, c := range s.codes {
		if c.AccountID != accountID || c.Code != code {
			continue
		}
		if latest == nil || c.CreatedAt.After(latest.CreatedAt) {
			latest = c
		}
	}
	if latest == nil {
		return LoginCode{}, ErrLoginCodeNotFound
	}
	return *latest, nil
}

func (s *InMemory) ConsumeLoginCode(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.codes[id]
	if !ok {
		return ErrLoginCodeNotFound
	}
	if c.ConsumedAt != nil {
		return ErrAlreadyConsumed
	}
	c.ConsumedAt = &at
	return nil
}

func (s *InMemory) GetOrCreateLegacyToken(ctx context.Context, accountID, candidate string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tok, ok := s.byAcct[accountID]; ok {
		return tok, nil
	}
	s.byAcct[accountID] = candidate
	s.tokens[candidate] = accountID
	return candidate, nil
}

func (s *InMemory) AccountForLegacyToken(ctx context.Context, token string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.tokens[token]
	if !ok {
		return "", ErrInvalidToken
	}
	return id, nil
}
