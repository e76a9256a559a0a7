package tenant

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// InMemory implements Store with in-process concurrency safety.
// Used by tests and by the API when no database DSN is configured.
type InMemory struct {
	mu          sync.RWMutex
	orgs        map[string]Organization
	accounts    map[string]Account
	memberships map[string]Membership
}

var _ Store = (*InMemory)(nil)

// NewInMemory creates an empty directory store.
func NewInMemory() *InMemory {
	return &InMemory{
		orgs:        make(map[string]Organization),
		accounts:    make(map[string]Account),
		memberships: make(map[string]Membership),
	}
}

func (s *InMemory) Provision(ctx context.Context, p Provisioning) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// validate everything first so a failure leaves no partial state
	if p.Organization != nil {
		if _, ok := s.orgByNameLocked(p.Organization.Name); ok {
			return ErrOrganizationExists
		}
	}
	if p.Account != nil {
		for _, a := range s.accounts {
			if a.Username == p.Account.Username {
				return ErrUsernameTaken
			}
		}
	}
	if m := p.Membership; m != nil {
		if p.Organization == nil {
			if _, ok := s.orgs[m.OrganizationID]; !ok {
				return ErrOrganizationNotFound
			}
		}
		if p.Account == nil {
			if _, ok := s.accounts[m.AccountID]; !ok {
				return ErrAccountNotFound
			}
		}
		for _, existing := range s.memberships {
			if existing.AccountID == m.AccountID && existing.OrganizationID == m.OrganizationID {
				return ErrMembershipExists
			}
		}
	}

	if p.Organization != nil {
		s.orgs[p.Organization.ID] = *p.Organization
	}
	if p.Account != nil {
		s.accounts[p.Account.ID] = *p.Account
	}
	if p.Membership != nil {
		s.memberships[p.Membership.ID] = *p.Membership
	}
	return nil
}

func (s *InMemory) GetOrganization(ctx context.Context, id string) (Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	org, ok := s.orgs[id]
	if !ok {
		return Organization{}, ErrOrganizationNotFound
	}
	return org, nil
}

func (s *InMemory) FindOrganizationByName(ctx context.Context, name string) (Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	org, ok := s.orgByNameLocked(name)
	if !ok {
		return Organization{}, ErrOrganizationNotFound
	}
	return org, nil
}

func (s *InMemory) RenameOrganization(ctx context.Context, id, name string, at time.Time) (Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	org, ok := s.orgs[id]
	if !ok {
		return Organization{}, ErrOrganizationNotFound
	}
	if other, ok := s.orgByNameLocked(name); ok && other.ID != id {
		return Organization{}, ErrOrganizationExists
	}
	org.Name = name
	org.UpdatedAt = at
	s.orgs[id] = org
	return org, nil
}

func (s *InMemory) DeleteOrganization(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orgs[id]; !ok {
		return ErrOrganizationNotFound
	}
	delete(s.orgs, id)
	for mid, m := range s.memberships {
		if m.OrganizationID == id {
			delete(s.memberships, mid)
		}
	}
	return nil
}

func (s *InMemory) GetAccount(ctx context.Context, id string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.accounts[id]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return acc, nil
}

func (s *InMemory) FindAccountByUsername(ctx context.Context, username string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.accounts {
		if a.Username == username {
			return a, nil
		}
	}
	return Account{}, ErrAccountNotFound
}

func (s *InMemory) FindAccountByEmail(ctx context.Context, email string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var (
		found Account
		ok    bool
	)
	for _, a := range s.accounts {
		if !strings.EqualFold(a.Email, email) {
			continue
		}
		if !ok || a.CreatedAt.Before(found.CreatedAt) {
			found, ok = a, true
		}
	}
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return found, nil
}

func (s *InMemory) GetMembership(ctx context.Context, accountID, organizationID string) (Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.memberships {
		if m.AccountID == accountID && m.OrganizationID == organizationID {
			return m, nil
		}
	}
	return Membership{}, ErrMembershipNotFound
}

func (s *InMemory) GetMembershipByID(ctx context.Context, organizationID, membershipID string) (Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.memberships[membershipID]
	if !ok || m.OrganizationID != organizationID {
		return Membership{}, ErrMembershipNotFound
	}
	return m, nil
}

func (s *InMemory) ListMemberships(ctx context.Context, accountID string) ([]Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Membership
	for _, m := range s.memberships {
		if m.AccountID == accountID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *InMemory) DeleteMembership(ctx context.Context, organizationID, membershipID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.memberships[membershipID]
	if !ok || m.OrganizationID != organizationID {
		return ErrMembershipNotFound
	}
	delete(s.memberships, membershipID)
	return nil
}

func (s *InMemory) orgByNameLocked(name string) (Organization, bool) {
	for _, o := range s.orgs {
		if strings.EqualFold(o.Name, name) {
			return o, true
		}
	}
	return Organization{}, false
}
