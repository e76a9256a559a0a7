package statuslist

import (
	"context"
	"sort"
	"sync"
)

var _ Store = (*InMemory)(nil)

// InMemory implements Store; a single mutex serializes every mutation.
type InMemory struct {
	mu      sync.Mutex
	current map[listRef]Credential
	history map[listRef][]HistoryEntry
}

type listRef struct{ org, id string }

// NewInMemory creates an empty store.
func NewInMemory() *InMemory {
	return &InMemory{
		current: make(map[listRef]Credential),
		history: make(map[listRef][]HistoryEntry),
	}
}

func (s *InMemory) Mutate(ctx context.Context, organizationID, statusListID string, fn MutateFunc) (Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref := listRef{organizationID, statusListID}
	var current *Credential
	if c, ok := s.current[ref]; ok {
		current = &c
	}
	m, err := fn(current)
	if err != nil {
		return Credential{}, err
	}
	if m.Outcome == OutcomeUnchanged {
		return m.Next, nil
	}
	if m.Archive != nil {
		s.history[ref] = append(s.history[ref], *m.Archive)
	}
	s.current[ref] = m.Next
	return m.Next, nil
}

func (s *InMemory) List(ctx context.Context, organizationID string) ([]Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Credential
	for ref, c := range s.current {
		if ref.org == organizationID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StatusListID < out[j].StatusListID })
	return out, nil
}

func (s *InMemory) Get(ctx context.Context, organizationID, statusListID string) (Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.current[listRef{organizationID, statusListID}]
	if !ok {
		return Credential{}, ErrNotFound
	}
	return c, nil
}

func (s *InMemory) History(ctx context.Context, organizationID, statusListID string) ([]HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref := listRef{organizationID, statusListID}
	if _, ok := s.current[ref]; !ok {
		return nil, ErrNotFound
	}
	out := append([]HistoryEntry(nil), s.history[ref]...)
	return out, nil
}

func (s *InMemory) Delete(ctx context.Context, organizationID, statusListID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref := listRef{organizationID, statusListID}
	if _, ok := s.current[ref]; !ok {
		return ErrNotFound
	}
	delete(s.current, ref)
	delete(s.history, ref)
	return nil
}

// PurgeOrganization drops the organization's status lists and their history.
func (s *InMemory) PurgeOrganization(ctx context.Context, organizationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ref := range s.current {
		if ref.org == organizationID {
			delete(s.current, ref)
		}
	}
	for ref := range s.history {
		if ref.org == organizationID {
			delete(s.history, ref)
		}
	}
	return nil
}
