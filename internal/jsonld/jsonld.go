// Package jsonld keeps a global cache of JSON-LD context documents for offline verification.
package jsonld

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"vcsync.org/internal/apperr"
)

var (
	ErrContextNotFound = fmt.Errorf("%w: context not found", apperr.ErrNotFound)
	ErrInvalidURL      = fmt.Errorf("%w: url must be an absolute http(s) URL", apperr.ErrInvalidInput)
	ErrInvalidDocument = fmt.Errorf("%w: document must be a JSON object with @context", apperr.ErrInvalidInput)
)

// Context is a cached context document.
type Context struct {
	URL       string          `json:"url"`
	Document  json.RawMessage `json:"document"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Store persists contexts keyed by URL.
type Store interface {
	Upsert(ctx context.Context, c Context) (Context, error)
	Get(ctx context.Context, url string) (Context, error)
	// List returns contexts ordered by URL.
	List(ctx context.Context) ([]Context, error)
}

// NormalizeURL validates an absolute http(s) URL.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", ErrInvalidURL
	}
	return raw, nil
}

// ValidateDocument requires a JSON object carrying @context.
func ValidateDocument(doc []byte) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(doc, &obj); err != nil || obj == nil {
		return ErrInvalidDocument
	}
	if _, ok := obj["@context"]; !ok {
		return ErrInvalidDocument
	}
	return nil
}

var _ Store = (*InMemory)(nil)

// InMemory implements Store with a map.
type InMemory struct {
	mu   sync.RWMutex
	docs map[string]Context
}

// NewInMemory creates an empty store.
func NewInMemory() *InMemory {
	return &InMemory{docs: make(map[string]Context)}
}

func (s *InMemory) Upsert(ctx context.Context, c Context) (Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[c.URL] = c
	return c, nil
}

func (s *InMemory) Get(ctx context.Context, url string) (Context, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.docs[url]
	if !ok {
		return Context{}, ErrContextNotFound
	}
	return c, nil
}

func (s *InMemory) List(ctx context.Context) ([]Context, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Context, 0, len(s.docs))
	for _, c := range s.docs {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out, nil
}
