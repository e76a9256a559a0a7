package did

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Resolver turns a DID into its verification keys.
type Resolver interface {
	Resolve(ctx context.Context, did string) ([]KeyRecord, error)
}

var webDIDPattern = regexp.MustCompile(`^did:web:([a-zA-Z0-9.-]+)(?::(.+))?$`)

// WebDocumentURL maps a did:web identifier to the HTTPS location of its document.
func WebDocumentURL(did string) (string, error) {
	m := webDIDPattern.FindStringSubmatch(did)
	if m == nil {
		return "", fmt.Errorf("%w: invalid did:web format", ErrMalformedDocument)
	}
	domain, path := m[1], m[2]
	if path == "" {
		return "https://" + domain + "/.well-known/did.json", nil
	}
	return "https://" + domain + "/" + strings.ReplaceAll(path, ":", "/") + "/did.json", nil
}

// HTTPResolver resolves did:web over HTTPS and did:key locally.
type HTTPResolver struct {
	client *resty.Client
}

// NewHTTPResolver builds a resolver on hc (nil means a fresh client) with a per-fetch timeout.
func NewHTTPResolver(hc *http.Client, timeout time.Duration) *HTTPResolver {
	if hc == nil {
		hc = &http.Client{}
	}
	c := resty.NewWithClient(hc)
	if timeout > 0 {
		c.SetTimeout(timeout)
	}
	return &HTTPResolver{client: c}
}

func (r *HTTPResolver) Resolve(ctx context.Context, did string) ([]KeyRecord, error) {
	switch {
	case strings.HasPrefix(did, "did:web:"):
		return r.resolveWeb(ctx, did)
	case strings.HasPrefix(did, "did:key:"):
		return resolveKey(did), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMethod, Method(did))
	}
}

func (r *HTTPResolver) resolveWeb(ctx context.Context, did string) ([]KeyRecord, error) {
	url, err := WebDocumentURL(did)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/did+json, application/json").
		Get(url)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("%w: %s returned %d", ErrMalformedDocument, url, resp.StatusCode())
	}
	return parseDocument(did, resp.Body())
}

// did:key identifiers carry the key itself; no multicodec decoding is attempted.
func resolveKey(did string) []KeyRecord {
	return []KeyRecord{{
		KeyID:              did + "#key-1",
		KeyType:            ed25519VerificationKey2020,
		PublicKeyMultibase: strings.TrimPrefix(did, "did:key:"),
		Controller:         did,
		Purpose:            PurposeAssertion,
	}}
}

type document struct {
	VerificationMethod []verificationMethod `json:"verificationMethod"`
	AssertionMethod    []json.RawMessage    `json:"assertionMethod"`
}

type verificationMethod struct {
	ID                 string         `json:"id"`
	Type               string         `json:"type"`
	Controller         string         `json:"controller"`
	PublicKeyMultibase string         `json:"publicKeyMultibase"`
	PublicKeyHex       string         `json:"publicKeyHex"`
	PublicKeyJwk       map[string]any `json:"publicKeyJwk"`
}

func parseDocument(did string, body []byte) ([]KeyRecord, error) {
	var doc document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	assertion := make(map[string]struct{}, len(doc.AssertionMethod))
	for _, raw := range doc.AssertionMethod {
		var ref string
		if err := json.Unmarshal(raw, &ref); err == nil {
			assertion[ref] = struct{}{}
			continue
		}
		var obj struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(raw, &obj); err == nil && obj.ID != "" {
			assertion[obj.ID] = struct{}{}
		}
	}

	keys := make([]KeyRecord, 0, len(doc.VerificationMethod))
	for _, vm := range doc.VerificationMethod {
		if vm.ID == "" {
			continue
		}
		rec := KeyRecord{
			KeyID:              vm.ID,
			KeyType:            vm.Type,
			PublicKeyMultibase: vm.PublicKeyMultibase,
			PublicKeyHex:       vm.PublicKeyHex,
			PublicKeyJWK:       vm.PublicKeyJwk,
			Controller:         vm.Controller,
			Purpose:            PurposeAuthentication,
		}
		if rec.Controller == "" {
			rec.Controller = did
		}
		if _, ok := assertion[vm.ID]; ok {
			rec.Purpose = PurposeAssertion
		}
		keys = append(keys, rec)
	}
	return keys, nil
}
