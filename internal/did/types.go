// Package did manages organization DIDs and the public keys resolved from them.
package did

import (
	"strings"
	"time"
)

// Status is the lifecycle state of an organization DID.
type Status string

const (
	StatusSubmitted        Status = "SUBMITTED"
	StatusResolved         Status = "RESOLVED"
	StatusResolutionFailed Status = "RESOLUTION_FAILED"
	StatusRevoked          Status = "REVOKED"
)

// Key purposes.
const (
	PurposeAssertion      = "assertion"
	PurposeAuthentication = "authentication"
)

const ed25519VerificationKey2020 = "Ed25519VerificationKey2020"

// OrganizationDID is a DID claimed by an organization.
type OrganizationDID struct {
	ID                 string         `json:"id"`
	OrganizationID     string         `json:"organization_id"`
	DID                string         `json:"did"`
	Status             Status         `json:"status"`
	Metadata           map[string]any `json:"metadata,omitempty"`
	ResolutionAttempts int            `json:"resolution_attempts"`
	LastError          string         `json:"last_error,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// Method returns the DID method ("web", "key", ...).
func (d OrganizationDID) Method() string {
	return Method(d.DID)
}

// KeyRecord is one verification method produced by a resolver.
type KeyRecord struct {
	KeyID              string         `json:"key_id"`
	KeyType            string         `json:"key_type"`
	PublicKeyMultibase string         `json:"public_key_multibase,omitempty"`
	PublicKeyHex       string         `json:"public_key_hex,omitempty"`
	PublicKeyJWK       map[string]any `json:"public_key_jwk,omitempty"`
	Controller         string         `json:"controller"`
	Purpose            string         `json:"purpose"`
}

// PublicKey is a stored verification key owned by an organization.
type PublicKey struct {
	ID                 string         `json:"id"`
	OrganizationID     string         `json:"organization_id"`
	KeyID              string         `json:"key_id"`
	KeyType            string         `json:"key_type"`
	PublicKeyMultibase string         `json:"public_key_multibase"`
	PublicKeyHex       string         `json:"public_key_hex,omitempty"`
	PublicKeyJWK       map[string]any `json:"public_key_jwk,omitempty"`
	Controller         string         `json:"controller"`
	Purpose            string         `json:"purpose"`
	IsActive           bool           `json:"is_active"`
	ExpiresAt          *time.Time     `json:"expires_at,omitempty"`
	RevokedAt          *time.Time     `json:"revoked_at,omitempty"`
	RevocationReason   string         `json:"revocation_reason,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// KeyFilter selects active keys. Empty fields match everything.
type KeyFilter struct {
	OrganizationID string
	Controller     string
}

// Submission is the outcome of submitting or re-resolving a DID.
type Submission struct {
	DID      OrganizationDID `json:"did"`
	Resolved bool            `json:"resolved"`
	Keys     []PublicKey     `json:"keys,omitempty"`
	Message  string          `json:"message,omitempty"`
}

// Method extracts the method segment of a DID, or "" when the syntax is invalid.
func Method(d string) string {
	parts := strings.SplitN(d, ":", 3)
	if len(parts) != 3 || parts[0] != "did" || parts[1] == "" || parts[2] == "" {
		return ""
	}
	return parts[1]
}
