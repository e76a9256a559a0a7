// Package statuslist stores BitstringStatusList credentials with monotonic versions and immutable history.
package statuslist

import (
	"encoding/json"
	"time"
)

// Credential is the current version of one status list.
type Credential struct {
	ID              string          `json:"id"`
	OrganizationID  string          `json:"organization_id"`
	StatusListID    string          `json:"status_list_id"`
	Issuer          string          `json:"issuer"`
	Purposes        []string        `json:"purposes"`
	Version         int             `json:"version"`
	EncodedListHash string          `json:"encoded_list_hash"`
	IssuanceDate    *time.Time      `json:"issuance_date,omitempty"`
	FullCredential  json.RawMessage `json:"full_credential"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// HistoryEntry is an archived, never modified, earlier version.
type HistoryEntry struct {
	ID              string          `json:"id"`
	CredentialID    string          `json:"status_list_credential_id"`
	OrganizationID  string          `json:"organization_id"`
	StatusListID    string          `json:"status_list_id"`
	Issuer          string          `json:"issuer"`
	Purposes        []string        `json:"purposes"`
	Version         int             `json:"version"`
	EncodedListHash string          `json:"encoded_list_hash"`
	IssuanceDate    *time.Time      `json:"issuance_date,omitempty"`
	FullCredential  json.RawMessage `json:"full_credential"`
	ArchivedAt      time.Time       `json:"archived_at"`
}

// ManifestEntry is the sync projection clients diff against.
type ManifestEntry struct {
	StatusListID    string    `json:"status_list_id"`
	Purposes        []string  `json:"purposes"`
	Version         int       `json:"version"`
	EncodedListHash string    `json:"encoded_list_hash"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Outcome classifies an upsert.
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeUpdated   Outcome = "updated"
	OutcomeUnchanged Outcome = "unchanged"
)

// Mutation is what a store must apply atomically for one upsert.
type Mutation struct {
	Outcome Outcome
	Next    Credential
	// Archive is set only for OutcomeUpdated.
	Archive *HistoryEntry
}

// Result is returned by Service.Upsert.
type Result struct {
	Credential Credential `json:"credential"`
	Outcome    Outcome    `json:"outcome"`
}

func (c Credential) manifestEntry() ManifestEntry {
	return ManifestEntry{
		StatusListID:    c.StatusListID,
		Purposes:        c.Purposes,
		Version:         c.Version,
		EncodedListHash: c.EncodedListHash,
		UpdatedAt:       c.UpdatedAt,
	}
}
