package statuslist

import (
	"time"

	"vcsync.org/internal/ids"
)

// Decide computes the mutation for upserting doc over current (nil when no row exists).
// Only a change of the encodedList hash creates a new version.
func Decide(organizationID string, current *Credential, doc Document, now time.Time) Mutation {
	if current == nil {
		return Mutation{
			Outcome: OutcomeCreated,
			Next: Credential{
				ID:              ids.New(),
				OrganizationID:  organizationID,
				StatusListID:    doc.StatusListID,
				Issuer:          doc.Issuer,
				Purposes:        doc.Purposes,
				Version:         1,
				EncodedListHash: doc.EncodedListHash,
				IssuanceDate:    doc.IssuanceDate,
				FullCredential:  doc.Raw,
				CreatedAt:       now,
				UpdatedAt:       now,
			},
		}
	}
	if current.EncodedListHash == doc.EncodedListHash {
		return Mutation{Outcome: OutcomeUnchanged, Next: *current}
	}

	archive := &HistoryEntry{
		ID:              ids.New(),
		CredentialID:    current.ID,
		OrganizationID:  current.OrganizationID,
		StatusListID:    current.StatusListID,
		Issuer:          current.Issuer,
		Purposes:        current.Purposes,
		Version:         current.Version,
		EncodedListHash: current.EncodedListHash,
		IssuanceDate:    current.IssuanceDate,
		FullCredential:  current.FullCredential,
		ArchivedAt:      now,
	}
	next := *current
	next.Version = current.Version + 1
	next.Issuer = doc.Issuer
	next.Purposes = doc.Purposes
	next.EncodedListHash = doc.EncodedListHash
	next.FullCredential = doc.Raw
	if doc.IssuanceDate != nil {
		next.IssuanceDate = doc.IssuanceDate
	}
	next.UpdatedAt = now
	return Mutation{Outcome: OutcomeUpdated, Next: next, Archive: archive}
}
