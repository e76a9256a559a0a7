package statuslist

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"
)

const credentialType = "BitstringStatusListCredential"

// Document is a validated status list credential.
type Document struct {
	StatusListID    string
	Issuer          string
	Purposes        []string
	EncodedListHash string
	// IssuanceDate is nil when the document carries neither issuanceDate nor validFrom.
	IssuanceDate *time.Time
	Raw          json.RawMessage
}

// HashEncodedList is the change-detection hash: SHA-256 hex of the raw encodedList string.
func HashEncodedList(encoded string) string {
	sum := sha256.Sum256([]byte(encoded))
	return hex.EncodeToString(sum[:])
}

// Parse validates raw in a fixed order and extracts the indexed fields.
// defaultPurposes applies when credentialSubject.statusPurpose is absent.
func Parse(raw []byte, defaultPurposes []string) (Document, error) {
	var cred map[string]json.RawMessage
	if err := json.Unmarshal(raw, &cred); err != nil || cred == nil {
		return Document{}, invalid("credential must be a JSON object")
	}

	if !hasType(cred["type"]) {
		return Document{}, invalid("type must include " + credentialType)
	}

	var id string
	if err := json.Unmarshal(cred["id"], &id); err != nil || strings.TrimSpace(id) == "" {
		return Document{}, invalid("id is required")
	}

	issuer, ok := issuerID(cred["issuer"])
	if !ok {
		return Document{}, invalid("issuer is required")
	}

	var subject map[string]json.RawMessage
	if err := json.Unmarshal(cred["credentialSubject"], &subject); err != nil || subject == nil {
		return Document{}, invalid("credentialSubject must be an object")
	}

	var encoded string
	if err := json.Unmarshal(subject["encodedList"], &encoded); err != nil || encoded == "" {
		return Document{}, invalid("credentialSubject.encodedList must be a non-empty string")
	}

	purposes, ok := normalizePurposes(subject["statusPurpose"], defaultPurposes)
	if !ok {
		return Document{}, invalid("credentialSubject.statusPurpose must be a string or a list of strings")
	}

	doc := Document{
		StatusListID:    strings.TrimSpace(id),
		Issuer:          issuer,
		Purposes:        purposes,
		EncodedListHash: HashEncodedList(encoded),
		IssuanceDate:    issuanceDate(cred),
		Raw:             append(json.RawMessage(nil), raw...),
	}
	return doc, nil
}

func hasType(raw json.RawMessage) bool {
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return single == credentialType
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return false
	}
	for _, t := range list {
		if t == credentialType {
			return true
		}
	}
	return false
}

func issuerID(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		return s, s != ""
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		obj.ID = strings.TrimSpace(obj.ID)
		return obj.ID, obj.ID != ""
	}
	return "", false
}

func normalizePurposes(raw json.RawMessage, def []string) ([]string, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		out := make([]string, len(def))
		copy(out, def)
		return out, true
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return []string{single}, true
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		if list == nil {
			list = []string{}
		}
		return list, true
	}
	return nil, false
}

func issuanceDate(cred map[string]json.RawMessage) *time.Time {
	for _, field := range []string{"issuanceDate", "validFrom"} {
		var s string
		if err := json.Unmarshal(cred[field], &s); err != nil || s == "" {
			continue
		}
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
