package httpapi

import (
	"net/http"
	"strings"
	"time"

	"vcsync.org/internal/audit"
	"vcsync.org/internal/did"
)

type renameRequest struct {
	Name string `json:"name"`
}

type submitDIDRequest struct {
	DID      string         `json:"did"`
	Metadata map[string]any `json:"metadata"`
}

type revokeRequest struct {
	Reason string `json:"reason"`
}

type registerKeyRequest struct {
	did.KeyRecord
	ExpiresAt *time.Time `json:"expires_at"`
}

func (a *API) renameOrganization(w http.ResponseWriter, r *http.Request) {
	var req renameRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	org, err := a.svc.Directory.RenameOrganization(r.Context(), principal(r).AccountID, r.PathValue("org_id"), req.Name)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "organization.renamed", map[string]any{"organization_id": org.ID, "name": org.Name})
	writeJSON(w, http.StatusOK, org)
}

func (a *API) deleteOrganization(w http.ResponseWriter, r *http.Request) {
	orgID := r.PathValue("org_id")
	if err := a.svc.Directory.DeleteOrganization(r.Context(), principal(r).AccountID, orgID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "organization.deleted", map[string]any{"organization_id": orgID})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) removeMember(w http.ResponseWriter, r *http.Request) {
	orgID, memberID := r.PathValue("org_id"), r.PathValue("member_id")
	if err := a.svc.Directory.RemoveMember(r.Context(), principal(r).AccountID, orgID, memberID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "organization.member_removed", map[string]any{
		"organization_id": orgID,
		"membership_id":   memberID,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) submitDID(w http.ResponseWriter, r *http.Request) {
	var req submitDIDRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	sub, err := a.svc.DIDs.Submit(r.Context(), principal(r).AccountID, r.PathValue("org_id"), req.DID, req.Metadata)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "did.submitted", map[string]any{
		"organization_id": sub.DID.OrganizationID,
		"did":             sub.DID.DID,
		"resolved":        sub.Resolved,
	})
	writeSubmission(w, sub)
}

func (a *API) retryDID(w http.ResponseWriter, r *http.Request) {
	sub, err := a.svc.DIDs.RetryResolution(r.Context(), principal(r).AccountID, r.PathValue("org_id"), r.PathValue("did_id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeSubmission(w, sub)
}

// writeSubmission answers 201 for a resolved DID and 202 for one stored without keys.
func writeSubmission(w http.ResponseWriter, sub did.Submission) {
	code := http.StatusCreated
	if !sub.Resolved {
		code = http.StatusAccepted
	}
	writeJSON(w, code, sub)
}

func (a *API) listDIDs(w http.ResponseWriter, r *http.Request) {
	dids, err := a.svc.DIDs.ListDIDs(r.Context(), principal(r).AccountID, r.PathValue("org_id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if dids == nil {
		dids = []did.OrganizationDID{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": dids})
}

func (a *API) revokeDID(w http.ResponseWriter, r *http.Request) {
	var req revokeRequest
	if err := decodeOptionalJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	d, err := a.svc.DIDs.Revoke(r.Context(), principal(r).AccountID, r.PathValue("org_id"), r.PathValue("did_id"), req.Reason)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "did.revoked", map[string]any{"organization_id": d.OrganizationID, "did": d.DID})
	writeJSON(w, http.StatusOK, d)
}

func (a *API) listKeys(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	keys, err := a.svc.DIDs.ListKeys(r.Context(), did.KeyFilter{
		OrganizationID: strings.TrimSpace(q.Get("organization_id")),
		Controller:     strings.TrimSpace(q.Get("did")),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if keys == nil {
		keys = []did.PublicKey{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"keys": keys})
}

func (a *API) registerKey(w http.ResponseWriter, r *http.Request) {
	var req registerKeyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	key, err := a.svc.DIDs.RegisterKey(r.Context(), principal(r).AccountID, r.PathValue("org_id"), req.KeyRecord, req.ExpiresAt)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "public_key.registered", map[string]any{"organization_id": key.OrganizationID, "key_id": key.KeyID})
	writeJSON(w, http.StatusOK, key)
}

func (a *API) getKey(w http.ResponseWriter, r *http.Request) {
	key, err := a.svc.DIDs.GetKey(r.Context(), principal(r).AccountID, r.PathValue("org_id"), r.PathValue("key_id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, key)
}

func (a *API) deleteKey(w http.ResponseWriter, r *http.Request) {
	orgID, keyID := r.PathValue("org_id"), r.PathValue("key_id")
	if err := a.svc.DIDs.DeleteKey(r.Context(), principal(r).AccountID, orgID, keyID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "public_key.deleted", map[string]any{"organization_id": orgID, "key_id": keyID})
	w.WriteHeader(http.StatusNoContent)
}
