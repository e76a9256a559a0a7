package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"vcsync.org/internal/audit"
	"vcsync.org/internal/statuslist"
)

// unwrapCredential accepts either the credential itself or {"credential": {...}}.
func unwrapCredential(body []byte) []byte {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return body
	}
	inner, ok := envelope["credential"]
	if _, hasType := envelope["type"]; !ok || hasType {
		return body
	}
	if trimmed := strings.TrimSpace(string(inner)); !strings.HasPrefix(trimmed, "{") {
		return body
	}
	return inner
}

func (a *API) upsertStatusList(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	res, err := a.svc.StatusLists.Upsert(r.Context(), principal(r).AccountID, r.PathValue("org_id"), unwrapCredential(body))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if res.Outcome != statuslist.OutcomeUnchanged {
		_ = audit.LogEvent(r.Context(), "status_list."+string(res.Outcome), map[string]any{
			"organization_id": res.Credential.OrganizationID,
			"status_list_id":  res.Credential.StatusListID,
			"version":         res.Credential.Version,
		})
	}
	code := http.StatusOK
	if res.Outcome == statuslist.OutcomeCreated {
		code = http.StatusCreated
	}
	writeJSON(w, code, res)
}

func (a *API) listStatusLists(w http.ResponseWriter, r *http.Request) {
	items, err := a.svc.StatusLists.List(r.Context(), principal(r).AccountID, r.PathValue("org_id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if items == nil {
		items = []statuslist.Credential{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) statusListManifest(w http.ResponseWriter, r *http.Request) {
	entries, err := a.svc.StatusLists.Manifest(r.Context(), principal(r).AccountID, r.PathValue("org_id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if entries == nil {
		entries = []statuslist.ManifestEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": entries})
}

func statusListID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		writeError(w, r, http.StatusBadRequest, "id query parameter is required")
		return "", false
	}
	return id, true
}

func (a *API) getStatusList(w http.ResponseWriter, r *http.Request) {
	id, ok := statusListID(w, r)
	if !ok {
		return
	}
	c, err := a.svc.StatusLists.Get(r.Context(), principal(r).AccountID, r.PathValue("org_id"), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (a *API) statusListHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := statusListID(w, r)
	if !ok {
		return
	}
	items, err := a.svc.StatusLists.History(r.Context(), principal(r).AccountID, r.PathValue("org_id"), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if items == nil {
		items = []statuslist.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) deleteStatusList(w http.ResponseWriter, r *http.Request) {
	id, ok := statusListID(w, r)
	if !ok {
		return
	}
	orgID := r.PathValue("org_id")
	if err := a.svc.StatusLists.Delete(r.Context(), principal(r).AccountID, orgID, id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "status_list.deleted", map[string]any{"organization_id": orgID, "status_list_id": id})
	w.WriteHeader(http.StatusNoContent)
}
