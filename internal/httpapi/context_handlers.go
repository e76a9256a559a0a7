package httpapi

import (
	"encoding/json"
	"net/http"

	"vcsync.org/internal/audit"
)

type upsertContextRequest struct {
	URL      string          `json:"url"`
	Document json.RawMessage `json:"document"`
}

type refreshContextsRequest struct {
	URLs []string `json:"urls"`
}

func (a *API) listContexts(w http.ResponseWriter, r *http.Request) {
	items, err := a.svc.Contexts.List(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) upsertContext(w http.ResponseWriter, r *http.Request) {
	var req upsertContextRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	p := principal(r)
	c, err := a.svc.Contexts.Upsert(r.Context(), p.AccountID, p.IsStaff, req.URL, req.Document)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "jsonld_context.upserted", map[string]any{"url": c.URL})
	writeJSON(w, http.StatusOK, c)
}

func (a *API) refreshContexts(w http.ResponseWriter, r *http.Request) {
	var req refreshContextsRequest
	if err := decodeOptionalJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	p := principal(r)
	if err := a.svc.Contexts.Authorize(r.Context(), p.AccountID, p.IsStaff); err != nil {
		writeServiceError(w, r, err)
		return
	}
	report, err := a.svc.Contexts.Refresh(r.Context(), req.URLs)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "jsonld_context.refreshed", map[string]any{
		"updated": len(report.Updated),
		"failed":  len(report.Failed),
	})
	writeJSON(w, http.StatusOK, report)
}
