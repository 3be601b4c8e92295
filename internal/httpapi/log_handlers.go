package httpapi

import (
	"net/http"

	"taskdesk.org/internal/audit"
	"taskdesk.org/internal/auth"
)

// handleActivityLogs serves the audit trail, newest first. The log store
// has no service layer of its own, so the permission gate lives here.
func (a *API) handleActivityLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if err := auth.Authorize(r.Context(), auth.PermLogList); err != nil {
		handleServiceError(w, r, err)
		return
	}
	limit, offset := pageParams(r)
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	entries, err := a.logs.ListEntries(r.Context(), limit, offset)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if entries == nil {
		entries = []*audit.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": entries})
}
