package api

import (
	"encoding/json"
	"net/http"
)

type syncScriptRequest struct {
	ProjectID string `json:"projectId"`
	Code      string `json:"code"`
	Token     string `json:"token,omitempty"`
	Source    string `json:"source,omitempty"`
}

type syncScriptResponse struct {
	Changed bool   `json:"changed"`
	Version uint64 `json:"version,omitempty"`
}

// SyncScript implements the trusted MCP-facing endpoint external
// tooling uses to push a freshly generated or edited script into a
// room, converging every connected client through the normal CRDT
// update path rather than a state snapshot swap.
func (h *Handler) SyncScript(w http.ResponseWriter, r *http.Request) {
	var req syncScriptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ProjectID == "" {
		writeError(w, http.StatusBadRequest, "projectId is required")
		return
	}

	rm := h.rooms.GetOrCreate(r.Context(), req.ProjectID)
	changed, version := rm.ReplaceAll(req.Code)
	if !changed {
		writeJSON(w, http.StatusOK, syncScriptResponse{Changed: false})
		return
	}

	writeJSON(w, http.StatusOK, syncScriptResponse{Changed: true, Version: version})
}
