package api

import (
	"net/http"

	"github.com/virtadmin/convomem/internal/bridge"
	"github.com/virtadmin/convomem/internal/models"
)

type SessionHandler struct {
	bridge *bridge.Bridge
}

func NewSessionHandler(b *bridge.Bridge) *SessionHandler {
	return &SessionHandler{bridge: b}
}

// Start handles POST /sessions/start
func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req models.StartSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	resp := h.bridge.StartSession(req.UserID, req.SessionID)
	writeJSON(w, http.StatusOK, resp)
}

// End handles POST /sessions/end
func (h *SessionHandler) End(w http.ResponseWriter, r *http.Request) {
	var req models.EndSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.UserID == "" || req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "userId and sessionId are required")
		return
	}

	extracted := h.bridge.EndSession(req.UserID, req.SessionID)
	writeJSON(w, http.StatusOK, models.EndSessionResponse{Extracted: extracted})
}
