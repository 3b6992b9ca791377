package api

import (
	"net/http"

	"github.com/virtadmin/convomem/internal/bridge"
	"github.com/virtadmin/convomem/internal/models"
)

type TurnHandler struct {
	bridge *bridge.Bridge
}

func NewTurnHandler(b *bridge.Bridge) *TurnHandler {
	return &TurnHandler{bridge: b}
}

// Process handles POST /turns
func (h *TurnHandler) Process(w http.ResponseWriter, r *http.Request) {
	var req models.TurnRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "sessionId is required")
		return
	}
	if req.Utterance == "" && req.Response == "" {
		writeError(w, http.StatusBadRequest, "utterance or response is required")
		return
	}

	resp := h.bridge.ProcessTurn(&req)
	writeJSON(w, http.StatusOK, resp)
}

// Context handles GET /users/{userId}/context?query=
func (h *TurnHandler) Context(w http.ResponseWriter, r *http.Request) {
	userID := pathParam(r, "userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}
	query := r.URL.Query().Get("query")

	ctx := h.bridge.GetContextForQuery(query, userID)
	writeJSON(w, http.StatusOK, ctx)
}
