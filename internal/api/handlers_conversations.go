package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/virtadmin/convomem/internal/conversation"
)

type ConversationHandler struct {
	convs *conversation.Store
}

func NewConversationHandler(convs *conversation.Store) *ConversationHandler {
	return &ConversationHandler{convs: convs}
}

// Get handles GET /conversations/{id}
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid conversation id")
		return
	}

	conv := h.convs.GetConversation(id)
	if conv == nil {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// Recent handles GET /users/{userId}/conversations?limit=&topic=
func (h *ConversationHandler) Recent(w http.ResponseWriter, r *http.Request) {
	userID := pathParam(r, "userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	if topic := r.URL.Query().Get("topic"); topic != "" {
		writeJSON(w, http.StatusOK, h.convs.FindConversationsByTopic(userID, topic, limit))
		return
	}
	writeJSON(w, http.StatusOK, h.convs.GetRecentConversations(userID, limit))
}

// TopicHistory handles GET /users/{userId}/topics
func (h *ConversationHandler) TopicHistory(w http.ResponseWriter, r *http.Request) {
	userID := pathParam(r, "userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}
	writeJSON(w, http.StatusOK, h.convs.GetTopicHistory(userID))
}

func pathParam(r *http.Request, key string) string {
	return chi.URLParam(r, key)
}
