package api

import (
	"net/http"

	"github.com/virtadmin/convomem/internal/models"
	"github.com/virtadmin/convomem/internal/store"
)

type HealthHandler struct {
	db *store.DB
}

func NewHealthHandler(db *store.DB) *HealthHandler {
	return &HealthHandler{db: db}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := models.HealthResponse{Status: "ok", DB: "ok"}

	convs, mems, assocs, err := h.db.Counts()
	if err != nil {
		resp.Status = "degraded"
		resp.DB = err.Error()
	} else {
		resp.Conversations = convs
		resp.Memories = mems
		resp.Associations = assocs
	}

	writeJSON(w, http.StatusOK, resp)
}
