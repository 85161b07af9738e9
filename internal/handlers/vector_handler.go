package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigia/internal/interfaces"
)

// VectorHandler serves vector store maintenance operations.
type VectorHandler struct {
	vectors interfaces.VectorStore
	logger  arbor.ILogger
}

func NewVectorHandler(vectors interfaces.VectorStore, logger arbor.ILogger) *VectorHandler {
	return &VectorHandler{
		vectors: vectors,
		logger:  logger,
	}
}

// MigrateHandler handles POST /api/vectors/migrate requests, copying the
// local vector index into the warehouse.
func (h *VectorHandler) MigrateHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	if h.vectors == nil {
		WriteError(w, http.StatusServiceUnavailable, "Vector store is not configured")
		return
	}

	result, err := h.vectors.Migrate(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Vector migration failed")
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.logger.Info().
		Int("migrated", result.Migrated).
		Int("failed", result.Failed).
		Msg("Vector migration completed")

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "success",
		"migration": result,
	})
}
