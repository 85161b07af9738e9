package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigia/internal/services/pipeline"
)

// SearchHandler serves the structured company risk search.
type SearchHandler struct {
	pipeline *pipeline.Service
	logger   arbor.ILogger
}

func NewSearchHandler(pipelineService *pipeline.Service, logger arbor.ILogger) *SearchHandler {
	return &SearchHandler{
		pipeline: pipelineService,
		logger:   logger,
	}
}

// SearchHandler handles POST /api/search requests.
func (h *SearchHandler) SearchHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req pipeline.SearchRequest
	if !DecodeAndValidate(w, r, &req) {
		return
	}

	h.logger.Info().
		Str("company", req.CompanyName).
		Bool("force_refresh", req.ForceRefresh).
		Msg("Search request received")

	envelope, err := h.pipeline.Search(r.Context(), &req)
	if err != nil {
		h.logger.Error().Err(err).Str("company", req.CompanyName).Msg("Search failed")
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, envelope)
}
