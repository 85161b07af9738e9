package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigia/internal/services/rag"
)

// AskRequest is the body for POST /api/nlp/ask.
type AskRequest struct {
	Question      string `json:"question" validate:"required,min=10"`
	MaxDocuments  int    `json:"max_documents,omitempty" validate:"omitempty,gte=1,lte=10"`
	CompanyFilter string `json:"company_filter,omitempty"`
	Language      string `json:"language,omitempty" validate:"omitempty,oneof=es en"`
}

// AskHandler serves natural-language questions over the indexed documents.
type AskHandler struct {
	rag    *rag.Service
	logger arbor.ILogger
}

func NewAskHandler(ragService *rag.Service, logger arbor.ILogger) *AskHandler {
	return &AskHandler{
		rag:    ragService,
		logger: logger,
	}
}

// AskHandler handles POST /api/nlp/ask requests.
func (h *AskHandler) AskHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	if h.rag == nil {
		WriteError(w, http.StatusServiceUnavailable, "Question answering is not configured")
		return
	}

	var req AskRequest
	if !DecodeAndValidate(w, r, &req) {
		return
	}
	if req.MaxDocuments == 0 {
		req.MaxDocuments = 3
	}
	if req.Language == "" {
		req.Language = "es"
	}

	h.logger.Info().
		Str("company_filter", req.CompanyFilter).
		Str("language", req.Language).
		Int("max_documents", req.MaxDocuments).
		Msg("Question received")

	answer, err := h.rag.Ask(r.Context(), req.Question, req.CompanyFilter, req.MaxDocuments, req.Language)
	if err != nil {
		h.logger.Error().Err(err).Msg("Question answering failed")
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, answer)
}
