package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigia/internal/common"
	"github.com/ternarybob/vigia/internal/interfaces"
	"github.com/ternarybob/vigia/internal/models"
	"github.com/ternarybob/vigia/internal/services/assessment"
	"github.com/ternarybob/vigia/internal/services/pipeline"
)

// AssessRequest is the body for POST /api/assess.
type AssessRequest struct {
	CompanyName  string `json:"company_name" validate:"required,min=2"`
	UserID       string `json:"user_id,omitempty"`
	StartDate    string `json:"start_date,omitempty"`
	EndDate      string `json:"end_date,omitempty"`
	DaysBack     int    `json:"days_back,omitempty"`
	ForceRefresh bool   `json:"force_refresh,omitempty"`
}

// AssessHandler runs a full search and scores the resulting envelope into a
// risk assessment, persisted through the write queue.
type AssessHandler struct {
	pipeline    *pipeline.Service
	scorer      *assessment.Scorer
	queue       interfaces.WriteQueue
	defaultDays int
	logger      arbor.ILogger
}

func NewAssessHandler(pipelineService *pipeline.Service, scorer *assessment.Scorer, queue interfaces.WriteQueue, defaultDays int, logger arbor.ILogger) *AssessHandler {
	return &AssessHandler{
		pipeline:    pipelineService,
		scorer:      scorer,
		queue:       queue,
		defaultDays: defaultDays,
		logger:      logger,
	}
}

// AssessHandler handles POST /api/assess requests.
func (h *AssessHandler) AssessHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req AssessRequest
	if !DecodeAndValidate(w, r, &req) {
		return
	}

	window, err := common.ResolveWindow(req.StartDate, req.EndDate, req.DaysBack, h.defaultDays, time.Now())
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	envelope, err := h.pipeline.Search(r.Context(), &pipeline.SearchRequest{
		CompanyName:  req.CompanyName,
		StartDate:    req.StartDate,
		EndDate:      req.EndDate,
		DaysBack:     req.DaysBack,
		ForceRefresh: req.ForceRefresh,
	})
	if err != nil {
		h.logger.Error().Err(err).Str("company", req.CompanyName).Msg("Assessment search failed")
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	result := h.scorer.Score(envelope, req.UserID, window)
	warehouseStatus := h.persist(req.CompanyName, result)

	h.logger.Info().
		Str("company", req.CompanyName).
		Str("assessment_id", result.AssessmentID).
		Str("overall_risk", string(result.OverallRisk)).
		Msg("Assessment completed")

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":           "success",
		"assessment":       result,
		"warehouse_status": warehouseStatus,
	})
}

func (h *AssessHandler) persist(company string, result *models.Assessment) string {
	payload, err := json.Marshal(result)
	if err != nil {
		return "marshal_failed"
	}

	err = h.queue.Enqueue(&models.WriteRequest{
		Table:     "assessments",
		Operation: models.OpUpsert,
		Priority:  models.PriorityNormal,
		Rows: []map[string]interface{}{{
			"assessment_id":   result.AssessmentID,
			"user_id":         result.UserID,
			"company_name":    company,
			"payload":         json.RawMessage(payload),
			"overall_risk":    string(result.OverallRisk),
			"composite_score": result.CompositeScore,
		}},
	})
	if err != nil {
		h.logger.Warn().Err(err).Msg("Assessment enqueue failed")
		return "queue_unavailable"
	}
	return "queued"
}
