package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigia/internal/common"
	"github.com/ternarybob/vigia/internal/interfaces"
)

const healthProbeBudget = 5 * time.Second

// StatusHandler serves liveness, dependency health and classifier counters.
type StatusHandler struct {
	llm        interfaces.LLMService
	embedder   interfaces.EmbeddingService
	classifier interfaces.HybridClassifier
	warehouse  interfaces.Warehouse
	queue      interfaces.WriteQueue
	logger     arbor.ILogger
}

func NewStatusHandler(
	llm interfaces.LLMService,
	embedder interfaces.EmbeddingService,
	classifier interfaces.HybridClassifier,
	warehouse interfaces.Warehouse,
	queue interfaces.WriteQueue,
	logger arbor.ILogger,
) *StatusHandler {
	return &StatusHandler{
		llm:        llm,
		embedder:   embedder,
		classifier: classifier,
		warehouse:  warehouse,
		queue:      queue,
		logger:     logger,
	}
}

// HealthHandler handles GET /api/health requests.
func (h *StatusHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"service":   "vigia",
		"version":   common.GetVersion(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// StatusHandler handles GET /api/status requests. Each dependency is probed
// with its own short budget so one slow provider cannot stall the page.
func (h *StatusHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthProbeBudget)
	defer cancel()

	status := map[string]interface{}{
		"service":   "vigia",
		"version":   common.GetFullVersion(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	llmStatus := "not_configured"
	if h.llm != nil {
		llmStatus = "healthy"
		if err := h.llm.HealthCheck(ctx); err != nil {
			llmStatus = "unavailable: " + err.Error()
		}
	}
	status["llm"] = llmStatus

	if h.embedder != nil {
		status["embedding"] = map[string]interface{}{
			"model":     h.embedder.ModelName(),
			"dimension": h.embedder.Dimension(),
			"available": h.embedder.IsAvailable(ctx),
		}
	} else {
		status["embedding"] = "not_configured"
	}

	warehouseStatus := "not_configured"
	if h.warehouse != nil {
		warehouseStatus = "healthy"
		if err := h.warehouse.Ping(ctx); err != nil {
			warehouseStatus = "unavailable: " + err.Error()
		}
	}
	status["warehouse"] = warehouseStatus

	if h.queue != nil {
		status["write_queue"] = h.queue.Status()
	}

	WriteJSON(w, http.StatusOK, status)
}

// ClassifierStatsHandler handles GET /api/classifier/stats requests.
func (h *StatusHandler) ClassifierStatsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	if h.classifier == nil {
		WriteError(w, http.StatusServiceUnavailable, "Classifier is not configured")
		return
	}

	WriteJSON(w, http.StatusOK, h.classifier.Stats())
}
