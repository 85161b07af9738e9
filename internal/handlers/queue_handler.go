package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigia/internal/interfaces"
)

// QueueHandler exposes the background warehouse writer.
type QueueHandler struct {
	queue  interfaces.WriteQueue
	logger arbor.ILogger
}

func NewQueueHandler(queue interfaces.WriteQueue, logger arbor.ILogger) *QueueHandler {
	return &QueueHandler{
		queue:  queue,
		logger: logger,
	}
}

// StatusHandler handles GET /api/queue/status requests.
func (h *QueueHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	WriteJSON(w, http.StatusOK, h.queue.Status())
}

// FlushHandler handles POST /api/queue/flush requests, draining all pending
// writes synchronously.
func (h *QueueHandler) FlushHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	written := h.queue.Flush(r.Context())
	h.logger.Info().Int("written", written).Msg("Queue flushed")

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"written": written,
	})
}
