package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// API routes - Search and assessment
	mux.HandleFunc("/api/search", s.app.SearchHandler.SearchHandler)                     // POST - company risk search
	mux.HandleFunc("/api/semantic-search", s.app.SemanticHandler.SemanticSearchHandler) // POST - vector similarity search
	mux.HandleFunc("/api/nlp/ask", s.app.AskHandler.AskHandler)                          // POST - natural-language question
	mux.HandleFunc("/api/assess", s.app.AssessHandler.AssessHandler)                     // POST - scored risk assessment

	// API routes - Vectors
	mux.HandleFunc("/api/vectors/migrate", s.app.VectorHandler.MigrateHandler) // POST - local index to warehouse

	// API routes - Write queue
	mux.HandleFunc("/api/queue/status", s.app.QueueHandler.StatusHandler) // GET - pending writes snapshot
	mux.HandleFunc("/api/queue/flush", s.app.QueueHandler.FlushHandler)   // POST - synchronous drain

	// API routes - System
	mux.HandleFunc("/api/health", s.app.StatusHandler.HealthHandler)
	mux.HandleFunc("/api/status", s.app.StatusHandler.StatusHandler)
	mux.HandleFunc("/api/classifier/stats", s.app.StatusHandler.ClassifierStatsHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.notFoundHandler)

	return mux
}

func (s *Server) notFoundHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	w.Write([]byte(`{"status":"error","error":"Not found"}`))
}
