package handlers

import (
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigia/internal/common"
	"github.com/ternarybob/vigia/internal/interfaces"
	"github.com/ternarybob/vigia/internal/models"
	"github.com/ternarybob/vigia/internal/services/cache"
)

const defaultSemanticK = 5

// SemanticSearchRequest is the body for POST /api/semantic-search.
type SemanticSearchRequest struct {
	Query         string `json:"query" validate:"required,min=2"`
	K             int    `json:"k,omitempty" validate:"omitempty,gte=1,lte=50"`
	RiskFilter    string `json:"risk_filter,omitempty"`
	CompanyFilter string `json:"company_filter,omitempty"`
	UseCache      *bool  `json:"use_cache,omitempty"`
}

// SemanticSearchHandler embeds a free-text query and searches the hybrid
// vector store directly, without classification. Repeated queries are served
// from a small in-process cache unless the caller opts out.
type SemanticSearchHandler struct {
	embedder interfaces.EmbeddingService
	vectors  interfaces.VectorStore
	results  *cache.L1Cache
	logger   arbor.ILogger
}

func NewSemanticSearchHandler(embedder interfaces.EmbeddingService, vectors interfaces.VectorStore, logger arbor.ILogger) *SemanticSearchHandler {
	return &SemanticSearchHandler{
		embedder: embedder,
		vectors:  vectors,
		results:  cache.NewL1Cache(200, 5*time.Minute),
		logger:   logger,
	}
}

// SemanticSearchHandler handles POST /api/semantic-search requests.
func (h *SemanticSearchHandler) SemanticSearchHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	if h.embedder == nil || h.vectors == nil {
		WriteError(w, http.StatusServiceUnavailable, "Semantic search is not configured")
		return
	}

	var req SemanticSearchRequest
	if !DecodeAndValidate(w, r, &req) {
		return
	}
	if req.K <= 0 {
		req.K = defaultSemanticK
	}
	useCache := req.UseCache == nil || *req.UseCache

	start := time.Now()

	cacheKey := common.SearchCacheKey(req.Query, req.CompanyFilter, req.RiskFilter, req.K, nil)
	if useCache {
		if cached, ok := h.results.Get(cacheKey); ok {
			WriteJSON(w, http.StatusOK, map[string]interface{}{
				"status":         "success",
				"query":          req.Query,
				"search_results": cached,
				"source":         "l1_memory",
				"performance_metrics": map[string]interface{}{
					"total_time_ms": time.Since(start).Milliseconds(),
				},
				"hybrid_storage": h.storageInfo(),
				"timestamp":      time.Now().UTC().Format(time.RFC3339),
			})
			return
		}
	}

	queryVector, err := h.embedder.GenerateEmbedding(r.Context(), req.Query)
	if err != nil {
		h.logger.Error().Err(err).Msg("Query embedding failed")
		WriteError(w, http.StatusInternalServerError, "Embedding service unavailable: "+err.Error())
		return
	}
	embedTime := time.Since(start)

	filter := models.VectorFilter{
		CompanyName: req.CompanyFilter,
		RiskLevel:   req.RiskFilter,
	}

	hits, err := h.vectors.Search(r.Context(), queryVector, req.K, filter)
	if err != nil {
		h.logger.Error().Err(err).Str("query", req.Query).Msg("Vector search failed")
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if useCache {
		h.results.Set(cacheKey, hits)
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "success",
		"query":          req.Query,
		"search_results": hits,
		"source":         "hybrid_vector_store",
		"performance_metrics": map[string]interface{}{
			"embed_time_ms": embedTime.Milliseconds(),
			"total_time_ms": time.Since(start).Milliseconds(),
			"result_count":  len(hits),
		},
		"hybrid_storage": h.storageInfo(),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	})
}

// storageInfo describes the vector storage composition behind the search.
func (h *SemanticSearchHandler) storageInfo() map[string]interface{} {
	return map[string]interface{}{
		"backends":        h.vectors.Backends(),
		"embedding_model": h.embedder.ModelName(),
	}
}
