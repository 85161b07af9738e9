package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigia/internal/models"
)

// mockEmbedder implements interfaces.EmbeddingService for handler tests.
type mockEmbedder struct {
	embedFunc func(ctx context.Context, text string) ([]float32, error)
	calls     int
}

func (m *mockEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	m.calls++
	if m.embedFunc != nil {
		return m.embedFunc(ctx, text)
	}
	return []float32{1, 0}, nil
}

func (m *mockEmbedder) Dimension() int { return 2 }

func (m *mockEmbedder) ModelName() string { return "gemini-embedding-001" }

func (m *mockEmbedder) IsAvailable(ctx context.Context) bool { return true }

// mockVectorStore implements interfaces.VectorStore for handler tests.
type mockVectorStore struct {
	searchFunc func(ctx context.Context, queryVector []float32, k int, filter models.VectorFilter) ([]models.VectorHit, error)
	calls      int
}

func (m *mockVectorStore) Add(ctx context.Context, record *models.VectorRecord) error { return nil }

func (m *mockVectorStore) Search(ctx context.Context, queryVector []float32, k int, filter models.VectorFilter) ([]models.VectorHit, error) {
	m.calls++
	if m.searchFunc != nil {
		return m.searchFunc(ctx, queryVector, k, filter)
	}
	return []models.VectorHit{{ID: "e1", Score: 0.8, Document: "doc"}}, nil
}

func (m *mockVectorStore) Migrate(ctx context.Context) (*models.MigrateResult, error) {
	return nil, nil
}

func (m *mockVectorStore) Backends() []string { return []string{"warehouse", "badger"} }

func postSemantic(handler *SemanticSearchHandler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/api/semantic-search", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.SemanticSearchHandler(rec, req)
	return rec
}

func TestSemanticSearchHandler_Success(t *testing.T) {
	handler := NewSemanticSearchHandler(&mockEmbedder{}, &mockVectorStore{}, arbor.NewLogger())

	rec := postSemantic(handler, `{"query":"riesgo concursal","k":3}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if resp["status"] != "success" {
		t.Errorf("expected status success, got %v", resp["status"])
	}
	if resp["source"] != "hybrid_vector_store" {
		t.Errorf("expected hybrid_vector_store source, got %v", resp["source"])
	}

	storage, ok := resp["hybrid_storage"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected hybrid_storage object, got %v", resp["hybrid_storage"])
	}
	backends, ok := storage["backends"].([]interface{})
	if !ok || len(backends) != 2 {
		t.Errorf("expected two storage backends, got %v", storage["backends"])
	}
}

func TestSemanticSearchHandler_EmbeddingFailure(t *testing.T) {
	embedder := &mockEmbedder{embedFunc: func(ctx context.Context, text string) ([]float32, error) {
		return nil, errors.New("deadline exceeded")
	}}
	handler := NewSemanticSearchHandler(embedder, &mockVectorStore{}, arbor.NewLogger())

	rec := postSemantic(handler, `{"query":"riesgo concursal"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500 on embedding failure, got %d", rec.Code)
	}
}

func TestSemanticSearchHandler_CachesRepeatedQueries(t *testing.T) {
	embedder := &mockEmbedder{}
	store := &mockVectorStore{}
	handler := NewSemanticSearchHandler(embedder, store, arbor.NewLogger())

	body := `{"query":"riesgo concursal"}`
	postSemantic(handler, body)
	rec := postSemantic(handler, body)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if embedder.calls != 1 || store.calls != 1 {
		t.Errorf("expected one embed and one search, got %d and %d", embedder.calls, store.calls)
	}

	var resp map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["source"] != "l1_memory" {
		t.Errorf("expected l1_memory source on repeat, got %v", resp["source"])
	}
}

func TestSemanticSearchHandler_CacheOptOut(t *testing.T) {
	embedder := &mockEmbedder{}
	store := &mockVectorStore{}
	handler := NewSemanticSearchHandler(embedder, store, arbor.NewLogger())

	body := `{"query":"riesgo concursal","use_cache":false}`
	postSemantic(handler, body)
	postSemantic(handler, body)

	if store.calls != 2 {
		t.Errorf("expected both requests to hit the store, got %d calls", store.calls)
	}
}

func TestSemanticSearchHandler_ValidationFailure(t *testing.T) {
	handler := NewSemanticSearchHandler(&mockEmbedder{}, &mockVectorStore{}, arbor.NewLogger())

	tests := []struct {
		name string
		body string
	}{
		{"missing query", `{}`},
		{"query too short", `{"query":"a"}`},
		{"k out of range", `{"query":"riesgo","k":100}`},
		{"malformed json", `{"query":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postSemantic(handler, tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", rec.Code)
			}
		})
	}
}

func TestSemanticSearchHandler_NotConfigured(t *testing.T) {
	handler := NewSemanticSearchHandler(nil, nil, arbor.NewLogger())

	rec := postSemantic(handler, `{"query":"riesgo concursal"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}

func TestSemanticSearchHandler_MethodNotAllowed(t *testing.T) {
	handler := NewSemanticSearchHandler(&mockEmbedder{}, &mockVectorStore{}, arbor.NewLogger())

	req := httptest.NewRequest("GET", "/api/semantic-search", nil)
	rec := httptest.NewRecorder()
	handler.SemanticSearchHandler(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}
