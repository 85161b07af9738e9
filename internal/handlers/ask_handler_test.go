package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigia/internal/services/rag"
)

func postAsk(handler *AskHandler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/api/nlp/ask", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.AskHandler(rec, req)
	return rec
}

func TestAskHandler_NotConfigured(t *testing.T) {
	handler := NewAskHandler(nil, arbor.NewLogger())

	rec := postAsk(handler, `{"question":"¿Qué riesgos legales tiene la empresa?"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}

func TestAskHandler_EmbeddingFailure(t *testing.T) {
	embedder := &mockEmbedder{embedFunc: func(ctx context.Context, text string) ([]float32, error) {
		return nil, errors.New("deadline exceeded")
	}}
	ragService := rag.NewService(embedder, &mockVectorStore{}, nil, arbor.NewLogger())
	handler := NewAskHandler(ragService, arbor.NewLogger())

	rec := postAsk(handler, `{"question":"¿Qué riesgos legales tiene la empresa?"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500 on embedding failure, got %d", rec.Code)
	}
}

func TestAskHandler_MethodNotAllowed(t *testing.T) {
	handler := NewAskHandler(nil, arbor.NewLogger())

	req := httptest.NewRequest("GET", "/api/nlp/ask", nil)
	rec := httptest.NewRecorder()
	handler.AskHandler(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}

func TestDecodeAndValidate_AskRequest(t *testing.T) {
	tests := []struct {
		name string
		body string
		ok   bool
	}{
		{"valid", `{"question":"¿Qué riesgos legales tiene la empresa?"}`, true},
		{"valid with options", `{"question":"¿Hay procedimientos concursales abiertos?","max_documents":5,"language":"en"}`, true},
		{"question too short", `{"question":"corta"}`, false},
		{"missing question", `{}`, false},
		{"max_documents too high", `{"question":"¿Qué riesgos legales existen?","max_documents":11}`, false},
		{"bad language", `{"question":"¿Qué riesgos legales existen?","language":"fr"}`, false},
		{"malformed json", `{"question":`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/nlp/ask", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()

			var body AskRequest
			ok := DecodeAndValidate(rec, req, &body)
			if ok != tt.ok {
				t.Errorf("expected ok=%v, got %v (%s)", tt.ok, ok, rec.Body.String())
			}
			if !ok && rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400 on failure, got %d", rec.Code)
			}
		})
	}
}
