package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigia/internal/common"
)

func TestNewsAPIAdapter_Search(t *testing.T) {
	var gotQuery, gotFrom, gotTo, gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		gotFrom = r.URL.Query().Get("from")
		gotTo = r.URL.Query().Get("to")
		gotKey = r.Header.Get("X-Api-Key")

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"status": "ok",
			"totalResults": 2,
			"articles": [
				{
					"source": {"name": "El Diario"},
					"title": "Empresa Ficticia investigada",
					"description": "Resumen breve.",
					"content": "La fiscalía investiga a la empresa.",
					"url": "https://example.com/noticia",
					"publishedAt": "2026-03-10T08:00:00Z"
				},
				{
					"source": {"name": "Otro"},
					"title": "Segunda noticia",
					"description": "Solo descripción.",
					"content": "",
					"url": "https://example.com/segunda",
					"publishedAt": "fecha rota"
				}
			]
		}`)
	}))
	defer server.Close()

	adapter := NewNewsAPIAdapter(server.URL, "test-key", arbor.NewLogger(), WithNewsAPIRateLimit(100))
	window, err := common.ResolveWindow("2026-03-08", "2026-03-10", 0, 7, time.Now())
	require.NoError(t, err)

	result := adapter.Search(context.Background(), "Empresa Ficticia", window)

	assert.Equal(t, "Empresa Ficticia", gotQuery)
	assert.Equal(t, "2026-03-08", gotFrom)
	assert.Equal(t, "2026-03-10", gotTo)
	assert.Equal(t, "test-key", gotKey)

	assert.Empty(t, result.Summary.Errors)
	require.Len(t, result.Records, 2)

	assert.Equal(t, "La fiscalía investiga a la empresa.", result.Records[0].Text)
	assert.False(t, result.Records[0].DateParseError)

	// Empty content falls back to the description; broken dates are flagged.
	assert.Equal(t, "Solo descripción.", result.Records[1].Text)
	assert.True(t, result.Records[1].DateParseError)
}

func TestNewsAPIAdapter_ClampsWindow(t *testing.T) {
	var gotFrom string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotFrom = r.URL.Query().Get("from")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"ok","totalResults":0,"articles":[]}`)
	}))
	defer server.Close()

	adapter := NewNewsAPIAdapter(server.URL, "test-key", arbor.NewLogger(), WithNewsAPIRateLimit(100))
	window, err := common.ResolveWindow("2026-01-01", "2026-03-10", 0, 7, time.Now())
	require.NoError(t, err)
	require.Greater(t, window.Days(), 30)

	result := adapter.Search(context.Background(), "empresa", window)

	// 30-day inclusive lookback from the window end.
	assert.Equal(t, "2026-02-09", gotFrom)
	require.Len(t, result.Summary.Errors, 1)
	assert.Contains(t, result.Summary.Errors[0], "clamped")
}

func TestNewsAPIAdapter_ProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"error","code":"apiKeyInvalid","message":"Your API key is invalid"}`)
	}))
	defer server.Close()

	adapter := NewNewsAPIAdapter(server.URL, "bad-key", arbor.NewLogger(), WithNewsAPIRateLimit(100))
	window, err := common.ResolveWindow("2026-03-08", "2026-03-10", 0, 7, time.Now())
	require.NoError(t, err)

	result := adapter.Search(context.Background(), "empresa", window)

	assert.Empty(t, result.Records)
	require.Len(t, result.Summary.Errors, 1)
	assert.Contains(t, result.Summary.Errors[0], "apiKeyInvalid")
}

func TestNewsAPIAdapter_MissingKey(t *testing.T) {
	adapter := NewNewsAPIAdapter("http://example.com", "", arbor.NewLogger())
	window, err := common.ResolveWindow("2026-03-08", "2026-03-10", 0, 7, time.Now())
	require.NoError(t, err)

	result := adapter.Search(context.Background(), "empresa", window)

	assert.Empty(t, result.Records)
	require.Len(t, result.Summary.Errors, 1)
	assert.Contains(t, result.Summary.Errors[0], "key")
}
