package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigia/internal/common"
)

const rssFixture = `<?xml version="1.0" encoding="us-ascii"?>
<rss version="2.0">
  <channel>
    <title>Economía</title>
    <item>
      <title>Banco Ficticio sancionado por la CNMV</title>
      <link>https://example.com/sancion</link>
      <description>&lt;p&gt;La entidad &lt;b&gt;Banco Ficticio&lt;/b&gt; recibe una multa.&lt;/p&gt;</description>
      <pubDate>Tue, 10 Mar 2026 09:00:00 +0100</pubDate>
    </item>
    <item>
      <title>Banco Ficticio presenta resultados</title>
      <link>https://example.com/resultados</link>
      <description>Resultados del primer trimestre.</description>
      <pubDate>mañana por la tarde</pubDate>
    </item>
    <item>
      <title>Receta de tortilla de patatas</title>
      <link>https://example.com/cocina</link>
      <description>Una receta tradicional.</description>
      <pubDate>Tue, 10 Mar 2026 08:00:00 +0100</pubDate>
    </item>
    <item>
      <title>Banco Ficticio, noticia antigua</title>
      <link>https://example.com/antigua</link>
      <description>Cobertura del año pasado.</description>
      <pubDate>Mon, 10 Mar 2025 08:00:00 +0100</pubDate>
    </item>
  </channel>
</rss>`

func rssTestWindow(t *testing.T) common.DateWindow {
	t.Helper()
	window, err := common.ResolveWindow("2026-03-08", "2026-03-14", 0, 7, time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return window
}

func TestRSSAdapter_Search(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(rssFixture))
	}))
	defer server.Close()

	fixedNow := time.Date(2026, 3, 12, 12, 0, 0, 0, time.UTC)
	adapter := NewRSSAdapter("elpais", server.URL, arbor.NewLogger(),
		WithRSSClock(func() time.Time { return fixedNow }))

	result := adapter.Search(context.Background(), "Banco Ficticio", rssTestWindow(t))

	require.Empty(t, result.Summary.Errors)
	require.Len(t, result.Records, 2)
	assert.Equal(t, 2, result.Summary.TotalResults)

	sanction := result.Records[0]
	assert.Equal(t, "Banco Ficticio sancionado por la CNMV", sanction.Title)
	assert.Equal(t, "La entidad Banco Ficticio recibe una multa.", sanction.Text)
	assert.False(t, sanction.DateParseError)

	unparsed := result.Records[1]
	assert.True(t, unparsed.DateParseError)
	require.NotNil(t, unparsed.PubDate)
	assert.Equal(t, fixedNow, *unparsed.PubDate)
}

func TestRSSAdapter_SourceTag(t *testing.T) {
	adapter := NewRSSAdapter("expansion", "http://example.com/feed", arbor.NewLogger())
	assert.Equal(t, "RSS_EXPANSION", string(adapter.Source()))
	assert.True(t, adapter.Source().IsRSS())
	assert.True(t, adapter.Source().IsPress())
}

func TestRSSAdapter_FetchFailureIsCaptured(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	adapter := NewRSSAdapter("abc", server.URL, arbor.NewLogger())
	result := adapter.Search(context.Background(), "banco", rssTestWindow(t))

	assert.Empty(t, result.Records)
	require.Len(t, result.Summary.Errors, 1)
	assert.Contains(t, result.Summary.Errors[0], "500")
}

func TestFixEncodingDeclaration(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "rewrites us-ascii",
			in:   `<?xml version="1.0" encoding="us-ascii"?><rss/>`,
			want: `<?xml version="1.0" encoding="utf-8"?><rss/>`,
		},
		{
			name: "rewrites single quotes and mixed case",
			in:   `<?xml version='1.0' encoding='US-ASCII'?><rss/>`,
			want: `<?xml version='1.0' encoding="utf-8"?><rss/>`,
		},
		{
			name: "leaves utf-8 alone",
			in:   `<?xml version="1.0" encoding="utf-8"?><rss/>`,
			want: `<?xml version="1.0" encoding="utf-8"?><rss/>`,
		},
		{
			name: "no declaration",
			in:   `<rss version="2.0"/>`,
			want: `<rss version="2.0"/>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, string(FixEncodingDeclaration([]byte(tt.in))))
		})
	}
}

func TestQueryTermFilter(t *testing.T) {
	terms := queryTerms("Banco Santander")
	assert.Equal(t, []string{"banco", "santander"}, terms)

	assert.True(t, matchesAnyTerm("El BANCO anuncia resultados", terms))
	assert.True(t, matchesAnyTerm("santander capital", terms))
	assert.False(t, matchesAnyTerm("noticias de deportes", terms))
	assert.True(t, matchesAnyTerm("cualquier texto", nil))
}
