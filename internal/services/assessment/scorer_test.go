package assessment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigia/internal/common"
	"github.com/ternarybob/vigia/internal/models"
)

func testWindow(t *testing.T) common.DateWindow {
	t.Helper()
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	window, err := common.ResolveWindow("", "", 7, 7, now)
	require.NoError(t, err)
	return window
}

func item(source models.Source, label models.RiskLabel, title string) models.ResultItem {
	return models.ResultItem{
		EventID:   models.NewEventID(source, title),
		Source:    source,
		Title:     title,
		RiskLabel: label,
		RiskColor: label.Color(),
	}
}

func envelope(items ...models.ResultItem) *models.SearchEnvelope {
	return &models.SearchEnvelope{
		CompanyName: "Acme",
		Results:     items,
		Metadata: map[string]*models.SourceSummary{
			"BOE":     {},
			"NEWSAPI": {},
		},
	}
}

func TestScore_HighLegalPressIsRed(t *testing.T) {
	scorer := NewScorer(arbor.NewLogger())

	env := envelope(
		item(models.SourceNewsAPI, models.RiskHighLegal, "Auto de procesamiento"),
		item(models.SourceNewsAPI, models.RiskHighLegal, "Querella admitida a trámite"),
	)

	a := scorer.Score(env, "user-1", testWindow(t))

	assert.Equal(t, 80.0, a.FinancialScore)
	assert.Equal(t, 90.0, a.LegalScore)
	assert.Equal(t, 60.0, a.PressScore)
	assert.Equal(t, 76.7, a.CompositeScore)
	assert.Equal(t, models.ColorRed, a.OverallRisk)
	assert.Equal(t, models.ColorRed, a.LegalRisk)
	assert.Equal(t, "user-1", a.UserID)
	assert.NotEmpty(t, a.AssessmentID)
	assert.Equal(t, recommendationTemplates[models.ColorRed], a.Recommendations)
}

func TestScore_MixedEnvelope(t *testing.T) {
	scorer := NewScorer(arbor.NewLogger())

	env := envelope(
		item(models.SourceBOE, models.RiskHighLegal, "Concurso de acreedores"),
		item(models.RSSSource("elpais"), models.RiskMediumLegal, "Demanda civil"),
		item(models.SourceNewsAPI, models.RiskNoLegal, "Patrocinio deportivo"),
		item(models.SourceNewsAPI, models.RiskNoLegal, "Nueva campaña"),
	)

	a := scorer.Score(env, "user-1", testWindow(t))

	assert.Equal(t, 30.0, a.FinancialScore)
	assert.Equal(t, 35.0, a.LegalScore)
	assert.Equal(t, 45.0, a.PressScore)
	assert.Equal(t, 36.7, a.CompositeScore)
	assert.Equal(t, models.ColorGreen, a.OverallRisk)

	assert.Equal(t, 2, a.ResultCounts["NEWSAPI"])
	assert.Equal(t, 1, a.ResultCounts["RSS_ELPAIS"])
	assert.Equal(t, 1, a.ResultCounts["BOE"])
	assert.ElementsMatch(t, []string{"BOE", "NEWSAPI"}, a.SourcesSearched)
}

func TestScore_EmptyEnvelope(t *testing.T) {
	scorer := NewScorer(arbor.NewLogger())
	window := testWindow(t)

	a := scorer.Score(envelope(), "user-1", window)

	assert.Equal(t, 0.0, a.CompositeScore)
	assert.Equal(t, models.ColorGreen, a.OverallRisk)
	assert.Empty(t, a.KeyFindings)
	assert.Equal(t, window.StartDate(), a.WindowStart)
	assert.Equal(t, window.EndDate(), a.WindowEnd)
	assert.Contains(t, a.Summary, "0 eventos")
}

func TestScore_KeyFindingsRedsFirstCappedAtFive(t *testing.T) {
	scorer := NewScorer(arbor.NewLogger())

	items := []models.ResultItem{
		item(models.SourceNewsAPI, models.RiskMediumOperational, "medio-1"),
		item(models.SourceBOE, models.RiskHighLegal, "alto-1"),
		item(models.SourceBOE, models.RiskHighFinancial, "alto-2"),
		item(models.SourceNewsAPI, models.RiskMediumLegal, "medio-2"),
		item(models.SourceBOE, models.RiskHighRegulatory, "alto-3"),
		item(models.SourceNewsAPI, models.RiskNoLegal, "ruido"),
		item(models.SourceNewsAPI, models.RiskMediumOperational, "medio-3"),
	}

	a := scorer.Score(envelope(items...), "user-1", testWindow(t))

	require.Len(t, a.KeyFindings, 5)
	assert.Equal(t, []string{"alto-1", "alto-2", "alto-3", "medio-1", "medio-2"}, a.KeyFindings)
}

func TestColorForScore(t *testing.T) {
	tests := []struct {
		score float64
		want  models.RiskColor
	}{
		{100, models.ColorRed},
		{70, models.ColorRed},
		{69.9, models.ColorOrange},
		{40, models.ColorOrange},
		{39.9, models.ColorGreen},
		{0, models.ColorGreen},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, colorForScore(tt.score), "score %.1f", tt.score)
	}
}
