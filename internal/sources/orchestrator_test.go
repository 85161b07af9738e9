package sources

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigia/internal/common"
	"github.com/ternarybob/vigia/internal/interfaces"
	"github.com/ternarybob/vigia/internal/models"
)

// stubAdapter is a scriptable source adapter for orchestrator tests.
type stubAdapter struct {
	source models.Source
	search func(ctx context.Context, query string, window common.DateWindow) *models.SourceResult
}

func (s *stubAdapter) Source() models.Source { return s.source }

func (s *stubAdapter) Search(ctx context.Context, query string, window common.DateWindow) *models.SourceResult {
	return s.search(ctx, query, window)
}

func okAdapter(source models.Source, count int) *stubAdapter {
	return &stubAdapter{
		source: source,
		search: func(_ context.Context, query string, _ common.DateWindow) *models.SourceResult {
			result := models.NewSourceResult(source, query)
			for i := 0; i < count; i++ {
				result.Records = append(result.Records, models.SourceRecord{Title: "doc"})
			}
			result.Summary.TotalResults = count
			return result
		},
	}
}

func orchestratorWindow(t *testing.T) common.DateWindow {
	t.Helper()
	window, err := common.ResolveWindow("", "", 7, 7, time.Now())
	require.NoError(t, err)
	return window
}

func TestOrchestrator_FansOutToAllSources(t *testing.T) {
	orch := NewOrchestrator([]interfaces.SourceAdapter{
		okAdapter(models.SourceBOE, 2),
		okAdapter(models.SourceNewsAPI, 3),
	}, time.Second, arbor.NewLogger())

	results := orch.SearchAll(context.Background(), "empresa", orchestratorWindow(t), nil)

	require.Len(t, results, 2)
	assert.Equal(t, 2, results[models.SourceBOE].Summary.TotalResults)
	assert.Equal(t, 3, results[models.SourceNewsAPI].Summary.TotalResults)
}

func TestOrchestrator_PanicIsolation(t *testing.T) {
	panicking := &stubAdapter{
		source: models.SourceYahoo,
		search: func(_ context.Context, _ string, _ common.DateWindow) *models.SourceResult {
			panic("boom")
		},
	}

	orch := NewOrchestrator([]interfaces.SourceAdapter{
		okAdapter(models.SourceBOE, 1),
		panicking,
	}, time.Second, arbor.NewLogger())

	results := orch.SearchAll(context.Background(), "empresa", orchestratorWindow(t), nil)

	require.Len(t, results, 2)

	// The healthy peer is unaffected.
	assert.Equal(t, 1, results[models.SourceBOE].Summary.TotalResults)

	failed := results[models.SourceYahoo]
	require.NotNil(t, failed)
	assert.Empty(t, failed.Records)
	require.Len(t, failed.Summary.Errors, 1)
	assert.Contains(t, failed.Summary.Errors[0], "panicked")
}

func TestOrchestrator_SourceBudgetIsPerSource(t *testing.T) {
	slow := &stubAdapter{
		source: models.SourceNewsAPI,
		search: func(ctx context.Context, query string, _ common.DateWindow) *models.SourceResult {
			result := models.NewSourceResult(models.SourceNewsAPI, query)
			select {
			case <-ctx.Done():
				result.AddError("budget exceeded: " + ctx.Err().Error())
			case <-time.After(5 * time.Second):
				result.Summary.TotalResults = 1
			}
			return result
		},
	}

	orch := NewOrchestrator([]interfaces.SourceAdapter{
		okAdapter(models.SourceBOE, 1),
		slow,
	}, 50*time.Millisecond, arbor.NewLogger())

	results := orch.SearchAll(context.Background(), "empresa", orchestratorWindow(t), nil)

	assert.Equal(t, 1, results[models.SourceBOE].Summary.TotalResults)
	assert.NotEmpty(t, results[models.SourceNewsAPI].Summary.Errors)
}

func TestOrchestrator_UnknownSource(t *testing.T) {
	orch := NewOrchestrator([]interfaces.SourceAdapter{okAdapter(models.SourceBOE, 1)}, time.Second, arbor.NewLogger())

	results := orch.SearchAll(context.Background(), "empresa", orchestratorWindow(t), []models.Source{models.SourceBOE, "GHOST"})

	require.Len(t, results, 2)
	assert.NotEmpty(t, results["GHOST"].Summary.Errors)
	assert.Empty(t, results["GHOST"].Records)
}

func TestOrchestrator_NilAdapterResult(t *testing.T) {
	broken := &stubAdapter{
		source: models.SourceYahoo,
		search: func(_ context.Context, _ string, _ common.DateWindow) *models.SourceResult {
			return nil
		},
	}

	orch := NewOrchestrator([]interfaces.SourceAdapter{broken}, time.Second, arbor.NewLogger())
	results := orch.SearchAll(context.Background(), "empresa", orchestratorWindow(t), nil)

	require.NotNil(t, results[models.SourceYahoo])
	assert.NotEmpty(t, results[models.SourceYahoo].Summary.Errors)
}
