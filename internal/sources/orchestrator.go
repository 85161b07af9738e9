package sources

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigia/internal/common"
	"github.com/ternarybob/vigia/internal/interfaces"
	"github.com/ternarybob/vigia/internal/models"
)

// Orchestrator fans a search out to the registered adapters, one goroutine
// per source, each under its own time budget. A panicking or slow adapter
// degrades its own entry and never takes the search down.
type Orchestrator struct {
	adapters     map[models.Source]interfaces.SourceAdapter
	sourceBudget time.Duration
	logger       arbor.ILogger
}

// NewOrchestrator builds an orchestrator over the given adapters.
func NewOrchestrator(adapters []interfaces.SourceAdapter, sourceBudget time.Duration, logger arbor.ILogger) *Orchestrator {
	if sourceBudget <= 0 {
		sourceBudget = 15 * time.Second
	}
	bysource := make(map[models.Source]interfaces.SourceAdapter, len(adapters))
	for _, adapter := range adapters {
		bysource[adapter.Source()] = adapter
	}
	return &Orchestrator{
		adapters:     bysource,
		sourceBudget: sourceBudget,
		logger:       logger,
	}
}

// Sources returns the registered source tags.
func (o *Orchestrator) Sources() []models.Source {
	sources := make([]models.Source, 0, len(o.adapters))
	for source := range o.adapters {
		sources = append(sources, source)
	}
	return sources
}

// SearchAll queries the requested sources concurrently and returns one
// result per source. Unknown sources get an error-only entry.
func (o *Orchestrator) SearchAll(ctx context.Context, query string, window common.DateWindow, activeSources []models.Source) map[models.Source]*models.SourceResult {
	if len(activeSources) == 0 {
		activeSources = o.Sources()
	}

	results := make(map[models.Source]*models.SourceResult, len(activeSources))
	var mu sync.Mutex
	var wg sync.WaitGroup

	start := time.Now()
	for _, source := range activeSources {
		adapter, ok := o.adapters[source]
		if !ok {
			missing := models.NewSourceResult(source, query)
			missing.AddError("no adapter registered for source")
			results[source] = missing
			continue
		}

		wg.Add(1)
		go func(source models.Source, adapter interfaces.SourceAdapter) {
			defer wg.Done()
			result := o.searchOne(ctx, adapter, query, window)
			mu.Lock()
			results[source] = result
			mu.Unlock()
		}(source, adapter)
	}
	wg.Wait()

	total := 0
	for _, result := range results {
		total += result.Summary.TotalResults
	}
	o.logger.Info().
		Str("query", query).
		Int("sources", len(results)).
		Int("total_results", total).
		Dur("duration", time.Since(start)).
		Msg("Source orchestration completed")

	return results
}

// searchOne runs a single adapter under its time budget with panic recovery.
func (o *Orchestrator) searchOne(ctx context.Context, adapter interfaces.SourceAdapter, query string, window common.DateWindow) (result *models.SourceResult) {
	source := adapter.Source()

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error().
				Str("source", string(source)).
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("Source adapter panicked")
			result = models.NewSourceResult(source, query)
			result.AddError(fmt.Sprintf("adapter panicked: %v", r))
		}
	}()

	budgetCtx, cancel := context.WithTimeout(ctx, o.sourceBudget)
	defer cancel()

	result = adapter.Search(budgetCtx, query, window)
	if result == nil {
		result = models.NewSourceResult(source, query)
		result.AddError("adapter returned no result")
	}
	return result
}

var _ interfaces.Orchestrator = (*Orchestrator)(nil)
