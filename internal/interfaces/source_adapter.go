package interfaces

import (
	"context"

	"github.com/ternarybob/vigia/internal/common"
	"github.com/ternarybob/vigia/internal/models"
)

// SourceAdapter normalizes one public source behind a uniform search. The
// window is already resolved to an inclusive day range. Implementations
// never return an error for per-item or transport failures; those are
// captured in the result summary so one source cannot abort a search.
type SourceAdapter interface {
	// Source returns the adapter's identity tag.
	Source() models.Source

	// Search fetches records matching the query inside the window.
	Search(ctx context.Context, query string, window common.DateWindow) *models.SourceResult
}

// Orchestrator fans a query out to a set of adapters concurrently with
// per-source isolation.
type Orchestrator interface {
	SearchAll(ctx context.Context, query string, window common.DateWindow, activeSources []models.Source) map[models.Source]*models.SourceResult
	Sources() []models.Source
}
