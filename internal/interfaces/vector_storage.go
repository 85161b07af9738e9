package interfaces

import (
	"context"

	"github.com/ternarybob/vigia/internal/models"
)

// VectorBackend is one place vectors can live: the warehouse of record,
// the local index, or the remote vector service. Backends that natively
// return a distance convert it to similarity before returning hits.
type VectorBackend interface {
	Name() string
	Add(ctx context.Context, record *models.VectorRecord) error
	Search(ctx context.Context, queryVector []float32, k int, filter models.VectorFilter) ([]models.VectorHit, error)
}

// VectorStore is the hybrid store that fans writes and reads out across the
// configured backends and merges scored results.
type VectorStore interface {
	Add(ctx context.Context, record *models.VectorRecord) error
	Search(ctx context.Context, queryVector []float32, k int, filter models.VectorFilter) ([]models.VectorHit, error)
	Migrate(ctx context.Context) (*models.MigrateResult, error)

	// Backends names the active storage backends, warehouse first.
	Backends() []string
}
