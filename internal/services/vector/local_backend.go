package vector

import (
	"context"
	"fmt"
	"sort"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigia/internal/interfaces"
	"github.com/ternarybob/vigia/internal/models"
	badgerstore "github.com/ternarybob/vigia/internal/storage/badger"
)

// LocalBackend serves vector search from the Badger index with a brute-force
// cosine scan. It stands in for a real ANN index at the working-set sizes
// this pipeline holds locally.
type LocalBackend struct {
	storage *badgerstore.VectorStorage
	logger  arbor.ILogger
}

// NewLocalBackend creates the local index backend.
func NewLocalBackend(storage *badgerstore.VectorStorage, logger arbor.ILogger) *LocalBackend {
	return &LocalBackend{storage: storage, logger: logger}
}

// Name identifies the backend in logs and merge diagnostics.
func (b *LocalBackend) Name() string {
	return "local"
}

// Add stores the record in the local index.
func (b *LocalBackend) Add(ctx context.Context, record *models.VectorRecord) error {
	return b.storage.Put(ctx, record)
}

// Search scans active records matching the filter and scores them by cosine
// similarity.
func (b *LocalBackend) Search(ctx context.Context, queryVector []float32, k int, filter models.VectorFilter) ([]models.VectorHit, error) {
	records, err := b.storage.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("local vector scan failed: %w", err)
	}

	hits := make([]models.VectorHit, 0, len(records))
	for _, record := range records {
		score := CosineSimilarity(queryVector, record.Vector)
		hits = append(hits, models.VectorHit{
			ID:       record.EventID,
			Score:    score,
			Document: record.TextSummary,
			Metadata: map[string]interface{}{
				"company_name":     record.CompanyName,
				"risk_level":       record.RiskLevel,
				"publication_date": record.PublicationDate,
				"source":           string(record.Source),
				"title":            record.Title,
			},
		})
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Records returns the full active local index, used by migration.
func (b *LocalBackend) Records(ctx context.Context) ([]models.VectorRecord, error) {
	return b.storage.List(ctx, models.VectorFilter{})
}

var _ interfaces.VectorBackend = (*LocalBackend)(nil)
