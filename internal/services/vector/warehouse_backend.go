package vector

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigia/internal/interfaces"
	"github.com/ternarybob/vigia/internal/models"
)

// warehouseScanLimit bounds how many candidate rows one search pulls out of
// the warehouse before scoring.
const warehouseScanLimit = 2000

// WarehouseBackend reads and writes vector rows in the store of record.
// Writes go through the write queue at high priority; reads score candidate
// rows in process.
type WarehouseBackend struct {
	warehouse interfaces.Warehouse
	queue     interfaces.WriteQueue
	logger    arbor.ILogger
}

// NewWarehouseBackend creates the warehouse vector backend.
func NewWarehouseBackend(warehouse interfaces.Warehouse, queue interfaces.WriteQueue, logger arbor.ILogger) *WarehouseBackend {
	return &WarehouseBackend{warehouse: warehouse, queue: queue, logger: logger}
}

// Name identifies the backend in logs and merge diagnostics.
func (b *WarehouseBackend) Name() string {
	return "warehouse"
}

// Add enqueues the record as a high-priority upsert.
func (b *WarehouseBackend) Add(ctx context.Context, record *models.VectorRecord) error {
	if record.Dimension == 0 {
		record.Dimension = len(record.Vector)
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	row := map[string]interface{}{
		"event_id":          record.EventID,
		"vector":            models.EncodeVector(record.Vector),
		"vector_dimension":  record.Dimension,
		"embedding_model":   record.EmbeddingModel,
		"vector_created_at": record.CreatedAt,
		"is_active":         record.IsActive,
		"company_name":      record.CompanyName,
		"risk_level":        record.RiskLevel,
		"publication_date":  record.PublicationDate,
		"source":            string(record.Source),
		"title":             record.Title,
		"text_summary":      record.TextSummary,
	}

	return b.queue.Enqueue(&models.WriteRequest{
		Table:     "vectors",
		Rows:      []map[string]interface{}{row},
		Operation: models.OpUpsert,
		Priority:  models.PriorityHigh,
	})
}

// Search pulls candidate rows matching the filter and scores them by cosine
// similarity.
func (b *WarehouseBackend) Search(ctx context.Context, queryVector []float32, k int, filter models.VectorFilter) ([]models.VectorHit, error) {
	records, err := b.warehouse.ActiveVectors(ctx, filter, warehouseScanLimit)
	if err != nil {
		return nil, fmt.Errorf("warehouse vector scan failed: %w", err)
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

var _ interfaces.VectorBackend = (*WarehouseBackend)(nil)
