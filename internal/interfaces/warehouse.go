package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/vigia/internal/models"
)

// Warehouse is the columnar store of record. The write queue owns all table
// mutation; readers use the typed lookups.
type Warehouse interface {
	// Insert bulk-appends rows into a table.
	Insert(ctx context.Context, table string, rows []map[string]interface{}) error

	// Upsert stages rows into an ephemeral table and merges them on the
	// target table's first-column primary key.
	Upsert(ctx context.Context, table string, rows []map[string]interface{}) error

	// CachedEnvelope returns the persisted envelope for a search cache key if
	// one newer than the cutoff exists, or ErrCacheMiss.
	CachedEnvelope(ctx context.Context, key string, since time.Time) (*models.SearchEnvelope, time.Time, error)

	// RecentEvents returns classified events for a company newer than the
	// cutoff, used by the L3 cache tier.
	RecentEvents(ctx context.Context, company string, since time.Time) ([]models.Event, error)

	// ActiveVectors streams active vector rows matching a filter.
	ActiveVectors(ctx context.Context, filter models.VectorFilter, limit int) ([]models.VectorRecord, error)

	// VacuumParsedRawDocs removes parsed raw documents older than the cutoff
	// and returns the number of rows deleted.
	VacuumParsedRawDocs(ctx context.Context, cutoff time.Time) (int64, error)

	// Ping verifies connectivity at startup.
	Ping(ctx context.Context) error

	Close()
}

// WriteQueue is the non-blocking asynchronous warehouse writer.
type WriteQueue interface {
	Enqueue(req *models.WriteRequest) error
	Status() models.QueueStatus
	Flush(ctx context.Context) int
	Stop()
}
