package queue

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigia/internal/common"
	"github.com/ternarybob/vigia/internal/interfaces"
	"github.com/ternarybob/vigia/internal/models"
)

// recordedWrite captures one warehouse call in arrival order.
type recordedWrite struct {
	op    models.WriteOperation
	table string
	rows  []map[string]interface{}
}

// captureWarehouse records writes and can be scripted to fail per table.
type captureWarehouse struct {
	mu      sync.Mutex
	writes  []recordedWrite
	failFor map[string]error
}

func (w *captureWarehouse) record(op models.WriteOperation, table string, rows []map[string]interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err, ok := w.failFor[table]; ok {
		return err
	}
	w.writes = append(w.writes, recordedWrite{op: op, table: table, rows: rows})
	return nil
}

func (w *captureWarehouse) Insert(ctx context.Context, table string, rows []map[string]interface{}) error {
	return w.record(models.OpInsert, table, rows)
}

func (w *captureWarehouse) Upsert(ctx context.Context, table string, rows []map[string]interface{}) error {
	return w.record(models.OpUpsert, table, rows)
}

func (w *captureWarehouse) CachedEnvelope(ctx context.Context, key string, since time.Time) (*models.SearchEnvelope, time.Time, error) {
	return nil, time.Time{}, interfaces.ErrCacheMiss
}

func (w *captureWarehouse) RecentEvents(ctx context.Context, company string, since time.Time) ([]models.Event, error) {
	return nil, nil
}

func (w *captureWarehouse) ActiveVectors(ctx context.Context, filter models.VectorFilter, limit int) ([]models.VectorRecord, error) {
	return nil, nil
}

func (w *captureWarehouse) VacuumParsedRawDocs(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func (w *captureWarehouse) Ping(ctx context.Context) error { return nil }
func (w *captureWarehouse) Close()                         {}

func (w *captureWarehouse) tables() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	tables := make([]string, 0, len(w.writes))
	for _, write := range w.writes {
		tables = append(tables, write.table)
	}
	return tables
}

// slowTickConfig keeps the background worker out of the way so tests drive
// drains explicitly through Flush.
func slowTickConfig() *common.QueueConfig {
	return &common.QueueConfig{TickInterval: "1h", MaxPending: 100}
}

func request(table string, priority int, rows int) *models.WriteRequest {
	reqRows := make([]map[string]interface{}, rows)
	for i := range reqRows {
		reqRows[i] = map[string]interface{}{"id": i}
	}
	return &models.WriteRequest{
		Table:     table,
		Rows:      reqRows,
		Operation: models.OpInsert,
		Priority:  priority,
	}
}

func TestWriteQueue_DrainsByPriorityFIFO(t *testing.T) {
	wh := &captureWarehouse{}
	q := NewWriteQueue(wh, slowTickConfig(), arbor.NewLogger())
	defer q.Stop()

	// Enqueue out of priority order, two entries at normal priority to
	// check FIFO within a class.
	require.NoError(t, q.Enqueue(request("raw_docs", models.PriorityLow, 1)))
	require.NoError(t, q.Enqueue(request("events_a", models.PriorityNormal, 1)))
	require.NoError(t, q.Enqueue(request("vectors", models.PriorityHigh, 1)))
	require.NoError(t, q.Enqueue(request("events_b", models.PriorityNormal, 1)))

	written := q.Flush(context.Background())
	assert.Equal(t, 4, written)
	assert.Equal(t, []string{"vectors", "events_a", "events_b", "raw_docs"}, wh.tables())
}

func TestWriteQueue_EnqueueDefaults(t *testing.T) {
	wh := &captureWarehouse{}
	q := NewWriteQueue(wh, slowTickConfig(), arbor.NewLogger())
	defer q.Stop()

	req := &models.WriteRequest{
		Table:     "events",
		Rows:      []map[string]interface{}{{"event_id": "x"}},
		Operation: models.OpUpsert,
		Priority:  99,
	}
	require.NoError(t, q.Enqueue(req))

	assert.True(t, strings.HasPrefix(req.RequestID, "wr_"))
	assert.Equal(t, models.PriorityNormal, req.Priority)
	assert.False(t, req.CreatedAt.IsZero())
}

func TestWriteQueue_EmptyRequestIsIgnored(t *testing.T) {
	wh := &captureWarehouse{}
	q := NewWriteQueue(wh, slowTickConfig(), arbor.NewLogger())
	defer q.Stop()

	require.NoError(t, q.Enqueue(nil))
	require.NoError(t, q.Enqueue(&models.WriteRequest{Table: "events"}))

	assert.Equal(t, 0, q.Status().Pending)
}

func TestWriteQueue_Status(t *testing.T) {
	wh := &captureWarehouse{}
	q := NewWriteQueue(wh, slowTickConfig(), arbor.NewLogger())
	defer q.Stop()

	require.NoError(t, q.Enqueue(request("vectors", models.PriorityHigh, 1)))
	require.NoError(t, q.Enqueue(request("events", models.PriorityNormal, 2)))
	require.NoError(t, q.Enqueue(request("events", models.PriorityNormal, 1)))

	status := q.Status()
	assert.Equal(t, 3, status.Pending)
	assert.Equal(t, 1, status.ByPriority[models.PriorityHigh])
	assert.Equal(t, 2, status.ByPriority[models.PriorityNormal])
	assert.Equal(t, 2, status.ByTable["events"])
	assert.Equal(t, 1, status.ByTable["vectors"])
}

func TestWriteQueue_FullBacklogRejects(t *testing.T) {
	wh := &captureWarehouse{}
	q := NewWriteQueue(wh, &common.QueueConfig{TickInterval: "1h", MaxPending: 2}, arbor.NewLogger())
	defer q.Stop()

	require.NoError(t, q.Enqueue(request("events", models.PriorityNormal, 1)))
	require.NoError(t, q.Enqueue(request("events", models.PriorityNormal, 1)))

	err := q.Enqueue(request("events", models.PriorityNormal, 1))
	assert.ErrorIs(t, err, interfaces.ErrQueueFull)
}

func TestWriteQueue_StopDrainsAndRejects(t *testing.T) {
	wh := &captureWarehouse{}
	q := NewWriteQueue(wh, slowTickConfig(), arbor.NewLogger())

	require.NoError(t, q.Enqueue(request("events", models.PriorityNormal, 1)))
	q.Stop()

	assert.Equal(t, []string{"events"}, wh.tables())

	err := q.Enqueue(request("events", models.PriorityNormal, 1))
	assert.ErrorIs(t, err, interfaces.ErrQueueStopped)
}

func TestWriteQueue_FailedWriteIsDropped(t *testing.T) {
	wh := &captureWarehouse{failFor: map[string]error{"raw_docs": errors.New("merge failed")}}
	q := NewWriteQueue(wh, slowTickConfig(), arbor.NewLogger())
	defer q.Stop()

	require.NoError(t, q.Enqueue(request("raw_docs", models.PriorityLow, 1)))
	require.NoError(t, q.Enqueue(request("events", models.PriorityNormal, 1)))

	written := q.Flush(context.Background())
	assert.Equal(t, 1, written)
	assert.Equal(t, []string{"events"}, wh.tables())

	// The failed request is not retried on the next drain.
	assert.Equal(t, 0, q.Flush(context.Background()))
}

func TestWriteQueue_WriteStampsTimestamps(t *testing.T) {
	wh := &captureWarehouse{}
	q := NewWriteQueue(wh, slowTickConfig(), arbor.NewLogger())
	defer q.Stop()

	require.NoError(t, q.Enqueue(request("events", models.PriorityNormal, 1)))
	q.Flush(context.Background())

	require.Len(t, wh.writes, 1)
	row := wh.writes[0].rows[0]
	assert.Contains(t, row, "created_at")
	assert.Contains(t, row, "updated_at")
}
