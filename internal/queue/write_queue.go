package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigia/internal/common"
	"github.com/ternarybob/vigia/internal/interfaces"
	"github.com/ternarybob/vigia/internal/models"
)

const (
	// DefaultTickInterval is how often the worker drains pending writes.
	DefaultTickInterval = 5 * time.Second

	// DefaultMaxPending bounds the in-memory backlog.
	DefaultMaxPending = 10000

	// drainTimeout bounds one warehouse write during a drain.
	drainTimeout = 30 * time.Second
)

// WriteQueue buffers warehouse writes and drains them from a single
// background worker on a fixed tick. Enqueue never blocks on the warehouse;
// a full backlog rejects the request instead. Failed writes are logged and
// dropped, they are not retried.
type WriteQueue struct {
	warehouse  interfaces.Warehouse
	logger     arbor.ILogger
	tick       time.Duration
	maxPending int

	mu      sync.Mutex
	pending []*models.WriteRequest
	stopped bool

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewWriteQueue creates the queue and starts its worker.
func NewWriteQueue(warehouse interfaces.Warehouse, cfg *common.QueueConfig, logger arbor.ILogger) *WriteQueue {
	tick := common.ParseDurationOr(cfg.TickInterval, DefaultTickInterval)
	maxPending := cfg.MaxPending
	if maxPending <= 0 {
		maxPending = DefaultMaxPending
	}

	q := &WriteQueue{
		warehouse:  warehouse,
		logger:     logger,
		tick:       tick,
		maxPending: maxPending,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
	go q.worker()

	logger.Info().
		Dur("tick", tick).
		Int("max_pending", maxPending).
		Msg("Write queue started")
	return q
}

// Enqueue adds a request to the backlog.
func (q *WriteQueue) Enqueue(req *models.WriteRequest) error {
	if req == nil || len(req.Rows) == 0 {
		return nil
	}
	if req.RequestID == "" {
		req.RequestID = common.NewRequestID()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now()
	}
	if req.Priority < models.PriorityHigh || req.Priority > models.PriorityLow {
		req.Priority = models.PriorityNormal
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped {
		return interfaces.ErrQueueStopped
	}
	if len(q.pending) >= q.maxPending {
		q.logger.Warn().
			Str("table", req.Table).
			Int("pending", len(q.pending)).
			Msg("Write queue is full, rejecting request")
		return interfaces.ErrQueueFull
	}

	q.pending = append(q.pending, req)
	return nil
}

// Status returns a snapshot of the backlog.
func (q *WriteQueue) Status() models.QueueStatus {
	q.mu.Lock()
	defer q.mu.Unlock()

	status := models.QueueStatus{
		Pending:    len(q.pending),
		ByPriority: map[int]int{},
		ByTable:    map[string]int{},
	}
	for _, req := range q.pending {
		status.ByPriority[req.Priority]++
		status.ByTable[req.Table]++
	}
	return status
}

// Flush drains the backlog immediately and returns the number of requests
// written.
func (q *WriteQueue) Flush(ctx context.Context) int {
	return q.drain(ctx)
}

// Stop drains the remaining backlog and shuts the worker down.
func (q *WriteQueue) Stop() {
	q.stopOnce.Do(func() {
		q.mu.Lock()
		q.stopped = true
		q.mu.Unlock()

		close(q.stopCh)
		<-q.doneCh

		written := q.drain(context.Background())
		q.logger.Info().Int("final_writes", written).Msg("Write queue stopped")
	})
}

// worker drains the backlog on every tick until stopped.
func (q *WriteQueue) worker() {
	defer close(q.doneCh)

	ticker := time.NewTicker(q.tick)
	defer ticker.Stop()

	for {
		select {
		case <-q.stopCh:
			return
		case <-ticker.C:
			q.drain(context.Background())
		}
	}
}

// drain takes the whole backlog and writes it in priority order, FIFO within
// each priority class. Write failures are logged and the request dropped.
func (q *WriteQueue) drain(ctx context.Context) int {
	q.mu.Lock()
	batch := q.pending
	q.pending = nil
	q.mu.Unlock()

	if len(batch) == 0 {
		return 0
	}

	sort.SliceStable(batch, func(i, j int) bool {
		return batch[i].Priority < batch[j].Priority
	})

	written := 0
	for _, req := range batch {
		if err := q.write(ctx, req); err != nil {
			q.logger.Error().
				Err(err).
				Str("request_id", req.RequestID).
				Str("table", req.Table).
				Str("operation", string(req.Operation)).
				Int("rows", len(req.Rows)).
				Msg("Warehouse write failed, dropping request")
			continue
		}
		written++
	}

	q.logger.Debug().
		Int("requests", len(batch)).
		Int("written", written).
		Msg("Write queue drained")
	return written
}

// write dispatches one request to the warehouse with the bookkeeping
// timestamps filled in.
func (q *WriteQueue) write(ctx context.Context, req *models.WriteRequest) error {
	writeCtx, cancel := context.WithTimeout(ctx, drainTimeout)
	defer cancel()

	now := time.Now()
	for _, row := range req.Rows {
		if _, ok := row["created_at"]; !ok {
			row["created_at"] = now
		}
		row["updated_at"] = now
	}

	if req.Operation == models.OpUpsert {
		return q.warehouse.Upsert(writeCtx, req.Table, req.Rows)
	}
	return q.warehouse.Insert(writeCtx, req.Table, req.Rows)
}

var _ interfaces.WriteQueue = (*WriteQueue)(nil)
