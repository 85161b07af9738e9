package models

import (
	"time"
)

// WriteOperation selects how rows reach the warehouse.
type WriteOperation string

const (
	OpInsert WriteOperation = "insert"
	OpUpsert WriteOperation = "upsert"
)

// Write priorities. Lower numbers drain first within one tick.
const (
	PriorityHigh   = 1
	PriorityNormal = 2
	PriorityLow    = 3
)

// WriteRequest is one unit of work for the background warehouse writer.
// Rows are column-name keyed maps; for upserts the first column of the
// target table is the merge key.
type WriteRequest struct {
	RequestID string                   `json:"request_id"`
	Table     string                   `json:"table"`
	Rows      []map[string]interface{} `json:"rows"`
	Operation WriteOperation           `json:"operation"`
	Priority  int                      `json:"priority"`
	CreatedAt time.Time                `json:"created_at"`
}

// QueueStatus is a read-only snapshot of the writer's pending work.
type QueueStatus struct {
	Pending    int            `json:"pending"`
	ByPriority map[int]int    `json:"by_priority"`
	ByTable    map[string]int `json:"by_table"`
}
