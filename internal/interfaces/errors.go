package interfaces

import "errors"

// Sentinel errors shared across service boundaries.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrCacheMiss is returned by cache tiers when no fresh entry exists.
	ErrCacheMiss = errors.New("cache miss")

	// ErrQueueFull is returned when the write queue rejects new work.
	ErrQueueFull = errors.New("write queue is full")

	// ErrQueueStopped is returned when enqueueing after shutdown.
	ErrQueueStopped = errors.New("write queue is stopped")

	// ErrInvalidReply is returned when a remote LLM reply fails the schema
	// contract. It is never retried.
	ErrInvalidReply = errors.New("invalid LLM reply")
)
