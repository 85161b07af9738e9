package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigia/internal/interfaces"
	"github.com/ternarybob/vigia/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// VectorStorage persists vector records in the local Badger index, keyed by
// event ID. It is the staging ground the migrate operation drains into the
// warehouse.
type VectorStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewVectorStorage creates a new VectorStorage instance
func NewVectorStorage(db *BadgerDB, logger arbor.ILogger) *VectorStorage {
	return &VectorStorage{
		db:     db,
		logger: logger,
	}
}

// Put inserts or replaces a vector record.
func (s *VectorStorage) Put(ctx context.Context, record *models.VectorRecord) error {
	if record.EventID == "" {
		return fmt.Errorf("vector record requires an event id")
	}
	if err := s.db.Store().Upsert(record.EventID, record); err != nil {
		return fmt.Errorf("failed to store vector record: %w", err)
	}
	return nil
}

// Get retrieves a vector record by event ID.
func (s *VectorStorage) Get(ctx context.Context, eventID string) (*models.VectorRecord, error) {
	var record models.VectorRecord
	err := s.db.Store().Get(eventID, &record)
	if err == badgerhold.ErrNotFound {
		return nil, interfaces.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get vector record: %w", err)
	}
	return &record, nil
}

// List returns all active vector records matching the filter. The scan is
// brute force; the local index is a bounded working set, not the store of
// record.
func (s *VectorStorage) List(ctx context.Context, filter models.VectorFilter) ([]models.VectorRecord, error) {
	var records []models.VectorRecord
	query := badgerhold.Where("IsActive").Eq(true)
	if filter.CompanyName != "" {
		query = query.And("CompanyName").Eq(filter.CompanyName)
	}
	if filter.RiskLevel != "" {
		query = query.And("RiskLevel").Eq(filter.RiskLevel)
	}
	if filter.Source != "" {
		query = query.And("Source").Eq(models.Source(filter.Source))
	}

	if err := s.db.Store().Find(&records, query); err != nil {
		return nil, fmt.Errorf("failed to list vector records: %w", err)
	}
	return records, nil
}

// Deactivate soft-deletes a vector record.
func (s *VectorStorage) Deactivate(ctx context.Context, eventID string) error {
	record, err := s.Get(ctx, eventID)
	if err != nil {
		return err
	}
	record.IsActive = false
	return s.Put(ctx, record)
}

// Count returns the number of active vector records.
func (s *VectorStorage) Count(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.VectorRecord{}, badgerhold.Where("IsActive").Eq(true))
	if err != nil {
		return 0, fmt.Errorf("failed to count vector records: %w", err)
	}
	return int(count), nil
}
