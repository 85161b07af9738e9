package vector

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigia/internal/interfaces"
	"github.com/ternarybob/vigia/internal/models"
)

// Store is the hybrid vector store. Writes fan out to every backend but
// succeed iff the warehouse write succeeds; reads fan out in parallel and
// merge by id keeping the best score.
type Store struct {
	warehouse interfaces.VectorBackend
	local     *LocalBackend
	remote    interfaces.VectorBackend // may be nil
	logger    arbor.ILogger
}

// NewStore wires the hybrid store. local and remote may be nil.
func NewStore(warehouse interfaces.VectorBackend, local *LocalBackend, remote interfaces.VectorBackend, logger arbor.ILogger) *Store {
	return &Store{
		warehouse: warehouse,
		local:     local,
		remote:    remote,
		logger:    logger,
	}
}

// backends returns the active read backends.
func (s *Store) backends() []interfaces.VectorBackend {
	active := []interfaces.VectorBackend{s.warehouse}
	if s.local != nil {
		active = append(active, s.local)
	}
	if s.remote != nil {
		active = append(active, s.remote)
	}
	return active
}

// Backends returns the names of the active backends, warehouse first.
func (s *Store) Backends() []string {
	backends := s.backends()
	names := make([]string, len(backends))
	for i, b := range backends {
		names[i] = b.Name()
	}
	return names
}

// Add writes the record everywhere. The warehouse write decides success;
// secondary backend failures are logged and swallowed.
func (s *Store) Add(ctx context.Context, record *models.VectorRecord) error {
	if record.Dimension == 0 {
		record.Dimension = len(record.Vector)
	}
	if len(record.TextSummary) > models.MaxTextSummaryLen {
		record.TextSummary = record.TextSummary[:models.MaxTextSummaryLen]
	}
	record.IsActive = true

	if err := s.warehouse.Add(ctx, record); err != nil {
		return fmt.Errorf("warehouse vector write failed: %w", err)
	}

	if s.local != nil {
		if err := s.local.Add(ctx, record); err != nil {
			s.logger.Warn().Err(err).Str("event_id", record.EventID).Msg("Local vector write failed")
		}
	}
	if s.remote != nil {
		if err := s.remote.Add(ctx, record); err != nil {
			s.logger.Warn().Err(err).Str("event_id", record.EventID).Msg("Remote vector write failed")
		}
	}
	return nil
}

// Search fans the query out to every backend in parallel, merges hits by id
// keeping the maximum score, and returns the global top k. A backend error
// degrades that backend only.
func (s *Store) Search(ctx context.Context, queryVector []float32, k int, filter models.VectorFilter) ([]models.VectorHit, error) {
	backends := s.backends()

	type backendHits struct {
		name string
		hits []models.VectorHit
		err  error
	}

	results := make([]backendHits, len(backends))
	var wg sync.WaitGroup
	for i, backend := range backends {
		wg.Add(1)
		go func(i int, backend interfaces.VectorBackend) {
			defer wg.Done()
			hits, err := backend.Search(ctx, queryVector, k, filter)
			results[i] = backendHits{name: backend.Name(), hits: hits, err: err}
		}(i, backend)
	}
	wg.Wait()

	merged := map[string]models.VectorHit{}
	failures := 0
	for _, result := range results {
		if result.err != nil {
			failures++
			s.logger.Warn().Err(result.err).Str("backend", result.name).Msg("Vector backend search failed")
			continue
		}
		for _, hit := range result.hits {
			if existing, ok := merged[hit.ID]; !ok || hit.Score > existing.Score {
				merged[hit.ID] = hit
			}
		}
	}
	if failures == len(backends) {
		return nil, fmt.Errorf("all %d vector backends failed", len(backends))
	}

	hits := make([]models.VectorHit, 0, len(merged))
	for _, hit := range merged {
		hits = append(hits, hit)
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Migrate copies every active local record into the warehouse backend and
// reports the counts.
func (s *Store) Migrate(ctx context.Context) (*models.MigrateResult, error) {
	if s.local == nil {
		return nil, fmt.Errorf("local vector index is not enabled")
	}

	records, err := s.local.Records(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read local vector index: %w", err)
	}

	result := &models.MigrateResult{Total: len(records)}
	for i := range records {
		if err := s.warehouse.Add(ctx, &records[i]); err != nil {
			result.Failed++
			s.logger.Warn().Err(err).Str("event_id", records[i].EventID).Msg("Vector migration failed for record")
			continue
		}
		result.Migrated++
	}

	s.logger.Info().
		Int("total", result.Total).
		Int("migrated", result.Migrated).
		Int("failed", result.Failed).
		Msg("Vector migration completed")
	return result, nil
}

var _ interfaces.VectorStore = (*Store)(nil)
