package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigia/internal/common"
	"github.com/ternarybob/vigia/internal/interfaces"
	"github.com/ternarybob/vigia/internal/models"
)

const (
	// TierL1 through TierL3 identify where a cache hit came from.
	TierL1 = "l1_memory"
	TierL2 = "l2_redis"
	TierL3 = "l3_warehouse"

	redisKeyPrefix = "vigia:search:"
)

// Service layers the three cache tiers behind the SearchCache contract. Any
// tier failure is logged and treated as a miss, never surfaced.
type Service struct {
	l1        *L1Cache
	redis     *redis.Client
	redisTTL  time.Duration
	warehouse interfaces.Warehouse
	ageHours  int
	logger    arbor.ILogger
}

// NewService wires the cache tiers. redisClient may be nil (L2 disabled);
// warehouse may be nil (L3 disabled).
func NewService(cfg *common.CacheConfig, redisClient *redis.Client, warehouse interfaces.Warehouse, logger arbor.ILogger) *Service {
	ageHours := cfg.AgeHours
	if ageHours <= 0 {
		ageHours = 24
	}
	return &Service{
		l1:        NewL1Cache(cfg.L1MaxEntries, common.ParseDurationOr(cfg.L1TTL, 5*time.Minute)),
		redis:     redisClient,
		redisTTL:  common.ParseDurationOr(cfg.RedisTTL, time.Hour),
		warehouse: warehouse,
		ageHours:  ageHours,
		logger:    logger,
	}
}

// NewRedisClient builds the L2 client from configuration, or nil when no
// address is configured.
func NewRedisClient(cfg *common.CacheConfig) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	})
}

// Get walks the tiers in order. A hit in a lower tier is promoted upward.
// Each caller receives its own copy of the cached entry; the stored entry
// stays pristine so callers can annotate envelopes without racing each other.
func (s *Service) Get(ctx context.Context, key, company string) (*interfaces.CachedSearch, bool) {
	if cached, ok := s.l1.Get(key); ok {
		return cloneCached(cached.(*interfaces.CachedSearch), TierL1), true
	}

	if hit := s.getRedis(ctx, key); hit != nil {
		s.l1.Set(key, hit)
		return cloneCached(hit, TierL2), true
	}

	if hit := s.getWarehouse(ctx, key, company); hit != nil {
		s.l1.Set(key, hit)
		s.setRedis(ctx, key, hit)
		return cloneCached(hit, TierL3), true
	}

	return nil, false
}

// cloneCached returns a per-caller copy of a cache entry with a fresh
// envelope value, tagged with the tier the hit came from.
func cloneCached(cached *interfaces.CachedSearch, tier string) *interfaces.CachedSearch {
	clone := &interfaces.CachedSearch{
		CachedAt: cached.CachedAt,
		Tier:     tier,
	}
	if cached.Envelope != nil {
		envelope := *cached.Envelope
		clone.Envelope = &envelope
	}
	return clone
}

// Set writes the envelope into the L1 and L2 tiers. The L3 tier is the
// warehouse itself, populated by the write queue.
func (s *Service) Set(ctx context.Context, key string, envelope *models.SearchEnvelope) {
	cached := &interfaces.CachedSearch{
		Envelope: envelope,
		CachedAt: time.Now().Format(time.RFC3339),
	}
	s.l1.Set(key, cached)
	s.setRedis(ctx, key, cached)
}

// Invalidate drops the key from the L1 and L2 tiers.
func (s *Service) Invalidate(ctx context.Context, key string) {
	s.l1.Delete(key)
	if s.redis != nil {
		if err := s.redis.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("Redis invalidation failed")
		}
	}
}

// getRedis reads the L2 tier. Failures are logged and become misses.
func (s *Service) getRedis(ctx context.Context, key string) *interfaces.CachedSearch {
	if s.redis == nil {
		return nil
	}

	payload, err := s.redis.Get(ctx, redisKeyPrefix+key).Bytes()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("Redis read failed, treating as miss")
		return nil
	}

	var cached interfaces.CachedSearch
	if err := json.Unmarshal(payload, &cached); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("Corrupt Redis cache entry, treating as miss")
		return nil
	}
	return &cached
}

// setRedis writes the L2 tier. Failures are logged and ignored.
func (s *Service) setRedis(ctx context.Context, key string, cached *interfaces.CachedSearch) {
	if s.redis == nil {
		return
	}

	payload, err := json.Marshal(cached)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("Failed to encode cache entry")
		return
	}
	if err := s.redis.Set(ctx, redisKeyPrefix+key, payload, s.redisTTL).Err(); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("Redis write failed")
	}
}

// getWarehouse reads the L3 tier: a persisted envelope for the exact cache
// key when one is fresh enough, otherwise an envelope reconstituted from
// recent events for the company.
func (s *Service) getWarehouse(ctx context.Context, key, company string) *interfaces.CachedSearch {
	if s.warehouse == nil || company == "" {
		return nil
	}

	since := time.Now().Add(-time.Duration(s.ageHours) * time.Hour)

	persisted, cachedAt, err := s.warehouse.CachedEnvelope(ctx, key, since)
	if err == nil {
		return &interfaces.CachedSearch{
			Envelope: persisted,
			CachedAt: cachedAt.Format(time.RFC3339),
		}
	}
	if !errors.Is(err, interfaces.ErrCacheMiss) {
		s.logger.Warn().Err(err).Str("key", key).Msg("Warehouse envelope lookup failed, trying recent events")
	}

	events, err := s.warehouse.RecentEvents(ctx, company, since)
	if err != nil {
		s.logger.Warn().Err(err).Str("company", company).Msg("Warehouse cache lookup failed, treating as miss")
		return nil
	}
	if len(events) == 0 {
		return nil
	}

	envelope := EnvelopeFromEvents(company, events)
	return &interfaces.CachedSearch{
		Envelope: envelope,
		CachedAt: time.Now().Format(time.RFC3339),
	}
}

// EnvelopeFromEvents rebuilds a search envelope from persisted events.
func EnvelopeFromEvents(company string, events []models.Event) *models.SearchEnvelope {
	results := make([]models.ResultItem, 0, len(events))
	riskSummary := map[string]int{}
	overall := models.ColorGreen

	for _, e := range events {
		confidence := 0.0
		if e.Confidence != nil {
			confidence = *e.Confidence
		}
		color := e.RiskColor()
		results = append(results, models.ResultItem{
			EventID:    e.EventID,
			Source:     e.Source,
			Title:      e.Title,
			Text:       e.Text,
			URL:        e.URL,
			Section:    e.Section,
			PubDate:    e.PubDate,
			RiskLabel:  e.RiskLabel,
			RiskColor:  color,
			Confidence: confidence,
			Rationale:  e.Rationale,
			Method:     e.ClassificationMethod,
		})
		riskSummary[string(e.RiskLabel)]++
		overall = models.WorseColor(overall, color)
	}

	return &models.SearchEnvelope{
		CompanyName: company,
		SearchDate:  time.Now().Format(time.RFC3339),
		Results:     results,
		Metadata:    map[string]*models.SourceSummary{},
		OverallRisk: overall,
		RiskSummary: riskSummary,
	}
}

var _ interfaces.SearchCache = (*Service)(nil)
