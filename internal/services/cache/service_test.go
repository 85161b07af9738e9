package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigia/internal/common"
	"github.com/ternarybob/vigia/internal/interfaces"
	"github.com/ternarybob/vigia/internal/models"
)

// fakeWarehouse is a minimal L3 backend for cache tests.
type fakeWarehouse struct {
	envelope   *models.SearchEnvelope
	envelopeAt time.Time
	events     []models.Event
	err        error
	calls      int
}

func (f *fakeWarehouse) CachedEnvelope(ctx context.Context, key string, since time.Time) (*models.SearchEnvelope, time.Time, error) {
	if f.envelope == nil {
		return nil, time.Time{}, interfaces.ErrCacheMiss
	}
	return f.envelope, f.envelopeAt, nil
}

func (f *fakeWarehouse) Insert(ctx context.Context, table string, rows []map[string]interface{}) error {
	return nil
}

func (f *fakeWarehouse) Upsert(ctx context.Context, table string, rows []map[string]interface{}) error {
	return nil
}

func (f *fakeWarehouse) RecentEvents(ctx context.Context, company string, since time.Time) ([]models.Event, error) {
	f.calls++
	return f.events, f.err
}

func (f *fakeWarehouse) ActiveVectors(ctx context.Context, filter models.VectorFilter, limit int) ([]models.VectorRecord, error) {
	return nil, nil
}

func (f *fakeWarehouse) VacuumParsedRawDocs(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func (f *fakeWarehouse) Ping(ctx context.Context) error { return nil }
func (f *fakeWarehouse) Close()                         {}

func testCacheConfig(redisAddr string) *common.CacheConfig {
	return &common.CacheConfig{
		L1MaxEntries: 100,
		L1TTL:        "5m",
		RedisAddr:    redisAddr,
		RedisTTL:     "1h",
		AgeHours:     24,
	}
}

func testEnvelope(company string) *models.SearchEnvelope {
	return &models.SearchEnvelope{
		CompanyName: company,
		SearchDate:  time.Now().Format(time.RFC3339),
		OverallRisk: models.ColorGreen,
		RiskSummary: map[string]int{},
	}
}

func TestService_L1HitAfterSet(t *testing.T) {
	svc := NewService(testCacheConfig(""), nil, nil, arbor.NewLogger())
	ctx := context.Background()

	svc.Set(ctx, "key-1", testEnvelope("Acme"))

	hit, ok := svc.Get(ctx, "key-1", "Acme")
	require.True(t, ok)
	assert.Equal(t, TierL1, hit.Tier)
	assert.Equal(t, "Acme", hit.Envelope.CompanyName)
}

func TestService_HitsReturnIndependentEnvelopes(t *testing.T) {
	svc := NewService(testCacheConfig(""), nil, nil, arbor.NewLogger())
	ctx := context.Background()

	svc.Set(ctx, "key-warm", testEnvelope("Acme"))

	first, ok := svc.Get(ctx, "key-warm", "Acme")
	require.True(t, ok)
	second, ok := svc.Get(ctx, "key-warm", "Acme")
	require.True(t, ok)

	require.NotSame(t, first, second)
	require.NotSame(t, first.Envelope, second.Envelope)

	// Annotating one caller's envelope must not leak into another's.
	first.Envelope.CacheInfo = models.CacheInfo{SearchMethod: "cached", CacheTier: first.Tier}
	first.Envelope.Performance.TotalTimeSeconds = 1.5
	first.Tier = "scribbled"

	assert.Empty(t, second.Envelope.CacheInfo.SearchMethod)
	assert.Zero(t, second.Envelope.Performance.TotalTimeSeconds)
	assert.Equal(t, TierL1, second.Tier)
}

func TestService_MissWithoutTiers(t *testing.T) {
	svc := NewService(testCacheConfig(""), nil, nil, arbor.NewLogger())

	_, ok := svc.Get(context.Background(), "nothing", "Acme")
	assert.False(t, ok)
}

func TestService_L2HitPromotesToL1(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	svc := NewService(testCacheConfig(mr.Addr()), client, nil, arbor.NewLogger())
	ctx := context.Background()

	svc.Set(ctx, "key-2", testEnvelope("Iberia"))
	// Drop L1 so the next read has to come from Redis.
	svc.l1.Delete("key-2")

	hit, ok := svc.Get(ctx, "key-2", "Iberia")
	require.True(t, ok)
	assert.Equal(t, TierL2, hit.Tier)

	// Promoted: the next read is an L1 hit.
	hit, ok = svc.Get(ctx, "key-2", "Iberia")
	require.True(t, ok)
	assert.Equal(t, TierL1, hit.Tier)
}

func TestService_RedisDownIsAMiss(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	svc := NewService(testCacheConfig(mr.Addr()), client, nil, arbor.NewLogger())
	ctx := context.Background()

	svc.Set(ctx, "key-3", testEnvelope("Acme"))
	svc.l1.Delete("key-3")
	mr.Close()

	_, ok := svc.Get(ctx, "key-3", "Acme")
	assert.False(t, ok)
}

func TestService_CorruptRedisEntryIsAMiss(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	svc := NewService(testCacheConfig(mr.Addr()), client, nil, arbor.NewLogger())

	require.NoError(t, mr.Set(redisKeyPrefix+"key-4", "{not json"))

	_, ok := svc.Get(context.Background(), "key-4", "Acme")
	assert.False(t, ok)
}

func TestService_L3RebuildsEnvelopeFromEvents(t *testing.T) {
	now := time.Now()
	conf := 0.9
	wh := &fakeWarehouse{events: []models.Event{
		{
			EventID:    "BOE:abc",
			Title:      "Auto de procesamiento",
			Source:     models.SourceBOE,
			RiskLabel:  models.RiskHighLegal,
			Confidence: &conf,
			PubDate:    &now,
		},
		{
			EventID:   "NEWSAPI:def",
			Title:     "Nombramiento de consejero",
			Source:    models.SourceNewsAPI,
			RiskLabel: models.RiskLowOperational,
		},
	}}
	svc := NewService(testCacheConfig(""), nil, wh, arbor.NewLogger())
	ctx := context.Background()

	hit, ok := svc.Get(ctx, "key-5", "Telefonica")
	require.True(t, ok)
	assert.Equal(t, TierL3, hit.Tier)
	assert.Equal(t, 1, wh.calls)

	env := hit.Envelope
	require.Len(t, env.Results, 2)
	assert.Equal(t, "Telefonica", env.CompanyName)
	assert.Equal(t, models.ColorRed, env.OverallRisk)
	assert.Equal(t, 1, env.RiskSummary[string(models.RiskHighLegal)])
	assert.Equal(t, 0.9, env.Results[0].Confidence)
	assert.Equal(t, 0.0, env.Results[1].Confidence)

	// Promoted: the warehouse is not consulted again.
	hit, ok = svc.Get(ctx, "key-5", "Telefonica")
	require.True(t, ok)
	assert.Equal(t, TierL1, hit.Tier)
	assert.Equal(t, 1, wh.calls)
}

func TestService_L3PrefersPersistedEnvelope(t *testing.T) {
	cachedAt := time.Now().Add(-time.Hour)
	wh := &fakeWarehouse{
		envelope:   testEnvelope("Telefonica"),
		envelopeAt: cachedAt,
		events:     []models.Event{{EventID: "BOE:abc", Source: models.SourceBOE}},
	}
	svc := NewService(testCacheConfig(""), nil, wh, arbor.NewLogger())

	hit, ok := svc.Get(context.Background(), "key-env", "Telefonica")
	require.True(t, ok)
	assert.Equal(t, TierL3, hit.Tier)
	assert.Equal(t, "Telefonica", hit.Envelope.CompanyName)
	assert.Equal(t, cachedAt.Format(time.RFC3339), hit.CachedAt)

	// The persisted envelope wins over event reconstitution.
	assert.Empty(t, hit.Envelope.Results)
	assert.Equal(t, 0, wh.calls)
}

func TestService_L3RequiresCompany(t *testing.T) {
	wh := &fakeWarehouse{events: []models.Event{{EventID: "x"}}}
	svc := NewService(testCacheConfig(""), nil, wh, arbor.NewLogger())

	_, ok := svc.Get(context.Background(), "key-6", "")
	assert.False(t, ok)
	assert.Equal(t, 0, wh.calls)
}

func TestService_L3FailureIsAMiss(t *testing.T) {
	wh := &fakeWarehouse{err: errors.New("connection refused")}
	svc := NewService(testCacheConfig(""), nil, wh, arbor.NewLogger())

	_, ok := svc.Get(context.Background(), "key-7", "Acme")
	assert.False(t, ok)
}

func TestService_Invalidate(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	svc := NewService(testCacheConfig(mr.Addr()), client, nil, arbor.NewLogger())
	ctx := context.Background()

	svc.Set(ctx, "key-8", testEnvelope("Acme"))
	svc.Invalidate(ctx, "key-8")

	_, ok := svc.Get(ctx, "key-8", "Acme")
	assert.False(t, ok)
	assert.False(t, mr.Exists(redisKeyPrefix+"key-8"))
}
