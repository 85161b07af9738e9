package interfaces

import (
	"context"

	"github.com/ternarybob/vigia/internal/models"
)

// CachedSearch is the payload kept by the search cache tiers.
type CachedSearch struct {
	Envelope *models.SearchEnvelope `json:"envelope"`
	CachedAt string                 `json:"cached_at"`
	Tier     string                 `json:"tier,omitempty"`
}

// SearchCache consults the cache tiers in order (L1 in-process, L2 Redis,
// L3 warehouse). Any tier exception is swallowed and treated as a miss;
// cache failures never fail the request. The company name is carried
// alongside the key so the warehouse tier can reconstitute an envelope from
// recent events.
type SearchCache interface {
	Get(ctx context.Context, key, company string) (*CachedSearch, bool)
	Set(ctx context.Context, key string, envelope *models.SearchEnvelope)
	Invalidate(ctx context.Context, key string)
}
