package service

import (
	"context"
	"encoding/json"
	"fmt"

	"astroshare/equipment-service/internal/client"
	"astroshare/equipment-service/internal/constants"
	"astroshare/equipment-service/internal/models"
	"astroshare/equipment-service/internal/repository"
	"astroshare/equipment-service/pkg/logger"
	"astroshare/equipment-service/pkg/metrics"
)

// AggregatesService serves per-item aggregates (users, images, co-usage
// frequencies) from the cache, falling back to the search index on a miss.
// Cache read failures are treated as misses so a degraded Redis never takes
// the endpoints down with it.
type AggregatesService struct {
	cache   repository.CacheRepository
	search  client.SearchClient
	log     *logger.Logger
	metrics *metrics.Metrics
}

func NewAggregatesService(cache repository.CacheRepository, search client.SearchClient, log *logger.Logger, m *metrics.Metrics) *AggregatesService {
	return &AggregatesService{cache: cache, search: search, log: log, metrics: m}
}

func aggregateCacheKey(klass models.ItemType, id uint64, field string) string {
	return fmt.Sprintf("equipment_item_%s_%d_%s", klass, id, field)
}

func entitlementSuffix(fullAccess bool) string {
	if fullAccess {
		return "full"
	}
	return "basic"
}

// GetUsers returns the cached users aggregate for an item. An item absent
// from the index yields an empty JSON array, which is cached like any hit.
func (s *AggregatesService) GetUsers(ctx context.Context, klass models.ItemType, id uint64) (json.RawMessage, error) {
	return s.passthrough(ctx, klass, id, "users", func(a *client.ItemAggregates) json.RawMessage {
		if a == nil || a.Users == nil {
			return json.RawMessage("[]")
		}
		return a.Users
	})
}

// GetImages returns the cached images aggregate for an item
func (s *AggregatesService) GetImages(ctx context.Context, klass models.ItemType, id uint64) (json.RawMessage, error) {
	return s.passthrough(ctx, klass, id, "images", func(a *client.ItemAggregates) json.RawMessage {
		if a == nil || a.Images == nil {
			return json.RawMessage("[]")
		}
		return a.Images
	})
}

// GetMostOftenUsedWith returns the co-usage frequency map. Callers without
// full search access only see the single most frequent companion; ties break
// on the lexicographically smaller key. Each entitlement tier caches under
// its own key so the restricted view never leaks into the full one.
func (s *AggregatesService) GetMostOftenUsedWith(ctx context.Context, klass models.ItemType, id uint64, fullAccess bool) (json.RawMessage, error) {
	field := "most_often_used_with_" + entitlementSuffix(fullAccess)
	key := aggregateCacheKey(klass, id, field)

	if cached, ok := s.cacheGet(ctx, key, "most_often_used_with"); ok {
		return json.RawMessage(cached), nil
	}

	aggregates, err := s.search.GetItemAggregates(ctx, klass, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch aggregates for item %d: %w", id, err)
	}

	freqs := map[string]int64{}
	if aggregates != nil && aggregates.MostOftenUsedWith != nil {
		freqs = aggregates.MostOftenUsedWith
	}
	if !fullAccess {
		freqs = topCompanion(freqs)
	}

	payload, err := json.Marshal(freqs)
	if err != nil {
		return nil, fmt.Errorf("failed to encode co-usage frequencies: %w", err)
	}

	s.cacheSet(ctx, key, string(payload))
	return payload, nil
}

// topCompanion reduces the frequency map to its single highest entry
func topCompanion(freqs map[string]int64) map[string]int64 {
	var bestKey string
	var bestCount int64
	found := false
	for k, v := range freqs {
		if !found || v > bestCount || (v == bestCount && k < bestKey) {
			bestKey, bestCount = k, v
			found = true
		}
	}
	if !found {
		return map[string]int64{}
	}
	return map[string]int64{bestKey: bestCount}
}

func (s *AggregatesService) passthrough(ctx context.Context, klass models.ItemType, id uint64, field string, pick func(*client.ItemAggregates) json.RawMessage) (json.RawMessage, error) {
	key := aggregateCacheKey(klass, id, field)

	if cached, ok := s.cacheGet(ctx, key, field); ok {
		return json.RawMessage(cached), nil
	}

	aggregates, err := s.search.GetItemAggregates(ctx, klass, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch aggregates for item %d: %w", id, err)
	}

	payload := pick(aggregates)
	s.cacheSet(ctx, key, string(payload))
	return payload, nil
}

func (s *AggregatesService) cacheGet(ctx context.Context, key, operation string) (string, bool) {
	value, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.log.WithField("key", key).WithField("error", err.Error()).
			Warn("Cache read failed, falling back to search index")
		ok = false
	}

	if s.metrics != nil {
		result := "miss"
		if ok {
			result = "hit"
		}
		s.metrics.CacheLookups.WithLabelValues(operation, result).Inc()
	}
	return value, ok
}

func (s *AggregatesService) cacheSet(ctx context.Context, key, value string) {
	if err := s.cache.Set(ctx, key, value, constants.AggregateCacheTTL); err != nil {
		s.log.WithField("key", key).WithField("error", err.Error()).
			Warn("Cache write failed")
	}
}
