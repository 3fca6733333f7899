package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"astroshare/equipment-service/internal/client"
	"astroshare/equipment-service/internal/constants"
	"astroshare/equipment-service/internal/models"
	"astroshare/equipment-service/pkg/logger"
)

type mockCache struct {
	store map[string]string
	sets  map[string]time.Duration
}

func newMockCache() *mockCache {
	return &mockCache{store: map[string]string{}, sets: map[string]time.Duration{}}
}

func (m *mockCache) Get(ctx context.Context, key string) (string, bool, error) {
	v, ok := m.store[key]
	return v, ok, nil
}

func (m *mockCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	m.store[key] = value
	m.sets[key] = ttl
	return nil
}

type mockSearch struct {
	aggregates *client.ItemAggregates
	calls      int
}

func (m *mockSearch) GetItemAggregates(ctx context.Context, klass models.ItemType, id uint64) (*client.ItemAggregates, error) {
	m.calls++
	return m.aggregates, nil
}

func TestAggregatesService_GetUsers(t *testing.T) {
	ctx := context.Background()

	t.Run("MissFetchesAndCaches", func(t *testing.T) {
		cache := newMockCache()
		search := &mockSearch{aggregates: &client.ItemAggregates{Users: json.RawMessage(`[{"id":7}]`)}}
		svc := NewAggregatesService(cache, search, logger.NewLogger("test"), nil)

		payload, err := svc.GetUsers(ctx, models.ItemTypeTelescope, 5)
		require.NoError(t, err)
		assert.JSONEq(t, `[{"id":7}]`, string(payload))
		assert.Equal(t, 1, search.calls)

		key := "equipment_item_telescope_5_users"
		assert.Equal(t, `[{"id":7}]`, cache.store[key])
		assert.Equal(t, constants.AggregateCacheTTL, cache.sets[key])
	})

	t.Run("HitSkipsSearchIndex", func(t *testing.T) {
		cache := newMockCache()
		cache.store["equipment_item_telescope_5_users"] = `["cached"]`
		search := &mockSearch{}
		svc := NewAggregatesService(cache, search, logger.NewLogger("test"), nil)

		payload, err := svc.GetUsers(ctx, models.ItemTypeTelescope, 5)
		require.NoError(t, err)
		assert.JSONEq(t, `["cached"]`, string(payload))
		assert.Zero(t, search.calls)
	})

	t.Run("AbsentIndexEntryYieldsEmptyArray", func(t *testing.T) {
		cache := newMockCache()
		svc := NewAggregatesService(cache, &mockSearch{aggregates: nil}, logger.NewLogger("test"), nil)

		payload, err := svc.GetUsers(ctx, models.ItemTypeTelescope, 5)
		require.NoError(t, err)
		assert.JSONEq(t, `[]`, string(payload))
		// the empty result is cached like any other
		assert.Equal(t, `[]`, cache.store["equipment_item_telescope_5_users"])
	})
}

func TestAggregatesService_GetMostOftenUsedWith(t *testing.T) {
	ctx := context.Background()
	freqs := map[string]int64{"camera-12": 40, "mount-3": 40, "filter-9": 10}

	t.Run("FullAccessSeesEverything", func(t *testing.T) {
		cache := newMockCache()
		search := &mockSearch{aggregates: &client.ItemAggregates{MostOftenUsedWith: freqs}}
		svc := NewAggregatesService(cache, search, logger.NewLogger("test"), nil)

		payload, err := svc.GetMostOftenUsedWith(ctx, models.ItemTypeTelescope, 5, true)
		require.NoError(t, err)

		var got map[string]int64
		require.NoError(t, json.Unmarshal(payload, &got))
		assert.Len(t, got, 3)
		assert.Contains(t, cache.store, "equipment_item_telescope_5_most_often_used_with_full")
	})

	t.Run("RestrictedSeesTopEntryOnly", func(t *testing.T) {
		cache := newMockCache()
		search := &mockSearch{aggregates: &client.ItemAggregates{MostOftenUsedWith: freqs}}
		svc := NewAggregatesService(cache, search, logger.NewLogger("test"), nil)

		payload, err := svc.GetMostOftenUsedWith(ctx, models.ItemTypeTelescope, 5, false)
		require.NoError(t, err)

		var got map[string]int64
		require.NoError(t, json.Unmarshal(payload, &got))
		// tie on 40 breaks toward the smaller key
		assert.Equal(t, map[string]int64{"camera-12": 40}, got)
		assert.Contains(t, cache.store, "equipment_item_telescope_5_most_often_used_with_basic")
	})

	t.Run("EntitlementTiersCacheSeparately", func(t *testing.T) {
		cache := newMockCache()
		search := &mockSearch{aggregates: &client.ItemAggregates{MostOftenUsedWith: freqs}}
		svc := NewAggregatesService(cache, search, logger.NewLogger("test"), nil)

		_, err := svc.GetMostOftenUsedWith(ctx, models.ItemTypeTelescope, 5, true)
		require.NoError(t, err)
		_, err = svc.GetMostOftenUsedWith(ctx, models.ItemTypeTelescope, 5, false)
		require.NoError(t, err)
		assert.Equal(t, 2, search.calls)

		var full, basic map[string]int64
		require.NoError(t, json.Unmarshal([]byte(cache.store["equipment_item_telescope_5_most_often_used_with_full"]), &full))
		require.NoError(t, json.Unmarshal([]byte(cache.store["equipment_item_telescope_5_most_often_used_with_basic"]), &basic))
		assert.Len(t, full, 3)
		assert.Len(t, basic, 1)
	})

	t.Run("AbsentIndexEntryYieldsEmptyObject", func(t *testing.T) {
		cache := newMockCache()
		svc := NewAggregatesService(cache, &mockSearch{aggregates: nil}, logger.NewLogger("test"), nil)

		payload, err := svc.GetMostOftenUsedWith(ctx, models.ItemTypeTelescope, 5, false)
		require.NoError(t, err)
		assert.JSONEq(t, `{}`, string(payload))
	})
}
