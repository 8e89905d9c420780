package namecache

import (
	"context"
	"errors"
	"testing"

	"github.com/Log-Tools/telegram-ingest/internal/platform"
	"github.com/Log-Tools/telegram-ingest/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockLookup struct {
	mock.Mock
}

func (m *MockLookup) LookupEntity(ctx context.Context, id int64) (platform.Entity, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(platform.Entity), args.Error(1)
}

func TestCache_Resolve(t *testing.T) {
	ctx := context.Background()

	t.Run("caches successful lookup", func(t *testing.T) {
		lookup := &MockLookup{}
		lookup.On("LookupEntity", ctx, int64(10)).Return(platform.Entity{ID: 10, Title: "News"}, nil).Once()

		cache := New(lookup, nil)
		assert.Equal(t, "News", cache.Resolve(ctx, 10))
		assert.Equal(t, "News", cache.Resolve(ctx, 10))

		lookup.AssertNumberOfCalls(t, "LookupEntity", 1)
	})

	t.Run("prefers title then username then Unknown", func(t *testing.T) {
		telemetry.Init()
		lookup := &MockLookup{}
		lookup.On("LookupEntity", ctx, int64(1)).Return(platform.Entity{ID: 1, Title: "Title", Username: "user1"}, nil)
		lookup.On("LookupEntity", ctx, int64(2)).Return(platform.Entity{ID: 2, Username: "user2"}, nil)
		lookup.On("LookupEntity", ctx, int64(3)).Return(platform.Entity{ID: 3}, nil)

		cache := New(lookup, nil)
		assert.Equal(t, "Title", cache.Resolve(ctx, 1))
		assert.Equal(t, "user2", cache.Resolve(ctx, 2))
		assert.Equal(t, platform.UnknownName, cache.Resolve(ctx, 3))

		name, ok := cache.Get(3)
		assert.True(t, ok, "an entity without title or username is still cached")
		assert.Equal(t, platform.UnknownName, name)
		assert.Equal(t, float64(3), testutil.ToFloat64(telemetry.CachedNames))
	})

	t.Run("transient failure does not poison the cache", func(t *testing.T) {
		lookup := &MockLookup{}
		lookup.On("LookupEntity", ctx, int64(7)).Return(platform.Entity{}, errors.New("timeout")).Once()
		lookup.On("LookupEntity", ctx, int64(7)).Return(platform.Entity{ID: 7, Title: "Recovered"}, nil).Once()

		cache := New(lookup, nil)
		assert.Equal(t, platform.UnknownName, cache.Resolve(ctx, 7))

		_, cached := cache.Get(7)
		assert.False(t, cached, "sentinel must not be cached")

		assert.Equal(t, "Recovered", cache.Resolve(ctx, 7))
		name, cached := cache.Get(7)
		assert.True(t, cached)
		assert.Equal(t, "Recovered", name)

		assert.Equal(t, "Recovered", cache.Resolve(ctx, 7))
		lookup.AssertNumberOfCalls(t, "LookupEntity", 2)
	})
}

func TestCache_Remember(t *testing.T) {
	lookup := &MockLookup{}
	cache := New(lookup, nil)

	assert.Equal(t, "Seeded", cache.Remember(platform.Entity{ID: 5, Title: "Seeded"}))
	assert.Equal(t, "Seeded", cache.Remember(platform.Entity{ID: 5, Title: "Renamed"}), "first name wins")
	assert.Equal(t, "Seeded", cache.Resolve(context.Background(), 5))

	lookup.AssertNotCalled(t, "LookupEntity", mock.Anything, mock.Anything)
}
