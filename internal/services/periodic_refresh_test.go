package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpup/trailglobe/server/internal/cache"
	"github.com/dpup/trailglobe/server/internal/clients/journeys"
	"github.com/dpup/trailglobe/server/internal/config"
	"github.com/dpup/trailglobe/server/internal/lib/events"
	"github.com/dpup/trailglobe/server/internal/lib/frame"
	"github.com/dpup/trailglobe/server/internal/metrics"
	"github.com/dpup/trailglobe/server/internal/surface"
)

type refreshHarness struct {
	now      time.Time
	provider *fakeProvider
	maps     *MapService
	metrics  *metrics.Metrics
	refresh  *RefreshService
}

func newRefreshHarness(t *testing.T) *refreshHarness {
	t.Helper()
	h := &refreshHarness{now: epoch}
	c := cache.NewCacheWithClock(func() time.Time { return h.now })

	p := orb.Point{7.1, 46}
	h.provider = &fakeProvider{
		journeys: testJourneys(t),
		photos:   map[string][]journeys.Photo{"alps": {{ID: "p1", JourneyID: "alps", Coordinates: &p}}},
	}
	rec := surface.NewRecorder(orb.Bound{Min: orb.Point{6, 45}, Max: orb.Point{9, 47}}, 4)
	h.maps = NewMapService(config.DefaultConfig(), frame.NewManual(epoch), rec, events.NewBus(), h.provider, c)
	h.metrics = metrics.New(nil)
	h.refresh = NewRefreshService(h.provider, h.maps, c, h.metrics, &config.ProviderConfig{RefreshInterval: 5 * time.Minute})
	return h
}

func TestRefreshService_LoadsJourneysAndPhotos(t *testing.T) {
	h := newRefreshHarness(t)
	ctx := context.Background()

	require.NoError(t, h.refresh.Refresh(ctx))

	st, err := h.maps.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Journeys)
	assert.Equal(t, 1, st.Photos)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.ProviderRefreshes.WithLabelValues("ok")))
}

func TestRefreshService_FallsBackToStaleCache(t *testing.T) {
	h := newRefreshHarness(t)
	ctx := context.Background()
	require.NoError(t, h.refresh.Refresh(ctx))

	// past expiry but inside twice the TTL
	h.now = h.now.Add(7 * time.Minute)
	h.provider.journeys = nil
	h.provider.listErr = errors.New("provider down")

	require.NoError(t, h.refresh.Refresh(ctx))
	js, err := h.maps.Journeys(ctx)
	require.NoError(t, err)
	assert.Len(t, js, 2, "stale journeys are kept")

	h.now = h.now.Add(10 * time.Minute)
	err = h.refresh.Refresh(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider down")
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.ProviderRefreshes.WithLabelValues("error")))

	js, _ = h.maps.Journeys(ctx)
	assert.Len(t, js, 2, "a failed refresh leaves the catalog alone")
}

func TestRefreshService_StartRequiresProvider(t *testing.T) {
	maps := NewMapService(config.DefaultConfig(), frame.NewManual(epoch), surface.NewRecorder(orb.Bound{}, 2), nil, nil, nil)
	r := NewRefreshService(nil, maps, cache.NewCache(), nil, &config.ProviderConfig{RefreshInterval: time.Minute})

	assert.ErrorIs(t, r.StartPeriodicRefresh(context.Background()), ErrNoProvider)
	assert.ErrorIs(t, r.Refresh(context.Background()), ErrNoProvider)
	assert.False(t, r.IsRunning())
}

func TestRefreshService_StartAndStop(t *testing.T) {
	h := newRefreshHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, h.refresh.StartPeriodicRefresh(ctx))
	assert.True(t, h.refresh.IsRunning())
	require.NoError(t, h.refresh.StartPeriodicRefresh(ctx), "starting twice is a no-op")

	h.refresh.Stop()
	assert.False(t, h.refresh.IsRunning())
	h.refresh.Stop()
}
