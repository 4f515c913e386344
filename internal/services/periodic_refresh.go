package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/dpup/trailglobe/server/internal/cache"
	"github.com/dpup/trailglobe/server/internal/clients/journeys"
	"github.com/dpup/trailglobe/server/internal/config"
	"github.com/dpup/trailglobe/server/internal/metrics"
)

// RefreshService periodically reloads journeys and photos from the provider into the
// map controller. When the provider is down it keeps serving what the cache still
// holds, until that data is very stale.
type RefreshService struct {
	provider Provider
	maps     *MapService
	cache    *cache.Cache
	metrics  *metrics.Metrics
	interval time.Duration

	mu       sync.Mutex
	stopChan chan struct{}
	running  bool
}

// NewRefreshService creates a refresher. m may be nil.
func NewRefreshService(provider Provider, maps *MapService, c *cache.Cache, m *metrics.Metrics, cfg *config.ProviderConfig) *RefreshService {
	return &RefreshService{
		provider: provider,
		maps:     maps,
		cache:    c,
		metrics:  m,
		interval: cfg.RefreshInterval,
	}
}

// StartPeriodicRefresh refreshes immediately and then every interval
func (p *RefreshService) StartPeriodicRefresh(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}
	if p.provider == nil {
		return ErrNoProvider
	}
	if p.interval <= 0 {
		return fmt.Errorf("invalid refresh interval %v", p.interval)
	}

	p.running = true
	p.stopChan = make(chan struct{})
	log.Printf("Starting periodic journey refresh every %v", p.interval)

	go p.refreshLoop(ctx, p.interval, p.stopChan)
	return nil
}

// Stop stops the refresh loop
func (p *RefreshService) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	p.running = false
	close(p.stopChan)
	log.Printf("Stopped periodic journey refresh")
}

// IsRunning returns whether periodic refresh is active
func (p *RefreshService) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *RefreshService) refreshLoop(ctx context.Context, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.refreshOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Printf("Journey refresh stopping due to context cancellation")
			return
		case <-stop:
			return
		case <-ticker.C:
			p.refreshOnce(ctx)
		}
	}
}

func (p *RefreshService) refreshOnce(ctx context.Context) {
	refreshCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	if err := p.Refresh(refreshCtx); err != nil {
		p.maps.logError(ctx, "Journey refresh failed", err)
	}
}

// Refresh loads journeys and their photos and hands them to the map controller
func (p *RefreshService) Refresh(ctx context.Context) error {
	if p.provider == nil {
		return ErrNoProvider
	}
	start := time.Now()
	err := p.refresh(ctx)
	if p.metrics != nil {
		p.metrics.RecordRefresh(time.Since(start), err)
	}
	return err
}

func (p *RefreshService) refresh(ctx context.Context) error {
	js, err := p.loadJourneys(ctx)
	if err != nil {
		return err
	}

	var photos []journeys.Photo
	for _, j := range js {
		ps, err := p.loadPhotos(ctx, j.ID)
		if err != nil {
			// photos are decoration, a journey without them still shows
			p.maps.logError(ctx, "Failed to load photos", err, "journey_id", j.ID)
			continue
		}
		photos = append(photos, ps...)
	}

	if err := p.maps.SetJourneys(ctx, js); err != nil {
		return err
	}
	if err := p.maps.SetPhotos(ctx, photos); err != nil {
		return err
	}
	log.Printf("Journey refresh: %d journeys, %d photos", len(js), len(photos))

	if _, err := p.maps.WarmClusters(ctx); err != nil {
		p.maps.logError(ctx, "Cluster warming failed", err)
	}
	return nil
}

func (p *RefreshService) loadJourneys(ctx context.Context) ([]journeys.Journey, error) {
	key := cache.JourneysKey()
	js, err := p.provider.ListJourneys(ctx)
	if err == nil {
		if err := p.cache.Set(key, js, p.interval, "provider"); err != nil {
			log.Printf("Failed to cache journeys: %v", err)
		}
		return js, nil
	}

	var stale []journeys.Journey
	if _, found, cacheErr := p.cache.GetStale(key, &stale); cacheErr == nil && found && !p.cache.IsVeryStale(key) {
		log.Printf("Provider refresh failed, keeping %d cached journeys: %v", len(stale), err)
		return stale, nil
	}
	return nil, fmt.Errorf("failed to load journeys: %w", err)
}

func (p *RefreshService) loadPhotos(ctx context.Context, journeyID string) ([]journeys.Photo, error) {
	key := cache.PhotosKey(journeyID)
	photos, err := p.provider.ListPhotos(ctx, journeyID)
	if err == nil {
		if err := p.cache.Set(key, photos, p.interval, "provider"); err != nil {
			log.Printf("Failed to cache photos: %v", err)
		}
		return photos, nil
	}

	var stale []journeys.Photo
	if _, found, cacheErr := p.cache.GetStale(key, &stale); cacheErr == nil && found && !p.cache.IsVeryStale(key) {
		return stale, nil
	}
	return nil, err
}
