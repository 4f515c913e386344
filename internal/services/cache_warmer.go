package services

import (
	"context"
	"log"
	"time"

	"github.com/paulmach/orb"
)

// clusterWarmSpread is how many zoom levels either side of the current one get warmed
const clusterWarmSpread = 1

// WarmClusters precomputes photo groupings for the zoom levels around the current view
// so the first zoom step after a refresh is served from cache. It returns the number
// of levels warmed.
func (s *MapService) WarmClusters(ctx context.Context) (int, error) {
	var (
		zoom     int
		viewport orb.Bound
		photos   int
	)
	if err := s.sched.Do(ctx, func() {
		surf := s.handles.Surface()
		zoom = s.regrouper.Zoom()
		viewport = surf.ViewportBounds()
		photos = len(s.photos)
	}); err != nil {
		return 0, err
	}

	if photos == 0 {
		return 0, nil
	}

	warmCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	start := time.Now()
	warmed := 0
	for level := zoom - clusterWarmSpread; level <= zoom+clusterWarmSpread; level++ {
		if level < 0 {
			continue
		}
		if _, err := s.Clusters(warmCtx, float64(level), viewport); err != nil {
			return warmed, err
		}
		warmed++
	}

	log.Printf("Cluster warming: %d zoom levels around %d in %v", warmed, zoom, time.Since(start))
	return warmed, nil
}
