package services

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"

	"github.com/dpup/trailglobe/server/internal/cache"
	"github.com/dpup/trailglobe/server/internal/lib/camera"
	"github.com/dpup/trailglobe/server/internal/lib/cluster"
	"github.com/dpup/trailglobe/server/internal/lib/events"
	"github.com/dpup/trailglobe/server/internal/lib/route"
	"github.com/dpup/trailglobe/server/internal/surface"
)

const routeLayerPrefix = surface.RouteLayer + ":"

func routeLayerID(journeyID string) string { return routeLayerPrefix + journeyID }

// HandleInteraction queues a surface event for the scheduler goroutine. It is safe to
// call from any goroutine, which is how the websocket bridge delivers events.
func (s *MapService) HandleInteraction(in surface.Interaction) {
	s.sched.Post(func() { s.handleInteraction(in) })
}

func (s *MapService) handleInteraction(in surface.Interaction) {
	s.director.HandleInteraction(in)

	surf := s.handles.Surface()
	switch in.Kind {
	case surface.ZoomChanged:
		zoom := in.Zoom
		if zoom == 0 {
			zoom = surf.Zoom()
		}
		if groups, changed := s.regrouper.ZoomChanged(zoom, viewportOf(in, surf)); changed {
			s.drawClusters(groups)
		}
	case surface.MoveEnd:
		s.drawClusters(s.regrouper.Settled(surf.Zoom(), viewportOf(in, surf)))
		s.drawRoutes()
	case surface.Click:
		if in.Point == nil || !strings.HasPrefix(in.LayerID, routeLayerPrefix) {
			return
		}
		id := strings.TrimPrefix(in.LayerID, routeLayerPrefix)
		if _, err := s.clickRoute(id, *in.Point); err != nil {
			s.logError(context.Background(), "Route click failed", err, "journey_id", id)
		}
	}
}

func viewportOf(in surface.Interaction, surf surface.Surface) orb.Bound {
	if in.Bounds != nil {
		return *in.Bounds
	}
	return surf.ViewportBounds()
}

// ClickRoute resolves a point on a journey's route line and publishes it
func (s *MapService) ClickRoute(ctx context.Context, journeyID string, p orb.Point) (route.ClickInfo, error) {
	var info route.ClickInfo
	err := s.do(ctx, func() error {
		var err error
		info, err = s.clickRoute(journeyID, p)
		return err
	})
	return info, err
}

func (s *MapService) clickRoute(journeyID string, p orb.Point) (route.ClickInfo, error) {
	r, wps, ok := s.Journey(journeyID)
	if !ok {
		return route.ClickInfo{}, fmt.Errorf("%w: %s", camera.ErrUnknownJourney, journeyID)
	}
	info, err := route.Click(r, wps, p)
	if err != nil {
		return info, err
	}
	s.bus.RouteClicked.Publish(events.RouteClicked{JourneyID: journeyID, Info: info})
	return info, nil
}

// Clusters groups the photos for an arbitrary zoom and viewport without touching what
// the surface shows. Results are cached per dataset version.
func (s *MapService) Clusters(ctx context.Context, zoom float64, viewport orb.Bound) ([]cluster.Group, error) {
	level := int(math.Round(zoom))

	var (
		markers []cluster.Marker
		gen     int
	)
	if err := s.sched.Do(ctx, func() {
		markers = s.regrouper.Markers()
		gen = s.photoGen
	}); err != nil {
		return nil, err
	}

	key := s.clustersKey(gen, level, viewport)
	var groups []cluster.Group
	if found, err := s.cache.Get(key, &groups); err == nil && found {
		return groups, nil
	}

	groups = cluster.GroupMarkers(markers, float64(level), viewport, s.clusterOpts)
	if err := s.cache.Set(key, groups, s.clusterTTL, "grid"); err != nil {
		s.logError(ctx, "Failed to cache clusters", err, "key", key)
	}
	return groups, nil
}

func (s *MapService) clustersKey(gen, level int, viewport orb.Bound) string {
	return cache.ClustersKey("photos@"+strconv.Itoa(gen), level, viewport)
}

// drawRoutes redraws every journey's line, simplified for the current viewport
func (s *MapService) drawRoutes() {
	for _, id := range s.order {
		s.drawRoute(id)
	}
}

func (s *MapService) drawRoute(id string) {
	r, _, ok := s.Journey(id)
	if !ok {
		return
	}
	s.handles.Line(routeLayerID(id), displayGeometry(r, s.handles.Surface().ViewportBounds()))
}

// displayGeometry simplifies r for the viewport, then samples it down to the budget
func displayGeometry(r route.Route, viewport orb.Bound) route.Route {
	simplified := route.Simplify(r, route.ToleranceForBounds(viewport))
	indices := route.SampleForDisplay(simplified, displayBudget)
	out := make(route.Route, len(indices))
	for i, idx := range indices {
		out[i] = simplified[idx]
	}
	return out
}

// drawWaypoints shows the camps of the selected journey, or clears the layer
func (s *MapService) drawWaypoints() {
	id := s.view.SelectedJourneyID
	if id == "" {
		s.handles.Dispose(surface.WaypointLayer)
		return
	}
	_, wps, ok := s.Journey(id)
	if !ok {
		s.handles.Dispose(surface.WaypointLayer)
		return
	}
	markers := make([]surface.Marker, len(wps))
	for i, wp := range wps {
		markers[i] = surface.Marker{
			ID:          wp.ID,
			Coordinates: wp.Coordinates,
			Properties: map[string]string{
				"name": wp.Name,
				"day":  strconv.Itoa(wp.DayNumber),
			},
		}
	}
	s.handles.Markers(surface.WaypointLayer, markers)
}

// drawClusters replaces the photo layer with one marker per group
func (s *MapService) drawClusters(groups []cluster.Group) {
	markers := make([]surface.Marker, len(groups))
	for i, g := range groups {
		markers[i] = surface.Marker{
			ID:          g.Key,
			Coordinates: g.Centroid,
			Count:       len(g.Members),
		}
		if g.Representative.Thumbnail != "" {
			markers[i].Properties = map[string]string{"thumbnail": g.Representative.Thumbnail}
		}
	}
	s.handles.Markers(surface.PhotoLayer, markers)
	s.bus.ClustersChanged.Publish(events.ClustersChanged{Zoom: s.regrouper.Zoom(), Groups: len(groups)})
}
