package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dpup/trailglobe/server/internal/cache"
	"github.com/dpup/trailglobe/server/internal/clients/journeys"
	"github.com/dpup/trailglobe/server/internal/config"
	"github.com/dpup/trailglobe/server/internal/lib/camera"
	"github.com/dpup/trailglobe/server/internal/lib/cluster"
	"github.com/dpup/trailglobe/server/internal/lib/events"
	"github.com/dpup/trailglobe/server/internal/lib/frame"
	"github.com/dpup/trailglobe/server/internal/lib/playback"
	"github.com/dpup/trailglobe/server/internal/lib/route"
	"github.com/dpup/trailglobe/server/internal/surface"
)

var (
	ErrNoEditSession  = errors.New("no edit session in progress")
	ErrEditInProgress = errors.New("another journey is being edited")
	ErrNoProvider     = errors.New("no journey provider configured")
)

// displayBudget caps the vertices sent to the surface per route line
const displayBudget = 2000

// Provider is the journey data source
type Provider interface {
	ListJourneys(ctx context.Context) ([]journeys.Journey, error)
	ListPhotos(ctx context.Context, journeyID string) ([]journeys.Photo, error)
	SaveJourney(ctx context.Context, snap route.Snapshot) error
}

// MapService is the application controller. It owns the view state, the journey
// catalog, photos and the edit session, and drives the camera director, the photo
// regrouper and the playback engine.
//
// All state is confined to the scheduler goroutine. Exported methods hop onto it with
// Scheduler.Do; the surface's interaction callback hops on with Post.
type MapService struct {
	sched     *frame.Scheduler
	handles   *surface.Handles
	bus       *events.Bus
	provider  Provider
	director  *camera.Director
	regrouper *cluster.Regrouper
	player    *playback.Engine

	cache       *cache.Cache
	clusterOpts cluster.Options
	clusterTTL  time.Duration

	view     camera.ViewState
	catalog  map[string]journeys.Journey
	order    []string
	photos   []journeys.Photo
	photoGen int
	session  *route.EditSession
	fallback error
}

// NewMapService wires the controller to a surface. provider may be nil when journeys
// are only imported locally; a nil c gets a private cache for cluster queries.
func NewMapService(cfg *config.Config, sched *frame.Scheduler, s surface.Surface, bus *events.Bus, provider Provider, c *cache.Cache) *MapService {
	if bus == nil {
		bus = events.NewBus()
	}
	if c == nil {
		c = cache.NewCache()
	}
	svc := &MapService{
		sched:       sched,
		handles:     surface.NewHandles(s),
		bus:         bus,
		provider:    provider,
		cache:       c,
		clusterOpts: cluster.OptionsFromConfig(cfg.Clustering, cfg.Surface.TileSize),
		clusterTTL:  cfg.Clustering.CacheTTL,
		catalog:     make(map[string]journeys.Journey),
		fallback:    surface.FallbackReason(s),
	}
	svc.regrouper = cluster.NewRegrouper(svc.clusterOpts)
	svc.director = camera.NewDirector(sched, svc.handles, bus, svc.viewState, svc,
		camera.OptionsFromConfig(cfg.Camera, cfg.Surface.TileSize))
	svc.director.OnSelectJourney(func(id string) {
		if err := svc.selectJourney(id); err != nil {
			svc.logError(context.Background(), "Recenter failed to select journey", err, "journey_id", id)
		}
	})
	svc.player = playback.NewEngine(sched, svc.director, svc.handles, bus, playback.OptionsFromConfig(cfg.Playback))
	return svc
}

// Bus returns the event bus the controller publishes on
func (s *MapService) Bus() *events.Bus { return s.bus }

// Start flies to the overview and arms the idle rotation
func (s *MapService) Start(ctx context.Context) error {
	return s.sched.Do(ctx, func() {
		s.director.FlyToOverview()
		s.director.Start()
	})
}

// Stop cancels every animation
func (s *MapService) Stop(ctx context.Context) error {
	return s.sched.Do(ctx, func() {
		s.player.Stop()
		s.director.Stop()
	})
}

func (s *MapService) viewState() camera.ViewState { return s.view }

// Journey implements camera.Catalog. A journey being edited reports its working copy.
func (s *MapService) Journey(id string) (route.Route, []route.Waypoint, bool) {
	if s.session != nil && s.session.JourneyID() == id {
		return s.session.Route(), s.session.Waypoints(), true
	}
	j, ok := s.catalog[id]
	if !ok {
		return nil, nil, false
	}
	return j.Route, j.Waypoints, true
}

// FirstJourneyID implements camera.Catalog
func (s *MapService) FirstJourneyID() (string, bool) {
	if len(s.order) == 0 {
		return "", false
	}
	return s.order[0], true
}

// SetJourneys replaces the catalog and redraws the route lines. A selection that no
// longer exists falls back to the overview.
func (s *MapService) SetJourneys(ctx context.Context, js []journeys.Journey) error {
	return s.sched.Do(ctx, func() {
		catalog := make(map[string]journeys.Journey, len(js))
		order := make([]string, 0, len(js))
		for _, j := range js {
			if _, dup := catalog[j.ID]; !dup {
				order = append(order, j.ID)
			}
			catalog[j.ID] = j
		}

		for _, id := range s.order {
			if _, ok := catalog[id]; !ok {
				s.handles.Dispose(routeLayerID(id))
			}
		}
		s.catalog = catalog
		s.order = order

		if id := s.view.SelectedJourneyID; id != "" {
			if _, ok := s.catalog[id]; !ok {
				s.clearSelection()
			} else if wid := s.view.SelectedWaypointID; wid != "" {
				if _, wps, _ := s.Journey(id); route.FindWaypoint(wps, wid) < 0 {
					s.setView(camera.ViewState{Mode: camera.ModeJourneySelected, SelectedJourneyID: id})
					s.director.ClearHighlight()
				}
			}
		}
		if id := s.player.JourneyID(); id != "" {
			if _, ok := s.catalog[id]; !ok {
				s.player.Stop()
			}
		}
		s.drawRoutes()
		s.drawWaypoints()
	})
}

// AddJourney inserts or replaces one journey, for example after a GPX import
func (s *MapService) AddJourney(ctx context.Context, j journeys.Journey) error {
	if err := j.Route.Validate(); err != nil {
		return err
	}
	return s.sched.Do(ctx, func() {
		if _, ok := s.catalog[j.ID]; !ok {
			s.order = append(s.order, j.ID)
		}
		s.catalog[j.ID] = j
		s.drawRoute(j.ID)
		if s.view.SelectedJourneyID == j.ID {
			s.drawWaypoints()
		}
	})
}

// Journeys returns the catalog in provider order
func (s *MapService) Journeys(ctx context.Context) ([]journeys.Journey, error) {
	var out []journeys.Journey
	err := s.sched.Do(ctx, func() {
		out = make([]journeys.Journey, 0, len(s.order))
		for _, id := range s.order {
			j := s.catalog[id]
			j.Route, j.Waypoints, _ = s.Journey(id)
			out = append(out, j)
		}
	})
	return out, err
}

// GetJourney returns one journey, reflecting unsaved edits
func (s *MapService) GetJourney(ctx context.Context, id string) (journeys.Journey, error) {
	var (
		out   journeys.Journey
		found bool
	)
	err := s.sched.Do(ctx, func() {
		out, found = s.catalog[id]
		if found {
			out.Route, out.Waypoints, _ = s.Journey(id)
		}
	})
	if err != nil {
		return out, err
	}
	if !found {
		return out, fmt.Errorf("%w: %s", camera.ErrUnknownJourney, id)
	}
	return out, nil
}

// SetPhotos replaces the photo dataset and regroups it for the current viewport
func (s *MapService) SetPhotos(ctx context.Context, photos []journeys.Photo) error {
	return s.sched.Do(ctx, func() {
		s.photos = append([]journeys.Photo(nil), photos...)
		s.photoGen++
		markers := make([]cluster.Marker, len(photos))
		for i, p := range photos {
			markers[i] = cluster.Marker{ID: p.ID, Coordinates: p.Coordinates, Thumbnail: p.ThumbnailURL}
		}
		sort.SliceStable(markers, func(i, j int) bool { return markers[i].ID < markers[j].ID })
		s.regrouper.SetMarkers(markers)

		surf := s.handles.Surface()
		s.drawClusters(s.regrouper.Settled(surf.Zoom(), surf.ViewportBounds()))
	})
}

// Status summarizes the controller for health pages and clients
type Status struct {
	Fallback           string  `json:"fallback,omitempty"`
	Mode               string  `json:"mode"`
	SelectedJourneyID  string  `json:"selected_journey_id,omitempty"`
	SelectedWaypointID string  `json:"selected_waypoint_id,omitempty"`
	CameraState        string  `json:"camera_state"`
	Playing            bool    `json:"playing"`
	PlaybackJourneyID  string  `json:"playback_journey_id,omitempty"`
	PlaybackFraction   float64 `json:"playback_fraction"`
	EditingJourneyID   string  `json:"editing_journey_id,omitempty"`
	CanUndo            bool    `json:"can_undo"`
	CanRedo            bool    `json:"can_redo"`
	Journeys           int     `json:"journeys"`
	Photos             int     `json:"photos"`
	ClusterZoom        int     `json:"cluster_zoom"`
	Clusters           int     `json:"clusters"`
}

// Status reports the current state
func (s *MapService) Status(ctx context.Context) (Status, error) {
	var st Status
	err := s.sched.Do(ctx, func() {
		st = Status{
			Mode:               s.view.Mode.String(),
			SelectedJourneyID:  s.view.SelectedJourneyID,
			SelectedWaypointID: s.view.SelectedWaypointID,
			CameraState:        s.director.State().String(),
			Playing:            s.player.Playing(),
			PlaybackJourneyID:  s.player.JourneyID(),
			PlaybackFraction:   s.player.Fraction(),
			Journeys:           len(s.order),
			Photos:             len(s.photos),
			ClusterZoom:        s.regrouper.Zoom(),
			Clusters:           len(s.regrouper.Groups()),
		}
		if s.fallback != nil {
			st.Fallback = s.fallback.Error()
		}
		if s.session != nil {
			st.EditingJourneyID = s.session.JourneyID()
			st.CanUndo = s.session.CanUndo()
			st.CanRedo = s.session.CanRedo()
		}
	})
	return st, err
}
