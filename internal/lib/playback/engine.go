// Package playback animates a simulated walk along a route
package playback

import (
	"math"
	"sort"
	"time"

	"github.com/dpup/trailglobe/server/internal/config"
	"github.com/dpup/trailglobe/server/internal/lib/events"
	"github.com/dpup/trailglobe/server/internal/lib/frame"
	"github.com/dpup/trailglobe/server/internal/lib/geo"
	"github.com/dpup/trailglobe/server/internal/lib/route"
	"github.com/dpup/trailglobe/server/internal/surface"
)

// Options paces playback
type Options struct {
	MsPerKm     float64
	MinDuration time.Duration
	LookAhead   int
	Zoom        float64
	Pitch       float64
}

// OptionsFromConfig maps playback config onto engine options
func OptionsFromConfig(cfg config.PlaybackConfig) Options {
	return Options{
		MsPerKm:     cfg.MsPerKm,
		MinDuration: cfg.MinDuration,
		LookAhead:   cfg.LookAhead,
		Zoom:        cfg.Zoom,
		Pitch:       cfg.Pitch,
	}
}

// Camera is where playback sends its per-frame camera moves
type Camera interface {
	Follow(target surface.CameraTarget)
}

// Duration returns how long playback of a route of lengthKm lasts: the hint if one is
// given, else MsPerKm per kilometre, never less than MinDuration
func Duration(lengthKm float64, hint time.Duration, opts Options) time.Duration {
	d := hint
	if d <= 0 {
		d = time.Duration(lengthKm * opts.MsPerKm * float64(time.Millisecond))
	}
	if d < opts.MinDuration {
		d = opts.MinDuration
	}
	return d
}

type stop struct {
	waypoint route.Waypoint
	index    int
}

// Engine plays one route at a time. Like the camera director it must only be used
// from the scheduler goroutine.
type Engine struct {
	sched   *frame.Scheduler
	camera  Camera
	handles *surface.Handles
	bus     *events.Bus
	opts    Options

	generation uint64
	frame      frame.Handle
	playing    bool
	journeyID  string
	route      route.Route
	stops      []stop
	next       int
	start      time.Time
	duration   time.Duration
	index      int
	fraction   float64
	bearing    float64
	onReached  func(route.Waypoint)
}

// NewEngine creates a stopped engine. handles may be nil to skip drawing the
// position marker.
func NewEngine(sched *frame.Scheduler, camera Camera, handles *surface.Handles, bus *events.Bus, opts Options) *Engine {
	if bus == nil {
		bus = events.NewBus()
	}
	if opts.LookAhead < 1 {
		opts.LookAhead = 1
	}
	return &Engine{sched: sched, camera: camera, handles: handles, bus: bus, opts: opts}
}

// Start plays r from the beginning, calling onReached once per waypoint in route order.
// A playback already running is stopped first.
func (e *Engine) Start(journeyID string, r route.Route, wps []route.Waypoint, durationHint time.Duration, onReached func(route.Waypoint)) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if e.playing {
		e.Stop()
	}

	stops := make([]stop, 0, len(wps))
	for _, wp := range wps {
		proj, err := route.Project(wp.Coordinates, r)
		if err != nil {
			return err
		}
		stops = append(stops, stop{waypoint: wp, index: proj.VertexIndex})
	}
	sort.SliceStable(stops, func(i, j int) bool { return stops[i].index < stops[j].index })

	e.generation++
	e.playing = true
	e.journeyID = journeyID
	e.route = r.Clone()
	e.stops = stops
	e.next = 0
	e.start = e.sched.Now()
	e.duration = Duration(route.Length(r), durationHint, e.opts)
	e.index = 0
	e.fraction = 0
	e.bearing = 0
	e.onReached = onReached

	gen := e.generation
	e.frame = e.sched.RequestFrame(func(now time.Time) { e.tick(gen, now) })
	return nil
}

// Stop cancels playback and resets the engine to its empty state
func (e *Engine) Stop() {
	wasPlaying := e.playing
	journeyID := e.journeyID

	e.generation++
	e.sched.Cancel(e.frame)
	e.reset()

	if wasPlaying {
		e.bus.PlaybackProgress.Publish(events.PlaybackProgress{JourneyID: journeyID})
	}
}

func (e *Engine) reset() {
	e.frame = 0
	e.playing = false
	e.journeyID = ""
	e.route = nil
	e.stops = nil
	e.next = 0
	e.duration = 0
	e.index = 0
	e.fraction = 0
	e.bearing = 0
	e.onReached = nil
	if e.handles != nil {
		e.handles.Dispose(surface.PlaybackLayer)
	}
}

func (e *Engine) tick(gen uint64, now time.Time) {
	if gen != e.generation || !e.playing {
		return
	}
	e.frame = 0

	n := len(e.route)
	e.fraction = math.Min(1, float64(now.Sub(e.start))/float64(e.duration))
	e.index = int(e.fraction * float64(n-1))
	if e.index > n-1 {
		e.index = n - 1
	}

	e.moveCamera()

	for e.next < len(e.stops) && e.stops[e.next].index <= e.index {
		s := e.stops[e.next]
		e.next++
		e.bus.WaypointReached.Publish(events.WaypointReached{JourneyID: e.journeyID, Waypoint: s.waypoint, VertexIndex: s.index})
		if e.onReached != nil {
			e.onReached(s.waypoint)
		}
		if gen != e.generation {
			return
		}
	}

	done := e.fraction >= 1
	e.bus.PlaybackProgress.Publish(events.PlaybackProgress{
		JourneyID:   e.journeyID,
		VertexIndex: e.index,
		Fraction:    e.fraction,
		Playing:     !done,
	})
	if gen != e.generation {
		return
	}
	if done {
		e.generation++
		e.reset()
		return
	}
	e.frame = e.sched.RequestFrame(func(now time.Time) { e.tick(gen, now) })
}

// moveCamera centres on the current vertex, looking toward a vertex a little further on
func (e *Engine) moveCamera() {
	here := e.route[e.index]
	ahead := e.route[min(e.index+e.opts.LookAhead, len(e.route)-1)]
	if ahead.Point() != here.Point() {
		e.bearing = geo.Bearing(here.Point(), ahead.Point())
	}

	e.camera.Follow(surface.CameraTarget{
		Center:   here.Point(),
		Zoom:     e.opts.Zoom,
		Pitch:    e.opts.Pitch,
		Bearing:  e.bearing,
		Duration: e.sched.Interval(),
		Easing:   surface.Linear,
	})
	if e.handles != nil {
		e.handles.Markers(surface.PlaybackLayer, []surface.Marker{{ID: "position", Coordinates: here.Point()}})
	}
}

// Playing reports whether a playback is running
func (e *Engine) Playing() bool { return e.playing }

// Index returns the current route vertex
func (e *Engine) Index() int { return e.index }

// Fraction returns how far through the playback is, from 0 to 1
func (e *Engine) Fraction() float64 { return e.fraction }

// Duration returns the total duration of the running playback
func (e *Engine) Duration() time.Duration { return e.duration }

// JourneyID returns the journey being played
func (e *Engine) JourneyID() string { return e.journeyID }
