// Package camera animates the map camera between the world overview, a journey overview
// and a focused waypoint shot.
//
// The Director is the only writer of the camera pose. It runs entirely on the frame
// scheduler: every method must be called from the scheduler goroutine (for example via
// Scheduler.Do), and all of its timers and frame callbacks check liveness tokens before
// acting, so superseded work is dropped rather than applied late.
package camera

import (
	"fmt"
	"time"

	"github.com/paulmach/orb"

	"github.com/dpup/trailglobe/server/internal/lib/events"
	"github.com/dpup/trailglobe/server/internal/lib/frame"
	"github.com/dpup/trailglobe/server/internal/lib/geo"
	"github.com/dpup/trailglobe/server/internal/lib/route"
	"github.com/dpup/trailglobe/server/internal/surface"
)

type flight struct {
	id         uint64
	kind       FlightKind
	target     surface.CameraTarget
	onComplete func()
}

// Director owns the camera
type Director struct {
	sched   *frame.Scheduler
	handles *surface.Handles
	surface surface.Surface
	bus     *events.Bus
	view    ViewSource
	catalog Catalog
	opts    Options

	selectJourney func(id string)

	state       State
	pose        surface.CameraTarget
	nextFlight  uint64
	flight      *flight
	flightTimer frame.Handle
	unreached   *flight
	interrupted *flight // overview flight awaiting recovery on the next move end

	quiescence      frame.Handle
	lastInteraction time.Time
	rotationFrame   frame.Handle
	rotationCenter  orb.Point
	rotationZoom    float64
	rotationLast    time.Time

	highlightToken uint64
}

// NewDirector creates an idle director drawing through handles
func NewDirector(sched *frame.Scheduler, handles *surface.Handles, bus *events.Bus, view ViewSource, catalog Catalog, opts Options) *Director {
	if bus == nil {
		bus = events.NewBus()
	}
	return &Director{
		sched:   sched,
		handles: handles,
		surface: handles.Surface(),
		bus:     bus,
		view:    view,
		catalog: catalog,
		opts:    opts,
	}
}

// OnSelectJourney sets the function Recenter uses to ask the controller to select a
// journey when nothing is selected
func (d *Director) OnSelectJourney(fn func(id string)) {
	d.selectJourney = fn
}

// State returns the animation state
func (d *Director) State() State { return d.state }

// Pose returns the last camera target the director issued
func (d *Director) Pose() surface.CameraTarget { return d.pose }

// ActiveFlight returns the id and kind of the flight in progress
func (d *Director) ActiveFlight() (uint64, FlightKind, bool) {
	if d.flight == nil {
		return 0, "", false
	}
	return d.flight.id, d.flight.kind, true
}

// Unreached returns the target of the last flight interrupted by the user
func (d *Director) Unreached() (surface.CameraTarget, bool) {
	if d.unreached == nil {
		return surface.CameraTarget{}, false
	}
	return d.unreached.target, true
}

func (d *Director) setState(s State) {
	if d.state == s {
		return
	}
	from := d.state
	d.state = s
	d.bus.CameraState.Publish(events.CameraState{From: from.String(), To: s.String()})
}

func (d *Director) setPose(target surface.CameraTarget) {
	d.pose = target
	d.surface.SetCameraPose(target)
}

// Start arms the idle timer. Call once the view state is initialised.
func (d *Director) Start() {
	d.lastInteraction = d.sched.Now()
	d.armQuiescence()
}

// Stop cancels every timer and animation
func (d *Director) Stop() {
	d.cancelFlight()
	d.stopRotation()
	d.sched.Cancel(d.quiescence)
	d.quiescence = 0
	d.highlightToken++
	d.setState(Idle)
}

// RequestFlight cancels any animation in progress and flies to target. onComplete, if
// set, runs when the flight finishes; it never runs for a flight that is superseded or
// interrupted.
func (d *Director) RequestFlight(target surface.CameraTarget, kind FlightKind, onComplete func()) uint64 {
	d.cancelFlight()
	d.stopRotation()
	d.sched.Cancel(d.quiescence)
	d.quiescence = 0

	d.nextFlight++
	f := &flight{id: d.nextFlight, kind: kind, target: target, onComplete: onComplete}
	d.flight = f
	if kind == FlightOverview || kind == FlightRecovery {
		d.interrupted = nil
	}

	d.setPose(target)
	d.setState(Flying)
	d.bus.FlightStarted.Publish(d.flightEvent(f))

	id := f.id
	d.flightTimer = d.sched.After(target.Duration, func(time.Time) { d.completeFlight(id) })
	return id
}

func (d *Director) flightEvent(f *flight) events.Flight {
	return events.Flight{ID: f.id, Kind: string(f.kind), Center: f.target.Center, Zoom: f.target.Zoom}
}

// cancelFlight drops the active flight without completing it
func (d *Director) cancelFlight() {
	d.sched.Cancel(d.flightTimer)
	d.flightTimer = 0
	d.flight = nil
}

func (d *Director) completeFlight(id uint64) {
	f := d.flight
	if f == nil || f.id != id {
		return
	}
	d.flight = nil
	d.flightTimer = 0
	d.setState(Idle)
	d.bus.FlightCompleted.Publish(d.flightEvent(f))
	if f.onComplete != nil {
		f.onComplete()
	}
	d.armQuiescence()
}

// FlyToOverview flies to the world overview
func (d *Director) FlyToOverview() uint64 {
	return d.RequestFlight(d.overviewTarget(), FlightOverview, nil)
}

func (d *Director) overviewTarget() surface.CameraTarget {
	return surface.CameraTarget{
		Center:   d.opts.OverviewCenter,
		Zoom:     d.opts.OverviewZoom,
		Duration: d.opts.FlightDuration,
		Easing:   surface.EaseInOut,
	}
}

// FitJourney flies to the bounds of a journey's route and clears any highlight
func (d *Director) FitJourney(journeyID string) (uint64, error) {
	r, _, ok := d.catalog.Journey(journeyID)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownJourney, journeyID)
	}
	b, err := geo.Bounds(r)
	if err != nil {
		return 0, fmt.Errorf("%w: journey %s has no route", route.ErrInvalidGeometry, journeyID)
	}

	d.ClearHighlight()
	return d.RequestFlight(FitBounds(b, d.surface, d.opts), FlightJourney, nil), nil
}

// FocusWaypoint flies to a waypoint and highlights the route leading to it
func (d *Director) FocusWaypoint(journeyID, waypointID string) (uint64, error) {
	r, wps, ok := d.catalog.Journey(journeyID)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownJourney, journeyID)
	}
	i := route.FindWaypoint(wps, waypointID)
	if i < 0 {
		return 0, fmt.Errorf("%w: %s", ErrUnknownWaypoint, waypointID)
	}

	id := d.RequestFlight(FocusTarget(r, wps, wps[i], d.opts), FlightWaypoint, nil)
	d.requestHighlight(r, wps, waypointID)
	return id, nil
}

// RefreshHighlight redraws the approach to waypointID from the journey's current
// geometry without moving the camera
func (d *Director) RefreshHighlight(journeyID, waypointID string) error {
	r, wps, ok := d.catalog.Journey(journeyID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJourney, journeyID)
	}
	if route.FindWaypoint(wps, waypointID) < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownWaypoint, waypointID)
	}
	d.requestHighlight(r, wps, waypointID)
	return nil
}

// Follow moves the camera for a playback frame. It supersedes any flight and does not
// re-arm the idle timer.
func (d *Director) Follow(target surface.CameraTarget) {
	d.cancelFlight()
	d.stopRotation()
	d.sched.Cancel(d.quiescence)
	d.quiescence = 0
	d.setPose(target)
	d.setState(Idle)
}

// Recenter flies back to whatever the current selection calls for. With nothing
// selected it stops rotating and asks the controller to select the first journey.
func (d *Director) Recenter() error {
	v := d.view()
	switch v.Mode {
	case ModeWaypointFocused:
		_, err := d.FocusWaypoint(v.SelectedJourneyID, v.SelectedWaypointID)
		return err
	case ModeJourneySelected:
		_, err := d.FitJourney(v.SelectedJourneyID)
		return err
	}

	d.stopRotation()
	d.sched.Cancel(d.quiescence)
	d.quiescence = 0

	id, ok := d.catalog.FirstJourneyID()
	if !ok {
		// still nothing selected, so the globe resumes turning after the usual delay
		d.armQuiescence()
		return ErrNoJourneys
	}
	if d.selectJourney != nil {
		d.selectJourney(id)
		return nil
	}
	_, err := d.FitJourney(id)
	return err
}

// ViewChanged tells the director the controller changed the selection
func (d *Director) ViewChanged() {
	if !d.idleEligible() {
		d.stopRotation()
		d.sched.Cancel(d.quiescence)
		d.quiescence = 0
		return
	}
	if d.state == Idle {
		d.armQuiescence()
	}
}

// HandleInteraction reacts to user input on the surface
func (d *Director) HandleInteraction(in surface.Interaction) {
	switch {
	case in.Kind.IsGesture():
		d.onGesture()
	case in.Kind == surface.MoveEnd:
		d.onMoveEnd()
	}
}

func (d *Director) onGesture() {
	d.lastInteraction = d.sched.Now()

	switch d.state {
	case Rotating:
		d.stopRotation()
	case Flying:
		f := d.flight
		d.cancelFlight()
		d.unreached = f
		if f.kind == FlightOverview || f.kind == FlightRecovery {
			d.interrupted = f
		}
		d.setState(Idle)
		d.bus.FlightInterrupted.Publish(d.flightEvent(f))
	}
	d.armQuiescence()
}

func (d *Director) onMoveEnd() {
	f := d.interrupted
	if f == nil || d.state != Idle {
		return
	}
	d.interrupted = nil
	if d.view().Mode != ModeOverview {
		return
	}

	target := d.overviewTarget()
	target.Duration = f.target.Duration
	d.RequestFlight(target, FlightRecovery, nil)
}

// idleEligible reports whether the idle rotation may run
func (d *Director) idleEligible() bool {
	v := d.view()
	return v.Mode == ModeOverview && v.SelectedJourneyID == "" && v.SelectedWaypointID == ""
}

// armQuiescence (re)starts the idle timer when the view allows rotation
func (d *Director) armQuiescence() {
	d.sched.Cancel(d.quiescence)
	d.quiescence = 0
	if !d.idleEligible() || d.state != Idle {
		return
	}
	d.quiescence = d.sched.After(d.opts.QuiescenceDelay, d.onQuiescent)
}

func (d *Director) onQuiescent(now time.Time) {
	d.quiescence = 0
	if d.state != Idle || !d.idleEligible() {
		return
	}
	if wait := d.opts.QuiescenceDelay - now.Sub(d.lastInteraction); wait > 0 {
		d.quiescence = d.sched.After(wait, d.onQuiescent)
		return
	}
	d.startRotation(now)
}

func (d *Director) startRotation(now time.Time) {
	d.rotationCenter = d.surface.ViewportBounds().Center()
	d.rotationZoom = d.surface.Zoom()
	d.rotationLast = now
	d.setState(Rotating)
	d.rotationFrame = d.sched.RequestFrame(d.rotate)
}

func (d *Director) rotate(now time.Time) {
	if d.state != Rotating {
		return
	}
	elapsed := now.Sub(d.rotationLast).Seconds()
	d.rotationLast = now

	d.rotationCenter[0] = geo.NormalizeLongitude(d.rotationCenter[0] - d.opts.RotationDegPerSec*elapsed)
	d.setPose(surface.CameraTarget{
		Center: d.rotationCenter,
		Zoom:   d.rotationZoom,
		Easing: surface.Jump,
	})
	d.rotationFrame = d.sched.RequestFrame(d.rotate)
}

func (d *Director) stopRotation() {
	d.sched.Cancel(d.rotationFrame)
	d.rotationFrame = 0
	if d.state == Rotating {
		d.setState(Idle)
	}
}

// requestHighlight draws the approach to waypointID on the next frame unless a newer
// highlight or selection has replaced it by then
func (d *Director) requestHighlight(r route.Route, wps []route.Waypoint, waypointID string) {
	d.highlightToken++
	token := d.highlightToken

	seg, err := route.ApproachSegment(r, wps, waypointID)
	if err != nil {
		d.handles.Dispose(surface.HighlightLayer)
		return
	}
	coords, err := route.Slice(r, seg)
	if err != nil {
		return
	}

	d.sched.RequestFrame(func(time.Time) {
		if token != d.highlightToken {
			return
		}
		if v := d.view(); v.SelectedWaypointID != "" && v.SelectedWaypointID != waypointID {
			return
		}
		d.handles.Line(surface.HighlightLayer, coords)
	})
}

// ClearHighlight removes the highlighted segment and drops any pending highlight
func (d *Director) ClearHighlight() {
	d.highlightToken++
	d.handles.Dispose(surface.HighlightLayer)
}
