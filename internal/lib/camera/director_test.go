package camera

import (
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpup/trailglobe/server/internal/lib/events"
	"github.com/dpup/trailglobe/server/internal/lib/frame"
	"github.com/dpup/trailglobe/server/internal/lib/geo"
	"github.com/dpup/trailglobe/server/internal/lib/route"
	"github.com/dpup/trailglobe/server/internal/surface"
)

var epoch = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type journey struct {
	route     route.Route
	waypoints []route.Waypoint
}

type fakeCatalog struct {
	order    []string
	journeys map[string]journey
}

func (c *fakeCatalog) Journey(id string) (route.Route, []route.Waypoint, bool) {
	j, ok := c.journeys[id]
	return j.route, j.waypoints, ok
}

func (c *fakeCatalog) FirstJourneyID() (string, bool) {
	if len(c.order) == 0 {
		return "", false
	}
	return c.order[0], true
}

type harness struct {
	sched    *frame.Scheduler
	rec      *surface.Recorder
	bus      *events.Bus
	view     ViewState
	catalog  *fakeCatalog
	director *Director
}

// eastboundRoute runs along the equator with n vertices 0.01° apart
func eastboundRoute(n int) route.Route {
	r := make(route.Route, n)
	for i := range r {
		r[i] = geo.Coordinate{Lng: float64(i) * 0.01, Elevation: float64(i)}
	}
	return r
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	r := eastboundRoute(40)
	wps, err := route.RecomputeWaypoints(r, []route.Waypoint{
		{ID: "camp-1", Coordinates: orb.Point{0.03, 0}},
		{ID: "camp-2", Coordinates: orb.Point{0.2, 0}},
	})
	require.NoError(t, err)

	h := &harness{
		sched: frame.NewManual(epoch),
		rec:   surface.NewRecorder(orb.Bound{Min: orb.Point{-10, -10}, Max: orb.Point{10, 10}}, 2),
		bus:   events.NewBus(),
		catalog: &fakeCatalog{
			order: []string{"alps", "coast"},
			journeys: map[string]journey{
				"alps":  {route: r, waypoints: wps},
				"coast": {route: eastboundRoute(3)},
			},
		},
	}
	h.director = NewDirector(h.sched, surface.NewHandles(h.rec), h.bus, func() ViewState { return h.view }, h.catalog, DefaultOptions())
	return h
}

func TestDirector_RotatesAfterQuiescence(t *testing.T) {
	h := newHarness(t)
	h.director.Start()

	h.sched.Advance(3900 * time.Millisecond)
	assert.Equal(t, Idle, h.director.State())
	assert.Empty(t, h.rec.Poses())

	h.sched.Advance(200 * time.Millisecond)
	assert.Equal(t, Rotating, h.director.State())

	h.sched.Advance(time.Second)
	pose, ok := h.rec.LastPose()
	require.True(t, ok)
	assert.InDelta(t, -3.0, pose.Center[0], 0.4, "longitude decreases at the rotation rate")
	assert.Equal(t, 0.0, pose.Center[1])

	poses := h.rec.Poses()
	for i := 1; i < len(poses); i++ {
		assert.Less(t, poses[i].Center[0], poses[i-1].Center[0])
	}
}

func TestDirector_DragStopsRotation(t *testing.T) {
	h := newHarness(t)
	var states []string
	h.bus.CameraState.Subscribe(func(e events.CameraState) { states = append(states, e.To) })

	h.director.Start()
	h.sched.Advance(5 * time.Second)
	require.Equal(t, Rotating, h.director.State())

	h.director.HandleInteraction(surface.Interaction{Kind: surface.DragStart})
	assert.Equal(t, Idle, h.director.State())

	count := len(h.rec.Poses())
	h.sched.Advance(3 * time.Second)
	assert.Len(t, h.rec.Poses(), count, "no rotation frames after a gesture")

	h.sched.Advance(1500 * time.Millisecond)
	assert.Equal(t, Rotating, h.director.State(), "rotation resumes after another quiet period")
	assert.Equal(t, []string{"rotating", "idle", "rotating"}, states)
}

func TestDirector_NoRotationWithSelection(t *testing.T) {
	h := newHarness(t)
	h.view = ViewState{Mode: ModeJourneySelected, SelectedJourneyID: "alps"}
	h.director.Start()

	h.sched.Advance(10 * time.Second)
	assert.Equal(t, Idle, h.director.State())

	h.view = ViewState{}
	h.director.ViewChanged()
	h.sched.Advance(5 * time.Second)
	assert.Equal(t, Rotating, h.director.State())

	h.view = ViewState{Mode: ModeJourneySelected, SelectedJourneyID: "alps"}
	h.director.ViewChanged()
	assert.Equal(t, Idle, h.director.State())
}

func TestDirector_NewFlightSupersedesOld(t *testing.T) {
	h := newHarness(t)
	var completed []uint64
	h.bus.FlightCompleted.Subscribe(func(e events.Flight) { completed = append(completed, e.ID) })

	aDone, bDone := false, false
	a := surface.CameraTarget{Center: orb.Point{10, 10}, Zoom: 5, Duration: time.Second}
	b := surface.CameraTarget{Center: orb.Point{-20, 5}, Zoom: 6, Duration: time.Second}

	h.director.RequestFlight(a, FlightManual, func() { aDone = true })
	h.sched.Advance(100 * time.Millisecond)
	idB := h.director.RequestFlight(b, FlightManual, func() { bDone = true })
	assert.Equal(t, Flying, h.director.State())

	h.sched.Advance(3 * time.Second)
	assert.False(t, aDone, "superseded completion never fires")
	assert.True(t, bDone)
	assert.Equal(t, []uint64{idB}, completed)
	assert.Equal(t, b, h.director.Pose())
	assert.Equal(t, Idle, h.director.State())

	last, _ := h.rec.LastPose()
	assert.Equal(t, b.Center, last.Center)
}

func TestDirector_RecoversInterruptedOverviewFlight(t *testing.T) {
	h := newHarness(t)
	var interrupted int
	h.bus.FlightInterrupted.Subscribe(func(events.Flight) { interrupted++ })

	h.director.FlyToOverview()
	h.sched.Advance(200 * time.Millisecond)
	h.director.HandleInteraction(surface.Interaction{Kind: surface.Wheel})

	assert.Equal(t, Idle, h.director.State())
	assert.Equal(t, 1, interrupted)
	target, ok := h.director.Unreached()
	require.True(t, ok)
	assert.Equal(t, DefaultOptions().OverviewCenter, target.Center)

	before := len(h.rec.Poses())
	h.director.HandleInteraction(surface.Interaction{Kind: surface.MoveEnd})
	require.Len(t, h.rec.Poses(), before+1)
	_, kind, ok := h.director.ActiveFlight()
	require.True(t, ok)
	assert.Equal(t, FlightRecovery, kind)

	// The recovery is one-shot
	h.sched.Advance(5 * time.Second)
	count := len(h.rec.Poses())
	h.director.HandleInteraction(surface.Interaction{Kind: surface.MoveEnd})
	assert.Len(t, h.rec.Poses(), count)
}

func TestDirector_NoRecoveryOutsideOverview(t *testing.T) {
	h := newHarness(t)
	h.director.FlyToOverview()
	h.director.HandleInteraction(surface.Interaction{Kind: surface.TouchStart})

	h.view = ViewState{Mode: ModeJourneySelected, SelectedJourneyID: "alps"}
	before := len(h.rec.Poses())
	h.director.HandleInteraction(surface.Interaction{Kind: surface.MoveEnd})
	assert.Len(t, h.rec.Poses(), before)
	assert.Equal(t, Idle, h.director.State())
}

func TestDirector_RecenterWithoutSelectionPicksFirstJourney(t *testing.T) {
	h := newHarness(t)
	var selected string
	h.director.OnSelectJourney(func(id string) { selected = id })

	h.director.Start()
	h.sched.Advance(5 * time.Second)
	require.Equal(t, Rotating, h.director.State())

	require.NoError(t, h.director.Recenter())
	assert.Equal(t, "alps", selected)
	assert.Equal(t, Idle, h.director.State())

	h.catalog.order = nil
	assert.ErrorIs(t, h.director.Recenter(), ErrNoJourneys)
}

func TestDirector_RecenterWithEmptyCatalogResumesRotation(t *testing.T) {
	h := newHarness(t)
	h.director.Start()
	h.sched.Advance(5 * time.Second)
	require.Equal(t, Rotating, h.director.State())

	h.catalog.order = nil
	assert.ErrorIs(t, h.director.Recenter(), ErrNoJourneys)
	assert.Equal(t, Idle, h.director.State())

	h.sched.Advance(3900 * time.Millisecond)
	assert.Equal(t, Idle, h.director.State())
	h.sched.Advance(200 * time.Millisecond)
	assert.Equal(t, Rotating, h.director.State(), "nothing selected, so the globe turns again")
}

func TestDirector_RecenterFitsSelectedJourney(t *testing.T) {
	h := newHarness(t)
	h.view = ViewState{Mode: ModeJourneySelected, SelectedJourneyID: "alps"}

	require.NoError(t, h.director.Recenter())
	pose := h.director.Pose()
	assert.InDelta(t, 0.195, pose.Center[0], 1e-9)
	assert.Greater(t, pose.Zoom, 2.0)
	assert.LessOrEqual(t, pose.Zoom, DefaultOptions().MaxFitZoom)
	_, kind, _ := h.director.ActiveFlight()
	assert.Equal(t, FlightJourney, kind)

	h.view = ViewState{Mode: ModeJourneySelected, SelectedJourneyID: "missing"}
	assert.ErrorIs(t, h.director.Recenter(), ErrUnknownJourney)
}

func TestDirector_RecenterRefocusesWaypoint(t *testing.T) {
	h := newHarness(t)
	h.view = ViewState{Mode: ModeWaypointFocused, SelectedJourneyID: "alps", SelectedWaypointID: "camp-2"}

	require.NoError(t, h.director.Recenter())
	pose := h.director.Pose()
	assert.Equal(t, orb.Point{0.2, 0}, pose.Center)
	assert.Equal(t, 55.0, pose.Pitch)
}

func TestFocusBearing(t *testing.T) {
	r := eastboundRoute(40)
	wps, err := route.RecomputeWaypoints(r, []route.Waypoint{
		{ID: "early", Coordinates: orb.Point{0.03, 0}},
		{ID: "late", Coordinates: orb.Point{0.2, 0.0}},
	})
	require.NoError(t, err)
	early, late := wps[0], wps[1]

	explicit := 200.0
	withBearing := late
	withBearing.Bearing = &explicit
	assert.Equal(t, 200.0, FocusBearing(r, wps, withBearing, 5))

	// 20 samples behind the late camp: look along the route from 5 samples back (east)
	assert.InDelta(t, 90.0, FocusBearing(r, wps, late, 5), 0.01)

	// Only 3 samples behind the early camp and no previous waypoint
	assert.Equal(t, 0.0, FocusBearing(r, wps, early, 5))

	// Too few samples behind, falls back to the previous waypoint
	north := route.Waypoint{ID: "north", Coordinates: orb.Point{0.03, 0.05}, RoutePointIndex: early.RoutePointIndex}
	withNorth := []route.Waypoint{early, north}
	assert.InDelta(t, 0.0, FocusBearing(r, withNorth, north, 5), 0.01)
	east := route.Waypoint{ID: "east", Coordinates: orb.Point{0.05, 0}, RoutePointIndex: early.RoutePointIndex}
	assert.InDelta(t, 90.0, FocusBearing(r, []route.Waypoint{early, east}, east, 5), 0.01)
}

func TestFocusTarget_Pitch(t *testing.T) {
	r := eastboundRoute(5)
	wp := route.Waypoint{ID: "w", Coordinates: orb.Point{0.02, 0}}
	opts := DefaultOptions()

	assert.Equal(t, 55.0, FocusTarget(r, nil, wp, opts).Pitch)
	pitch := 30.0
	wp.Pitch = &pitch
	target := FocusTarget(r, nil, wp, opts)
	assert.Equal(t, 30.0, target.Pitch)
	assert.Equal(t, opts.FocusZoom, target.Zoom)
}

func TestDirector_HighlightAppliesOnNextFrame(t *testing.T) {
	h := newHarness(t)
	h.view = ViewState{Mode: ModeWaypointFocused, SelectedJourneyID: "alps", SelectedWaypointID: "camp-2"}

	_, err := h.director.FocusWaypoint("alps", "camp-2")
	require.NoError(t, err)
	_, ok := h.rec.Line(surface.HighlightLayer)
	assert.False(t, ok, "highlight waits for the next frame")

	h.sched.Step(epoch.Add(20 * time.Millisecond))
	line, ok := h.rec.Line(surface.HighlightLayer)
	require.True(t, ok)
	assert.Len(t, line, 18, "from camp-1 (index 3) to camp-2 (index 20)")
}

func TestDirector_StaleHighlightIsDropped(t *testing.T) {
	h := newHarness(t)

	h.view = ViewState{Mode: ModeWaypointFocused, SelectedJourneyID: "alps", SelectedWaypointID: "camp-2"}
	_, err := h.director.FocusWaypoint("alps", "camp-2")
	require.NoError(t, err)

	h.view = ViewState{Mode: ModeWaypointFocused, SelectedJourneyID: "alps", SelectedWaypointID: "camp-1"}
	_, err = h.director.FocusWaypoint("alps", "camp-1")
	require.NoError(t, err)

	h.sched.Advance(100 * time.Millisecond)

	writes := 0
	for _, id := range h.rec.LineWrites() {
		if id == surface.HighlightLayer {
			writes++
		}
	}
	assert.Equal(t, 1, writes, "only the newest highlight is drawn")
	line, ok := h.rec.Line(surface.HighlightLayer)
	require.True(t, ok)
	assert.Len(t, line, 4, "route start to camp-1")

	h.director.ClearHighlight()
	_, ok = h.rec.Line(surface.HighlightLayer)
	assert.False(t, ok)
}

func TestDirector_RefreshHighlightUsesEditedGeometry(t *testing.T) {
	h := newHarness(t)
	h.view = ViewState{Mode: ModeWaypointFocused, SelectedJourneyID: "alps", SelectedWaypointID: "camp-2"}
	_, err := h.director.FocusWaypoint("alps", "camp-2")
	require.NoError(t, err)
	h.sched.Advance(20 * time.Millisecond)

	j := h.catalog.journeys["alps"]
	moved := append(route.Route(nil), j.route...)
	moved[10].Lat = 0.5
	h.catalog.journeys["alps"] = journey{route: moved, waypoints: j.waypoints}

	require.NoError(t, h.director.RefreshHighlight("alps", "camp-2"))
	h.sched.Advance(20 * time.Millisecond)

	line, ok := h.rec.Line(surface.HighlightLayer)
	require.True(t, ok)
	require.Len(t, line, 18)
	assert.Equal(t, 0.5, line[7].Lat, "vertex 10 is the eighth point after camp-1")

	assert.ErrorIs(t, h.director.RefreshHighlight("alps", "nope"), ErrUnknownWaypoint)
	assert.ErrorIs(t, h.director.RefreshHighlight("nope", "camp-2"), ErrUnknownJourney)
}

func TestDirector_FocusUnknown(t *testing.T) {
	h := newHarness(t)
	_, err := h.director.FocusWaypoint("alps", "nope")
	assert.ErrorIs(t, err, ErrUnknownWaypoint)
	_, err = h.director.FocusWaypoint("nope", "camp-1")
	assert.ErrorIs(t, err, ErrUnknownJourney)
}

func TestDirector_FollowSupersedesFlight(t *testing.T) {
	h := newHarness(t)
	done := false
	h.director.RequestFlight(surface.CameraTarget{Center: orb.Point{5, 5}, Duration: time.Second}, FlightManual, func() { done = true })
	h.director.Follow(surface.CameraTarget{Center: orb.Point{1, 1}})

	h.sched.Advance(2 * time.Second)
	assert.False(t, done)
	assert.Equal(t, orb.Point{1, 1}, h.director.Pose().Center)
}

func TestViewState_Validate(t *testing.T) {
	assert.NoError(t, ViewState{}.Validate())
	assert.NoError(t, ViewState{Mode: ModeJourneySelected, SelectedJourneyID: "j"}.Validate())
	assert.NoError(t, ViewState{Mode: ModeWaypointFocused, SelectedJourneyID: "j", SelectedWaypointID: "w"}.Validate())

	assert.ErrorIs(t, ViewState{Mode: ModeOverview, SelectedJourneyID: "j"}.Validate(), ErrInvalidViewState)
	assert.ErrorIs(t, ViewState{Mode: ModeWaypointFocused, SelectedWaypointID: "w"}.Validate(), ErrInvalidViewState)
	assert.ErrorIs(t, ViewState{Mode: ModeJourneySelected}.Validate(), ErrInvalidViewState)
	assert.ErrorIs(t, ViewState{Mode: Mode(9)}.Validate(), ErrInvalidViewState)
}

func TestFitZoom(t *testing.T) {
	vp := orb.Bound{Min: orb.Point{-10, -10}, Max: orb.Point{10, 10}}
	b := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{5, 2}}
	assert.InDelta(t, 4.0, FitZoom(b, vp, 2, 20), 1e-9)
	assert.Equal(t, 3.0, FitZoom(b, vp, 2, 3), "clamped to the max")
	assert.Equal(t, 14.0, FitZoom(orb.Bound{Min: orb.Point{1, 1}, Max: orb.Point{1, 1}}, vp, 2, 14))
}
