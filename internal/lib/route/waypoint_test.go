package route

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func km(v float64) *float64 { return &v }

func straightRoute(n int) Route {
	r := make(Route, n)
	for i := range r {
		r[i].Lng = float64(i) * 0.01
		r[i].Elevation = float64(i) * 10
	}
	return r
}

func TestAssignDayNumbers_OrdersByRouteDistance(t *testing.T) {
	wps := []Waypoint{
		{ID: "five", RouteDistanceKm: km(5)},
		{ID: "two", RouteDistanceKm: km(2)},
		{ID: "eight", RouteDistanceKm: km(8)},
	}

	out := AssignDayNumbers(wps)
	require.Len(t, out, 3)
	assert.Equal(t, "two", out[0].ID)
	assert.Equal(t, 1, out[0].DayNumber)
	assert.Equal(t, "five", out[1].ID)
	assert.Equal(t, 2, out[1].DayNumber)
	assert.Equal(t, "eight", out[2].ID)
	assert.Equal(t, 3, out[2].DayNumber)

	assert.Equal(t, 0, wps[0].DayNumber, "input is not modified")
}

func TestAssignDayNumbers_UnprojectedGoLast(t *testing.T) {
	out := AssignDayNumbers([]Waypoint{
		{ID: "unknown"},
		{ID: "far", RouteDistanceKm: km(9)},
		{ID: "near", RouteDistanceKm: km(1)},
	})
	assert.Equal(t, []string{"near", "far", "unknown"}, []string{out[0].ID, out[1].ID, out[2].ID})
	assert.Equal(t, 3, out[2].DayNumber)
}

func TestRecomputeWaypoints_ProjectsAndMarksDirty(t *testing.T) {
	r := straightRoute(11)
	wps := []Waypoint{
		{ID: "end", Coordinates: orb.Point{0.1, 0.001}},
		{ID: "middle", Coordinates: orb.Point{0.049, 0}},
	}

	out, err := RecomputeWaypoints(r, wps)
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.Equal(t, "middle", out[0].ID)
	assert.Equal(t, 5, *out[0].RoutePointIndex)
	assert.Equal(t, 1, out[0].DayNumber)
	assert.True(t, out[0].Dirty)

	assert.Equal(t, "end", out[1].ID)
	assert.Equal(t, 10, *out[1].RoutePointIndex)
	assert.InDelta(t, Length(r), *out[1].RouteDistanceKm, 1e-9)

	for i := range out {
		out[i].Dirty = false
	}
	again, err := RecomputeWaypoints(r, out)
	require.NoError(t, err)
	assert.False(t, again[0].Dirty, "unchanged projection stays clean")
	assert.False(t, again[1].Dirty)

	_, err = RecomputeWaypoints(nil, wps)
	assert.ErrorIs(t, err, ErrInvalidGeometry)
}

func TestApproachSegmentAndLegs(t *testing.T) {
	r := straightRoute(11)
	wps, err := RecomputeWaypoints(r, []Waypoint{
		{ID: "a", Coordinates: orb.Point{0.03, 0}},
		{ID: "b", Coordinates: orb.Point{0.08, 0}},
	})
	require.NoError(t, err)

	seg, err := ApproachSegment(r, wps, "a")
	require.NoError(t, err)
	assert.Equal(t, Segment{Start: 0, End: 3}, seg)

	seg, err = ApproachSegment(r, wps, "b")
	require.NoError(t, err)
	assert.Equal(t, Segment{Start: 3, End: 8}, seg)

	_, err = ApproachSegment(r, wps, "missing")
	assert.Error(t, err)

	legs, err := Legs(r, wps)
	require.NoError(t, err)
	require.Len(t, legs, 2)
	assert.Equal(t, "", legs[0].FromID)
	assert.Equal(t, "a", legs[1].FromID)
	assert.Equal(t, 50.0, legs[1].Stats.ElevationGainM)
}

func TestClick_ReportsProgressAndNearestWaypoint(t *testing.T) {
	r := straightRoute(11)
	wps, err := RecomputeWaypoints(r, []Waypoint{
		{ID: "a", Coordinates: orb.Point{0.02, 0}},
		{ID: "b", Coordinates: orb.Point{0.09, 0}},
	})
	require.NoError(t, err)

	info, err := Click(r, wps, orb.Point{0.05, 0.0001})
	require.NoError(t, err)
	assert.Equal(t, 5, info.VertexIndex)
	assert.InDelta(t, 50, info.ProgressPercent, 0.01)
	require.NotNil(t, info.NearestWaypoint)
	assert.Equal(t, "a", info.NearestWaypoint.ID)

	info, err = Click(r, wps, orb.Point{0.08, 0})
	require.NoError(t, err)
	assert.Equal(t, "b", info.NearestWaypoint.ID)
}

func TestEditSession_DayNumbersFollowRouteAfterEdits(t *testing.T) {
	r := straightRoute(6)
	session, err := NewEditSession("j1", r, []Waypoint{
		{ID: "camp-1", Coordinates: orb.Point{0.01, 0}},
		{ID: "camp-2", Coordinates: orb.Point{0.04, 0}},
	})
	require.NoError(t, err)

	// Drag the last vertex back before the first camp, reversing the route's far end
	require.NoError(t, session.MovePoint(4, orb.Point{-0.02, 0}))
	require.NoError(t, session.MoveWaypoint("camp-2", orb.Point{-0.02, 0}))

	assertDaysFollowDistance(t, session.Waypoints())

	_, err = session.InsertPoint(orb.Point{0.015, 0.001})
	require.NoError(t, err)
	assertDaysFollowDistance(t, session.Waypoints())
}

func assertDaysFollowDistance(t *testing.T, wps []Waypoint) {
	t.Helper()
	for i := range wps {
		for j := range wps {
			a, b := wps[i], wps[j]
			require.NotNil(t, a.RouteDistanceKm)
			require.NotNil(t, b.RouteDistanceKm)
			if *a.RouteDistanceKm < *b.RouteDistanceKm {
				assert.Less(t, a.DayNumber, b.DayNumber, "%s before %s", a.ID, b.ID)
			}
		}
	}
}

func TestEditSession_UndoRedo(t *testing.T) {
	r := straightRoute(3)
	session, err := NewEditSession("j1", r, nil)
	require.NoError(t, err)
	assert.False(t, session.CanUndo())

	at, err := session.InsertPoint(orb.Point{0.005, 0})
	require.NoError(t, err)
	assert.Equal(t, 1, at)
	assert.Len(t, session.Route(), 4)

	require.True(t, session.Undo())
	assert.Equal(t, r, session.Route())
	require.True(t, session.Redo())
	assert.Len(t, session.Route(), 4)
	assert.False(t, session.Redo())
}

func TestEditSession_DeleteGuard(t *testing.T) {
	session, err := NewEditSession("j1", straightRoute(2), nil)
	require.NoError(t, err)

	err = session.DeletePoint(0)
	assert.ErrorIs(t, err, ErrInvalidGeometry)
	assert.Len(t, session.Route(), 2)
	assert.False(t, session.Modified())

	_, err = NewEditSession("j1", straightRoute(1), nil)
	assert.ErrorIs(t, err, ErrInvalidGeometry)
}

func TestEditSession_WaypointLifecycle(t *testing.T) {
	session, err := NewEditSession("j1", straightRoute(5), nil)
	require.NoError(t, err)

	require.NoError(t, session.AddWaypoint(Waypoint{ID: "w", Coordinates: orb.Point{0.021, 0.01}}))
	wps := session.Waypoints()
	require.Len(t, wps, 1)
	assert.Equal(t, orb.Point{0.02, 0}, wps[0].Coordinates, "waypoint snaps to the route")
	assert.Equal(t, 20.0, wps[0].Elevation)
	assert.Equal(t, 1, wps[0].DayNumber)

	assert.Error(t, session.AddWaypoint(Waypoint{ID: "w"}))
	require.NoError(t, session.RemoveWaypoint("w"))
	assert.Empty(t, session.Waypoints())
	assert.Error(t, session.RemoveWaypoint("w"))
}

func TestEditSession_CommitAndCancel(t *testing.T) {
	r := straightRoute(3)
	session, err := NewEditSession("j1", r, nil)
	require.NoError(t, err)
	require.NoError(t, session.MovePoint(1, orb.Point{0.01, 0.01}))

	cancelled := session.Cancel()
	assert.Equal(t, r, cancelled.Route)
	assert.ErrorIs(t, session.DeletePoint(0), ErrSessionClosed)

	session, err = NewEditSession("j1", r, nil)
	require.NoError(t, err)
	require.NoError(t, session.MovePoint(1, orb.Point{0.01, 0.01}))
	committed, err := session.Commit()
	require.NoError(t, err)
	assert.Equal(t, "j1", committed.JourneyID)
	assert.Equal(t, 0.01, committed.Route[1].Lat)

	_, err = session.Commit()
	assert.ErrorIs(t, err, ErrSessionClosed)
}
