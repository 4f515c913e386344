package route

import (
	"fmt"
	"math"
	"sort"

	"github.com/paulmach/orb"
)

// Waypoint is a camp or stop along the route. RouteDistanceKm and RoutePointIndex are
// cached projections onto the current route and are recomputed on every change.
type Waypoint struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	DayNumber       int       `json:"day_number"`
	Coordinates     orb.Point `json:"coordinates"`
	Elevation       float64   `json:"elevation"`
	RouteDistanceKm *float64  `json:"route_distance_km"`
	RoutePointIndex *int      `json:"route_point_index"`
	Dirty           bool      `json:"dirty"`

	// Optional camera hints for the focused shot
	Bearing *float64 `json:"bearing,omitempty"`
	Pitch   *float64 `json:"pitch,omitempty"`
}

// Leg is the stretch of route between two consecutive waypoints
type Leg struct {
	FromID  string  `json:"from_id"` // empty for the route start
	ToID    string  `json:"to_id"`
	Segment Segment `json:"segment"`
	Stats   Stats   `json:"stats"`
}

// ClickInfo describes a click on the route line
type ClickInfo struct {
	Projection
	NearestWaypoint *Waypoint `json:"nearest_waypoint,omitempty"`
	ProgressPercent float64   `json:"progress_percent"`
}

// CloneWaypoints deep-copies waypoints, including the optional pointer fields
func CloneWaypoints(wps []Waypoint) []Waypoint {
	if wps == nil {
		return nil
	}
	out := make([]Waypoint, len(wps))
	for i, wp := range wps {
		out[i] = wp.clone()
	}
	return out
}

func (w Waypoint) clone() Waypoint {
	c := w
	if w.RouteDistanceKm != nil {
		d := *w.RouteDistanceKm
		c.RouteDistanceKm = &d
	}
	if w.RoutePointIndex != nil {
		i := *w.RoutePointIndex
		c.RoutePointIndex = &i
	}
	if w.Bearing != nil {
		b := *w.Bearing
		c.Bearing = &b
	}
	if w.Pitch != nil {
		p := *w.Pitch
		c.Pitch = &p
	}
	return c
}

// RecomputeWaypoints projects every waypoint onto r, marks the ones whose projection
// changed as dirty, and returns them sorted and numbered by distance along the route.
func RecomputeWaypoints(r Route, wps []Waypoint) ([]Waypoint, error) {
	if len(r) == 0 {
		return CloneWaypoints(wps), fmt.Errorf("%w: cannot project waypoints onto an empty route", ErrInvalidGeometry)
	}

	cumulative := CumulativeDistances(r)
	out := CloneWaypoints(wps)
	for i := range out {
		proj, err := Project(out[i].Coordinates, r)
		if err != nil {
			return nil, err
		}
		distance := cumulative[proj.VertexIndex]
		index := proj.VertexIndex

		if out[i].RouteDistanceKm == nil || *out[i].RouteDistanceKm != distance ||
			out[i].RoutePointIndex == nil || *out[i].RoutePointIndex != index {
			out[i].Dirty = true
		}
		out[i].RouteDistanceKm = &distance
		out[i].RoutePointIndex = &index
	}

	return AssignDayNumbers(out), nil
}

// AssignDayNumbers sorts waypoints by RouteDistanceKm and numbers them from 1.
// Waypoints without a projection go last in their original order. A day number
// change marks the waypoint dirty.
func AssignDayNumbers(wps []Waypoint) []Waypoint {
	out := CloneWaypoints(wps)
	sort.SliceStable(out, func(i, j int) bool {
		di, dj := out[i].RouteDistanceKm, out[j].RouteDistanceKm
		switch {
		case di == nil:
			return false
		case dj == nil:
			return true
		}
		return *di < *dj
	})

	for i := range out {
		day := i + 1
		if out[i].DayNumber != day {
			out[i].DayNumber = day
			out[i].Dirty = true
		}
	}
	return out
}

// SnapWaypoint moves a waypoint onto the nearest route vertex, taking its elevation
func SnapWaypoint(r Route, wp Waypoint) (Waypoint, error) {
	proj, err := Project(wp.Coordinates, r)
	if err != nil {
		return wp, err
	}
	out := wp.clone()
	out.Coordinates = proj.Coordinates.Point()
	out.Elevation = proj.Coordinates.Elevation
	out.Dirty = true
	return out, nil
}

// FindWaypoint returns the position of the waypoint with id in wps, or -1
func FindWaypoint(wps []Waypoint, id string) int {
	for i, wp := range wps {
		if wp.ID == id {
			return i
		}
	}
	return -1
}

// PreviousWaypoint returns the waypoint before id in route order, if there is one.
// wps must already be ordered by RecomputeWaypoints.
func PreviousWaypoint(wps []Waypoint, id string) (Waypoint, bool) {
	i := FindWaypoint(wps, id)
	if i <= 0 {
		return Waypoint{}, false
	}
	return wps[i-1], true
}

// ApproachSegment is the stretch of route leading to waypoint id: from the previous
// waypoint, or the route start for the first one.
func ApproachSegment(r Route, wps []Waypoint, id string) (Segment, error) {
	i := FindWaypoint(wps, id)
	if i < 0 {
		return Segment{}, fmt.Errorf("waypoint %q not found", id)
	}
	if wps[i].RoutePointIndex == nil {
		return Segment{}, fmt.Errorf("waypoint %q has no route projection", id)
	}

	seg := Segment{Start: 0, End: *wps[i].RoutePointIndex}
	if prev, ok := PreviousWaypoint(wps, id); ok && prev.RoutePointIndex != nil {
		seg.Start = *prev.RoutePointIndex
	}
	if seg.Start > seg.End {
		seg.Start, seg.End = seg.End, seg.Start
	}
	if err := seg.validate(r); err != nil {
		return Segment{}, err
	}
	return seg, nil
}

// Legs returns per-waypoint statistics from the previous waypoint (or route start)
func Legs(r Route, wps []Waypoint) ([]Leg, error) {
	var legs []Leg
	for i, wp := range wps {
		seg, err := ApproachSegment(r, wps, wp.ID)
		if err != nil {
			continue
		}
		stats, err := SegmentStats(r, seg)
		if err != nil {
			return nil, err
		}
		leg := Leg{ToID: wp.ID, Segment: seg, Stats: stats}
		if i > 0 {
			leg.FromID = wps[i-1].ID
		}
		legs = append(legs, leg)
	}
	return legs, nil
}

// Click resolves a click on the route line into a distance, progress and nearest waypoint
func Click(r Route, wps []Waypoint, point orb.Point) (ClickInfo, error) {
	proj, err := Project(point, r)
	if err != nil {
		return ClickInfo{}, err
	}

	info := ClickInfo{Projection: proj}
	if total := Length(r); total > 0 {
		info.ProgressPercent = proj.DistanceFromStartKm / total * 100
	}

	best := math.Inf(1)
	for _, wp := range wps {
		if wp.RouteDistanceKm == nil {
			continue
		}
		d := math.Abs(*wp.RouteDistanceKm - proj.DistanceFromStartKm)
		if d < best {
			best = d
			nearest := wp.clone()
			info.NearestWaypoint = &nearest
		}
	}
	return info, nil
}
