package route

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/paulmach/orb"

	"github.com/dpup/trailglobe/server/internal/lib/geo"
)

var (
	// ErrInvalidGeometry is returned when an operation would leave a route below MinPoints
	// vertices, or when it is handed a route too short to operate on
	ErrInvalidGeometry = errors.New("invalid route geometry")

	// ErrIndexOutOfRange is returned for vertex or segment indices outside the route
	ErrIndexOutOfRange = errors.New("route index out of range")
)

// MinPoints is the minimum vertex count of an editable route
const MinPoints = 2

// Route is an ordered polyline of 3D coordinates. Order defines distance from start.
// Functions in this package never modify a Route they are given.
type Route []geo.Coordinate

// Projection is the result of snapping a point onto a route
type Projection struct {
	Coordinates         geo.Coordinate `json:"coordinates"`
	DistanceFromStartKm float64        `json:"distance_from_start_km"`
	VertexIndex         int            `json:"vertex_index"`
}

// Segment is an inclusive vertex index range [Start, End]
type Segment struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Stats summarizes a stretch of route for between-waypoint statistics
type Stats struct {
	DistanceKm        float64       `json:"distance_km"`
	ElevationGainM    float64       `json:"elevation_gain_m"`
	ElevationLossM    float64       `json:"elevation_loss_m"`
	EstimatedDuration time.Duration `json:"estimated_duration"`
}

// Walking pace used for time estimates: flat speed plus a climbing penalty
const (
	flatSpeedKmh     = 4.0
	climbMetersPerHr = 600.0
)

// Clone returns a copy of the route that shares no memory with r
func (r Route) Clone() Route {
	if r == nil {
		return nil
	}
	out := make(Route, len(r))
	copy(out, r)
	return out
}

// Validate checks the route has enough vertices to be edited
func (r Route) Validate() error {
	if len(r) < MinPoints {
		return fmt.Errorf("%w: route has %d points, need at least %d", ErrInvalidGeometry, len(r), MinPoints)
	}
	return nil
}

// CumulativeDistances returns, for each vertex, the distance in km from the first vertex.
// The result is non-decreasing by construction.
func CumulativeDistances(r Route) []float64 {
	out := make([]float64, len(r))
	for i := 1; i < len(r); i++ {
		out[i] = out[i-1] + geo.DistanceKm(r[i-1].Point(), r[i].Point())
	}
	return out
}

// Length is the total route length in km
func Length(r Route) float64 {
	total := 0.0
	for i := 1; i < len(r); i++ {
		total += geo.DistanceKm(r[i-1].Point(), r[i].Point())
	}
	return total
}

// Project snaps point to the nearest route vertex and reports its distance from the start
func Project(point orb.Point, r Route) (Projection, error) {
	if len(r) == 0 {
		return Projection{}, fmt.Errorf("%w: cannot project onto an empty route", ErrInvalidGeometry)
	}

	idx, err := geo.NearestIndex(point, r)
	if err != nil {
		return Projection{}, err
	}

	distance := 0.0
	for i := 1; i <= idx; i++ {
		distance += geo.DistanceKm(r[i-1].Point(), r[i].Point())
	}

	return Projection{
		Coordinates:         r[idx],
		DistanceFromStartKm: distance,
		VertexIndex:         idx,
	}, nil
}

// InsertPoint adds click as a new vertex inside the segment whose midpoint is nearest to it.
// The new vertex takes the mean elevation of the segment endpoints. Returns the new route
// and the index of the inserted vertex.
func InsertPoint(r Route, click orb.Point) (Route, int, error) {
	if err := r.Validate(); err != nil {
		return r, -1, err
	}

	seg, err := geo.NearestSegment(click, r)
	if err != nil {
		return r, -1, fmt.Errorf("%w: %v", ErrInvalidGeometry, err)
	}

	at := seg + 1
	inserted := geo.At(click, neighborElevation(r, seg, seg+1))

	out := make(Route, 0, len(r)+1)
	out = append(out, r[:at]...)
	out = append(out, inserted)
	out = append(out, r[at:]...)
	return out, at, nil
}

// DeletePoint removes the vertex at index. A route is never reduced below MinPoints;
// callers are expected to surface the error rather than clamp.
func DeletePoint(r Route, index int) (Route, error) {
	if index < 0 || index >= len(r) {
		return r, fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, index, len(r))
	}
	if len(r)-1 < MinPoints {
		return r, fmt.Errorf("%w: deleting would leave %d points", ErrInvalidGeometry, len(r)-1)
	}

	out := make(Route, 0, len(r)-1)
	out = append(out, r[:index]...)
	out = append(out, r[index+1:]...)
	return out, nil
}

// MovePoint replaces the position of the vertex at index. Elevation is re-derived from
// the neighbors at that index using the same rule as InsertPoint.
func MovePoint(r Route, index int, p orb.Point) (Route, error) {
	if index < 0 || index >= len(r) {
		return r, fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, index, len(r))
	}
	if err := r.Validate(); err != nil {
		return r, err
	}

	out := r.Clone()
	out[index] = geo.At(p, neighborElevation(r, index-1, index+1))
	return out, nil
}

// neighborElevation is the arithmetic mean of the elevations at before and after.
// When only one of them exists on the route its elevation is used alone.
func neighborElevation(r Route, before, after int) float64 {
	hasBefore := before >= 0 && before < len(r)
	hasAfter := after >= 0 && after < len(r)

	switch {
	case hasBefore && hasAfter:
		return (r[before].Elevation + r[after].Elevation) / 2
	case hasBefore:
		return r[before].Elevation
	case hasAfter:
		return r[after].Elevation
	}
	return 0
}

// displayStride picks the sampling stride for a route with n vertices
func displayStride(n int) int {
	switch {
	case n < 100:
		return 1
	case n < 500:
		return 5
	case n < 2000:
		return 10
	}
	return int(math.Ceil(float64(n) / 200))
}

// SampleForDisplay returns a subsequence of vertex indices for drawing. When budget is
// positive the stride grows until the result has at most budget indices. The final
// index is always present so the drawn path reaches the end of the route.
func SampleForDisplay(r Route, budget int) []int {
	n := len(r)
	if n == 0 {
		return nil
	}
	if budget == 1 {
		return []int{n - 1}
	}

	stride := displayStride(n)
	if budget > 1 {
		needed := int(math.Ceil(float64(n-1) / float64(budget-1)))
		if needed > stride {
			stride = needed
		}
	}

	indices := make([]int, 0, n/stride+2)
	for i := 0; i < n; i += stride {
		indices = append(indices, i)
	}
	if indices[len(indices)-1] != n-1 {
		indices = append(indices, n-1)
	}
	return indices
}

func (s Segment) validate(r Route) error {
	if s.Start < 0 || s.End >= len(r) || s.Start > s.End {
		return fmt.Errorf("%w: segment [%d, %d] on %d points", ErrIndexOutOfRange, s.Start, s.End, len(r))
	}
	return nil
}

// SegmentDistance sums consecutive-vertex haversine distances over the segment, in km
func SegmentDistance(r Route, seg Segment) (float64, error) {
	if err := seg.validate(r); err != nil {
		return 0, err
	}
	total := 0.0
	for i := seg.Start + 1; i <= seg.End; i++ {
		total += geo.DistanceKm(r[i-1].Point(), r[i].Point())
	}
	return total, nil
}

// SegmentStats computes distance, elevation change and an estimated walking time for the segment.
// Elevations come from route vertices, which are interpolated on edit; they are fine for display
// but not for survey-grade statistics.
func SegmentStats(r Route, seg Segment) (Stats, error) {
	distance, err := SegmentDistance(r, seg)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{DistanceKm: distance}
	for i := seg.Start + 1; i <= seg.End; i++ {
		delta := r[i].Elevation - r[i-1].Elevation
		if delta > 0 {
			stats.ElevationGainM += delta
		} else {
			stats.ElevationLossM -= delta
		}
	}

	hours := distance/flatSpeedKmh + stats.ElevationGainM/climbMetersPerHr
	stats.EstimatedDuration = time.Duration(hours * float64(time.Hour))
	return stats, nil
}

// Slice returns a copy of the vertices covered by seg
func Slice(r Route, seg Segment) (Route, error) {
	if err := seg.validate(r); err != nil {
		return nil, err
	}
	return r[seg.Start : seg.End+1].Clone(), nil
}
