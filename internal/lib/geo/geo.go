package geo

import (
	"errors"
	"math"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/planar"
)

// ErrInvalidCoordinate is returned for points outside the lng/lat domain
var ErrInvalidCoordinate = errors.New("invalid coordinates: latitude must be [-90, 90], longitude must be [-180, 180]")

// ErrEmpty is returned when a point sequence has no points
var ErrEmpty = errors.New("point sequence has no points")

// DistanceMeters calculates great-circle distance between two points using the Haversine formula
func DistanceMeters(p1, p2 orb.Point) float64 {
	if p1 == p2 {
		return 0
	}
	return orbgeo.DistanceHaversine(p1, p2)
}

// DistanceKm is DistanceMeters in kilometers
func DistanceKm(p1, p2 orb.Point) float64 {
	return DistanceMeters(p1, p2) / 1000
}

// Bearing returns the initial bearing from one point to another in degrees, normalized to [0, 360)
func Bearing(from, to orb.Point) float64 {
	if from == to {
		return 0
	}
	return NormalizeBearing(orbgeo.Bearing(from, to))
}

// NormalizeBearing wraps any angle in degrees into [0, 360)
func NormalizeBearing(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}

// NormalizeLongitude wraps a longitude into [-180, 180)
func NormalizeLongitude(lng float64) float64 {
	lng = math.Mod(lng+180, 360)
	if lng < 0 {
		lng += 360
	}
	return lng - 180
}

// NearestIndex finds the index of the coordinate closest to point.
// Ties resolve to the first coordinate in iteration order.
func NearestIndex(point orb.Point, coords []Coordinate) (int, error) {
	if len(coords) == 0 {
		return -1, ErrEmpty
	}

	minIdx := 0
	minDistance := math.Inf(1)
	for i, c := range coords {
		d := DistanceMeters(point, c.Point())
		if d < minDistance {
			minDistance = d
			minIdx = i
		}
	}
	return minIdx, nil
}

// Midpoint is the planar midpoint of two lng/lat points.
// Good enough for the short segments of a hand-edited route.
func Midpoint(a, b orb.Point) orb.Point {
	return orb.Point{(a[0] + b[0]) / 2, (a[1] + b[1]) / 2}
}

// NearestSegment returns the index of the segment [i, i+1] whose midpoint is
// closest to point in planar degrees. Ties resolve to the first segment.
func NearestSegment(point orb.Point, coords []Coordinate) (int, error) {
	if len(coords) < 2 {
		return -1, ErrEmpty
	}

	minIdx := 0
	minDistance := math.Inf(1)
	for i := 0; i < len(coords)-1; i++ {
		mid := Midpoint(coords[i].Point(), coords[i+1].Point())
		d := planar.DistanceSquared(point, mid)
		if d < minDistance {
			minDistance = d
			minIdx = i
		}
	}
	return minIdx, nil
}

// Bounds returns the lng/lat bounding box of the coordinates
func Bounds(coords []Coordinate) (orb.Bound, error) {
	if len(coords) == 0 {
		return orb.Bound{}, ErrEmpty
	}
	return orb.MultiPoint(Points(coords)).Bound(), nil
}

// PadDegrees grows a bound by d degrees on every side, clamped to the lng/lat domain
func PadDegrees(b orb.Bound, d float64) orb.Bound {
	padded := b.Pad(d)
	padded.Min[0] = math.Max(padded.Min[0], -180)
	padded.Min[1] = math.Max(padded.Min[1], -90)
	padded.Max[0] = math.Min(padded.Max[0], 180)
	padded.Max[1] = math.Min(padded.Max[1], 90)
	return padded
}

// DegreesPerPixel approximates the longitude span of one screen pixel at a web-mercator zoom level
func DegreesPerPixel(zoom float64, tileSize int) float64 {
	if tileSize <= 0 {
		tileSize = 512
	}
	return 360 / (float64(tileSize) * math.Pow(2, zoom))
}

// NewPoint creates a Point from longitude and latitude values with validation
func NewPoint(longitude, latitude float64) (orb.Point, error) {
	point := orb.Point{longitude, latitude}
	if !IsValid(point) {
		return orb.Point{}, ErrInvalidCoordinate
	}
	return point, nil
}

// IsValid validates latitude and longitude values
func IsValid(point orb.Point) bool {
	return point.Lat() >= -90 && point.Lat() <= 90 &&
		point.Lon() >= -180 && point.Lon() <= 180 &&
		!math.IsNaN(point.Lat()) && !math.IsNaN(point.Lon())
}
