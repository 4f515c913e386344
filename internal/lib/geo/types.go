package geo

import "github.com/paulmach/orb"

// Coordinate represents a route vertex: longitude, latitude and elevation in meters
type Coordinate struct {
	Lng       float64 `json:"lng"`
	Lat       float64 `json:"lat"`
	Elevation float64 `json:"elevation"`
}

// Point returns the planar lng/lat position of the coordinate
func (c Coordinate) Point() orb.Point {
	return orb.Point{c.Lng, c.Lat}
}

// WithPoint returns a copy of the coordinate moved to p, keeping elevation
func (c Coordinate) WithPoint(p orb.Point) Coordinate {
	return Coordinate{Lng: p.Lon(), Lat: p.Lat(), Elevation: c.Elevation}
}

// At builds a Coordinate from a lng/lat point and an elevation
func At(p orb.Point, elevation float64) Coordinate {
	return Coordinate{Lng: p.Lon(), Lat: p.Lat(), Elevation: elevation}
}

// Points projects coordinates to their lng/lat positions
func Points(coords []Coordinate) []orb.Point {
	points := make([]orb.Point, len(coords))
	for i, c := range coords {
		points[i] = c.Point()
	}
	return points
}

// LineString converts coordinates into an orb.LineString (elevation dropped)
func LineString(coords []Coordinate) orb.LineString {
	return orb.LineString(Points(coords))
}
