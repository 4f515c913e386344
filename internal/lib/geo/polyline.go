package geo

import (
	"errors"
	"fmt"

	"github.com/twpayne/go-polyline"
)

// elevationCodec encodes lat, lng and elevation triples. Elevation shares the
// 1e5 scale with the position so the result stays a single polyline string.
var elevationCodec = polyline.Codec{Dim: 3, Scale: 1e5}

// EncodeRoute encodes coordinates, elevation included, as a polyline string
func EncodeRoute(coords []Coordinate) string {
	raw := make([][]float64, len(coords))
	for i, c := range coords {
		raw[i] = []float64{c.Lat, c.Lng, c.Elevation}
	}
	return string(elevationCodec.EncodeCoords(nil, raw))
}

// DecodeRoute decodes a string produced by EncodeRoute
func DecodeRoute(encoded string) ([]Coordinate, error) {
	if encoded == "" {
		return nil, errors.New("encoded polyline string is empty")
	}

	raw, rest, err := elevationCodec.DecodeCoords([]byte(encoded))
	if err != nil {
		return nil, fmt.Errorf("failed to decode polyline: %w", err)
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("failed to decode polyline: %d trailing bytes", len(rest))
	}

	coords := make([]Coordinate, len(raw))
	for i, c := range raw {
		coords[i] = Coordinate{Lat: c[0], Lng: c[1], Elevation: c[2]}
		if !IsValid(coords[i].Point()) {
			return nil, ErrInvalidCoordinate
		}
	}
	return coords, nil
}

// DecodePolyline decodes a standard two-dimensional Google polyline string; elevation is zero
func DecodePolyline(encoded string) ([]Coordinate, error) {
	if encoded == "" {
		return nil, errors.New("encoded polyline string is empty")
	}

	raw, _, err := polyline.DecodeCoords([]byte(encoded))
	if err != nil {
		return nil, fmt.Errorf("failed to decode polyline: %w", err)
	}

	coords := make([]Coordinate, len(raw))
	for i, c := range raw {
		coords[i] = Coordinate{Lat: c[0], Lng: c[1]}
		if !IsValid(coords[i].Point()) {
			return nil, errors.New("decoded polyline contains invalid coordinates")
		}
	}
	return coords, nil
}

// EncodePolyline encodes coordinates as a standard two-dimensional Google polyline string
func EncodePolyline(coords []Coordinate) string {
	raw := make([][]float64, len(coords))
	for i, c := range coords {
		raw[i] = []float64{c.Lat, c.Lng}
	}
	return string(polyline.EncodeCoords(raw))
}
