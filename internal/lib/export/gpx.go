package export

import (
	"errors"
	"fmt"
	"io"

	"github.com/paulmach/orb"
	"github.com/tkrajina/gpxgo/gpx"

	"github.com/dpup/trailglobe/server/internal/lib/geo"
	"github.com/dpup/trailglobe/server/internal/lib/route"
)

// ErrNoTrack is returned when a GPX document has neither track points nor route points
var ErrNoTrack = errors.New("gpx document has no track")

// ParseGPX reads a route and its camps from a GPX document. Track points make the
// route, falling back to GPX route points; GPX waypoints become camps, projected onto
// the route and numbered by distance.
func ParseGPX(data []byte) (route.Route, []route.Waypoint, error) {
	doc, err := gpx.ParseBytes(data)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse GPX: %w", err)
	}

	var r route.Route
	for _, track := range doc.Tracks {
		for _, segment := range track.Segments {
			for _, p := range segment.Points {
				r = append(r, coordinate(p))
			}
		}
	}
	if len(r) == 0 {
		for _, rte := range doc.Routes {
			for _, p := range rte.Points {
				r = append(r, coordinate(p))
			}
		}
	}
	if len(r) == 0 {
		return nil, nil, ErrNoTrack
	}
	if err := r.Validate(); err != nil {
		return nil, nil, err
	}

	wps := make([]route.Waypoint, 0, len(doc.Waypoints))
	for i, p := range doc.Waypoints {
		name := p.Name
		if name == "" {
			name = fmt.Sprintf("Camp %d", i+1)
		}
		c := coordinate(p)
		wps = append(wps, route.Waypoint{
			ID:          fmt.Sprintf("wpt-%d", i+1),
			Name:        name,
			Coordinates: c.Point(),
			Elevation:   c.Elevation,
		})
	}
	wps, err = route.RecomputeWaypoints(r, wps)
	if err != nil {
		return nil, nil, err
	}
	for i := range wps {
		wps[i].Dirty = false
	}
	return r, wps, nil
}

func coordinate(p gpx.GPXPoint) geo.Coordinate {
	var ele float64
	if p.Elevation.NotNull() {
		ele = p.Elevation.Value()
	}
	return geo.At(orb.Point{p.Longitude, p.Latitude}, ele)
}

// WriteGPX writes the journey as a GPX 1.1 document with one track and a waypoint per camp
func WriteGPX(w io.Writer, name string, r route.Route, wps []route.Waypoint) error {
	if err := r.Validate(); err != nil {
		return err
	}

	segment := gpx.GPXTrackSegment{Points: make([]gpx.GPXPoint, len(r))}
	for i, c := range r {
		segment.Points[i] = gpxPoint(c)
	}
	doc := gpx.GPX{
		Name:    name,
		Creator: "trailglobe",
		Tracks:  []gpx.GPXTrack{{Name: name, Segments: []gpx.GPXTrackSegment{segment}}},
	}
	for _, wp := range wps {
		p := gpxPoint(geo.At(wp.Coordinates, wp.Elevation))
		p.Name = wp.Name
		p.Type = fmt.Sprintf("day %d", wp.DayNumber)
		doc.Waypoints = append(doc.Waypoints, p)
	}

	data, err := doc.ToXml(gpx.ToXmlParams{Version: "1.1", Indent: true})
	if err != nil {
		return fmt.Errorf("failed to encode GPX: %w", err)
	}
	_, err = w.Write(data)
	return err
}

func gpxPoint(c geo.Coordinate) gpx.GPXPoint {
	p := gpx.GPXPoint{Point: gpx.Point{Latitude: c.Lat, Longitude: c.Lng}}
	p.Elevation = *gpx.NewNullableFloat64(c.Elevation)
	return p
}
