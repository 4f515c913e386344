package export

import (
	"fmt"
	"image/color"
	"io"
	"time"

	"github.com/twpayne/go-kml"

	"github.com/dpup/trailglobe/server/internal/lib/route"
)

var routeColor = color.RGBA{R: 0xe8, G: 0x4a, B: 0x27, A: 0xff}

const (
	routeStyleID     = "route"
	waypointStyle    = "camp"
	waypointIconHref = "https://maps.google.com/mapfiles/kml/shapes/campground.png"
)

// KMLDocument builds a KML document with the route as an absolute-altitude line and
// one placemark per waypoint, described with the stats of the leg leading to it
func KMLDocument(name string, r route.Route, wps []route.Waypoint) (*kml.CompoundElement, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	legs, err := route.Legs(r, wps)
	if err != nil {
		return nil, err
	}
	legByWaypoint := make(map[string]route.Leg, len(legs))
	for _, leg := range legs {
		legByWaypoint[leg.ToID] = leg
	}

	coords := make([]kml.Coordinate, len(r))
	for i, c := range r {
		coords[i] = kml.Coordinate{Lon: c.Lng, Lat: c.Lat, Alt: c.Elevation}
	}

	children := []kml.Element{
		kml.Name(name),
		kml.SharedStyle(routeStyleID,
			kml.LineStyle(kml.Color(routeColor), kml.Width(3)),
		),
		kml.SharedStyle(waypointStyle,
			kml.IconStyle(kml.Icon(kml.Href(waypointIconHref))),
		),
		kml.Placemark(
			kml.Name(name),
			kml.Description(fmt.Sprintf("%.1f km", route.Length(r))),
			kml.StyleURL("#"+routeStyleID),
			kml.LineString(
				kml.Tessellate(true),
				kml.AltitudeMode(kml.AltitudeModeAbsolute),
				kml.Coordinates(coords...),
			),
		),
	}

	for _, wp := range wps {
		desc := fmt.Sprintf("Day %d", wp.DayNumber)
		if leg, ok := legByWaypoint[wp.ID]; ok {
			desc = fmt.Sprintf("Day %d: %.1f km, +%.0f m / -%.0f m, about %s",
				wp.DayNumber, leg.Stats.DistanceKm, leg.Stats.ElevationGainM, leg.Stats.ElevationLossM,
				leg.Stats.EstimatedDuration.Round(time.Minute))
		}
		children = append(children, kml.Placemark(
			kml.Name(wp.Name),
			kml.Description(desc),
			kml.StyleURL("#"+waypointStyle),
			kml.Point(kml.Coordinates(kml.Coordinate{Lon: wp.Coordinates[0], Lat: wp.Coordinates[1], Alt: wp.Elevation})),
		))
	}

	return kml.KML(kml.Document(children...)), nil
}

// WriteKML writes the journey as an indented KML document
func WriteKML(w io.Writer, name string, r route.Route, wps []route.Waypoint) error {
	doc, err := KMLDocument(name, r, wps)
	if err != nil {
		return err
	}
	if err := doc.WriteIndent(w, "", "  "); err != nil {
		return fmt.Errorf("failed to write KML: %w", err)
	}
	return nil
}
