// Package export writes journeys and marker clusters in interchange formats
package export

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/dpup/trailglobe/server/internal/lib/cluster"
	"github.com/dpup/trailglobe/server/internal/lib/geo"
	"github.com/dpup/trailglobe/server/internal/lib/route"
)

// RouteFeatureCollection returns the route as a LineString feature followed by one
// Point feature per waypoint. Elevations ride along as a property because GeoJSON
// positions here are two-dimensional.
func RouteFeatureCollection(journeyID string, r route.Route, wps []route.Waypoint) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	line := geojson.NewFeature(geo.LineString(r))
	line.ID = journeyID
	elevations := make([]float64, len(r))
	for i, c := range r {
		elevations[i] = c.Elevation
	}
	line.Properties["kind"] = "route"
	line.Properties["journey_id"] = journeyID
	line.Properties["distance_km"] = route.Length(r)
	line.Properties["elevations"] = elevations
	fc.Append(line)

	for _, wp := range wps {
		f := geojson.NewFeature(wp.Coordinates)
		f.ID = wp.ID
		f.Properties["kind"] = "waypoint"
		f.Properties["name"] = wp.Name
		f.Properties["day_number"] = wp.DayNumber
		f.Properties["elevation"] = wp.Elevation
		if wp.RouteDistanceKm != nil {
			f.Properties["route_distance_km"] = *wp.RouteDistanceKm
		}
		fc.Append(f)
	}
	return fc
}

// ClusterFeatureCollection returns one Point feature per group, placed at its centroid
func ClusterFeatureCollection(groups []cluster.Group) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, g := range groups {
		f := geojson.NewFeature(g.Centroid)
		f.ID = g.Key
		f.Properties["count"] = len(g.Members)
		f.Properties["representative"] = g.Representative.ID
		if g.Representative.Thumbnail != "" {
			f.Properties["thumbnail"] = g.Representative.Thumbnail
		}
		fc.Append(f)
	}
	return fc
}

// RouteFromFeatureCollection reads the first LineString feature back into a route,
// restoring elevations when the feature carries them
func RouteFromFeatureCollection(fc *geojson.FeatureCollection) (route.Route, bool) {
	for _, f := range fc.Features {
		ls, ok := f.Geometry.(orb.LineString)
		if !ok {
			continue
		}
		r := make(route.Route, len(ls))
		elevations, _ := f.Properties["elevations"].([]interface{})
		for i, p := range ls {
			r[i] = geo.At(p, 0)
			if i < len(elevations) {
				if e, ok := elevations[i].(float64); ok {
					r[i].Elevation = e
				}
			}
		}
		return r, true
	}
	return nil, false
}
