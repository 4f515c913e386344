package camera

import (
	"math"

	"github.com/paulmach/orb"

	"github.com/dpup/trailglobe/server/internal/lib/geo"
	"github.com/dpup/trailglobe/server/internal/lib/route"
	"github.com/dpup/trailglobe/server/internal/surface"
)

// FitZoom returns the zoom at which b fills a viewport that currently shows vp at
// zoom. The fit is relative: each zoom level halves the visible span.
func FitZoom(b, vp orb.Bound, zoom, maxZoom float64) float64 {
	w, h := b.Max[0]-b.Min[0], b.Max[1]-b.Min[1]
	if w <= 0 && h <= 0 {
		return maxZoom
	}

	vw, vh := vp.Max[0]-vp.Min[0], vp.Max[1]-vp.Min[1]
	if vw <= 0 || vh <= 0 {
		vw, vh, zoom = 360, 170, 0
	}

	fit := math.Inf(1)
	if w > 0 {
		fit = math.Min(fit, zoom+math.Log2(vw/w))
	}
	if h > 0 {
		fit = math.Min(fit, zoom+math.Log2(vh/h))
	}
	return math.Max(0, math.Min(fit, maxZoom))
}

// FitBounds builds a flat, north-up target showing b with paddingPx on every side
func FitBounds(b orb.Bound, s surface.Surface, opts Options) surface.CameraTarget {
	vp, zoom := s.ViewportBounds(), s.Zoom()

	// Padding is in pixels at the target zoom, so fit once unpadded to find it
	tight := FitZoom(b, vp, zoom, opts.MaxFitZoom)
	padded := geo.PadDegrees(b, opts.FitPaddingPx*geo.DegreesPerPixel(tight, opts.TileSize))

	return surface.CameraTarget{
		Center:   b.Center(),
		Zoom:     FitZoom(padded, vp, zoom, opts.MaxFitZoom),
		Pitch:    0,
		Bearing:  0,
		Duration: opts.FlightDuration,
		Easing:   surface.EaseInOut,
	}
}

// FocusBearing picks the heading for a waypoint shot: the waypoint's own bearing if it
// has one, else looking along the route from backSamples display samples behind it, else
// from the previous waypoint, else north.
func FocusBearing(r route.Route, wps []route.Waypoint, wp route.Waypoint, backSamples int) float64 {
	if wp.Bearing != nil {
		return geo.NormalizeBearing(*wp.Bearing)
	}

	if wp.RoutePointIndex != nil && backSamples > 0 {
		var behind []int
		for _, i := range route.SampleForDisplay(r, 0) {
			if i >= *wp.RoutePointIndex {
				break
			}
			behind = append(behind, i)
		}
		if len(behind) > backSamples {
			from := r[behind[len(behind)-backSamples]].Point()
			return geo.Bearing(from, wp.Coordinates)
		}
	}

	if prev, ok := route.PreviousWaypoint(wps, wp.ID); ok {
		return geo.Bearing(prev.Coordinates, wp.Coordinates)
	}
	return 0
}

// FocusTarget builds the camera target for a focused waypoint
func FocusTarget(r route.Route, wps []route.Waypoint, wp route.Waypoint, opts Options) surface.CameraTarget {
	pitch := opts.DefaultPitch
	if wp.Pitch != nil {
		pitch = *wp.Pitch
	}
	return surface.CameraTarget{
		Center:   wp.Coordinates,
		Zoom:     opts.FocusZoom,
		Pitch:    pitch,
		Bearing:  FocusBearing(r, wps, wp, opts.BackSamples),
		Duration: opts.FlightDuration,
		Easing:   surface.EaseInOut,
	}
}
