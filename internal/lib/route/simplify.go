package route

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/simplify"

	"github.com/dpup/trailglobe/server/internal/lib/geo"
)

// Simplify reduces the route with Douglas-Peucker at the given tolerance in degrees.
// Endpoints and vertex elevations are kept.
func Simplify(r Route, toleranceDeg float64) Route {
	if len(r) <= 2 || toleranceDeg <= 0 {
		return r.Clone()
	}

	// the simplifier works in place
	ls := geo.LineString(r).Clone()
	kept := simplify.DouglasPeucker(toleranceDeg).LineString(ls)

	// kept is an ordered subsequence of r, walk both to recover elevations
	out := make(Route, 0, len(kept))
	j := 0
	for _, p := range kept {
		for j < len(r) && r[j].Point() != p {
			j++
		}
		if j == len(r) {
			break
		}
		out = append(out, r[j])
		j++
	}
	return out
}

// ToleranceForBounds picks a simplification tolerance for the visible viewport.
// A deviation of ~0.1% of the viewport is imperceptible.
func ToleranceForBounds(b orb.Bound) float64 {
	minSpan := math.Min(b.Max.Lat()-b.Min.Lat(), b.Max.Lon()-b.Min.Lon())
	tolerance := minSpan * 0.001

	// ~1m to ~100m
	return math.Max(0.00001, math.Min(tolerance, 0.001))
}
