package cluster

import (
	"math"

	"github.com/paulmach/orb"
)

// Regrouper decides when markers are regrouped: when the integer zoom level changes
// or the viewport settles, never on intermediate frames. Not safe for concurrent use.
type Regrouper struct {
	opts    Options
	markers []Marker
	groups  []Group
	zoom    int
	grouped bool
	passes  int
}

// NewRegrouper creates a regrouper with no markers
func NewRegrouper(opts Options) *Regrouper {
	return &Regrouper{opts: opts}
}

// SetMarkers replaces the marker dataset; the next trigger regroups
func (r *Regrouper) SetMarkers(markers []Marker) {
	r.markers = append([]Marker(nil), markers...)
	r.grouped = false
}

// Markers returns the current dataset
func (r *Regrouper) Markers() []Marker { return r.markers }

// ZoomChanged regroups only if the rounded zoom differs from the last pass
func (r *Regrouper) ZoomChanged(zoom float64, viewport orb.Bound) ([]Group, bool) {
	level := int(math.Round(zoom))
	if r.grouped && level == r.zoom {
		return r.groups, false
	}
	return r.regroup(level, viewport), true
}

// Settled regroups for the viewport the map came to rest on
func (r *Regrouper) Settled(zoom float64, viewport orb.Bound) []Group {
	return r.regroup(int(math.Round(zoom)), viewport)
}

func (r *Regrouper) regroup(level int, viewport orb.Bound) []Group {
	r.groups = GroupMarkers(r.markers, float64(level), viewport, r.opts)
	r.zoom = level
	r.grouped = true
	r.passes++
	return r.groups
}

// Groups returns the result of the last pass
func (r *Regrouper) Groups() []Group { return r.groups }

// Zoom returns the integer zoom of the last pass
func (r *Regrouper) Zoom() int { return r.zoom }

// Passes counts grouping passes
func (r *Regrouper) Passes() int { return r.passes }
