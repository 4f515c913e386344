package surface

import (
	"sync"

	"github.com/paulmach/orb"

	"github.com/dpup/trailglobe/server/internal/lib/geo"
)

// Recorder is an in-memory Surface that records every command. Each camera pose moves
// its viewport immediately, keeping the viewport span and taking the target zoom.
type Recorder struct {
	mu          sync.Mutex
	poses       []CameraTarget
	lines       map[string][]geo.Coordinate
	lineWrites  []string
	markers     map[string][]Marker
	markerSets  int
	bounds      orb.Bound
	zoom        float64
	followPoses bool
}

// NewRecorder creates a recorder showing bounds at zoom
func NewRecorder(bounds orb.Bound, zoom float64) *Recorder {
	return &Recorder{
		lines:       make(map[string][]geo.Coordinate),
		markers:     make(map[string][]Marker),
		bounds:      bounds,
		zoom:        zoom,
		followPoses: true,
	}
}

// SetCameraPose implements Surface
func (r *Recorder) SetCameraPose(target CameraTarget) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.poses = append(r.poses, target)
	if r.followPoses {
		halfW := (r.bounds.Max[0] - r.bounds.Min[0]) / 2
		halfH := (r.bounds.Max[1] - r.bounds.Min[1]) / 2
		r.bounds = orb.Bound{
			Min: orb.Point{target.Center[0] - halfW, target.Center[1] - halfH},
			Max: orb.Point{target.Center[0] + halfW, target.Center[1] + halfH},
		}
		r.zoom = target.Zoom
	}
}

// SetLineGeometry implements Surface
func (r *Recorder) SetLineGeometry(id string, coords []geo.Coordinate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lineWrites = append(r.lineWrites, id)
	if len(coords) == 0 {
		delete(r.lines, id)
		return
	}
	r.lines[id] = append([]geo.Coordinate(nil), coords...)
}

// SetMarkerSet implements Surface
func (r *Recorder) SetMarkerSet(id string, markers []Marker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.markerSets++
	if len(markers) == 0 {
		delete(r.markers, id)
		return
	}
	r.markers[id] = append([]Marker(nil), markers...)
}

// ViewportBounds implements Surface
func (r *Recorder) ViewportBounds() orb.Bound {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bounds
}

// Zoom implements Surface
func (r *Recorder) Zoom() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.zoom
}

// SetViewport simulates the user moving the map
func (r *Recorder) SetViewport(bounds orb.Bound, zoom float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bounds = bounds
	r.zoom = zoom
}

// FollowPoses controls whether camera poses move the recorded viewport
func (r *Recorder) FollowPoses(follow bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.followPoses = follow
}

// Poses returns every camera pose issued so far
func (r *Recorder) Poses() []CameraTarget {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]CameraTarget(nil), r.poses...)
}

// LastPose returns the most recent camera pose
func (r *Recorder) LastPose() (CameraTarget, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.poses) == 0 {
		return CameraTarget{}, false
	}
	return r.poses[len(r.poses)-1], true
}

// Line returns the current geometry of a line layer
func (r *Recorder) Line(id string) ([]geo.Coordinate, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	coords, ok := r.lines[id]
	return coords, ok
}

// LineWrites returns the layer ids of every SetLineGeometry call in order
func (r *Recorder) LineWrites() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lineWrites...)
}

// MarkerSet returns the current markers of a marker layer
func (r *Recorder) MarkerSet(id string) ([]Marker, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	markers, ok := r.markers[id]
	return markers, ok
}

// MarkerSetCalls counts SetMarkerSet calls
func (r *Recorder) MarkerSetCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.markerSets
}
