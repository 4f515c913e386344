// Package surface defines the contract with the map rendering surface.
//
// The surface is an opaque drawing target: it accepts camera poses, line layers and marker
// sets, reports its viewport, and emits interaction events. Nothing in the core reads or
// writes the surface's pose except through these primitives.
package surface

import (
	"time"

	"github.com/paulmach/orb"

	"github.com/dpup/trailglobe/server/internal/lib/geo"
)

// Easing names the interpolation the surface uses for an animated camera move
type Easing string

const (
	EaseInOut Easing = "easeInOut"
	Linear    Easing = "linear"
	Jump      Easing = "none"
)

// CameraTarget declares where the camera should end up and how to get there
type CameraTarget struct {
	Center   orb.Point     `json:"center"`
	Zoom     float64       `json:"zoom"`
	Pitch    float64       `json:"pitch"`
	Bearing  float64       `json:"bearing"`
	Duration time.Duration `json:"-"`
	Easing   Easing        `json:"easing"`
}

// Marker is a single point placed on a marker layer
type Marker struct {
	ID          string            `json:"id"`
	Coordinates orb.Point         `json:"coordinates"`
	Count       int               `json:"count,omitempty"`
	Properties  map[string]string `json:"properties,omitempty"`
}

// Surface is the rendering engine as seen by the core. Passing an empty geometry or
// marker set clears that layer.
type Surface interface {
	SetCameraPose(target CameraTarget)
	SetLineGeometry(id string, coords []geo.Coordinate)
	SetMarkerSet(id string, markers []Marker)
	ViewportBounds() orb.Bound
	Zoom() float64
}

// InteractionKind identifies a user interaction reported by the surface
type InteractionKind string

const (
	DragStart   InteractionKind = "dragStart"
	Wheel       InteractionKind = "wheel"
	TouchStart  InteractionKind = "touchStart"
	MoveEnd     InteractionKind = "moveEnd"
	ZoomChanged InteractionKind = "zoomChanged"
	Click       InteractionKind = "click"
)

// IsGesture reports whether the interaction is the user taking hold of the camera
func (k InteractionKind) IsGesture() bool {
	switch k {
	case DragStart, Wheel, TouchStart:
		return true
	}
	return false
}

// Interaction is an event emitted by the surface
type Interaction struct {
	Kind    InteractionKind `json:"kind"`
	Point   *orb.Point      `json:"point,omitempty"`
	LayerID string          `json:"layer_id,omitempty"`
	Zoom    float64         `json:"zoom,omitempty"`
	Bounds  *orb.Bound      `json:"bounds,omitempty"`
}

// Layer ids drawn by the map components
const (
	RouteLayer     = "route"
	HighlightLayer = "route-highlight"
	WaypointLayer  = "waypoints"
	PhotoLayer     = "photos"
	PlaybackLayer  = "playback-position"
)
