package events

import (
	"github.com/paulmach/orb"

	"github.com/dpup/trailglobe/server/internal/lib/route"
)

// RouteChanged is published after an edit replaces a journey's route or waypoints
type RouteChanged struct {
	JourneyID string           `json:"journey_id"`
	Route     route.Route      `json:"route"`
	Waypoints []route.Waypoint `json:"waypoints"`
	Committed bool             `json:"committed"`
}

// RouteClicked reports a click on the route line
type RouteClicked struct {
	JourneyID string          `json:"journey_id"`
	Info      route.ClickInfo `json:"info"`
}

// WaypointReached fires once per waypoint during playback, in route order
type WaypointReached struct {
	JourneyID   string         `json:"journey_id"`
	Waypoint    route.Waypoint `json:"waypoint"`
	VertexIndex int            `json:"vertex_index"`
}

// SelectionChanged mirrors the controller's view state
type SelectionChanged struct {
	Mode       string `json:"mode"`
	JourneyID  string `json:"journey_id,omitempty"`
	WaypointID string `json:"waypoint_id,omitempty"`
}

// Flight describes a camera flight issued by the director
type Flight struct {
	ID     uint64    `json:"id"`
	Kind   string    `json:"kind"`
	Center orb.Point `json:"center"`
	Zoom   float64   `json:"zoom"`
}

// CameraState reports director state transitions (idle, flying, rotating)
type CameraState struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// PlaybackProgress is published on every playback frame and once on stop
type PlaybackProgress struct {
	JourneyID   string  `json:"journey_id"`
	VertexIndex int     `json:"vertex_index"`
	Fraction    float64 `json:"fraction"`
	Playing     bool    `json:"playing"`
}

// ClustersChanged is published after the photo markers are regrouped
type ClustersChanged struct {
	Zoom   int `json:"zoom"`
	Groups int `json:"groups"`
}
