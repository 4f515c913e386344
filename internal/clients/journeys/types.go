package journeys

import (
	"fmt"
	"time"

	"github.com/paulmach/orb"

	"github.com/dpup/trailglobe/server/internal/lib/geo"
	"github.com/dpup/trailglobe/server/internal/lib/route"
)

// Provider wire format. Routes travel as three-dimensional encoded polylines
// (lat, lng, elevation).

type listJourneysResponse struct {
	Journeys []journeyPayload `json:"journeys"`
}

type journeyPayload struct {
	ID                 string            `json:"id"`
	Name               string            `json:"name"`
	Polyline           string            `json:"polyline"`
	Waypoints          []waypointPayload `json:"waypoints"`
	PlaybackDurationMs int64             `json:"playback_duration_ms,omitempty"`
	UpdatedAt          time.Time         `json:"updated_at,omitempty"`
}

type waypointPayload struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	DayNumber int      `json:"day_number"`
	Latitude  float64  `json:"lat"`
	Longitude float64  `json:"lng"`
	Elevation float64  `json:"elevation"`
	Bearing   *float64 `json:"bearing,omitempty"`
	Pitch     *float64 `json:"pitch,omitempty"`
}

type listPhotosResponse struct {
	Photos []photoPayload `json:"photos"`
}

type photoPayload struct {
	ID           string    `json:"id"`
	Latitude     *float64  `json:"lat"`
	Longitude    *float64  `json:"lng"`
	ThumbnailURL string    `json:"thumbnail_url"`
	TakenAt      time.Time `json:"taken_at"`
}

func (p journeyPayload) toJourney() (Journey, error) {
	coords, err := geo.DecodeRoute(p.Polyline)
	if err != nil {
		return Journey{}, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	r := route.Route(coords)
	if err := r.Validate(); err != nil {
		return Journey{}, err
	}

	wps := make([]route.Waypoint, len(p.Waypoints))
	for i, w := range p.Waypoints {
		wps[i] = route.Waypoint{
			ID:          w.ID,
			Name:        w.Name,
			DayNumber:   w.DayNumber,
			Coordinates: orb.Point{w.Longitude, w.Latitude},
			Elevation:   w.Elevation,
			Bearing:     w.Bearing,
			Pitch:       w.Pitch,
		}
	}
	wps, err = route.RecomputeWaypoints(r, wps)
	if err != nil {
		return Journey{}, err
	}
	for i := range wps {
		wps[i].Dirty = false
	}

	return Journey{
		ID:               p.ID,
		Name:             p.Name,
		Route:            r,
		Waypoints:        wps,
		PlaybackDuration: time.Duration(p.PlaybackDurationMs) * time.Millisecond,
		UpdatedAt:        p.UpdatedAt,
	}, nil
}
