package surface

import (
	"errors"

	"github.com/paulmach/orb"

	"github.com/dpup/trailglobe/server/internal/config"
	"github.com/dpup/trailglobe/server/internal/lib/geo"
)

// ErrConfigurationMissing means the surface has no access credential
var ErrConfigurationMissing = errors.New("rendering surface access token is not configured")

// Fallback stands in for a surface that could not be opened. It accepts and drops
// every command so the rest of the system keeps running, and reports why.
type Fallback struct {
	Reason error
}

func (f *Fallback) SetCameraPose(CameraTarget) {}
func (f *Fallback) SetLineGeometry(string, []geo.Coordinate) {}
func (f *Fallback) SetMarkerSet(string, []Marker) {}

// ViewportBounds reports the whole world
func (f *Fallback) ViewportBounds() orb.Bound {
	return orb.Bound{Min: orb.Point{-180, -85}, Max: orb.Point{180, 85}}
}

func (f *Fallback) Zoom() float64 { return 0 }

// Open creates the websocket surface for cfg. Without an access token it returns a
// Fallback together with ErrConfigurationMissing; callers keep the fallback and surface
// the error as a renderable state.
func Open(cfg config.SurfaceConfig, allowedOrigins []string) (Surface, error) {
	if cfg.AccessToken == "" {
		return &Fallback{Reason: ErrConfigurationMissing}, ErrConfigurationMissing
	}
	return NewBridge(cfg.AccessToken, allowedOrigins), nil
}

// FallbackReason returns the reason s is a fallback surface, or nil
func FallbackReason(s Surface) error {
	if f, ok := s.(*Fallback); ok {
		return f.Reason
	}
	return nil
}
