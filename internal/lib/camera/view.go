package camera

import (
	"errors"
	"time"

	"github.com/paulmach/orb"

	"github.com/dpup/trailglobe/server/internal/config"
	"github.com/dpup/trailglobe/server/internal/lib/route"
)

// ErrInvalidViewState is returned for a ViewState whose mode and selection disagree
var ErrInvalidViewState = errors.New("invalid view state")

// ErrUnknownJourney is returned when the catalog has no journey with the requested id
var ErrUnknownJourney = errors.New("unknown journey")

// ErrUnknownWaypoint is returned when a journey has no waypoint with the requested id
var ErrUnknownWaypoint = errors.New("unknown waypoint")

// ErrNoJourneys is returned by Recenter when there is nothing to select
var ErrNoJourneys = errors.New("no journeys available")

// Mode is what the user has selected
type Mode int

const (
	ModeOverview Mode = iota
	ModeJourneySelected
	ModeWaypointFocused
)

func (m Mode) String() string {
	switch m {
	case ModeOverview:
		return "overview"
	case ModeJourneySelected:
		return "journeySelected"
	case ModeWaypointFocused:
		return "waypointFocused"
	}
	return "unknown"
}

// ViewState is the selection owned by the application controller
type ViewState struct {
	Mode               Mode
	SelectedJourneyID  string
	SelectedWaypointID string
}

// Validate checks that the mode matches the selection
func (v ViewState) Validate() error {
	switch v.Mode {
	case ModeOverview:
		if v.SelectedJourneyID != "" || v.SelectedWaypointID != "" {
			return errors.Join(ErrInvalidViewState, errors.New("overview must not carry a selection"))
		}
	case ModeJourneySelected:
		if v.SelectedJourneyID == "" || v.SelectedWaypointID != "" {
			return errors.Join(ErrInvalidViewState, errors.New("journey mode needs exactly a journey"))
		}
	case ModeWaypointFocused:
		if v.SelectedJourneyID == "" || v.SelectedWaypointID == "" {
			return errors.Join(ErrInvalidViewState, errors.New("waypoint focus requires a journey and a waypoint"))
		}
	default:
		return ErrInvalidViewState
	}
	return nil
}

// ViewSource reads the current view state; the director never writes it
type ViewSource func() ViewState

// Catalog gives the director read access to journey geometry
type Catalog interface {
	Journey(id string) (route.Route, []route.Waypoint, bool)
	FirstJourneyID() (string, bool)
}

// State is the director's animation state
type State int

const (
	Idle State = iota
	Flying
	Rotating
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Flying:
		return "flying"
	case Rotating:
		return "rotating"
	}
	return "unknown"
}

// FlightKind labels why a flight was issued
type FlightKind string

const (
	FlightOverview FlightKind = "overview"
	FlightJourney  FlightKind = "journey"
	FlightWaypoint FlightKind = "waypoint"
	FlightRecovery FlightKind = "recovery"
	FlightManual   FlightKind = "manual"
)

// Options tunes the director
type Options struct {
	QuiescenceDelay   time.Duration
	RotationDegPerSec float64
	OverviewCenter    orb.Point
	OverviewZoom      float64
	FocusZoom         float64
	DefaultPitch      float64
	FlightDuration    time.Duration
	BackSamples       int
	FitPaddingPx      float64
	MaxFitZoom        float64
	TileSize          int
}

// OptionsFromConfig maps camera config onto director options
func OptionsFromConfig(cfg config.CameraConfig, tileSize int) Options {
	return Options{
		QuiescenceDelay:   cfg.QuiescenceDelay,
		RotationDegPerSec: cfg.RotationDegPerSec,
		OverviewCenter:    orb.Point{cfg.OverviewCenter.Longitude, cfg.OverviewCenter.Latitude},
		OverviewZoom:      cfg.OverviewZoom,
		FocusZoom:         cfg.FocusZoom,
		DefaultPitch:      cfg.DefaultPitch,
		FlightDuration:    cfg.FlightDuration,
		BackSamples:       cfg.BackSamples,
		FitPaddingPx:      cfg.FitPaddingPx,
		MaxFitZoom:        cfg.MaxFitZoom,
		TileSize:          tileSize,
	}
}

// DefaultOptions returns the options of the default configuration
func DefaultOptions() Options {
	cfg := config.DefaultConfig()
	return OptionsFromConfig(cfg.Camera, cfg.Surface.TileSize)
}
