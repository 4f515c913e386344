package services

import (
	"context"
	"fmt"

	"github.com/dpup/prefab/logging"

	"github.com/dpup/trailglobe/server/internal/lib/camera"
	"github.com/dpup/trailglobe/server/internal/lib/events"
	"github.com/dpup/trailglobe/server/internal/lib/route"
	"github.com/dpup/trailglobe/server/internal/surface"
)

// SelectJourney selects a journey and fits the camera to its route
func (s *MapService) SelectJourney(ctx context.Context, id string) error {
	return s.do(ctx, func() error { return s.selectJourney(id) })
}

func (s *MapService) selectJourney(id string) error {
	if _, _, ok := s.Journey(id); !ok {
		return fmt.Errorf("%w: %s", camera.ErrUnknownJourney, id)
	}
	s.setView(camera.ViewState{Mode: camera.ModeJourneySelected, SelectedJourneyID: id})
	s.drawWaypoints()
	_, err := s.director.FitJourney(id)
	return err
}

// FocusWaypoint selects a waypoint and flies to it
func (s *MapService) FocusWaypoint(ctx context.Context, journeyID, waypointID string) error {
	return s.do(ctx, func() error {
		_, wps, ok := s.Journey(journeyID)
		if !ok {
			return fmt.Errorf("%w: %s", camera.ErrUnknownJourney, journeyID)
		}
		if route.FindWaypoint(wps, waypointID) < 0 {
			return fmt.Errorf("%w: %s", camera.ErrUnknownWaypoint, waypointID)
		}
		changedJourney := s.view.SelectedJourneyID != journeyID
		s.setView(camera.ViewState{Mode: camera.ModeWaypointFocused, SelectedJourneyID: journeyID, SelectedWaypointID: waypointID})
		if changedJourney {
			s.drawWaypoints()
		}
		_, err := s.director.FocusWaypoint(journeyID, waypointID)
		return err
	})
}

// ClearSelection returns to the world overview
func (s *MapService) ClearSelection(ctx context.Context) error {
	return s.do(ctx, func() error {
		s.clearSelection()
		s.director.FlyToOverview()
		return nil
	})
}

func (s *MapService) clearSelection() {
	s.setView(camera.ViewState{Mode: camera.ModeOverview})
	s.director.ClearHighlight()
	s.drawWaypoints()
}

// Recenter flies back to the current selection, or selects the first journey
func (s *MapService) Recenter(ctx context.Context) error {
	return s.do(ctx, s.director.Recenter)
}

// RequestFlight flies the camera to an explicit target, superseding any animation
func (s *MapService) RequestFlight(ctx context.Context, target surface.CameraTarget) (uint64, error) {
	var id uint64
	err := s.do(ctx, func() error {
		id = s.director.RequestFlight(target, camera.FlightManual, nil)
		return nil
	})
	return id, err
}

// setView replaces the view state and tells the director and subscribers
func (s *MapService) setView(v camera.ViewState) {
	if v == s.view {
		return
	}
	s.view = v
	s.bus.SelectionChanged.Publish(events.SelectionChanged{
		Mode:       v.Mode.String(),
		JourneyID:  v.SelectedJourneyID,
		WaypointID: v.SelectedWaypointID,
	})
	s.director.ViewChanged()
}

// View returns the current view state
func (s *MapService) View(ctx context.Context) (camera.ViewState, error) {
	var v camera.ViewState
	err := s.sched.Do(ctx, func() { v = s.view })
	return v, err
}

// do runs fn on the scheduler goroutine and returns its error
func (s *MapService) do(ctx context.Context, fn func() error) error {
	var fnErr error
	if err := s.sched.Do(ctx, func() { fnErr = fn() }); err != nil {
		return err
	}
	return fnErr
}

func (s *MapService) logError(ctx context.Context, msg string, err error, kv ...interface{}) {
	logging.Errorw(logging.EnsureLogger(ctx), msg, append([]interface{}{"error", err}, kv...)...)
}
