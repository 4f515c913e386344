package services

import (
	"context"
	"fmt"

	"github.com/paulmach/orb"

	"github.com/dpup/trailglobe/server/internal/lib/camera"
	"github.com/dpup/trailglobe/server/internal/lib/events"
	"github.com/dpup/trailglobe/server/internal/lib/route"
)

// BeginEdit opens an edit session on a journey. Only one journey can be edited at a
// time; beginning again on the same journey keeps the open session.
func (s *MapService) BeginEdit(ctx context.Context, journeyID string) error {
	return s.do(ctx, func() error {
		if s.session != nil {
			if s.session.JourneyID() == journeyID {
				return nil
			}
			return fmt.Errorf("%w: %s", ErrEditInProgress, s.session.JourneyID())
		}
		j, ok := s.catalog[journeyID]
		if !ok {
			return fmt.Errorf("%w: %s", camera.ErrUnknownJourney, journeyID)
		}
		session, err := route.NewEditSession(journeyID, j.Route, j.Waypoints)
		if err != nil {
			return err
		}
		if s.player.JourneyID() == journeyID {
			s.player.Stop()
		}
		s.session = session
		return nil
	})
}

// InsertPoint adds a vertex at the click, between the vertices of the nearest segment
func (s *MapService) InsertPoint(ctx context.Context, click orb.Point) (int, error) {
	var index int
	err := s.edit(ctx, func(session *route.EditSession) error {
		var err error
		index, err = session.InsertPoint(click)
		return err
	})
	return index, err
}

// DeletePoint removes a vertex
func (s *MapService) DeletePoint(ctx context.Context, index int) error {
	return s.edit(ctx, func(session *route.EditSession) error { return session.DeletePoint(index) })
}

// MovePoint moves a vertex
func (s *MapService) MovePoint(ctx context.Context, index int, p orb.Point) error {
	return s.edit(ctx, func(session *route.EditSession) error { return session.MovePoint(index, p) })
}

// AddWaypoint adds a camp to the journey being edited
func (s *MapService) AddWaypoint(ctx context.Context, wp route.Waypoint) error {
	return s.edit(ctx, func(session *route.EditSession) error { return session.AddWaypoint(wp) })
}

// MoveWaypoint moves a camp of the journey being edited
func (s *MapService) MoveWaypoint(ctx context.Context, id string, p orb.Point) error {
	return s.edit(ctx, func(session *route.EditSession) error { return session.MoveWaypoint(id, p) })
}

// RemoveWaypoint removes a camp from the journey being edited
func (s *MapService) RemoveWaypoint(ctx context.Context, id string) error {
	return s.edit(ctx, func(session *route.EditSession) error { return session.RemoveWaypoint(id) })
}

// Undo reverts the last edit; it reports false when there is nothing to undo
func (s *MapService) Undo(ctx context.Context) (bool, error) {
	var undone bool
	err := s.edit(ctx, func(session *route.EditSession) error {
		undone = session.Undo()
		return nil
	})
	return undone, err
}

// Redo re-applies the last undone edit
func (s *MapService) Redo(ctx context.Context) (bool, error) {
	var redone bool
	err := s.edit(ctx, func(session *route.EditSession) error {
		redone = session.Redo()
		return nil
	})
	return redone, err
}

// CommitEdit saves the edited journey to the provider, then closes the session and
// makes the edit part of the catalog. If the save fails the session stays open.
func (s *MapService) CommitEdit(ctx context.Context) (route.Snapshot, error) {
	var (
		session *route.EditSession
		snap    route.Snapshot
	)
	if err := s.do(ctx, func() error {
		if s.session == nil {
			return ErrNoEditSession
		}
		session = s.session
		snap = session.Snapshot()
		return nil
	}); err != nil {
		return route.Snapshot{}, err
	}

	if s.provider != nil {
		if err := s.provider.SaveJourney(ctx, snap); err != nil {
			return route.Snapshot{}, fmt.Errorf("failed to save journey %s: %w", snap.JourneyID, err)
		}
	}

	var committed route.Snapshot
	err := s.do(ctx, func() error {
		if s.session != session {
			return ErrNoEditSession
		}
		var err error
		committed, err = session.Commit()
		if err != nil {
			return err
		}
		s.session = nil
		j := s.catalog[committed.JourneyID]
		j.ID = committed.JourneyID
		j.Route = committed.Route
		j.Waypoints = committed.Waypoints
		for i := range j.Waypoints {
			j.Waypoints[i].Dirty = false
		}
		s.catalog[j.ID] = j
		s.afterEdit(committed, true)
		return nil
	})
	return committed, err
}

// CancelEdit discards the session and restores the journey as it was
func (s *MapService) CancelEdit(ctx context.Context) (route.Snapshot, error) {
	var original route.Snapshot
	err := s.do(ctx, func() error {
		if s.session == nil {
			return ErrNoEditSession
		}
		original = s.session.Cancel()
		s.session = nil
		s.afterEdit(original, false)
		return nil
	})
	return original, err
}

// EditSnapshot returns the working copy of the journey being edited
func (s *MapService) EditSnapshot(ctx context.Context) (route.Snapshot, error) {
	var snap route.Snapshot
	err := s.do(ctx, func() error {
		if s.session == nil {
			return ErrNoEditSession
		}
		snap = s.session.Snapshot()
		return nil
	})
	return snap, err
}

// edit applies fn to the open session and redraws on success. A failed edit leaves
// the route untouched.
func (s *MapService) edit(ctx context.Context, fn func(*route.EditSession) error) error {
	return s.do(ctx, func() error {
		if s.session == nil {
			return ErrNoEditSession
		}
		if err := fn(s.session); err != nil {
			return err
		}
		s.afterEdit(s.session.Snapshot(), false)
		return nil
	})
}

// afterEdit redraws the edited journey, keeps the selection valid and publishes the change
func (s *MapService) afterEdit(snap route.Snapshot, committed bool) {
	s.drawRoute(snap.JourneyID)

	if s.view.SelectedJourneyID == snap.JourneyID {
		if wid := s.view.SelectedWaypointID; wid != "" {
			if route.FindWaypoint(snap.Waypoints, wid) < 0 {
				s.setView(camera.ViewState{Mode: camera.ModeJourneySelected, SelectedJourneyID: snap.JourneyID})
				s.director.ClearHighlight()
			} else if err := s.director.RefreshHighlight(snap.JourneyID, wid); err != nil {
				s.logError(context.Background(), "Highlight refresh failed", err, "journey_id", snap.JourneyID)
			}
		}
		s.drawWaypoints()
	}

	s.bus.RouteChanged.Publish(events.RouteChanged{
		JourneyID: snap.JourneyID,
		Route:     snap.Route,
		Waypoints: snap.Waypoints,
		Committed: committed,
	})
}
