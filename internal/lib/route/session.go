package route

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"
)

// ErrSessionClosed is returned for edits after Commit or Cancel
var ErrSessionClosed = errors.New("edit session is closed")

// defaultHistoryLimit bounds the undo stack
const defaultHistoryLimit = 100

// Snapshot is an immutable view of a journey's route and waypoints
type Snapshot struct {
	JourneyID string     `json:"journey_id"`
	Route     Route      `json:"route"`
	Waypoints []Waypoint `json:"waypoints"`
}

func (s Snapshot) clone() Snapshot {
	return Snapshot{JourneyID: s.JourneyID, Route: s.Route.Clone(), Waypoints: CloneWaypoints(s.Waypoints)}
}

// EditSession exclusively owns a route and its waypoints while an operator edits them.
// Every edit goes through the pure route functions and is followed by a waypoint
// recompute, so day numbers always follow route order. Not safe for concurrent use.
type EditSession struct {
	original Snapshot
	current  Snapshot
	undo     []Snapshot
	redo     []Snapshot
	limit    int
	closed   bool
}

// NewEditSession starts editing a copy of the given route and waypoints
func NewEditSession(journeyID string, r Route, wps []Waypoint) (*EditSession, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	recomputed, err := RecomputeWaypoints(r, wps)
	if err != nil {
		return nil, err
	}

	start := Snapshot{JourneyID: journeyID, Route: r.Clone(), Waypoints: recomputed}
	return &EditSession{
		original: start.clone(),
		current:  start,
		limit:    defaultHistoryLimit,
	}, nil
}

// JourneyID returns the journey being edited
func (s *EditSession) JourneyID() string { return s.current.JourneyID }

// Snapshot returns a copy of the current state
func (s *EditSession) Snapshot() Snapshot { return s.current.clone() }

// Route returns a copy of the current route
func (s *EditSession) Route() Route { return s.current.Route.Clone() }

// Waypoints returns a copy of the current waypoints in route order
func (s *EditSession) Waypoints() []Waypoint { return CloneWaypoints(s.current.Waypoints) }

// apply records the current state for undo and installs next
func (s *EditSession) apply(r Route, wps []Waypoint) error {
	if s.closed {
		return ErrSessionClosed
	}
	recomputed, err := RecomputeWaypoints(r, wps)
	if err != nil {
		return err
	}

	s.undo = append(s.undo, s.current)
	if len(s.undo) > s.limit {
		s.undo = s.undo[len(s.undo)-s.limit:]
	}
	s.redo = nil
	s.current = Snapshot{JourneyID: s.current.JourneyID, Route: r, Waypoints: recomputed}
	return nil
}

// InsertPoint inserts a vertex near click and returns its index
func (s *EditSession) InsertPoint(click orb.Point) (int, error) {
	if s.closed {
		return -1, ErrSessionClosed
	}
	next, at, err := InsertPoint(s.current.Route, click)
	if err != nil {
		return -1, err
	}
	return at, s.apply(next, s.current.Waypoints)
}

// DeletePoint removes the vertex at index
func (s *EditSession) DeletePoint(index int) error {
	if s.closed {
		return ErrSessionClosed
	}
	next, err := DeletePoint(s.current.Route, index)
	if err != nil {
		return err
	}
	return s.apply(next, s.current.Waypoints)
}

// MovePoint moves the vertex at index to p
func (s *EditSession) MovePoint(index int, p orb.Point) error {
	if s.closed {
		return ErrSessionClosed
	}
	next, err := MovePoint(s.current.Route, index, p)
	if err != nil {
		return err
	}
	return s.apply(next, s.current.Waypoints)
}

// AddWaypoint snaps wp onto the route and adds it
func (s *EditSession) AddWaypoint(wp Waypoint) error {
	if s.closed {
		return ErrSessionClosed
	}
	if FindWaypoint(s.current.Waypoints, wp.ID) >= 0 {
		return fmt.Errorf("waypoint %q already exists", wp.ID)
	}
	snapped, err := SnapWaypoint(s.current.Route, wp)
	if err != nil {
		return err
	}
	wps := append(CloneWaypoints(s.current.Waypoints), snapped)
	return s.apply(s.current.Route.Clone(), wps)
}

// MoveWaypoint drags waypoint id to p, snapping it onto the route
func (s *EditSession) MoveWaypoint(id string, p orb.Point) error {
	if s.closed {
		return ErrSessionClosed
	}
	i := FindWaypoint(s.current.Waypoints, id)
	if i < 0 {
		return fmt.Errorf("waypoint %q not found", id)
	}

	wps := CloneWaypoints(s.current.Waypoints)
	wps[i].Coordinates = p
	snapped, err := SnapWaypoint(s.current.Route, wps[i])
	if err != nil {
		return err
	}
	wps[i] = snapped
	return s.apply(s.current.Route.Clone(), wps)
}

// RemoveWaypoint drops waypoint id
func (s *EditSession) RemoveWaypoint(id string) error {
	if s.closed {
		return ErrSessionClosed
	}
	i := FindWaypoint(s.current.Waypoints, id)
	if i < 0 {
		return fmt.Errorf("waypoint %q not found", id)
	}
	wps := CloneWaypoints(s.current.Waypoints)
	wps = append(wps[:i], wps[i+1:]...)
	return s.apply(s.current.Route.Clone(), wps)
}

// CanUndo reports whether Undo would change anything
func (s *EditSession) CanUndo() bool { return !s.closed && len(s.undo) > 0 }

// CanRedo reports whether Redo would change anything
func (s *EditSession) CanRedo() bool { return !s.closed && len(s.redo) > 0 }

// Undo reverts the last edit
func (s *EditSession) Undo() bool {
	if !s.CanUndo() {
		return false
	}
	s.redo = append(s.redo, s.current)
	s.current = s.undo[len(s.undo)-1]
	s.undo = s.undo[:len(s.undo)-1]
	return true
}

// Redo re-applies the last undone edit
func (s *EditSession) Redo() bool {
	if !s.CanRedo() {
		return false
	}
	s.undo = append(s.undo, s.current)
	s.current = s.redo[len(s.redo)-1]
	s.redo = s.redo[:len(s.redo)-1]
	return true
}

// Modified reports whether the session differs from the state it started with
func (s *EditSession) Modified() bool {
	return len(s.undo) > 0
}

// Commit closes the session and returns the edited state for persistence
func (s *EditSession) Commit() (Snapshot, error) {
	if s.closed {
		return Snapshot{}, ErrSessionClosed
	}
	s.closed = true
	return s.current.clone(), nil
}

// Cancel closes the session and returns the state it started with
func (s *EditSession) Cancel() Snapshot {
	s.closed = true
	return s.original.clone()
}
