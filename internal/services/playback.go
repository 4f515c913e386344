package services

import (
	"context"
	"fmt"
	"time"

	"github.com/dpup/trailglobe/server/internal/lib/camera"
)

// StartPlayback walks the camera along a journey. durationHint overrides the
// journey's own duration when positive. Starting again replaces the running playback.
func (s *MapService) StartPlayback(ctx context.Context, journeyID string, durationHint time.Duration) error {
	return s.do(ctx, func() error {
		j, ok := s.catalog[journeyID]
		if !ok {
			return fmt.Errorf("%w: %s", camera.ErrUnknownJourney, journeyID)
		}
		if s.session != nil && s.session.JourneyID() == journeyID {
			return fmt.Errorf("%w: %s", ErrEditInProgress, journeyID)
		}
		if durationHint <= 0 {
			durationHint = j.PlaybackDuration
		}
		r, wps, _ := s.Journey(journeyID)
		return s.player.Start(journeyID, r, wps, durationHint, nil)
	})
}

// StopPlayback stops the running playback, if any
func (s *MapService) StopPlayback(ctx context.Context) error {
	return s.sched.Do(ctx, s.player.Stop)
}
