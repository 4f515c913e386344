package frame

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func TestScheduler_RequestFrameRunsOnce(t *testing.T) {
	s := NewManual(epoch)
	calls := 0
	s.RequestFrame(func(time.Time) { calls++ })

	s.Advance(5 * DefaultInterval)
	assert.Equal(t, 1, calls)
}

func TestScheduler_FramesRequestedDuringFrameWaitForNext(t *testing.T) {
	s := NewManual(epoch)
	var frames []time.Time

	var tick Callback
	tick = func(now time.Time) {
		frames = append(frames, now)
		if len(frames) < 3 {
			s.RequestFrame(tick)
		}
	}
	s.RequestFrame(tick)

	s.Step(epoch.Add(time.Millisecond))
	assert.Len(t, frames, 1)
	s.Advance(time.Second)
	require.Len(t, frames, 3)
	assert.True(t, frames[1].After(frames[0]))
}

func TestScheduler_AfterFiresWhenDue(t *testing.T) {
	s := NewManual(epoch)
	var firedAt time.Time
	s.After(100*time.Millisecond, func(now time.Time) { firedAt = now })

	s.Advance(90 * time.Millisecond)
	assert.True(t, firedAt.IsZero())

	s.Advance(20 * time.Millisecond)
	assert.False(t, firedAt.IsZero())
	assert.False(t, firedAt.Before(epoch.Add(100*time.Millisecond)))
}

func TestScheduler_TimersRunInDueOrder(t *testing.T) {
	s := NewManual(epoch)
	var order []string
	s.After(30*time.Millisecond, func(time.Time) { order = append(order, "late") })
	s.After(10*time.Millisecond, func(time.Time) { order = append(order, "early") })
	s.After(10*time.Millisecond, func(time.Time) { order = append(order, "early-2") })

	s.Step(epoch.Add(time.Second))
	assert.Equal(t, []string{"early", "early-2", "late"}, order)
}

func TestScheduler_Cancel(t *testing.T) {
	s := NewManual(epoch)
	fired := false
	h := s.After(10*time.Millisecond, func(time.Time) { fired = true })
	f := s.RequestFrame(func(time.Time) { fired = true })

	assert.True(t, s.Pending(h))
	s.Cancel(h)
	s.Cancel(f)
	s.Cancel(0)
	assert.False(t, s.Pending(h))

	s.Advance(time.Second)
	assert.False(t, fired)
}

func TestScheduler_TimerCanCancelFrame(t *testing.T) {
	s := NewManual(epoch)
	fired := false
	f := s.RequestFrame(func(time.Time) { fired = true })
	s.After(0, func(time.Time) { s.Cancel(f) })

	s.Step(epoch.Add(time.Millisecond))
	assert.False(t, fired)
}

func TestScheduler_PostRunsFirst(t *testing.T) {
	s := NewManual(epoch)
	var order []string
	s.RequestFrame(func(time.Time) { order = append(order, "frame") })
	s.Post(func() { order = append(order, "posted") })

	s.Step(epoch.Add(time.Millisecond))
	assert.Equal(t, []string{"posted", "frame"}, order)
}

func TestScheduler_ManualDoRunsInline(t *testing.T) {
	s := NewManual(epoch)
	ran := false
	require.NoError(t, s.Do(context.Background(), func() { ran = true }))
	assert.True(t, ran)
}

func TestScheduler_RunExecutesPostedWork(t *testing.T) {
	s := New(time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	ran := false
	require.NoError(t, s.Do(ctx, func() { ran = true }))
	assert.True(t, ran)
}

func TestScheduler_RunSurvivesPanics(t *testing.T) {
	s := New(time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	s.Post(func() { panic("boom") })
	ran := false
	require.NoError(t, s.Do(ctx, func() { ran = true }))
	assert.True(t, ran)
}

func TestScheduler_RunSurvivesTimerPanics(t *testing.T) {
	s := New(time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	fired := make(chan struct{})
	require.NoError(t, s.Do(ctx, func() {
		s.After(time.Millisecond, func(time.Time) { panic("timer boom") })
		s.After(5*time.Millisecond, func(time.Time) { close(fired) })
	}))

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer after the panicking one never fired")
	}

	ran := false
	require.NoError(t, s.Do(ctx, func() { ran = true }))
	assert.True(t, ran)
}

func TestScheduler_RecoversWithoutRunContext(t *testing.T) {
	s := New(time.Hour)
	assert.NotPanics(t, func() {
		s.call(func() { panic("before run") })
	})
}

func TestScheduler_DoHonorsContext(t *testing.T) {
	s := New(time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := s.Do(ctx, func() {})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
