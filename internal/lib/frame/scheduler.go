// Package frame provides the cooperative, frame-driven scheduler every animation runs on.
//
// All callbacks registered on a Scheduler run on the single goroutine that calls Step
// (directly, through Advance, or through Run). Registration and Post are safe from any
// goroutine, so request handlers can hand work to the animation loop without sharing
// state with it.
package frame

import (
	"context"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/dpup/prefab/errors"
	"github.com/dpup/prefab/logging"
)

// DefaultInterval is the frame interval used when none is configured (~60fps)
const DefaultInterval = 16 * time.Millisecond

// Handle identifies a registered frame callback or timer. The zero Handle is never issued.
type Handle uint64

// Callback receives the scheduler time of the frame it runs in
type Callback func(now time.Time)

type timer struct {
	id  Handle
	due time.Time
	cb  Callback
}

type frameRequest struct {
	id Handle
	cb Callback
}

// Scheduler queues next-frame callbacks, timers and posted work
type Scheduler struct {
	mu       sync.Mutex
	now      time.Time
	nextID   Handle
	frames   []frameRequest
	timers   []timer
	posted   []func()
	interval time.Duration
	manual   bool
	runCtx   context.Context
}

// New creates a scheduler driven by Run at the given frame interval
func New(interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{interval: interval, now: time.Now()}
}

// NewManual creates a scheduler whose clock only moves through Advance or Step.
// Do runs its function inline, which keeps tests on one goroutine.
func NewManual(start time.Time) *Scheduler {
	return &Scheduler{interval: DefaultInterval, now: start, manual: true}
}

// Interval returns the frame interval
func (s *Scheduler) Interval() time.Duration { return s.interval }

// Now returns the time of the most recent frame
func (s *Scheduler) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

func (s *Scheduler) id() Handle {
	s.nextID++
	return s.nextID
}

// RequestFrame registers cb to run once on the next frame
func (s *Scheduler) RequestFrame(cb Callback) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.id()
	s.frames = append(s.frames, frameRequest{id: h, cb: cb})
	return h
}

// After registers cb to run on the first frame at least d after the current frame
func (s *Scheduler) After(d time.Duration, cb Callback) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.id()
	s.timers = append(s.timers, timer{id: h, due: s.now.Add(d), cb: cb})
	return h
}

// Cancel removes a pending frame callback or timer. Cancelling a handle that already
// ran, or the zero handle, is a no-op.
func (s *Scheduler) Cancel(h Handle) {
	if h == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, f := range s.frames {
		if f.id == h {
			s.frames = append(s.frames[:i], s.frames[i+1:]...)
			return
		}
	}
	for i, t := range s.timers {
		if t.id == h {
			s.timers = append(s.timers[:i], s.timers[i+1:]...)
			return
		}
	}
}

// Pending reports whether h is still queued
func (s *Scheduler) Pending(h Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.frames {
		if f.id == h {
			return true
		}
	}
	for _, t := range s.timers {
		if t.id == h {
			return true
		}
	}
	return false
}

// Post queues fn to run at the start of the next frame
func (s *Scheduler) Post(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posted = append(s.posted, fn)
}

// Do runs fn on the scheduler goroutine and waits for it to finish
func (s *Scheduler) Do(ctx context.Context, fn func()) error {
	if s.manual {
		fn()
		return nil
	}

	done := make(chan struct{})
	s.Post(func() {
		defer close(done)
		fn()
	})

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Step runs one frame at time now: posted work, then due timers, then the frame
// callbacks that were registered before the frame started. Anything registered while
// the frame runs waits for the next one.
func (s *Scheduler) Step(now time.Time) {
	s.mu.Lock()
	if now.After(s.now) {
		s.now = now
	}
	posted := s.posted
	s.posted = nil

	var due []timer
	remaining := s.timers[:0]
	for _, t := range s.timers {
		if !t.due.After(s.now) {
			due = append(due, t)
		} else {
			remaining = append(remaining, t)
		}
	}
	s.timers = remaining
	frameNow := s.now
	s.mu.Unlock()

	for _, fn := range posted {
		s.call(fn)
	}

	sort.Slice(due, func(i, j int) bool {
		if !due[i].due.Equal(due[j].due) {
			return due[i].due.Before(due[j].due)
		}
		return due[i].id < due[j].id
	})
	for _, t := range due {
		cb := t.cb
		s.call(func() { cb(frameNow) })
	}

	// Frame callbacks are taken after timers so a timer can cancel or request frames
	s.mu.Lock()
	frames := s.frames
	s.frames = nil
	s.mu.Unlock()

	for _, f := range frames {
		cb := f.cb
		s.call(func() { cb(frameNow) })
	}
}

// Advance moves a manual scheduler forward by d, stepping once per frame interval
func (s *Scheduler) Advance(d time.Duration) {
	end := s.Now().Add(d)
	for t := s.Now(); t.Before(end); {
		t = t.Add(s.interval)
		if t.After(end) {
			t = end
		}
		s.Step(t)
	}
}

// Run drives the scheduler from a ticker until ctx is cancelled
func (s *Scheduler) Run(ctx context.Context) {
	ctx = logging.EnsureLogger(ctx)
	s.mu.Lock()
	s.runCtx = ctx
	s.mu.Unlock()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.Step(now)
		}
	}
}

// call runs one callback. A panic in a running loop is logged and the frame carries on;
// manual schedulers let it propagate so tests see it.
func (s *Scheduler) call(fn func()) {
	if s.manual {
		fn()
		return
	}

	defer func() {
		if r := recover(); r != nil {
			s.mu.Lock()
			ctx := s.runCtx
			s.mu.Unlock()
			if ctx == nil {
				ctx = logging.EnsureLogger(context.Background())
			}

			err, _ := errors.ParseStack(debug.Stack())
			skipFrames := 3
			numFrames := 5
			logging.Errorw(ctx, "Frame scheduler: recovered from panic",
				"error", r, "error.stack_trace", err.MinimalStack(skipFrames, numFrames))
		}
	}()
	fn()
}
