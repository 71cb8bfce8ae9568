// Package facettest provides test utilities for code built on the
// dispatcher: a manual clock, a failing store, an event recorder, a
// rollout harness and a compliance suite for Connection
// implementations.
package facettest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blockberries/facetroute/dispatcher"
	"github.com/blockberries/facetroute/store"
	"github.com/blockberries/facetroute/types"
)

// Compile-time checks.
var (
	_ dispatcher.Clock    = (*ManualClock)(nil)
	_ dispatcher.Observer = (*Recorder)(nil)
	_ store.Store         = (*FlakyStore)(nil)
)

// Epoch0 is the default start time of a ManualClock.
var Epoch0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// ManualClock is a Clock that only moves when told to.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock returns a clock reading start, or Epoch0 if start is
// zero.
func NewManualClock(start time.Time) *ManualClock {
	if start.IsZero() {
		start = Epoch0
	}
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d and returns the new time.
func (c *ManualClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// Set moves the clock to t.
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// ErrInjected is returned by FlakyStore while FailSave is set.
var ErrInjected = errors.New("facettest: injected store failure")

// FlakyStore is an in-memory store whose saves can be made to fail.
type FlakyStore struct {
	inner *store.Memory

	// FailSave makes every Save return ErrInjected.
	FailSave atomic.Bool

	SaveCalls atomic.Int64
	LoadCalls atomic.Int64
}

// NewFlakyStore returns an empty FlakyStore.
func NewFlakyStore() *FlakyStore {
	return &FlakyStore{inner: store.NewMemory()}
}

func (s *FlakyStore) Load(ctx context.Context) (types.State, error) {
	s.LoadCalls.Add(1)
	return s.inner.Load(ctx)
}

func (s *FlakyStore) Save(ctx context.Context, st types.State) error {
	s.SaveCalls.Add(1)
	if s.FailSave.Load() {
		return ErrInjected
	}
	return s.inner.Save(ctx, st)
}

func (s *FlakyStore) Close() error { return s.inner.Close() }

// Recorder is an Observer that keeps every event.
type Recorder struct {
	mu     sync.Mutex
	events []types.Event
}

func (r *Recorder) OnEvent(ev types.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []types.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.Event(nil), r.events...)
}

// Kinds returns the kinds of the recorded events in order.
func (r *Recorder) Kinds() []types.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.EventKind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind
	}
	return out
}

// Reset discards recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}
