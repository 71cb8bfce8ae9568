package dispatcher

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/blockberries/facetroute/merkle"
	"github.com/blockberries/facetroute/store"
	"github.com/blockberries/facetroute/types"
)

// Clock supplies the current time for the activation delay.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads the wall clock.
var SystemClock Clock = ClockFunc(time.Now)

// Observer receives every successful transition. OnEvent runs while
// the dispatcher's write lock is held, so events arrive in commit
// order; implementations must not block or call back into the
// dispatcher.
type Observer interface {
	OnEvent(ev types.Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ev types.Event)

func (f ObserverFunc) OnEvent(ev types.Event) { f(ev) }

// Recorder receives the outcome of every governance call. outcome is
// "ok" or the error kind name.
type Recorder interface {
	ObserveOp(op, outcome string, elapsed time.Duration)
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithClock replaces the wall clock, typically with a manual clock in
// tests.
func WithClock(c Clock) Option {
	return func(d *Dispatcher) { d.clock = c }
}

// WithHasher selects the Merkle hash of a freshly created dispatcher.
// It must match the hash the manifests were built with. A dispatcher
// restored from a store keeps its persisted hash. A nil h is ignored.
func WithHasher(h merkle.Hasher) Option {
	return func(d *Dispatcher) {
		if h != nil {
			d.hasher = h
		}
	}
}

// WithStore persists every transition. Without a store the dispatcher
// is memory-only.
func WithStore(s store.Store) Option {
	return func(d *Dispatcher) { d.store = s }
}

// WithLogger sets the transition logger.
func WithLogger(l zerolog.Logger) Option {
	return func(d *Dispatcher) { d.log = l }
}

// WithObserver adds a notification observer.
func WithObserver(o Observer) Option {
	return func(d *Dispatcher) { d.observers = append(d.observers, o) }
}

// WithRecorder sets the per-operation outcome recorder.
func WithRecorder(r Recorder) Option {
	return func(d *Dispatcher) { d.recorder = r }
}

// WithMinDelay sets the activation delay of a freshly created
// dispatcher. A dispatcher restored from a store keeps its persisted
// delay.
func WithMinDelay(delay time.Duration) Option {
	return func(d *Dispatcher) { d.minDelay = delay }
}

// WithWatchBuffer sets the per-subscriber buffer of Watch channels.
func WithWatchBuffer(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.watchBuffer = n
		}
	}
}

// WithEventIDs replaces the event ID generator.
func WithEventIDs(gen func() string) Option {
	return func(d *Dispatcher) { d.newID = gen }
}
