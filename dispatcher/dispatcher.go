package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/blockberries/facetroute"
	"github.com/blockberries/facetroute/access"
	"github.com/blockberries/facetroute/merkle"
	"github.com/blockberries/facetroute/store"
	"github.com/blockberries/facetroute/types"
)

// Operation names used in errors, logs and metrics.
const (
	OpCommit     = "commit"
	OpActivate   = "activate"
	OpApplyRoute = "apply_route"
	OpFreeze     = "freeze"
)

const defaultWatchBuffer = 64

// ErrClosed is returned by Watch after Close.
var ErrClosed = errors.New("dispatcher: closed")

// Dispatcher owns the authoritative routing state. All mutations are
// serialized by one write lock held across check, persist and swap;
// reads share the read lock and return copies.
type Dispatcher struct {
	mu sync.RWMutex
	// st never carries Routes; the live table is held in live.
	st   types.State
	live map[types.CallID]types.LiveRoute

	gate        access.Gate
	hasher      merkle.Hasher
	clock       Clock
	store       store.Store
	log         zerolog.Logger
	observers   []Observer
	recorder    Recorder
	minDelay    time.Duration
	watchBuffer int
	newID       func() string
	hub         *hub
}

// Compile-time interface checks.
var (
	_ facetroute.Governance = (*Dispatcher)(nil)
	_ facetroute.Reader     = (*Dispatcher)(nil)
)

// New creates a dispatcher gated by gate. If a store is configured and
// holds a saved state, the dispatcher resumes from it; otherwise it
// starts at epoch 0 with no active root.
func New(ctx context.Context, gate access.Gate, opts ...Option) (*Dispatcher, error) {
	if gate == nil {
		return nil, fmt.Errorf("dispatcher: access gate is required")
	}
	d := &Dispatcher{
		gate:        gate,
		hasher:      merkle.Default(),
		clock:       SystemClock,
		log:         zerolog.Nop(),
		watchBuffer: defaultWatchBuffer,
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.minDelay < 0 {
		return nil, fmt.Errorf("dispatcher: negative activation delay %s", d.minDelay)
	}
	d.hub = newHub(d.watchBuffer)

	st := types.State{MinDelay: types.DurationFromGo(d.minDelay), Hasher: d.hasher.Name()}
	if d.store != nil {
		loaded, err := d.store.Load(ctx)
		switch {
		case errors.Is(err, store.ErrNotFound):
		case err != nil:
			return nil, fmt.Errorf("dispatcher: load state: %w", err)
		default:
			if err := checkConsistent(loaded); err != nil {
				return nil, fmt.Errorf("dispatcher: saved state is inconsistent: %w", err)
			}
			if loaded.MinDelay.ToGo() != d.minDelay {
				d.log.Warn().
					Dur("configured", d.minDelay).
					Dur("persisted", loaded.MinDelay.ToGo()).
					Msg("keeping persisted activation delay")
			}
			if err := d.restoreHasher(&loaded); err != nil {
				return nil, err
			}
			st = loaded
		}
	}

	d.live = make(map[types.CallID]types.LiveRoute, len(st.Routes))
	for _, r := range st.Routes {
		d.live[r.CallID] = r
	}
	st.Routes = nil
	d.st = st

	d.log.Info().
		Str("phase", PhaseOf(st).String()).
		Uint64("active_epoch", st.ActiveEpoch).
		Str("active_root", st.ActiveRoot.Hex()).
		Int("live_routes", len(d.live)).
		Str("hasher", d.hasher.Name()).
		Msg("dispatcher ready")
	return d, nil
}

// Commit stages root as the pending version for epoch.
func (d *Dispatcher) Commit(ctx context.Context, root types.Digest, epoch uint64) (err error) {
	defer d.observe(OpCommit, time.Now(), &err)
	p, err := d.authorize(ctx, OpCommit, access.RoleGovernance)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := checkMutable(d.st, OpCommit); err != nil {
		return err
	}
	if root.IsZero() {
		return facetroute.NewError(facetroute.KindRootZero, OpCommit, "zero root")
	}
	if d.st.ActiveEpoch == math.MaxUint64 || epoch != d.st.ActiveEpoch+1 {
		return facetroute.NewError(facetroute.KindBadEpoch, OpCommit,
			"epoch %d, want %d", epoch, d.st.ActiveEpoch+1)
	}

	next := d.st
	next.PendingRoot = root
	next.PendingEpoch = epoch
	next.PendingCommitTime = types.TimeToTimestamp(d.clock.Now())
	if err := d.persist(ctx, OpCommit, next, nil); err != nil {
		return err
	}
	replaced := d.st.PendingRoot
	d.st = next

	l := d.log.Info()
	if !replaced.IsZero() {
		l = l.Str("replaced_root", replaced.Hex())
	}
	l.Str("op", OpCommit).
		Str("principal", string(p)).
		Uint64("epoch", epoch).
		Str("root", root.Hex()).
		Time("activatable_at", next.ActivatableAt()).
		Msg("root committed")
	d.emit(types.Event{Kind: types.EventCommitted, Epoch: epoch, Root: root, Principal: string(p)})
	return nil
}

// Activate promotes the pending root once the delay has elapsed.
func (d *Dispatcher) Activate(ctx context.Context) (v types.Version, err error) {
	defer d.observe(OpActivate, time.Now(), &err)
	p, err := d.authorize(ctx, OpActivate, access.RoleGovernance)
	if err != nil {
		return types.Version{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := checkMutable(d.st, OpActivate); err != nil {
		return types.Version{}, err
	}
	if !d.st.HasPending() {
		return types.Version{}, facetroute.NewError(facetroute.KindNoPendingRoot, OpActivate, "nothing committed")
	}
	now := d.clock.Now()
	if at := d.st.ActivatableAt(); now.Before(at) {
		return types.Version{}, facetroute.NewError(facetroute.KindActivationNotReady, OpActivate,
			"activatable at %s, %s remaining", at.Format(time.RFC3339Nano), at.Sub(now))
	}

	next := d.st
	next.ActiveRoot = d.st.PendingRoot
	next.ActiveEpoch = d.st.PendingEpoch
	next.PendingRoot = types.Digest{}
	next.PendingEpoch = 0
	next.PendingCommitTime = types.Timestamp{}
	if err := d.persist(ctx, OpActivate, next, nil); err != nil {
		return types.Version{}, err
	}
	d.st = next

	v = types.Version{Epoch: next.ActiveEpoch, Root: next.ActiveRoot}
	d.log.Info().
		Str("op", OpActivate).
		Str("principal", string(p)).
		Uint64("epoch", v.Epoch).
		Str("root", v.Root.Hex()).
		Msg("version activated")
	d.emit(types.Event{Kind: types.EventVersionChanged, Epoch: v.Epoch, Root: v.Root, Principal: string(p)})
	return v, nil
}

// ApplyRoute admits route into the live table if proof verifies it
// against the active root. Pending roots are never consulted.
func (d *Dispatcher) ApplyRoute(ctx context.Context, route types.Route, proof types.Proof) (err error) {
	defer d.observe(OpApplyRoute, time.Now(), &err)
	p, err := d.authorize(ctx, OpApplyRoute, access.RoleGovernance)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := checkMutable(d.st, OpApplyRoute); err != nil {
		return err
	}
	if d.st.ActiveRoot.IsZero() {
		return facetroute.NewError(facetroute.KindInvalidProof, OpApplyRoute, "no active root")
	}
	ok, verr := merkle.Verify(d.hasher, route, proof, d.st.ActiveRoot)
	if verr != nil {
		return &facetroute.Error{Kind: facetroute.KindInvalidProof, Op: OpApplyRoute, Reason: "call " + route.CallID.String(), Err: verr}
	}
	if !ok {
		return facetroute.NewError(facetroute.KindInvalidProof, OpApplyRoute,
			"call %s does not verify against active root %s", route.CallID, d.st.ActiveRoot.Hex())
	}

	entry := types.LiveRoute{CallID: route.CallID, Target: route.Target(), Epoch: d.st.ActiveEpoch}
	if err := d.persist(ctx, OpApplyRoute, d.st, &entry); err != nil {
		return err
	}
	d.live[entry.CallID] = entry

	d.log.Info().
		Str("op", OpApplyRoute).
		Str("principal", string(p)).
		Uint64("epoch", entry.Epoch).
		Str("call_id", route.CallID.String()).
		Str("module", route.Module.Hex()).
		Msg("route applied")
	d.emit(types.Event{
		Kind:      types.EventRouteApplied,
		Epoch:     entry.Epoch,
		Root:      d.st.ActiveRoot,
		CallID:    entry.CallID,
		Target:    entry.Target,
		Principal: string(p),
	})
	return nil
}

// Freeze permanently disables all mutations.
func (d *Dispatcher) Freeze(ctx context.Context) (err error) {
	defer d.observe(OpFreeze, time.Now(), &err)
	p, err := d.authorize(ctx, OpFreeze, access.RoleGuardian)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := checkMutable(d.st, OpFreeze); err != nil {
		return err
	}
	next := d.st
	next.Frozen = true
	if err := d.persist(ctx, OpFreeze, next, nil); err != nil {
		return err
	}
	d.st = next

	d.log.Warn().
		Str("op", OpFreeze).
		Str("principal", string(p)).
		Uint64("epoch", next.ActiveEpoch).
		Msg("dispatcher frozen")
	d.emit(types.Event{Kind: types.EventFrozen, Epoch: next.ActiveEpoch, Root: next.ActiveRoot, Principal: string(p)})
	return nil
}

// Resolve looks up the live target of id. It never fails.
func (d *Dispatcher) Resolve(_ context.Context, id types.CallID) (types.Resolution, error) {
	d.mu.RLock()
	r, ok := d.live[id]
	d.mu.RUnlock()
	if !ok {
		return types.Resolution{}, nil
	}
	return types.Resolution{Found: true, Target: r.Target, Epoch: r.Epoch}, nil
}

// Lookup is the call-time fast path: one map read under the read lock.
func (d *Dispatcher) Lookup(id types.CallID) (types.Target, bool) {
	d.mu.RLock()
	r, ok := d.live[id]
	d.mu.RUnlock()
	return r.Target, ok
}

// State returns a consistent snapshot with routes sorted by CallID.
func (d *Dispatcher) State(_ context.Context) (types.State, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.snapshot(d.st, nil), nil
}

// Phase returns the current lifecycle phase.
func (d *Dispatcher) Phase() Phase {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return PhaseOf(d.st)
}

// Len returns the number of live routes.
func (d *Dispatcher) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.live)
}

// Hasher returns the hash used to verify proofs.
func (d *Dispatcher) Hasher() merkle.Hasher { return d.hasher }

// Watch subscribes to events until ctx is done. The channel is closed
// when ctx ends, when the subscriber falls behind, or on Close.
func (d *Dispatcher) Watch(ctx context.Context) (<-chan types.Event, error) {
	id, sub, ok := d.hub.subscribe()
	if !ok {
		return nil, ErrClosed
	}
	go func() {
		select {
		case <-ctx.Done():
			d.hub.unsubscribe(id)
		case <-sub.done:
		}
	}()
	return sub.ch, nil
}

// Close ends all Watch subscriptions. It does not close the store,
// which belongs to the caller.
func (d *Dispatcher) Close() error {
	d.hub.close()
	return nil
}

// restoreHasher switches to the hash recorded in st. States saved
// without one are stamped with the configured hash.
func (d *Dispatcher) restoreHasher(st *types.State) error {
	if st.Hasher == "" {
		st.Hasher = d.hasher.Name()
		return nil
	}
	if st.Hasher == d.hasher.Name() {
		return nil
	}
	h, err := merkle.ByName(st.Hasher)
	if err != nil {
		return fmt.Errorf("dispatcher: saved state: %w", err)
	}
	d.log.Warn().
		Str("configured", d.hasher.Name()).
		Str("persisted", h.Name()).
		Msg("keeping persisted merkle hasher")
	d.hasher = h
	return nil
}

func (d *Dispatcher) authorize(ctx context.Context, op string, need access.Role) (access.Principal, error) {
	p := access.PrincipalFrom(ctx)
	if !d.gate.RolesOf(p).Has(need) {
		name := string(p)
		if p == access.Anonymous {
			name = "anonymous"
		}
		return p, facetroute.NewError(facetroute.KindUnauthorized, op, "%s lacks role %s", name, need)
	}
	return p, nil
}

// persist saves the state that would result from the mutation. extra,
// if set, is a live route being added or replaced.
func (d *Dispatcher) persist(ctx context.Context, op string, next types.State, extra *types.LiveRoute) error {
	if d.store == nil {
		return nil
	}
	if err := d.store.Save(ctx, d.snapshot(next, extra)); err != nil {
		return fmt.Errorf("facetroute: %s: persist state: %w", op, err)
	}
	return nil
}

func (d *Dispatcher) snapshot(st types.State, extra *types.LiveRoute) types.State {
	out := st
	out.Routes = make([]types.LiveRoute, 0, len(d.live)+1)
	for id, r := range d.live {
		if extra != nil && id == extra.CallID {
			continue
		}
		out.Routes = append(out.Routes, r)
	}
	if extra != nil {
		out.Routes = append(out.Routes, *extra)
	}
	slices.SortFunc(out.Routes, func(a, b types.LiveRoute) int {
		return a.CallID.Compare(b.CallID)
	})
	return out
}

// emit must be called with the write lock held.
func (d *Dispatcher) emit(ev types.Event) {
	ev.ID = d.newID()
	ev.Time = types.TimeToTimestamp(d.clock.Now())
	for _, o := range d.observers {
		o.OnEvent(ev)
	}
	if dropped := d.hub.publish(ev); dropped > 0 {
		d.log.Warn().Int("dropped", dropped).Msg("slow watch subscribers disconnected")
	}
}

func (d *Dispatcher) observe(op string, start time.Time, errp *error) {
	outcome := "ok"
	if err := *errp; err != nil {
		kind := facetroute.KindOf(err)
		outcome = kind.String()
		if kind == facetroute.KindUnknown {
			outcome = "error"
			d.log.Error().Str("op", op).Err(err).Msg("operation failed")
		} else {
			d.log.Debug().Str("op", op).Str("kind", outcome).Err(err).Msg("operation rejected")
		}
	}
	if d.recorder != nil {
		d.recorder.ObserveOp(op, outcome, time.Since(start))
	}
}
