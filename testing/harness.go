package facettest

import (
	"context"
	"testing"
	"time"

	"github.com/blockberries/facetroute/access"
	"github.com/blockberries/facetroute/dispatcher"
	"github.com/blockberries/facetroute/manifest"
	"github.com/blockberries/facetroute/types"
)

// Principals granted roles by NewHarness and DefaultGate.
const (
	Governor access.Principal = "governor"
	Guardian access.Principal = "guardian"
	Stranger access.Principal = "stranger"
)

// DefaultGate grants RoleGovernance to Governor and RoleGuardian to
// Guardian.
func DefaultGate() *access.Table {
	return access.NewTable(map[access.Principal]access.Role{
		Governor: access.RoleGovernance,
		Guardian: access.RoleGuardian,
	})
}

// GovernorCtx returns a background context acting as Governor.
func GovernorCtx() context.Context {
	return access.WithPrincipal(context.Background(), Governor)
}

// GuardianCtx returns a background context acting as Guardian.
func GuardianCtx() context.Context {
	return access.WithPrincipal(context.Background(), Guardian)
}

// Harness drives a dispatcher with a manual clock for tests.
type Harness struct {
	t        *testing.T
	d        *dispatcher.Dispatcher
	Clock    *ManualClock
	Recorder *Recorder
	Builder  *manifest.Builder
}

// NewHarness creates a memory-only dispatcher with the given
// activation delay. Extra options are applied after the harness's own.
func NewHarness(t *testing.T, minDelay time.Duration, opts ...dispatcher.Option) *Harness {
	t.Helper()
	h := &Harness{
		t:        t,
		Clock:    NewManualClock(time.Time{}),
		Recorder: &Recorder{},
		Builder:  manifest.NewBuilder(nil),
	}
	base := []dispatcher.Option{
		dispatcher.WithClock(h.Clock),
		dispatcher.WithMinDelay(minDelay),
		dispatcher.WithObserver(h.Recorder),
	}
	d, err := dispatcher.New(context.Background(), DefaultGate(), append(base, opts...)...)
	if err != nil {
		t.Fatalf("dispatcher.New failed: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	h.d = d
	return h
}

// Dispatcher returns the underlying dispatcher.
func (h *Harness) Dispatcher() *dispatcher.Dispatcher {
	return h.d
}

// Build builds a manifest for routes at epoch.
func (h *Harness) Build(epoch uint64, routes ...types.Route) *manifest.Built {
	h.t.Helper()
	built, err := h.Builder.Build(routes, epoch)
	if err != nil {
		h.t.Fatalf("Build (epoch=%d) failed: %v", epoch, err)
	}
	return built
}

// Commit commits root at epoch as Governor.
func (h *Harness) Commit(root types.Digest, epoch uint64) {
	h.t.Helper()
	if err := h.d.Commit(GovernorCtx(), root, epoch); err != nil {
		h.t.Fatalf("Commit (epoch=%d) failed: %v", epoch, err)
	}
}

// Activate activates the pending root as Governor.
func (h *Harness) Activate() types.Version {
	h.t.Helper()
	v, err := h.d.Activate(GovernorCtx())
	if err != nil {
		h.t.Fatalf("Activate failed: %v", err)
	}
	return v
}

// Apply applies every route of built with its proof.
func (h *Harness) Apply(built *manifest.Built) {
	h.t.Helper()
	for _, r := range built.Manifest.Routes {
		if err := h.d.ApplyRoute(GovernorCtx(), r, built.Proofs[r.CallID]); err != nil {
			h.t.Fatalf("ApplyRoute (%s) failed: %v", r.CallID, err)
		}
	}
}

// Rollout builds routes for the next epoch, commits, waits out the
// delay, activates and applies every route.
func (h *Harness) Rollout(routes ...types.Route) *manifest.Built {
	h.t.Helper()
	st := h.State()
	built := h.Build(st.ActiveEpoch+1, routes...)
	h.Commit(built.Manifest.Root, built.Manifest.Epoch)
	h.Clock.Advance(st.MinDelay.ToGo())
	h.Activate()
	h.Apply(built)
	return built
}

// State returns the dispatcher state.
func (h *Harness) State() types.State {
	h.t.Helper()
	st, err := h.d.State(context.Background())
	if err != nil {
		h.t.Fatalf("State failed: %v", err)
	}
	return st
}

// MustResolve asserts that id resolves to target.
func (h *Harness) MustResolve(id types.CallID, target types.Target) {
	h.t.Helper()
	res, err := h.d.Resolve(context.Background(), id)
	if err != nil {
		h.t.Fatalf("Resolve (%s) failed: %v", id, err)
	}
	if !res.Found {
		h.t.Fatalf("expected %s to resolve", id)
	}
	if res.Target != target {
		h.t.Fatalf("%s resolved to %s, want %s", id, res.Target.Module, target.Module)
	}
}

// --- Helper Factories ---

// MakeRoute returns a route for call id n served by a module derived
// from n.
func MakeRoute(n uint32) types.Route {
	r := types.Route{CallID: types.CallIDFromUint32(n)}
	r.Module[0] = 0xfa
	r.Module[19] = byte(n)
	r.Module[18] = byte(n >> 8)
	r.Codehash[0] = 0xc0
	r.Codehash[31] = byte(n)
	r.Codehash[30] = byte(n >> 8)
	return r
}

// MakeRoutes returns routes for call ids 1..n.
func MakeRoutes(n int) []types.Route {
	out := make([]types.Route, n)
	for i := range out {
		out[i] = MakeRoute(uint32(i + 1))
	}
	return out
}

// Root returns a non-zero digest whose first byte is b.
func Root(b byte) types.Digest {
	return types.Digest{b, 0x5e, 0xed}
}
