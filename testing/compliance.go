package facettest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/blockberries/facetroute"
	"github.com/blockberries/facetroute/manifest"
	"github.com/blockberries/facetroute/types"
)

// Fixture is one fresh dispatcher reachable through connections bound
// to different principals.
type Fixture struct {
	// Governor holds RoleGovernance, Guardian holds RoleGuardian and
	// Stranger holds nothing.
	Governor facetroute.Connection
	Guardian facetroute.Connection
	Stranger facetroute.Connection
	// Clock drives the dispatcher's activation delay.
	Clock *ManualClock
}

// Factory creates a Fixture whose dispatcher uses minDelay and the
// default hasher. Connections are closed by the suite.
type Factory func(t *testing.T, minDelay time.Duration) Fixture

// RunComplianceSuite runs the standard behavioural suite against a
// Connection implementation.
func RunComplianceSuite(t *testing.T, factory Factory) {
	t.Helper()
	ctx := context.Background()
	builder := manifest.NewBuilder(nil)

	open := func(t *testing.T, minDelay time.Duration) Fixture {
		f := factory(t, minDelay)
		t.Cleanup(func() {
			_ = f.Governor.Close()
			_ = f.Guardian.Close()
			_ = f.Stranger.Close()
		})
		return f
	}
	build := func(t *testing.T, epoch uint64, routes ...types.Route) *manifest.Built {
		t.Helper()
		b, err := builder.Build(routes, epoch)
		if err != nil {
			t.Fatalf("build: %v", err)
		}
		return b
	}
	wantKind := func(t *testing.T, err error, kind facetroute.Kind) {
		t.Helper()
		if err == nil {
			t.Fatalf("expected %s, got nil", kind)
		}
		if got := facetroute.KindOf(err); got != kind {
			t.Fatalf("expected %s, got %s (%v)", kind, got, err)
		}
	}

	t.Run("commit_activate_no_delay", func(t *testing.T) {
		f := open(t, 0)
		h1 := Root(1)
		if err := f.Governor.Commit(ctx, h1, 1); err != nil {
			t.Fatalf("commit: %v", err)
		}
		v, err := f.Governor.Activate(ctx)
		if err != nil {
			t.Fatalf("activate: %v", err)
		}
		if v.Epoch != 1 || v.Root != h1 {
			t.Fatalf("unexpected version %+v", v)
		}
		st, _ := f.Stranger.State(ctx)
		if st.ActiveEpoch != 1 || st.ActiveRoot != h1 || st.HasPending() {
			t.Fatalf("unexpected state %+v", st)
		}
	})

	t.Run("bad_epoch_leaves_state", func(t *testing.T) {
		f := open(t, 0)
		if err := f.Governor.Commit(ctx, Root(1), 1); err != nil {
			t.Fatal(err)
		}
		if _, err := f.Governor.Activate(ctx); err != nil {
			t.Fatal(err)
		}
		before, _ := f.Governor.State(ctx)
		for _, epoch := range []uint64{0, 1, 3} {
			wantKind(t, f.Governor.Commit(ctx, Root(2), epoch), facetroute.KindBadEpoch)
		}
		after, _ := f.Governor.State(ctx)
		if after.ActiveEpoch != before.ActiveEpoch || after.HasPending() {
			t.Fatalf("state changed after rejected commits: %+v", after)
		}
	})

	t.Run("root_zero", func(t *testing.T) {
		f := open(t, 0)
		wantKind(t, f.Governor.Commit(ctx, types.Digest{}, 1), facetroute.KindRootZero)
	})

	t.Run("activate_without_pending", func(t *testing.T) {
		f := open(t, 0)
		_, err := f.Governor.Activate(ctx)
		wantKind(t, err, facetroute.KindNoPendingRoot)
	})

	t.Run("delay_boundary_inclusive", func(t *testing.T) {
		const delay = time.Hour
		f := open(t, delay)
		if err := f.Governor.Commit(ctx, Root(1), 1); err != nil {
			t.Fatal(err)
		}
		_, err := f.Governor.Activate(ctx)
		wantKind(t, err, facetroute.KindActivationNotReady)

		f.Clock.Advance(delay - time.Nanosecond)
		_, err = f.Governor.Activate(ctx)
		wantKind(t, err, facetroute.KindActivationNotReady)

		f.Clock.Advance(time.Nanosecond)
		if _, err := f.Governor.Activate(ctx); err != nil {
			t.Fatalf("activate at boundary: %v", err)
		}
	})

	t.Run("apply_and_resolve", func(t *testing.T) {
		f := open(t, 0)
		routes := MakeRoutes(5)
		built := build(t, 1, routes...)
		if err := f.Governor.Commit(ctx, built.Manifest.Root, 1); err != nil {
			t.Fatal(err)
		}
		if _, err := f.Governor.Activate(ctx); err != nil {
			t.Fatal(err)
		}
		for _, r := range routes {
			if err := f.Governor.ApplyRoute(ctx, r, built.Proofs[r.CallID]); err != nil {
				t.Fatalf("apply %s: %v", r.CallID, err)
			}
		}
		for _, r := range routes {
			res, err := f.Stranger.Resolve(ctx, r.CallID)
			if err != nil {
				t.Fatal(err)
			}
			if !res.Found || res.Target != r.Target() || res.Epoch != 1 {
				t.Fatalf("resolve %s = %+v", r.CallID, res)
			}
		}
		res, err := f.Stranger.Resolve(ctx, types.CallID{0xde, 0xad, 0xbe, 0xef})
		if err != nil || res.Found {
			t.Fatalf("unknown call id resolved: %+v %v", res, err)
		}
	})

	t.Run("forged_route_rejected", func(t *testing.T) {
		f := open(t, 0)
		routes := MakeRoutes(3)
		built := build(t, 1, routes...)
		_ = f.Governor.Commit(ctx, built.Manifest.Root, 1)
		_, _ = f.Governor.Activate(ctx)

		forged := routes[0]
		forged.Module[5] ^= 0xff
		wantKind(t, f.Governor.ApplyRoute(ctx, forged, built.Proofs[forged.CallID]), facetroute.KindInvalidProof)

		res, _ := f.Stranger.Resolve(ctx, forged.CallID)
		if res.Found {
			t.Fatal("forged route must not be live")
		}
	})

	t.Run("apply_against_pending_rejected", func(t *testing.T) {
		f := open(t, time.Hour)
		routes := MakeRoutes(2)
		built := build(t, 1, routes...)
		_ = f.Governor.Commit(ctx, built.Manifest.Root, 1)
		wantKind(t, f.Governor.ApplyRoute(ctx, routes[0], built.Proofs[routes[0].CallID]), facetroute.KindInvalidProof)
	})

	t.Run("freeze_is_terminal", func(t *testing.T) {
		f := open(t, 0)
		if err := f.Guardian.Freeze(ctx); err != nil {
			t.Fatalf("freeze: %v", err)
		}
		wantKind(t, f.Governor.Commit(ctx, Root(1), 1), facetroute.KindFrozen)
		_, err := f.Governor.Activate(ctx)
		wantKind(t, err, facetroute.KindFrozen)
		wantKind(t, f.Governor.ApplyRoute(ctx, MakeRoute(1), types.Proof{Width: 1}), facetroute.KindFrozen)
		wantKind(t, f.Guardian.Freeze(ctx), facetroute.KindFrozen)

		st, _ := f.Stranger.State(ctx)
		if !st.Frozen {
			t.Fatal("expected frozen state")
		}
	})

	t.Run("unauthorized_before_frozen", func(t *testing.T) {
		f := open(t, 0)
		wantKind(t, f.Stranger.Commit(ctx, Root(1), 1), facetroute.KindUnauthorized)
		wantKind(t, f.Governor.Freeze(ctx), facetroute.KindUnauthorized)
		wantKind(t, f.Guardian.Commit(ctx, Root(1), 1), facetroute.KindUnauthorized)

		if err := f.Guardian.Freeze(ctx); err != nil {
			t.Fatal(err)
		}
		wantKind(t, f.Stranger.Commit(ctx, Root(1), 1), facetroute.KindUnauthorized)
	})

	t.Run("errors_match_sentinels", func(t *testing.T) {
		f := open(t, 0)
		err := f.Governor.Commit(ctx, Root(1), 9)
		if !errors.Is(err, facetroute.ErrBadEpoch) {
			t.Fatalf("expected errors.Is(ErrBadEpoch), got %v", err)
		}
	})

	t.Run("last_commit_wins", func(t *testing.T) {
		f := open(t, 0)
		_ = f.Governor.Commit(ctx, Root(1), 1)
		_ = f.Governor.Commit(ctx, Root(2), 1)
		v, err := f.Governor.Activate(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if v.Root != Root(2) {
			t.Fatalf("expected second root active, got %s", v.Root)
		}
	})

	t.Run("concurrent_activate_single_winner", func(t *testing.T) {
		f := open(t, 0)
		_ = f.Governor.Commit(ctx, Root(1), 1)

		var wins, noPending atomic.Int64
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := f.Governor.Activate(ctx)
				switch {
				case err == nil:
					wins.Add(1)
				case facetroute.KindOf(err) == facetroute.KindNoPendingRoot:
					noPending.Add(1)
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()
		if wins.Load() != 1 || noPending.Load() != 7 {
			t.Fatalf("wins=%d noPending=%d", wins.Load(), noPending.Load())
		}
	})

	t.Run("watch_streams_in_order", func(t *testing.T) {
		f := open(t, 0)
		wctx, cancel := context.WithCancel(ctx)
		defer cancel()
		events, err := f.Stranger.Watch(wctx)
		if err != nil {
			t.Fatalf("watch: %v", err)
		}
		// The subscription may be established asynchronously.
		time.Sleep(50 * time.Millisecond)

		routes := MakeRoutes(1)
		built := build(t, 1, routes...)
		_ = f.Governor.Commit(ctx, built.Manifest.Root, 1)
		_, _ = f.Governor.Activate(ctx)
		_ = f.Governor.ApplyRoute(ctx, routes[0], built.Proofs[routes[0].CallID])
		_ = f.Guardian.Freeze(ctx)

		want := []types.EventKind{types.EventCommitted, types.EventVersionChanged, types.EventRouteApplied, types.EventFrozen}
		for i, kind := range want {
			select {
			case ev, ok := <-events:
				if !ok {
					t.Fatalf("stream closed after %d events", i)
				}
				if ev.Kind != kind {
					t.Fatalf("event %d: got %s, want %s", i, ev.Kind, kind)
				}
				if ev.ID == "" {
					t.Fatalf("event %d has no id", i)
				}
			case <-time.After(5 * time.Second):
				t.Fatalf("timed out waiting for %s", kind)
			}
		}
	})
}
