package counter

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/blockberries/facetroute/router"
	facettest "github.com/blockberries/facetroute/testing"
	"github.com/blockberries/facetroute/types"
)

var module = types.Address{0xc0, 0x07, 0x17}

func deploy(t *testing.T) (*App, *router.Router, *facettest.Harness) {
	t.Helper()
	h := facettest.NewHarness(t, 0)
	h.Rollout(Routes(module)...)

	app := New()
	r := router.New(h.Dispatcher())
	if err := r.Register(module, Codehash, app); err != nil {
		t.Fatalf("register: %v", err)
	}
	return app, r, h
}

func decode(t *testing.T, out []byte) uint64 {
	t.Helper()
	if len(out) != 8 {
		t.Fatalf("expected 8-byte result, got %d", len(out))
	}
	return binary.BigEndian.Uint64(out)
}

func TestCounter_Selectors(t *testing.T) {
	if Increment == Get || Get == Reset || Increment == Reset {
		t.Fatal("selectors collide")
	}
	if got := types.Selector("get()"); got != Get {
		t.Fatalf("Get = %s, want %s", Get, got)
	}
}

func TestCounter_Increment(t *testing.T) {
	app, r, _ := deploy(t)
	ctx := context.Background()

	out, err := r.Dispatch(ctx, EncodeIncrement(5))
	if err != nil {
		t.Fatalf("increment: %v", err)
	}
	if v := decode(t, out); v != 5 {
		t.Fatalf("expected 5, got %d", v)
	}
	out, err = r.Dispatch(ctx, EncodeIncrement(3))
	if err != nil {
		t.Fatal(err)
	}
	if v := decode(t, out); v != 8 {
		t.Fatalf("expected 8, got %d", v)
	}
	if app.Count() != 8 {
		t.Fatalf("expected count 8, got %d", app.Count())
	}
}

func TestCounter_GetReset(t *testing.T) {
	app, r, _ := deploy(t)
	ctx := context.Background()

	if _, err := r.Dispatch(ctx, EncodeIncrement(11)); err != nil {
		t.Fatal(err)
	}
	out, err := r.Dispatch(ctx, Get[:])
	if err != nil || decode(t, out) != 11 {
		t.Fatalf("get = %v, %v", out, err)
	}
	out, err = r.Dispatch(ctx, Reset[:])
	if err != nil || decode(t, out) != 11 {
		t.Fatalf("reset = %v, %v", out, err)
	}
	if app.Count() != 0 {
		t.Fatalf("expected 0 after reset, got %d", app.Count())
	}
	if app.Calls() != 3 {
		t.Fatalf("expected 3 calls, got %d", app.Calls())
	}
}

func TestCounter_InvalidArgs(t *testing.T) {
	_, r, _ := deploy(t)
	if _, err := r.Dispatch(context.Background(), Increment[:]); err == nil {
		t.Fatal("expected error for missing argument")
	}
}

func TestCounter_Overflow(t *testing.T) {
	_, r, _ := deploy(t)
	ctx := context.Background()
	if _, err := r.Dispatch(ctx, EncodeIncrement(^uint64(0))); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Dispatch(ctx, EncodeIncrement(1)); err == nil {
		t.Fatal("expected overflow error")
	}
}

func TestCounter_ImpostorRejected(t *testing.T) {
	_, r, _ := deploy(t)
	impostor := New()
	// Same address, different code.
	if err := r.Register(module, types.Digest{0xba, 0xd}, impostor); err != nil {
		t.Fatal(err)
	}
	_, err := r.Dispatch(context.Background(), Get[:])
	if !errors.Is(err, router.ErrCodehashMismatch) {
		t.Fatalf("expected ErrCodehashMismatch, got %v", err)
	}
	if impostor.Calls() != 0 {
		t.Fatal("impostor must not be called")
	}
}

func TestCounter_UnknownCall(t *testing.T) {
	app := New()
	if _, err := app.Call(context.Background(), router.Call{ID: types.CallID{1, 2, 3, 4}}); err == nil {
		t.Fatal("expected unknown call error")
	}
}
