// Package counter implements a minimal facet that keeps a counter. It
// demonstrates how a module declares its call identifiers, publishes
// them as routes, and serves calls through the router.
//
// Calls:
//
//	increment(uint64)  args: 8 bytes big-endian; returns the new value
//	get()              returns the current value
//	reset()            returns the previous value
//
// Every result is 8 bytes big-endian.
package counter

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/blockberries/facetroute/merkle"
	"github.com/blockberries/facetroute/router"
	"github.com/blockberries/facetroute/types"
)

// Compile-time interface check.
var _ router.Facet = (*App)(nil)

// Signatures served by the facet.
const (
	SigIncrement = "increment(uint64)"
	SigGet       = "get()"
	SigReset     = "reset()"
)

// Call identifiers served by the facet.
var (
	Increment = types.Selector(SigIncrement)
	Get       = types.Selector(SigGet)
	Reset     = types.Selector(SigReset)
)

// Codehash identifies this implementation. It stands in for the hash
// of deployed code.
var Codehash = merkle.Keccak256.Sum([]byte("facetroute/example/counter@v1"))

// App is a counter facet.
type App struct {
	mu    sync.Mutex
	count uint64
	calls uint64
}

// New creates a new counter facet.
func New() *App {
	return &App{}
}

// Routes returns the routes of this facet deployed at module.
func Routes(module types.Address) []types.Route {
	ids := []types.CallID{Increment, Get, Reset}
	out := make([]types.Route, len(ids))
	for i, id := range ids {
		out[i] = types.Route{CallID: id, Module: module, Codehash: Codehash}
	}
	return out
}

func (app *App) Call(_ context.Context, call router.Call) ([]byte, error) {
	app.mu.Lock()
	defer app.mu.Unlock()
	app.calls++

	switch call.ID {
	case Increment:
		if len(call.Args) != 8 {
			return nil, fmt.Errorf("counter: increment expects 8 bytes, got %d", len(call.Args))
		}
		delta := binary.BigEndian.Uint64(call.Args)
		if app.count+delta < app.count {
			return nil, fmt.Errorf("counter: overflow")
		}
		app.count += delta
		return encode(app.count), nil
	case Get:
		return encode(app.count), nil
	case Reset:
		prev := app.count
		app.count = 0
		return encode(prev), nil
	default:
		return nil, fmt.Errorf("counter: unknown call %s", call.ID)
	}
}

// Count returns the current value.
func (app *App) Count() uint64 {
	app.mu.Lock()
	defer app.mu.Unlock()
	return app.count
}

// Calls returns the number of calls served.
func (app *App) Calls() uint64 {
	app.mu.Lock()
	defer app.mu.Unlock()
	return app.calls
}

// EncodeIncrement builds calldata for increment(delta).
func EncodeIncrement(delta uint64) []byte {
	buf := make([]byte, 4+8)
	copy(buf, Increment[:])
	binary.BigEndian.PutUint64(buf[4:], delta)
	return buf
}

func encode(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}
