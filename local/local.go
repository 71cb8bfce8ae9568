// Package local provides a zero-copy, in-process dispatcher
// connection.
//
// For governance tooling compiled into the same binary as the
// dispatcher, this adapter binds a fixed principal to every call and
// forwards it with no serialization overhead.
package local

import (
	"context"

	"github.com/blockberries/facetroute"
	"github.com/blockberries/facetroute/access"
	"github.com/blockberries/facetroute/dispatcher"
	"github.com/blockberries/facetroute/types"
)

// Compile-time interface check.
var _ facetroute.Connection = (*Connection)(nil)

// Connection calls a Dispatcher as one principal.
type Connection struct {
	d *dispatcher.Dispatcher
	p access.Principal
}

// NewConnection creates an in-process connection acting as p. Use
// access.Anonymous for a read-only connection.
func NewConnection(d *dispatcher.Dispatcher, p access.Principal) *Connection {
	return &Connection{d: d, p: p}
}

func (c *Connection) ctx(ctx context.Context) context.Context {
	return access.WithPrincipal(ctx, c.p)
}

func (c *Connection) Commit(ctx context.Context, root types.Digest, epoch uint64) error {
	return c.d.Commit(c.ctx(ctx), root, epoch)
}

func (c *Connection) Activate(ctx context.Context) (types.Version, error) {
	return c.d.Activate(c.ctx(ctx))
}

func (c *Connection) ApplyRoute(ctx context.Context, route types.Route, proof types.Proof) error {
	return c.d.ApplyRoute(c.ctx(ctx), route, proof.Clone())
}

func (c *Connection) Freeze(ctx context.Context) error {
	return c.d.Freeze(c.ctx(ctx))
}

func (c *Connection) Resolve(ctx context.Context, id types.CallID) (types.Resolution, error) {
	return c.d.Resolve(ctx, id)
}

func (c *Connection) State(ctx context.Context) (types.State, error) {
	return c.d.State(ctx)
}

func (c *Connection) Watch(ctx context.Context) (<-chan types.Event, error) {
	return c.d.Watch(ctx)
}

// Close is a no-op; the dispatcher outlives its connections.
func (c *Connection) Close() error { return nil }

// Principal returns the bound principal.
func (c *Connection) Principal() access.Principal {
	return c.p
}

// Dispatcher returns the underlying dispatcher for advanced use cases.
func (c *Connection) Dispatcher() *dispatcher.Dispatcher {
	return c.d
}
