package facetgrpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"

	"github.com/blockberries/facetroute"
	"github.com/blockberries/facetroute/types"
)

// Compile-time interface check.
var _ facetroute.Connection = (*Client)(nil)

// Client implements facetroute.Connection over gRPC using cramberry
// serialization. Errors carrying a dispatcher kind come back as
// *facetroute.Error.
type Client struct {
	cc *grpc.ClientConn
}

// Dial connects to a remote dispatcher. Use WithToken to act as a
// principal; without it the client is anonymous.
func Dial(ctx context.Context, addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append(opts, grpc.WithDefaultCallOptions(
		grpc.ForceCodec(CramberryCodec{}),
	))
	cc, err := grpc.DialContext(ctx, addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("facetroute client: dial %s: %w", addr, err)
	}
	return &Client{cc: cc}, nil
}

func (c *Client) Close() error {
	return c.cc.Close()
}

// --- Governance ---

func (c *Client) Commit(ctx context.Context, root types.Digest, epoch uint64) error {
	req := &CommitRequest{Root: root, Epoch: epoch}
	return fromStatus(c.cc.Invoke(ctx, fullMethod("Commit"), req, new(Empty)))
}

func (c *Client) Activate(ctx context.Context) (types.Version, error) {
	resp := new(types.Version)
	if err := c.cc.Invoke(ctx, fullMethod("Activate"), &Empty{}, resp); err != nil {
		return types.Version{}, fromStatus(err)
	}
	return *resp, nil
}

func (c *Client) ApplyRoute(ctx context.Context, route types.Route, proof types.Proof) error {
	req := &ApplyRouteRequest{Route: route, Proof: proof}
	return fromStatus(c.cc.Invoke(ctx, fullMethod("ApplyRoute"), req, new(Empty)))
}

func (c *Client) Freeze(ctx context.Context) error {
	return fromStatus(c.cc.Invoke(ctx, fullMethod("Freeze"), &Empty{}, new(Empty)))
}

// --- Reader ---

func (c *Client) Resolve(ctx context.Context, id types.CallID) (types.Resolution, error) {
	resp := new(types.Resolution)
	if err := c.cc.Invoke(ctx, fullMethod("Resolve"), &ResolveRequest{CallID: id}, resp); err != nil {
		return types.Resolution{}, fromStatus(err)
	}
	return *resp, nil
}

func (c *Client) State(ctx context.Context) (types.State, error) {
	resp := new(types.State)
	if err := c.cc.Invoke(ctx, fullMethod("State"), &Empty{}, resp); err != nil {
		return types.State{}, fromStatus(err)
	}
	return *resp, nil
}

// Watch opens the event stream. It returns once the server has
// registered the subscription, so no event committed after Watch
// returns is missed.
func (c *Client) Watch(ctx context.Context) (<-chan types.Event, error) {
	stream, err := c.cc.NewStream(ctx, &grpc.StreamDesc{
		StreamName:    "Watch",
		ServerStreams: true,
	}, fullMethod("Watch"))
	if err != nil {
		return nil, fromStatus(err)
	}
	if err := stream.SendMsg(&Empty{}); err != nil {
		return nil, fromStatus(err)
	}
	if err := stream.CloseSend(); err != nil {
		return nil, fromStatus(err)
	}
	if _, err := stream.Header(); err != nil {
		return nil, fromStatus(err)
	}

	ch := make(chan types.Event)
	go func() {
		defer close(ch)
		for {
			ev := new(types.Event)
			if err := stream.RecvMsg(ev); err != nil {
				return
			}
			select {
			case ch <- *ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}
