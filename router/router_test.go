package router_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockberries/facetroute/router"
	facettest "github.com/blockberries/facetroute/testing"
	"github.com/blockberries/facetroute/types"
)

func echo(prefix byte) router.Facet {
	return router.FacetFunc(func(_ context.Context, c router.Call) ([]byte, error) {
		return append([]byte{prefix}, c.Args...), nil
	})
}

func TestDispatch(t *testing.T) {
	h := facettest.NewHarness(t, 0)
	routes := facettest.MakeRoutes(2)
	h.Rollout(routes...)

	r := router.New(h.Dispatcher())
	require.NoError(t, r.Register(routes[0].Module, routes[0].Codehash, echo(0xa1)))
	require.NoError(t, r.Register(routes[1].Module, routes[1].Codehash, echo(0xb2)))

	calldata := append(routes[1].CallID[:], 0x01, 0x02)
	out, err := r.Dispatch(context.Background(), calldata)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xb2, 0x01, 0x02}, out)

	out, err = r.Dispatch(context.Background(), routes[0].CallID[:])
	require.NoError(t, err)
	assert.Equal(t, []byte{0xa1}, out)
}

func TestDispatchErrors(t *testing.T) {
	h := facettest.NewHarness(t, 0)
	routes := facettest.MakeRoutes(3)
	h.Rollout(routes...)
	r := router.New(h.Dispatcher())

	_, err := r.Dispatch(context.Background(), []byte{1, 2, 3})
	assert.ErrorIs(t, err, router.ErrShortCalldata)

	_, err = r.Dispatch(context.Background(), []byte{9, 9, 9, 9})
	assert.ErrorIs(t, err, router.ErrNoRoute)

	_, err = r.Dispatch(context.Background(), routes[0].CallID[:])
	assert.ErrorIs(t, err, router.ErrModuleNotRegistered)

	wrong := routes[0].Codehash
	wrong[3] ^= 0xff
	require.NoError(t, r.Register(routes[0].Module, wrong, echo(0)))
	_, err = r.Dispatch(context.Background(), routes[0].CallID[:])
	assert.ErrorIs(t, err, router.ErrCodehashMismatch)

	r.Unregister(routes[0].Module)
	_, err = r.Dispatch(context.Background(), routes[0].CallID[:])
	assert.ErrorIs(t, err, router.ErrModuleNotRegistered)
}

func TestDispatchFollowsReroute(t *testing.T) {
	h := facettest.NewHarness(t, 0)
	route := facettest.MakeRoute(42)
	h.Rollout(route)

	r := router.New(h.Dispatcher())
	require.NoError(t, r.Register(route.Module, route.Codehash, echo(1)))

	moved := route
	moved.Module = types.Address{0x99}
	require.NoError(t, r.Register(moved.Module, moved.Codehash, echo(2)))
	h.Rollout(moved)

	out, err := r.Dispatch(context.Background(), route.CallID[:])
	require.NoError(t, err)
	assert.Equal(t, []byte{2}, out)
}

func TestRegisterValidation(t *testing.T) {
	r := router.New(nil)
	assert.Error(t, r.Register(types.Address{}, types.Digest{}, echo(0)))
	assert.Error(t, r.Register(types.Address{1}, types.Digest{}, nil))
}

func TestFacetErrorPropagates(t *testing.T) {
	h := facettest.NewHarness(t, 0)
	route := facettest.MakeRoute(5)
	h.Rollout(route)

	boom := errors.New("boom")
	r := router.New(h.Dispatcher())
	require.NoError(t, r.Register(route.Module, route.Codehash, router.FacetFunc(
		func(context.Context, router.Call) ([]byte, error) { return nil, boom })))

	_, err := r.Dispatch(context.Background(), route.CallID[:])
	assert.ErrorIs(t, err, boom)
}
