// Package store persists dispatcher state between restarts.
//
// A store holds exactly one types.State. The dispatcher saves the full
// snapshot after computing every mutation and before making it visible,
// so a failed Save leaves both the store and the in-memory state on the
// previous version.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/blockberries/cramberry/pkg/cramberry"

	"github.com/blockberries/facetroute/types"
)

// ErrNotFound is returned by Load when nothing has been saved yet.
var ErrNotFound = errors.New("store: no saved state")

// Store is the persistence boundary of a dispatcher.
type Store interface {
	// Load returns the last saved state or ErrNotFound.
	Load(ctx context.Context) (types.State, error)
	// Save atomically replaces the saved state.
	Save(ctx context.Context, s types.State) error
	Close() error
}

// EncodeState returns the deterministic binary form of s.
func EncodeState(s types.State) ([]byte, error) {
	data, err := cramberry.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	return data, nil
}

// DecodeState is the inverse of EncodeState.
func DecodeState(data []byte) (types.State, error) {
	var s types.State
	if err := cramberry.Unmarshal(data, &s); err != nil {
		return types.State{}, fmt.Errorf("decode state: %w", err)
	}
	return s, nil
}

// Memory keeps the encoded state in memory. Encoding on every save
// keeps its behaviour identical to the durable backends.
type Memory struct {
	mu     sync.Mutex
	data   []byte
	closed bool
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Load(ctx context.Context) (types.State, error) {
	if err := ctx.Err(); err != nil {
		return types.State{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return types.State{}, errClosed
	}
	if m.data == nil {
		return types.State{}, ErrNotFound
	}
	return DecodeState(m.data)
}

func (m *Memory) Save(ctx context.Context, s types.State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := EncodeState(s)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errClosed
	}
	m.data = data
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

var errClosed = errors.New("store: closed")
