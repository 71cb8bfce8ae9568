package types

import "time"

// State is a consistent snapshot of a dispatcher. It is also the unit
// of persistence: stores save and load exactly this struct.
type State struct {
	ActiveRoot   Digest `cramberry:"1"`
	ActiveEpoch  uint64 `cramberry:"2"`
	PendingRoot  Digest `cramberry:"3"`
	PendingEpoch uint64 `cramberry:"4"`
	// Set together with PendingRoot; zero when nothing is pending.
	PendingCommitTime Timestamp `cramberry:"5"`
	MinDelay          Duration  `cramberry:"6"`
	Frozen            bool      `cramberry:"7"`
	// Live routes sorted by CallID.
	Routes []LiveRoute `cramberry:"8"`
	// Name of the Merkle hash the active and pending roots were built
	// with. Empty in states saved before it was recorded.
	Hasher string `cramberry:"9"`
}

// LiveRoute is one entry of the live lookup table.
type LiveRoute struct {
	CallID CallID `cramberry:"1"`
	Target Target `cramberry:"2"`
	// Active epoch at the time the route was applied.
	Epoch uint64 `cramberry:"3"`
}

// HasPending reports whether a root is committed and awaiting
// activation.
func (s State) HasPending() bool { return !s.PendingRoot.IsZero() }

// ActivatableAt returns the earliest time at which the pending root
// may be activated. Only meaningful when HasPending is true.
func (s State) ActivatableAt() time.Time {
	return s.PendingCommitTime.ToTime().Add(s.MinDelay.ToGo())
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	out := s
	if s.Routes != nil {
		out.Routes = make([]LiveRoute, len(s.Routes))
		copy(out.Routes, s.Routes)
	}
	return out
}

// Resolution is the answer to a live-table lookup.
type Resolution struct {
	Found  bool   `cramberry:"1"`
	Target Target `cramberry:"2"`
	// Active epoch at which the entry was applied.
	Epoch uint64 `cramberry:"3"`
}
