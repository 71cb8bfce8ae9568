// Package dispatcher implements the governed routing-table state
// machine: commit a root, wait out the activation delay, activate it,
// admit routes proven against it, and optionally freeze forever.
package dispatcher

import (
	"fmt"

	"github.com/blockberries/facetroute"
	"github.com/blockberries/facetroute/types"
)

// Phase is a coarse view of where a dispatcher is in its lifecycle.
type Phase uint8

const (
	// PhaseUninitialized: no root has ever been activated and nothing
	// is pending. Only Commit and Freeze can succeed.
	PhaseUninitialized Phase = iota
	// PhaseReady: an active root exists and nothing is pending.
	// ApplyRoute admits routes proven against the active root.
	PhaseReady
	// PhasePending: a root is committed and waiting for its delay.
	// The previous active root (if any) keeps serving ApplyRoute.
	PhasePending
	// PhaseFrozen: terminal. Every mutation fails.
	PhaseFrozen
)

func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "Uninitialized"
	case PhaseReady:
		return "Ready"
	case PhasePending:
		return "Pending"
	case PhaseFrozen:
		return "Frozen"
	default:
		return fmt.Sprintf("unknown(%d)", p)
	}
}

// PhaseOf derives the phase of a state snapshot.
func PhaseOf(s types.State) Phase {
	switch {
	case s.Frozen:
		return PhaseFrozen
	case s.HasPending():
		return PhasePending
	case s.ActiveRoot.IsZero():
		return PhaseUninitialized
	default:
		return PhaseReady
	}
}

// checkMutable rejects every mutation once frozen. It runs after the
// authorization check and before any operation precondition.
func checkMutable(s types.State, op string) error {
	if s.Frozen {
		return facetroute.NewError(facetroute.KindFrozen, op, "dispatcher is frozen")
	}
	return nil
}

// checkConsistent validates a state loaded from storage.
func checkConsistent(s types.State) error {
	if s.HasPending() && s.PendingEpoch != s.ActiveEpoch+1 {
		return fmt.Errorf("pending epoch %d does not follow active epoch %d", s.PendingEpoch, s.ActiveEpoch)
	}
	if !s.HasPending() && (s.PendingEpoch != 0 || !s.PendingCommitTime.IsZero()) {
		return fmt.Errorf("pending fields set without a pending root")
	}
	if s.ActiveRoot.IsZero() != (s.ActiveEpoch == 0) {
		return fmt.Errorf("active root and active epoch disagree (epoch %d)", s.ActiveEpoch)
	}
	if s.MinDelay.Nanos < 0 {
		return fmt.Errorf("negative activation delay")
	}
	for i := 1; i < len(s.Routes); i++ {
		if s.Routes[i-1].CallID.Compare(s.Routes[i].CallID) >= 0 {
			return fmt.Errorf("live routes not strictly ordered at %d", i)
		}
	}
	for _, r := range s.Routes {
		if r.Epoch == 0 || r.Epoch > s.ActiveEpoch {
			return fmt.Errorf("live route %s applied at impossible epoch %d", r.CallID, r.Epoch)
		}
	}
	return nil
}
