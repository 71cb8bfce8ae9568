package facetroute

import (
	"errors"
	"fmt"
	"testing"
)

func TestError(t *testing.T) {
	err := NewError(KindBadEpoch, "commit", "got %d, want %d", 5, 2)
	if err.Kind != KindBadEpoch {
		t.Errorf("expected BadEpoch, got %s", err.Kind)
	}

	expected := "facetroute: commit: BadEpoch: got 5, want 2"
	if err.Error() != expected {
		t.Errorf("expected %q, got %q", expected, err.Error())
	}

	bare := &Error{Kind: KindFrozen}
	if bare.Error() != "facetroute: FrozenError" {
		t.Errorf("unexpected message %q", bare.Error())
	}
}

func TestErrorIs(t *testing.T) {
	err := NewError(KindNoPendingRoot, "activate", "")

	if !errors.Is(err, ErrNoPendingRoot) {
		t.Fatal("expected errors.Is to match by kind")
	}
	if errors.Is(err, ErrActivationNotReady) {
		t.Fatal("kinds must not cross-match")
	}

	wrapped := fmt.Errorf("wrapped: %w", err)
	if !errors.Is(wrapped, ErrNoPendingRoot) {
		t.Fatal("expected errors.Is to unwrap")
	}
	if errors.Is(errors.New("no pending root"), ErrNoPendingRoot) {
		t.Fatal("plain errors must not match")
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("malformed")
	err := &Error{Kind: KindInvalidProof, Op: "apply_route", Err: cause}
	if !errors.Is(err, cause) {
		t.Fatal("expected cause to be reachable")
	}
	if !errors.Is(err, ErrInvalidProof) {
		t.Fatal("expected kind match alongside cause")
	}
}

func TestAsErrorAndKindOf(t *testing.T) {
	err := fmt.Errorf("outer: %w", NewError(KindUnauthorized, "freeze", "missing Guardian"))

	e, ok := AsError(err)
	if !ok {
		t.Fatal("expected AsError to unwrap")
	}
	if e.Op != "freeze" {
		t.Errorf("expected op freeze, got %q", e.Op)
	}
	if KindOf(err) != KindUnauthorized {
		t.Errorf("expected Unauthorized, got %s", KindOf(err))
	}

	if _, ok := AsError(nil); ok {
		t.Fatal("expected AsError to return false for nil")
	}
	if KindOf(errors.New("x")) != KindUnknown {
		t.Fatal("expected Unknown for foreign error")
	}
}

func TestKindRoundTrip(t *testing.T) {
	for k := KindRootZero; k <= KindUnauthorized; k++ {
		if got := ParseKind(k.String()); got != k {
			t.Errorf("ParseKind(%q) = %s, want %s", k.String(), got, k)
		}
	}
	if ParseKind("nonsense") != KindUnknown {
		t.Fatal("expected Unknown for unrecognised name")
	}
	if Kind(200).String() != "Kind(200)" {
		t.Errorf("unexpected string %q", Kind(200).String())
	}
}
