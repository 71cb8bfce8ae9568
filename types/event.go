package types

import "fmt"

// EventKind identifies a dispatcher notification.
type EventKind uint8

const (
	// EventCommitted: a root was staged as pending.
	EventCommitted EventKind = iota + 1
	// EventVersionChanged: the pending root became the active version.
	EventVersionChanged
	// EventRouteApplied: a verified route entered the live table.
	EventRouteApplied
	// EventFrozen: the dispatcher was permanently frozen.
	EventFrozen
)

func (k EventKind) String() string {
	switch k {
	case EventCommitted:
		return "committed"
	case EventVersionChanged:
		return "version_changed"
	case EventRouteApplied:
		return "route_applied"
	case EventFrozen:
		return "frozen"
	default:
		return fmt.Sprintf("unknown(%d)", k)
	}
}

// Event is a dispatcher notification for external observers (audit
// logs, indexers). Fields not relevant to Kind are left zero.
type Event struct {
	ID        string    `cramberry:"1"`
	Kind      EventKind `cramberry:"2"`
	Epoch     uint64    `cramberry:"3"`
	Root      Digest    `cramberry:"4"`
	CallID    CallID    `cramberry:"5"`
	Target    Target    `cramberry:"6"`
	Principal string    `cramberry:"7"`
	Time      Timestamp `cramberry:"8"`
}
