package access

import "sync"

// Gate answers which roles a principal holds. The dispatcher consults
// it before touching state on every mutating call.
type Gate interface {
	RolesOf(p Principal) Role
}

// GateFunc adapts a function to Gate.
type GateFunc func(p Principal) Role

func (f GateFunc) RolesOf(p Principal) Role { return f(p) }

// Static is an immutable principal → role map.
type Static map[Principal]Role

func (s Static) RolesOf(p Principal) Role {
	if p == Anonymous {
		return 0
	}
	return s[p]
}

// Table is a mutable, concurrency-safe role table.
type Table struct {
	mu    sync.RWMutex
	roles map[Principal]Role
}

// NewTable returns a table seeded with initial.
func NewTable(initial map[Principal]Role) *Table {
	t := &Table{roles: make(map[Principal]Role, len(initial))}
	for p, r := range initial {
		if p != Anonymous && r != 0 {
			t.roles[p] = r
		}
	}
	return t
}

func (t *Table) RolesOf(p Principal) Role {
	if p == Anonymous {
		return 0
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.roles[p]
}

// Grant adds role to p.
func (t *Table) Grant(p Principal, role Role) {
	if p == Anonymous {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.roles[p] |= role
}

// Revoke removes role from p.
func (t *Table) Revoke(p Principal, role Role) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if r := t.roles[p] &^ role; r != 0 {
		t.roles[p] = r
	} else {
		delete(t.roles, p)
	}
}
