// Package access implements the access-control gate of the dispatcher:
// roles, the principal carried on a context, role tables and bearer
// tokens that bind a principal for remote callers.
package access

import (
	"context"
	"strings"
)

// Role is a bitfield of capabilities a principal holds.
type Role uint8

const (
	RoleGovernance Role = 1 << iota // commit, activate, apply routes
	RoleGuardian                    // freeze
)

// Has returns true if all bits in role are set.
func (r Role) Has(role Role) bool {
	return role != 0 && r&role == role
}

// String returns a human-readable representation.
func (r Role) String() string {
	var roles []string
	if r.Has(RoleGovernance) {
		roles = append(roles, "Governance")
	}
	if r.Has(RoleGuardian) {
		roles = append(roles, "Guardian")
	}
	if len(roles) == 0 {
		return "none"
	}
	return strings.Join(roles, "|")
}

// ParseRole parses a role name as written in configuration.
func ParseRole(name string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "governance":
		return RoleGovernance, true
	case "guardian":
		return RoleGuardian, true
	default:
		return 0, false
	}
}

// Principal identifies a caller.
type Principal string

// Anonymous is the principal of a context that carries none.
const Anonymous Principal = ""

type principalKey struct{}

// WithPrincipal returns a context carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal on ctx, or Anonymous.
func PrincipalFrom(ctx context.Context) Principal {
	if ctx == nil {
		return Anonymous
	}
	p, _ := ctx.Value(principalKey{}).(Principal)
	return p
}
