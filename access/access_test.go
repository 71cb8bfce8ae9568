package access

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRole_HasAndString(t *testing.T) {
	both := RoleGovernance | RoleGuardian
	if !both.Has(RoleGovernance) || !both.Has(RoleGuardian) {
		t.Fatal("expected both roles")
	}
	if RoleGovernance.Has(RoleGuardian) {
		t.Fatal("governance must not imply guardian")
	}
	if Role(0).Has(0) {
		t.Fatal("the empty role grants nothing")
	}
	if got := both.String(); got != "Governance|Guardian" {
		t.Errorf("unexpected string %q", got)
	}
	if got := Role(0).String(); got != "none" {
		t.Errorf("unexpected string %q", got)
	}
}

func TestParseRole(t *testing.T) {
	if r, ok := ParseRole(" Guardian "); !ok || r != RoleGuardian {
		t.Fatalf("got %v %v", r, ok)
	}
	if _, ok := ParseRole("admin"); ok {
		t.Fatal("expected unknown role")
	}
}

func TestPrincipalContext(t *testing.T) {
	if p := PrincipalFrom(context.Background()); p != Anonymous {
		t.Fatalf("expected anonymous, got %q", p)
	}
	ctx := WithPrincipal(context.Background(), "gov")
	if p := PrincipalFrom(ctx); p != "gov" {
		t.Fatalf("expected gov, got %q", p)
	}
}

func TestTable_GrantRevoke(t *testing.T) {
	tbl := NewTable(map[Principal]Role{"gov": RoleGovernance, "": RoleGuardian})
	if tbl.RolesOf(Anonymous) != 0 {
		t.Fatal("anonymous must hold no roles")
	}
	tbl.Grant("gov", RoleGuardian)
	if !tbl.RolesOf("gov").Has(RoleGovernance | RoleGuardian) {
		t.Fatalf("got %s", tbl.RolesOf("gov"))
	}
	tbl.Revoke("gov", RoleGovernance)
	if tbl.RolesOf("gov") != RoleGuardian {
		t.Fatalf("got %s", tbl.RolesOf("gov"))
	}
	tbl.Revoke("gov", RoleGuardian)
	if tbl.RolesOf("gov") != 0 {
		t.Fatalf("got %s", tbl.RolesOf("gov"))
	}
}

func TestStaticAndFunc(t *testing.T) {
	s := Static{"g": RoleGuardian}
	if s.RolesOf("g") != RoleGuardian || s.RolesOf("x") != 0 {
		t.Fatal("static lookup wrong")
	}
	var g Gate = GateFunc(func(Principal) Role { return RoleGovernance })
	if !g.RolesOf("anyone").Has(RoleGovernance) {
		t.Fatal("func gate wrong")
	}
}

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func TestTokens_IssueVerify(t *testing.T) {
	tok, err := NewTokens(testSecret, "facetroute-test")
	if err != nil {
		t.Fatal(err)
	}
	signed, err := tok.Issue("gov", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	p, err := tok.Verify(signed)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if p != "gov" {
		t.Fatalf("expected gov, got %q", p)
	}
}

func TestTokens_Rejects(t *testing.T) {
	if _, err := NewTokens([]byte("short"), "x"); err == nil {
		t.Fatal("expected short secret rejection")
	}

	tok, _ := NewTokens(testSecret, "issuer-a")
	if _, err := tok.Issue(Anonymous, time.Minute); err == nil {
		t.Fatal("expected anonymous issue to fail")
	}

	other, _ := NewTokens([]byte("fedcba9876543210fedcba9876543210"), "issuer-a")
	signed, _ := other.Issue("gov", time.Minute)
	if _, err := tok.Verify(signed); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for foreign signature, got %v", err)
	}

	wrongIssuer, _ := NewTokens(testSecret, "issuer-b")
	signed, _ = wrongIssuer.Issue("gov", time.Minute)
	if _, err := tok.Verify(signed); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for wrong issuer, got %v", err)
	}

	signed, _ = tok.Issue("gov", time.Minute)
	tok.now = func() time.Time { return time.Now().Add(time.Hour) }
	if _, err := tok.Verify(signed); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}
