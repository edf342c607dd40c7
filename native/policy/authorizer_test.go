package policy

import (
	"errors"
	"testing"

	"github.com/SynapseMedia/protocol-core-v1/core/state"
	"github.com/SynapseMedia/protocol-core-v1/storage"
)

func addr(last byte) [20]byte {
	var out [20]byte
	out[19] = last
	return out
}

type mockAudit struct {
	audited map[[20]byte]bool
}

func (m *mockAudit) IsAudited(policy [20]byte) bool {
	return m.audited[policy]
}

func newAuthorizer(t *testing.T) (*Authorizer, *mockAudit) {
	t.Helper()
	audit := &mockAudit{audited: make(map[[20]byte]bool)}
	return NewAuthorizer(state.NewManager(storage.NewMemDB()), audit), audit
}

func TestAuthorizeRequiresAudit(t *testing.T) {
	a, audit := newAuthorizer(t)
	holder := addr(0x01)
	p := addr(0x02)

	if err := a.Authorize(holder, p); !errors.Is(err, ErrNotAudited) {
		t.Fatalf("expected not audited, got %v", err)
	}
	audit.audited[p] = true
	if err := a.Authorize(holder, p); err != nil {
		t.Fatalf("authorize failed: %v", err)
	}
	ok, err := a.IsAuthorized(holder, p)
	if err != nil || !ok {
		t.Fatalf("expected authorization, ok=%v err=%v", ok, err)
	}
}

func TestAuthorizationLapsesWithAudit(t *testing.T) {
	a, audit := newAuthorizer(t)
	holder := addr(0x01)
	p := addr(0x02)
	audit.audited[p] = true
	if err := a.Authorize(holder, p); err != nil {
		t.Fatalf("authorize failed: %v", err)
	}

	// The oracle withdraws the audit; no revoke is issued.
	audit.audited[p] = false
	ok, err := a.IsAuthorized(holder, p)
	if err != nil {
		t.Fatalf("authorization check failed: %v", err)
	}
	if ok {
		t.Fatalf("expected authorization to lapse with the audit")
	}

	// Re-audit restores the standing delegation.
	audit.audited[p] = true
	if ok, _ := a.IsAuthorized(holder, p); !ok {
		t.Fatalf("expected delegation to survive an audit cycle")
	}
}

func TestRevokeIsUnconditional(t *testing.T) {
	a, audit := newAuthorizer(t)
	holder := addr(0x01)
	p := addr(0x02)

	if err := a.Revoke(holder, p); err != nil {
		t.Fatalf("revoking an absent policy should succeed: %v", err)
	}
	audit.audited[p] = true
	if err := a.Authorize(holder, p); err != nil {
		t.Fatalf("authorize failed: %v", err)
	}
	if err := a.Revoke(holder, p); err != nil {
		t.Fatalf("revoke failed: %v", err)
	}
	if ok, _ := a.IsAuthorized(holder, p); ok {
		t.Fatalf("expected revoked policy to be unauthorized")
	}
}

func TestAuthorizeIsIdempotent(t *testing.T) {
	a, audit := newAuthorizer(t)
	holder := addr(0x01)
	p := addr(0x02)
	audit.audited[p] = true

	if err := a.Authorize(holder, p); err != nil {
		t.Fatalf("authorize failed: %v", err)
	}
	if err := a.Authorize(holder, p); err != nil {
		t.Fatalf("repeat authorize failed: %v", err)
	}
	if ok, _ := a.IsAuthorized(holder, p); !ok {
		t.Fatalf("expected authorization to persist")
	}
}

func TestDelegationsAreScopedToHolder(t *testing.T) {
	a, audit := newAuthorizer(t)
	p := addr(0x02)
	audit.audited[p] = true
	if err := a.Authorize(addr(0x01), p); err != nil {
		t.Fatalf("authorize failed: %v", err)
	}
	if ok, _ := a.IsAuthorized(addr(0x03), p); ok {
		t.Fatalf("delegation leaked across holders")
	}
}
