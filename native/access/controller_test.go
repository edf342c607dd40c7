package access

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

func content(last byte) [32]byte {
	var out [32]byte
	out[31] = last
	return out
}

type stubValidator struct {
	grant bool
	err   error
	panic bool
}

func (v *stubValidator) IsAccessGranted(account [20]byte, contentID [32]byte) (bool, error) {
	if v.panic {
		panic("validator crashed")
	}
	return v.grant, v.err
}

type stubResolver struct {
	validators map[[20]byte]Validator
}

func (r *stubResolver) ResolveValidator(addr [20]byte) (Validator, bool) {
	v, ok := r.validators[addr]
	return v, ok
}

func newController(t *testing.T) (*Controller, *stubResolver) {
	t.Helper()
	resolver := &stubResolver{validators: make(map[[20]byte]Validator)}
	return NewController(state.NewManager(storage.NewMemDB()), resolver), resolver
}

func TestAccountSpecificValidator(t *testing.T) {
	c, resolver := newController(t)
	account := addr(0x01)
	c1 := content(0x01)
	validatorAddr := addr(0xA0)
	resolver.validators[validatorAddr] = &stubValidator{grant: true}

	if granted, err := c.IsAccessGranted(account, c1); err != nil || granted {
		t.Fatalf("expected denial before registration, granted=%v err=%v", granted, err)
	}
	if err := c.Register(account, c1, validatorAddr); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	granted, err := c.IsAccessGranted(account, c1)
	if err != nil {
		t.Fatalf("access check failed: %v", err)
	}
	if !granted {
		t.Fatalf("expected access to be granted")
	}
}

func TestGeneralValidatorFallback(t *testing.T) {
	c, resolver := newController(t)
	c1 := content(0x02)
	generalAddr := addr(0xB0)
	resolver.validators[generalAddr] = &stubValidator{grant: true}

	if err := c.Register([20]byte{}, c1, generalAddr); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	granted, err := c.IsAccessGranted(addr(0x55), c1)
	if err != nil {
		t.Fatalf("access check failed: %v", err)
	}
	if !granted {
		t.Fatalf("expected general validator to grant access")
	}
}

func TestFailingValidatorIsIsolated(t *testing.T) {
	c, resolver := newController(t)
	account := addr(0x01)
	c1 := content(0x03)
	badAddr := addr(0xC0)
	goodAddr := addr(0xC1)
	resolver.validators[badAddr] = &stubValidator{panic: true}
	resolver.validators[goodAddr] = &stubValidator{grant: true}

	// The account-specific validator panics; the general one still grants.
	if err := c.Register(account, c1, badAddr); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if err := c.Register([20]byte{}, c1, goodAddr); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	granted, err := c.IsAccessGranted(account, c1)
	if err != nil {
		t.Fatalf("a failing validator must not abort the check: %v", err)
	}
	if !granted {
		t.Fatalf("expected fallback validator to grant access")
	}
}

func TestErroringValidatorDenies(t *testing.T) {
	c, resolver := newController(t)
	account := addr(0x01)
	c1 := content(0x04)
	validatorAddr := addr(0xD0)
	resolver.validators[validatorAddr] = &stubValidator{err: errors.New("unreachable")}

	if err := c.Register(account, c1, validatorAddr); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	granted, err := c.IsAccessGranted(account, c1)
	if err != nil {
		t.Fatalf("erroring validator must read as denial: %v", err)
	}
	if granted {
		t.Fatalf("expected denial")
	}
}

func TestZeroValidatorAlwaysDenies(t *testing.T) {
	c, _ := newController(t)
	account := addr(0x01)
	c1 := content(0x05)
	if err := c.Register(account, c1, [20]byte{}); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	granted, err := c.IsAccessGranted(account, c1)
	if err != nil {
		t.Fatalf("access check failed: %v", err)
	}
	if granted {
		t.Fatalf("zero validator must deny")
	}
}

func TestRegisterOverwrites(t *testing.T) {
	c, resolver := newController(t)
	account := addr(0x01)
	c1 := content(0x06)
	denyAddr := addr(0xE0)
	grantAddr := addr(0xE1)
	resolver.validators[denyAddr] = &stubValidator{grant: false}
	resolver.validators[grantAddr] = &stubValidator{grant: true}

	if err := c.Register(account, c1, denyAddr); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if err := c.Register(account, c1, grantAddr); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}
	granted, _ := c.IsAccessGranted(account, c1)
	if !granted {
		t.Fatalf("expected overwritten validator to apply")
	}
}
