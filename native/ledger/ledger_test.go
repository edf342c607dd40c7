package ledger

import (
	"errors"
	"math/big"
	"testing"

	"github.com/SynapseMedia/protocol-core-v1/core/state"
	"github.com/SynapseMedia/protocol-core-v1/storage"
)

func addr(last byte) [20]byte {
	var out [20]byte
	out[19] = last
	return out
}

func newLedger(t *testing.T) *Ledger {
	t.Helper()
	return New(state.NewManager(storage.NewMemDB()))
}

func TestCreditAndBalance(t *testing.T) {
	l := newLedger(t)
	beneficiary := addr(0x01)
	currency := addr(0x00)

	balance, err := l.BalanceOf(beneficiary, currency)
	if err != nil {
		t.Fatalf("balance read failed: %v", err)
	}
	if balance.Sign() != 0 {
		t.Fatalf("expected lazy zero balance, got %s", balance)
	}

	if _, err := l.Credit(beneficiary, currency, big.NewInt(700)); err != nil {
		t.Fatalf("credit failed: %v", err)
	}
	next, err := l.Credit(beneficiary, currency, big.NewInt(300))
	if err != nil {
		t.Fatalf("second credit failed: %v", err)
	}
	if next.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("unexpected balance after credits: %s", next)
	}
}

func TestDebitOverdraw(t *testing.T) {
	l := newLedger(t)
	beneficiary := addr(0x02)
	currency := addr(0x10)

	if _, err := l.Credit(beneficiary, currency, big.NewInt(100)); err != nil {
		t.Fatalf("credit failed: %v", err)
	}
	if _, err := l.Debit(beneficiary, currency, big.NewInt(101)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	balance, err := l.BalanceOf(beneficiary, currency)
	if err != nil {
		t.Fatalf("balance read failed: %v", err)
	}
	if balance.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("failed debit mutated balance: %s", balance)
	}
}

func TestCumulativeDebitsNeverExceedCredits(t *testing.T) {
	l := newLedger(t)
	beneficiary := addr(0x03)
	currency := addr(0x00)

	credited := big.NewInt(0)
	for _, amt := range []int64{500, 250, 125} {
		if _, err := l.Credit(beneficiary, currency, big.NewInt(amt)); err != nil {
			t.Fatalf("credit failed: %v", err)
		}
		credited.Add(credited, big.NewInt(amt))
	}

	withdrawn := big.NewInt(0)
	for _, amt := range []int64{400, 300, 175} {
		if _, err := l.Debit(beneficiary, currency, big.NewInt(amt)); err != nil {
			t.Fatalf("debit failed: %v", err)
		}
		withdrawn.Add(withdrawn, big.NewInt(amt))
	}
	if withdrawn.Cmp(credited) > 0 {
		t.Fatalf("overdraw: withdrew %s of %s", withdrawn, credited)
	}

	if _, err := l.Debit(beneficiary, currency, big.NewInt(1)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected empty ledger to reject debit, got %v", err)
	}
}

func TestCurrenciesAreIndependent(t *testing.T) {
	l := newLedger(t)
	beneficiary := addr(0x04)
	native := addr(0x00)
	token := addr(0x20)

	if _, err := l.Credit(beneficiary, native, big.NewInt(10)); err != nil {
		t.Fatalf("native credit failed: %v", err)
	}
	if _, err := l.Debit(beneficiary, token, big.NewInt(1)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected token entry to be empty, got %v", err)
	}
}

func TestNegativeAmountsRejected(t *testing.T) {
	l := newLedger(t)
	if _, err := l.Credit(addr(0x05), addr(0x00), big.NewInt(-1)); err == nil {
		t.Fatalf("expected negative credit to fail")
	}
	if _, err := l.Debit(addr(0x05), addr(0x00), nil); err == nil {
		t.Fatalf("expected nil debit to fail")
	}
}
