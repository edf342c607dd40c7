package ledger

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	// ErrInsufficientBalance is returned when a debit exceeds the stored
	// balance for the (beneficiary, currency) pair.
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")

	errNilStorage    = errors.New("ledger: storage not configured")
	errInvalidAmount = errors.New("ledger: amount must be non-negative")
)

// Storage abstracts the subset of state manager functionality required by the
// ledger.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

var balancePrefix = []byte("rights/ledger/")

// Ledger tracks pull-payment balances owed to beneficiaries per currency. The
// zero currency address denotes the native coin. Only the settlement engine
// mutates it; entries are created lazily on first credit and never deleted.
type Ledger struct {
	store Storage
}

// New creates a ledger bound to the supplied storage.
func New(store Storage) *Ledger {
	return &Ledger{store: store}
}

func balanceKey(beneficiary [20]byte, currency [20]byte) []byte {
	key := make([]byte, len(balancePrefix)+40)
	copy(key, balancePrefix)
	copy(key[len(balancePrefix):], beneficiary[:])
	copy(key[len(balancePrefix)+20:], currency[:])
	return key
}

// BalanceOf returns the accrued balance for the beneficiary in the supplied
// currency. Missing entries read as zero.
func (l *Ledger) BalanceOf(beneficiary [20]byte, currency [20]byte) (*big.Int, error) {
	if l == nil || l.store == nil {
		return nil, errNilStorage
	}
	balance := new(big.Int)
	ok, err := l.store.KVGet(balanceKey(beneficiary, currency), balance)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return balance, nil
}

// Credit increases the stored balance and returns the new total. A zero
// amount is a no-op.
func (l *Ledger) Credit(beneficiary [20]byte, currency [20]byte, amount *big.Int) (*big.Int, error) {
	if l == nil || l.store == nil {
		return nil, errNilStorage
	}
	if amount == nil || amount.Sign() < 0 {
		return nil, errInvalidAmount
	}
	balance, err := l.BalanceOf(beneficiary, currency)
	if err != nil {
		return nil, err
	}
	if amount.Sign() == 0 {
		return balance, nil
	}
	next := new(big.Int).Add(balance, amount)
	if err := l.store.KVPut(balanceKey(beneficiary, currency), next); err != nil {
		return nil, err
	}
	return next, nil
}

// Debit decreases the stored balance and returns the new total. Debits that
// exceed the balance fail with ErrInsufficientBalance and leave the entry
// untouched.
func (l *Ledger) Debit(beneficiary [20]byte, currency [20]byte, amount *big.Int) (*big.Int, error) {
	if l == nil || l.store == nil {
		return nil, errNilStorage
	}
	if amount == nil || amount.Sign() < 0 {
		return nil, errInvalidAmount
	}
	balance, err := l.BalanceOf(beneficiary, currency)
	if err != nil {
		return nil, err
	}
	if balance.Cmp(amount) < 0 {
		return nil, fmt.Errorf("%w: have %s, want %s", ErrInsufficientBalance, balance, amount)
	}
	next := new(big.Int).Sub(balance, amount)
	if err := l.store.KVPut(balanceKey(beneficiary, currency), next); err != nil {
		return nil, err
	}
	return next, nil
}
