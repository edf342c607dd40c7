package bank

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	// ErrInsufficientFunds is returned when a transfer exceeds the sender's
	// balance.
	ErrInsufficientFunds = errors.New("bank: insufficient funds")

	errNilStorage    = errors.New("bank: storage not configured")
	errInvalidAmount = errors.New("bank: amount must be positive")
)

// Storage abstracts the subset of state manager functionality required by the
// bank.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

var balancePrefix = []byte("rights/bank/")

// Module is an in-process stand-in for the host chain's currency layer. It
// keeps per-(account, currency) balances in engine state so a standalone
// deployment has a working money rail; on-chain deployments plug the host
// bank in instead.
type Module struct {
	store Storage
}

// New creates a bank module bound to the supplied storage.
func New(store Storage) *Module {
	return &Module{store: store}
}

func balanceKey(account [20]byte, currency [20]byte) []byte {
	key := make([]byte, len(balancePrefix)+40)
	copy(key, balancePrefix)
	copy(key[len(balancePrefix):], account[:])
	copy(key[len(balancePrefix)+20:], currency[:])
	return key
}

// BalanceOf returns the balance held by an account in the supplied currency.
func (m *Module) BalanceOf(account [20]byte, currency [20]byte) (*big.Int, error) {
	if m == nil || m.store == nil {
		return nil, errNilStorage
	}
	balance := new(big.Int)
	ok, err := m.store.KVGet(balanceKey(account, currency), balance)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return balance, nil
}

// Transfer moves funds between accounts. A zero amount is a no-op.
func (m *Module) Transfer(from, to [20]byte, currency [20]byte, amount *big.Int) error {
	if m == nil || m.store == nil {
		return errNilStorage
	}
	if amount == nil || amount.Sign() < 0 {
		return errInvalidAmount
	}
	if amount.Sign() == 0 || from == to {
		return nil
	}
	fromBalance, err := m.BalanceOf(from, currency)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, want %s", ErrInsufficientFunds, fromBalance, amount)
	}
	toBalance, err := m.BalanceOf(to, currency)
	if err != nil {
		return err
	}
	if err := m.store.KVPut(balanceKey(from, currency), new(big.Int).Sub(fromBalance, amount)); err != nil {
		return err
	}
	return m.store.KVPut(balanceKey(to, currency), new(big.Int).Add(toBalance, amount))
}

// Mint credits newly issued funds to an account. Governance-only; the caller
// check lives in the service layer.
func (m *Module) Mint(to [20]byte, currency [20]byte, amount *big.Int) error {
	if m == nil || m.store == nil {
		return errNilStorage
	}
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}
	balance, err := m.BalanceOf(to, currency)
	if err != nil {
		return err
	}
	return m.store.KVPut(balanceKey(to, currency), new(big.Int).Add(balance, amount))
}
