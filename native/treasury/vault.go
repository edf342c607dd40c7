package treasury

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/SynapseMedia/protocol-core-v1/core/types"
)

var (
	// ErrInvalidDepositAmount is returned when the value attached to a
	// native-coin deposit does not match the declared amount.
	ErrInvalidDepositAmount = errors.New("treasury: attached value does not match deposit amount")
	// ErrInvalidTransferAmount is returned when a token deposit delivers a
	// different amount than requested (fee-on-transfer tokens).
	ErrInvalidTransferAmount = errors.New("treasury: received amount does not match transfer amount")
	// ErrInsufficientContractBalance is returned when an outbound transfer
	// exceeds the funds held by the vault account.
	ErrInsufficientContractBalance = errors.New("treasury: insufficient contract balance")
	// ErrFeePotShortfall is returned when a disbursement exceeds the fees
	// accrued in the requested currency.
	ErrFeePotShortfall = errors.New("treasury: disbursement exceeds accrued fees")

	errNilStorage    = errors.New("treasury: storage not configured")
	errNilBank       = errors.New("treasury: bank not configured")
	errInvalidAmount = errors.New("treasury: amount must be non-negative")
)

// Storage abstracts the subset of state manager functionality required by the
// vault's fee-pot accounting.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// BankView is the currency rail consumed by the vault. The zero currency
// address denotes the native coin.
type BankView interface {
	BalanceOf(account [20]byte, currency [20]byte) (*big.Int, error)
	Transfer(from, to [20]byte, currency [20]byte, amount *big.Int) error
}

var feePotPrefix = []byte("rights/treasury/fees/")

// Vault abstracts fund movement in and out of the engine's holding account
// and tracks accrued treasury fees separately from the pull-payment ledger.
type Vault struct {
	store Storage
	bank  BankView
	self  [20]byte
}

// NewVault creates a vault for the holding account at self.
func NewVault(store Storage, bank BankView, self [20]byte) *Vault {
	return &Vault{store: store, bank: bank, self: self}
}

// Account returns the vault's holding address.
func (v *Vault) Account() [20]byte {
	if v == nil {
		return [20]byte{}
	}
	return v.self
}

func feePotKey(currency [20]byte) []byte {
	key := make([]byte, len(feePotPrefix)+20)
	copy(key, feePotPrefix)
	copy(key[len(feePotPrefix):], currency[:])
	return key
}

// SafeDeposit pulls amount of currency from the payer into the vault and
// returns the amount actually received. For the native coin the attached
// value must equal the declared amount. For tokens the vault verifies its
// balance increased by exactly the requested amount, so fee-on-transfer
// tokens cannot silently under-credit a settlement.
func (v *Vault) SafeDeposit(payer [20]byte, currency [20]byte, amount, attached *big.Int) (*big.Int, error) {
	if v == nil || v.store == nil {
		return nil, errNilStorage
	}
	if v.bank == nil {
		return nil, errNilBank
	}
	if amount == nil || amount.Sign() < 0 {
		return nil, errInvalidAmount
	}
	value := big.NewInt(0)
	if attached != nil {
		value = attached
	}
	if types.IsZeroAddress(currency) {
		if value.Cmp(amount) != 0 {
			return nil, fmt.Errorf("%w: attached %s, amount %s", ErrInvalidDepositAmount, value, amount)
		}
		if amount.Sign() == 0 {
			return big.NewInt(0), nil
		}
		if err := v.bank.Transfer(payer, v.self, currency, amount); err != nil {
			return nil, err
		}
		return new(big.Int).Set(amount), nil
	}
	if value.Sign() != 0 {
		return nil, fmt.Errorf("%w: unexpected native value on token deposit", ErrInvalidDepositAmount)
	}
	if amount.Sign() == 0 {
		return big.NewInt(0), nil
	}
	before, err := v.bank.BalanceOf(v.self, currency)
	if err != nil {
		return nil, err
	}
	if err := v.bank.Transfer(payer, v.self, currency, amount); err != nil {
		return nil, err
	}
	after, err := v.bank.BalanceOf(v.self, currency)
	if err != nil {
		return nil, err
	}
	received := new(big.Int).Sub(after, before)
	if received.Cmp(amount) != 0 {
		return nil, fmt.Errorf("%w: requested %s, received %s", ErrInvalidTransferAmount, amount, received)
	}
	return received, nil
}

// Transfer pushes funds from the vault to the target, verifying the vault
// actually holds them first.
func (v *Vault) Transfer(target [20]byte, currency [20]byte, amount *big.Int) error {
	if v == nil || v.bank == nil {
		return errNilBank
	}
	if amount == nil || amount.Sign() < 0 {
		return errInvalidAmount
	}
	if amount.Sign() == 0 {
		return nil
	}
	balance, err := v.bank.BalanceOf(v.self, currency)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, want %s", ErrInsufficientContractBalance, balance, amount)
	}
	return v.bank.Transfer(v.self, target, currency, amount)
}

// AccrueFees adds a settled treasury cut to the per-currency fee pot. The pot
// is deliberately outside the pull-payment ledger: it only leaves via
// Disburse.
func (v *Vault) AccrueFees(currency [20]byte, amount *big.Int) error {
	if v == nil || v.store == nil {
		return errNilStorage
	}
	if amount == nil || amount.Sign() < 0 {
		return errInvalidAmount
	}
	if amount.Sign() == 0 {
		return nil
	}
	accrued, err := v.FeesAccrued(currency)
	if err != nil {
		return err
	}
	return v.store.KVPut(feePotKey(currency), new(big.Int).Add(accrued, amount))
}

// FeesAccrued returns the treasury fees accumulated in the supplied currency.
func (v *Vault) FeesAccrued(currency [20]byte) (*big.Int, error) {
	if v == nil || v.store == nil {
		return nil, errNilStorage
	}
	accrued := new(big.Int)
	ok, err := v.store.KVGet(feePotKey(currency), accrued)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return accrued, nil
}

// Disburse moves accrued treasury fees out to the target address.
func (v *Vault) Disburse(target [20]byte, currency [20]byte, amount *big.Int) error {
	if v == nil || v.store == nil {
		return errNilStorage
	}
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}
	accrued, err := v.FeesAccrued(currency)
	if err != nil {
		return err
	}
	if accrued.Cmp(amount) < 0 {
		return fmt.Errorf("%w: accrued %s, want %s", ErrFeePotShortfall, accrued, amount)
	}
	if err := v.store.KVPut(feePotKey(currency), new(big.Int).Sub(accrued, amount)); err != nil {
		return err
	}
	return v.Transfer(target, currency, amount)
}
