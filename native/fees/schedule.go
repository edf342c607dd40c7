package fees

import (
	"errors"
	"fmt"
	"math/big"
)

// MaxBasisPoints is the full fee scale: 10000 bps = 100%.
const MaxBasisPoints uint32 = 10_000

var (
	// ErrInvalidBasisPoints is returned when a fee exceeds MaxBasisPoints.
	ErrInvalidBasisPoints = errors.New("fees: basis points exceed maximum")
	// ErrUnsupportedCurrency is returned when a money-moving entry point is
	// invoked with a currency that was never configured.
	ErrUnsupportedCurrency = errors.New("fees: unsupported currency")

	errNilStorage = errors.New("fees: storage not configured")
)

// Storage abstracts the subset of state manager functionality required by the
// fee schedule.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

var feePrefix = []byte("rights/fees/")

type storedFee struct {
	Bps        uint32
	Configured bool
}

// Schedule maintains the per-currency basis-point fee registry. Configuring a
// fee for a currency is what admits it into the valid-currency set.
type Schedule struct {
	store Storage
}

// NewSchedule creates a fee schedule bound to the supplied storage.
func NewSchedule(store Storage) *Schedule {
	return &Schedule{store: store}
}

func feeKey(currency [20]byte) []byte {
	key := make([]byte, len(feePrefix)+20)
	copy(key, feePrefix)
	copy(key[len(feePrefix):], currency[:])
	return key
}

// SetFee persists the fee for a currency and registers it as valid.
func (s *Schedule) SetFee(currency [20]byte, bps uint32) error {
	if s == nil || s.store == nil {
		return errNilStorage
	}
	if bps > MaxBasisPoints {
		return fmt.Errorf("%w: %d", ErrInvalidBasisPoints, bps)
	}
	return s.store.KVPut(feeKey(currency), &storedFee{Bps: bps, Configured: true})
}

// LookupFee returns the configured fee and whether the currency has ever been
// configured, keeping "explicitly zero" distinct from "never set".
func (s *Schedule) LookupFee(currency [20]byte) (uint32, bool, error) {
	if s == nil || s.store == nil {
		return 0, false, errNilStorage
	}
	var stored storedFee
	ok, err := s.store.KVGet(feeKey(currency), &stored)
	if err != nil {
		return 0, false, err
	}
	if !ok {
		return 0, false, nil
	}
	return stored.Bps, stored.Configured, nil
}

// FeeBps returns the fee for a currency, defaulting to zero when unset. The
// settlement path guards with RequireValidCurrency first, so the zero default
// is never ambiguous there.
func (s *Schedule) FeeBps(currency [20]byte) (uint32, error) {
	bps, _, err := s.LookupFee(currency)
	return bps, err
}

// RequireValidCurrency fails with ErrUnsupportedCurrency unless the currency
// has been admitted into the valid set via SetFee.
func (s *Schedule) RequireValidCurrency(currency [20]byte) error {
	_, configured, err := s.LookupFee(currency)
	if err != nil {
		return err
	}
	if !configured {
		return ErrUnsupportedCurrency
	}
	return nil
}

// Cut computes floor(total * bps / 10000).
func Cut(total *big.Int, bps uint32) *big.Int {
	if total == nil || total.Sign() <= 0 || bps == 0 {
		return big.NewInt(0)
	}
	cut := new(big.Int).Mul(total, new(big.Int).SetUint64(uint64(bps)))
	return cut.Div(cut, big.NewInt(int64(MaxBasisPoints)))
}
