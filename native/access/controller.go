package access

import (
	"errors"

	"github.com/SynapseMedia/protocol-core-v1/core/types"
)

var (
	errNilStorage  = errors.New("access: storage not configured")
	errNilResolver = errors.New("access: validator resolver not configured")
)

// Storage abstracts the subset of state manager functionality required by the
// controller.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// Validator decides whether an account may access a piece of content. Policy
// contracts implement it for the grants they have settled.
type Validator interface {
	IsAccessGranted(account [20]byte, contentID [32]byte) (bool, error)
}

// ValidatorResolver maps a registered validator address to its contract. An
// unresolvable address simply denies.
type ValidatorResolver interface {
	ResolveValidator(addr [20]byte) (Validator, bool)
}

var validatorPrefix = []byte("rights/access/")

// Controller stores which validator vouches for each (content, account) pair.
// The zero account slot holds the "general" validator that gates content for
// everyone without an account-specific entry.
type Controller struct {
	store    Storage
	resolver ValidatorResolver
}

// NewController creates an access controller bound to its storage and
// resolver.
func NewController(store Storage, resolver ValidatorResolver) *Controller {
	return &Controller{store: store, resolver: resolver}
}

func validatorKey(contentID [32]byte, account [20]byte) []byte {
	key := make([]byte, len(validatorPrefix)+52)
	copy(key, validatorPrefix)
	copy(key[len(validatorPrefix):], contentID[:])
	copy(key[len(validatorPrefix)+32:], account[:])
	return key
}

// Register records the validator for the (content, account) pair,
// overwriting any previous entry. The engine registers the settling policy
// here; the supplied address is stored verbatim because a misbehaving
// validator can only deny access, never grant it.
func (c *Controller) Register(account [20]byte, contentID [32]byte, validator [20]byte) error {
	if c == nil || c.store == nil {
		return errNilStorage
	}
	return c.store.KVPut(validatorKey(contentID, account), validator)
}

// ValidatorFor returns the registered validator for the pair, if any.
func (c *Controller) ValidatorFor(account [20]byte, contentID [32]byte) ([20]byte, bool, error) {
	if c == nil || c.store == nil {
		return [20]byte{}, false, errNilStorage
	}
	var validator [20]byte
	ok, err := c.store.KVGet(validatorKey(contentID, account), &validator)
	if err != nil {
		return [20]byte{}, false, err
	}
	if !ok || types.IsZeroAddress(validator) {
		return [20]byte{}, false, nil
	}
	return validator, true, nil
}

// IsAccessGranted checks the account-specific validator first and falls back
// to the general (zero account) validator. Each validator call is isolated: a
// resolver miss, an error, or a panic from one validator counts as a denial
// from that validator and never aborts the overall check.
func (c *Controller) IsAccessGranted(account [20]byte, contentID [32]byte) (bool, error) {
	if c == nil || c.store == nil {
		return false, errNilStorage
	}
	if c.resolver == nil {
		return false, errNilResolver
	}
	if granted := c.evaluate(account, contentID, account); granted {
		return true, nil
	}
	var general [20]byte
	return c.evaluate(general, contentID, account), nil
}

func (c *Controller) evaluate(slot [20]byte, contentID [32]byte, account [20]byte) (granted bool) {
	validatorAddr, ok, err := c.ValidatorFor(slot, contentID)
	if err != nil || !ok {
		return false
	}
	validator, ok := c.resolver.ResolveValidator(validatorAddr)
	if !ok || validator == nil {
		return false
	}
	defer func() {
		if recover() != nil {
			granted = false
		}
	}()
	granted, err = validator.IsAccessGranted(account, contentID)
	if err != nil {
		return false
	}
	return granted
}
