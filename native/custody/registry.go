package custody

import (
	"errors"

	"github.com/SynapseMedia/protocol-core-v1/core/types"
)

var (
	// ErrUnknownContent is returned when the content has no registered holder.
	ErrUnknownContent = errors.New("custody: unknown content")
	// ErrNotContentHolder is returned when someone other than the registered
	// holder tries to reassign custody.
	ErrNotContentHolder = errors.New("custody: caller is not the content holder")
	// ErrDistributorInactive is returned when the target distributor is not
	// active per the enrollment registry.
	ErrDistributorInactive = errors.New("custody: distributor is not active")

	errNilStorage    = errors.New("custody: storage not configured")
	errNilOwnership  = errors.New("custody: ownership view not configured")
	errNilEnrollment = errors.New("custody: enrollment view not configured")
)

// Storage abstracts the subset of state manager functionality required by the
// registry.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// OwnershipView resolves content to its registered rights holder. A zero
// holder address means the content is unknown.
type OwnershipView interface {
	OwnerOf(contentID [32]byte) ([20]byte, error)
}

// EnrollmentView reports whether a distributor is currently active.
type EnrollmentView interface {
	IsActive(distributor [20]byte) bool
}

var (
	custodianPrefix = []byte("rights/custody/content/")
	countPrefix     = []byte("rights/custody/count/")
)

// Registry maps content to its custodial distributor and maintains the
// per-distributor custody counters.
type Registry struct {
	store      Storage
	owners     OwnershipView
	enrollment EnrollmentView
}

// NewRegistry creates a custody registry bound to its storage and views.
func NewRegistry(store Storage, owners OwnershipView, enrollment EnrollmentView) *Registry {
	return &Registry{store: store, owners: owners, enrollment: enrollment}
}

func custodianKey(contentID [32]byte) []byte {
	key := make([]byte, len(custodianPrefix)+32)
	copy(key, custodianPrefix)
	copy(key[len(custodianPrefix):], contentID[:])
	return key
}

func countKey(distributor [20]byte) []byte {
	key := make([]byte, len(countPrefix)+20)
	copy(key, countPrefix)
	copy(key[len(countPrefix):], distributor[:])
	return key
}

// HolderOf resolves the registered holder for the content, failing with
// ErrUnknownContent when none exists.
func (r *Registry) HolderOf(contentID [32]byte) ([20]byte, error) {
	if r == nil || r.owners == nil {
		return [20]byte{}, errNilOwnership
	}
	holder, err := r.owners.OwnerOf(contentID)
	if err != nil {
		return [20]byte{}, err
	}
	if types.IsZeroAddress(holder) {
		return [20]byte{}, ErrUnknownContent
	}
	return holder, nil
}

// Grant reassigns custody of the content to the distributor. Only the
// registered holder may call, and only active distributors qualify. The
// previous custodian is returned for event emission; reassigning to the same
// distributor is a no-op on the counters.
func (r *Registry) Grant(caller [20]byte, contentID [32]byte, distributor [20]byte) ([20]byte, error) {
	if r == nil || r.store == nil {
		return [20]byte{}, errNilStorage
	}
	if r.enrollment == nil {
		return [20]byte{}, errNilEnrollment
	}
	holder, err := r.HolderOf(contentID)
	if err != nil {
		return [20]byte{}, err
	}
	if caller != holder {
		return [20]byte{}, ErrNotContentHolder
	}
	if !r.enrollment.IsActive(distributor) {
		return [20]byte{}, ErrDistributorInactive
	}
	previous, hadPrevious, err := r.CustodianOf(contentID)
	if err != nil {
		return [20]byte{}, err
	}
	if hadPrevious && previous == distributor {
		return previous, nil
	}
	if hadPrevious {
		if err := r.adjustCount(previous, -1); err != nil {
			return [20]byte{}, err
		}
	}
	if err := r.adjustCount(distributor, 1); err != nil {
		return [20]byte{}, err
	}
	if err := r.store.KVPut(custodianKey(contentID), distributor); err != nil {
		return [20]byte{}, err
	}
	return previous, nil
}

// CustodianOf returns the current custodian for the content, if any.
func (r *Registry) CustodianOf(contentID [32]byte) ([20]byte, bool, error) {
	if r == nil || r.store == nil {
		return [20]byte{}, false, errNilStorage
	}
	var custodian [20]byte
	ok, err := r.store.KVGet(custodianKey(contentID), &custodian)
	if err != nil {
		return [20]byte{}, false, err
	}
	if !ok || types.IsZeroAddress(custodian) {
		return [20]byte{}, false, nil
	}
	return custodian, true, nil
}

// CustodyCount returns the number of content items currently custodied to the
// distributor.
func (r *Registry) CustodyCount(distributor [20]byte) (uint64, error) {
	if r == nil || r.store == nil {
		return 0, errNilStorage
	}
	var count uint64
	if _, err := r.store.KVGet(countKey(distributor), &count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *Registry) adjustCount(distributor [20]byte, delta int64) error {
	count, err := r.CustodyCount(distributor)
	if err != nil {
		return err
	}
	if delta < 0 {
		if count > 0 {
			count--
		}
	} else {
		count++
	}
	return r.store.KVPut(countKey(distributor), count)
}
