package policy

import "errors"

var (
	// ErrNotAudited is returned when a holder tries to authorize a policy the
	// audit oracle does not currently vouch for.
	ErrNotAudited = errors.New("policy: policy is not audited")

	errNilStorage = errors.New("policy: storage not configured")
	errNilAudit   = errors.New("policy: audit view not configured")
)

// Storage abstracts the subset of state manager functionality required by the
// authorizer.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// AuditView reports whether a policy contract is currently audited.
type AuditView interface {
	IsAudited(policy [20]byte) bool
}

var delegationPrefix = []byte("rights/policy/delegation/")

// Authorizer maintains each holder's set of delegated policies. Authorization
// is only effective while the policy remains audited, so a revoked audit
// silently lapses every delegation of that policy without an explicit revoke.
type Authorizer struct {
	store Storage
	audit AuditView
}

// NewAuthorizer creates an authorizer bound to its storage and audit oracle.
func NewAuthorizer(store Storage, audit AuditView) *Authorizer {
	return &Authorizer{store: store, audit: audit}
}

func delegationKey(holder [20]byte, policy [20]byte) []byte {
	key := make([]byte, len(delegationPrefix)+40)
	copy(key, delegationPrefix)
	copy(key[len(delegationPrefix):], holder[:])
	copy(key[len(delegationPrefix)+20:], policy[:])
	return key
}

// Authorize adds the policy to the holder's delegation set. Re-authorizing is
// a no-op; unaudited policies are rejected.
func (a *Authorizer) Authorize(holder [20]byte, policyAddr [20]byte) error {
	if a == nil || a.store == nil {
		return errNilStorage
	}
	if a.audit == nil {
		return errNilAudit
	}
	if !a.audit.IsAudited(policyAddr) {
		return ErrNotAudited
	}
	return a.store.KVPut(delegationKey(holder, policyAddr), true)
}

// Revoke removes the policy from the holder's delegation set. Revoking a
// policy that was never authorized succeeds.
func (a *Authorizer) Revoke(holder [20]byte, policyAddr [20]byte) error {
	if a == nil || a.store == nil {
		return errNilStorage
	}
	return a.store.KVPut(delegationKey(holder, policyAddr), false)
}

// IsAuthorized reports whether the policy is in the holder's delegation set
// and still currently audited. Both legs must hold; the dual check fails
// closed when the oracle withdraws its audit.
func (a *Authorizer) IsAuthorized(holder [20]byte, policyAddr [20]byte) (bool, error) {
	if a == nil || a.store == nil {
		return false, errNilStorage
	}
	if a.audit == nil {
		return false, errNilAudit
	}
	var delegated bool
	ok, err := a.store.KVGet(delegationKey(holder, policyAddr), &delegated)
	if err != nil {
		return false, err
	}
	if !ok || !delegated {
		return false, nil
	}
	return a.audit.IsAudited(policyAddr), nil
}
