package registry

import (
	"sync"

	"github.com/SynapseMedia/protocol-core-v1/native/custody"
	"github.com/SynapseMedia/protocol-core-v1/native/policy"
	"github.com/SynapseMedia/protocol-core-v1/native/rights"
)

// Static is an in-memory registry backing the engine's external views for
// standalone deployments: content ownership, distributor enrollment, content
// activation, and policy audit status all come from configuration instead of
// live host-chain registries. It is safe for concurrent use.
type Static struct {
	mu           sync.RWMutex
	owners       map[[32]byte][20]byte
	distributors map[[20]byte]bool
	contents     map[[32]byte]bool
	audited      map[[20]byte]bool
}

// New returns an empty static registry.
func New() *Static {
	return &Static{
		owners:       make(map[[32]byte][20]byte),
		distributors: make(map[[20]byte]bool),
		contents:     make(map[[32]byte]bool),
		audited:      make(map[[20]byte]bool),
	}
}

// SetOwner records the holder of a content item. A zero owner removes the
// entry.
func (s *Static) SetOwner(contentID [32]byte, owner [20]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if owner == ([20]byte{}) {
		delete(s.owners, contentID)
		return
	}
	s.owners[contentID] = owner
}

// SetDistributorActive toggles a distributor's enrollment.
func (s *Static) SetDistributorActive(distributor [20]byte, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.distributors[distributor] = active
}

// SetContentActive toggles a content item's activation.
func (s *Static) SetContentActive(contentID [32]byte, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contents[contentID] = active
}

// SetAudited toggles a policy's audit status.
func (s *Static) SetAudited(policyAddr [20]byte, audited bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audited[policyAddr] = audited
}

// Ownership exposes the registry as the engine's ownership view.
func (s *Static) Ownership() custody.OwnershipView { return ownershipView{s} }

// Enrollment exposes the registry as the engine's enrollment view.
func (s *Static) Enrollment() custody.EnrollmentView { return enrollmentView{s} }

// Contents exposes the registry as the engine's content activation view.
func (s *Static) Contents() rights.ContentView { return contentView{s} }

// Audit exposes the registry as the engine's audit oracle.
func (s *Static) Audit() policy.AuditView { return auditView{s} }

type ownershipView struct{ s *Static }

func (v ownershipView) OwnerOf(contentID [32]byte) ([20]byte, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	return v.s.owners[contentID], nil
}

type enrollmentView struct{ s *Static }

func (v enrollmentView) IsActive(member [20]byte) bool {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	return v.s.distributors[member]
}

type contentView struct{ s *Static }

func (v contentView) IsActive(contentID [32]byte) bool {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	return v.s.contents[contentID]
}

type auditView struct{ s *Static }

func (v auditView) IsAudited(policyAddr [20]byte) bool {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	return v.s.audited[policyAddr]
}
