package state

import (
	"fmt"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/SynapseMedia/protocol-core-v1/storage"
)

// Manager reads and writes engine state through a key-value backend. Logical
// keys are namespaced strings ("rights/ledger/...") hashed with keccak-256
// before hitting the backend, so each logical struct owns a stable,
// collision-resistant slot identity that survives logic replacement. Values
// are RLP encoded.
//
// A manager supports staged writes: Begin opens an overlay that buffers all
// mutations, Commit flushes them, and Discard drops them. The settlement
// engine uses one overlay per money-moving call to guarantee all-or-nothing
// semantics.
type Manager struct {
	db storage.Database

	mu       sync.Mutex
	overlays []map[string][]byte
}

// NewManager creates a state manager over the supplied database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

func slotKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

// KVPut encodes and stores a value under the logical key.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if m == nil || m.db == nil {
		return fmt.Errorf("state: manager not configured")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("state: encode %q: %w", key, err)
	}
	slot := slotKey(key)
	m.mu.Lock()
	defer m.mu.Unlock()
	if n := len(m.overlays); n > 0 {
		m.overlays[n-1][string(slot)] = encoded
		return nil
	}
	return m.db.Put(slot, encoded)
}

// KVGet decodes the value stored under the logical key into out. It returns
// false when no value exists.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if m == nil || m.db == nil {
		return false, fmt.Errorf("state: manager not configured")
	}
	slot := slotKey(key)
	m.mu.Lock()
	encoded, found := m.lookupLocked(slot)
	m.mu.Unlock()
	if !found {
		raw, err := m.db.Get(slot)
		if err != nil {
			if err == storage.ErrKeyNotFound {
				return false, nil
			}
			return false, err
		}
		encoded = raw
	}
	if err := rlp.DecodeBytes(encoded, out); err != nil {
		return false, fmt.Errorf("state: decode %q: %w", key, err)
	}
	return true, nil
}

func (m *Manager) lookupLocked(slot []byte) ([]byte, bool) {
	for i := len(m.overlays) - 1; i >= 0; i-- {
		if encoded, ok := m.overlays[i][string(slot)]; ok {
			return encoded, true
		}
	}
	return nil, false
}

// Begin opens a staged overlay. Overlays nest; each Commit or Discard closes
// the innermost one.
func (m *Manager) Begin() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overlays = append(m.overlays, make(map[string][]byte))
}

// Commit flushes the innermost overlay into its parent, or into the backing
// database when it is the outermost one.
func (m *Manager) Commit() error {
	if m == nil {
		return fmt.Errorf("state: manager not configured")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.overlays)
	if n == 0 {
		return fmt.Errorf("state: commit without begin")
	}
	top := m.overlays[n-1]
	m.overlays = m.overlays[:n-1]
	if n > 1 {
		parent := m.overlays[n-2]
		for slot, encoded := range top {
			parent[slot] = encoded
		}
		return nil
	}
	for slot, encoded := range top {
		if err := m.db.Put([]byte(slot), encoded); err != nil {
			return fmt.Errorf("state: commit: %w", err)
		}
	}
	return nil
}

// Discard drops the innermost overlay and all writes staged within it.
func (m *Manager) Discard() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if n := len(m.overlays); n > 0 {
		m.overlays = m.overlays[:n-1]
	}
}
