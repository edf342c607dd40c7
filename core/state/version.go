package state

import "fmt"

// SchemaVersion identifies the persisted state layout. Migrations are
// additive-only: a newer binary may introduce fields or keys, never reuse or
// reinterpret existing slots.
const SchemaVersion uint64 = 1

var schemaVersionKey = []byte("rights/schema/version")

// EnsureSchema initialises the schema marker on first use and refuses to
// operate on state written by a newer layout.
func (m *Manager) EnsureSchema() error {
	if m == nil {
		return fmt.Errorf("state: manager not configured")
	}
	var stored uint64
	ok, err := m.KVGet(schemaVersionKey, &stored)
	if err != nil {
		return err
	}
	if !ok {
		return m.KVPut(schemaVersionKey, SchemaVersion)
	}
	if stored > SchemaVersion {
		return fmt.Errorf("state: schema version %d is newer than supported %d", stored, SchemaVersion)
	}
	return nil
}
