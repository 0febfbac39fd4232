package redisc

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/skalice/ledger-engine/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeCached(t *testing.T, schemaVersion int, snapshot domain.AccountSnapshot) []byte {
	t.Helper()
	payload, err := json.Marshal(cachedSnapshot{
		SchemaVersion: schemaVersion,
		Snapshot:      snapshot,
	})
	require.NoError(t, err)
	return payload
}

func testSnapshot(version int64) domain.AccountSnapshot {
	return domain.AccountSnapshot{
		AccountID:   "acc-1",
		Balance:     decimal.RequireFromString("50"),
		CreditLimit: decimal.RequireFromString("100"),
		Version:     version,
	}
}

func TestDecodeSnapshot(t *testing.T) {
	t.Run("current schema decodes", func(t *testing.T) {
		payload := encodeCached(t, snapshotSchemaVersion, testSnapshot(7))

		snap, ok := decodeSnapshot(payload)

		require.True(t, ok)
		assert.Equal(t, "acc-1", snap.AccountID)
		assert.Equal(t, int64(7), snap.Version)
	})

	t.Run("foreign schema version is a miss", func(t *testing.T) {
		payload := encodeCached(t, snapshotSchemaVersion+1, testSnapshot(7))

		_, ok := decodeSnapshot(payload)

		assert.False(t, ok)
	})

	t.Run("undecodable payload is a miss", func(t *testing.T) {
		_, ok := decodeSnapshot([]byte("not json"))

		assert.False(t, ok)
	})
}

// The repopulation guard: a read-through write must never replace a snapshot
// carrying an equal or higher account version.
func TestSupersedes(t *testing.T) {
	existing := encodeCached(t, snapshotSchemaVersion, testSnapshot(5))

	t.Run("older candidate is refused", func(t *testing.T) {
		assert.True(t, supersedes(existing, 4))
	})

	t.Run("equal candidate is refused", func(t *testing.T) {
		assert.True(t, supersedes(existing, 5))
	})

	t.Run("newer candidate replaces", func(t *testing.T) {
		assert.False(t, supersedes(existing, 6))
	})

	t.Run("undecodable entry never blocks a write", func(t *testing.T) {
		assert.False(t, supersedes([]byte("garbage"), 1))
	})

	t.Run("foreign-schema entry never blocks a write", func(t *testing.T) {
		foreign := encodeCached(t, snapshotSchemaVersion+1, testSnapshot(99))
		assert.False(t, supersedes(foreign, 1))
	})
}

func TestSnapshotKey(t *testing.T) {
	assert.Equal(t, "snapshot:acc-1", snapshotKey("acc-1"))
}
