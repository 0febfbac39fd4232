package repositories

import (
	"context"
	"time"

	"github.com/skalice/ledger-engine/internal/core/domain"
)

// SnapshotCache defines the non-authoritative read cache for account
// snapshots. Entries may be stale or absent at any time; absence must be
// answered with apperrors.ErrCacheMiss, never with a zero-balance snapshot.
type SnapshotCache interface {
	// GetSnapshot returns the cached snapshot for an account, or
	// apperrors.ErrCacheMiss when the entry is absent, expired or of an
	// unrecognized schema.
	GetSnapshot(ctx context.Context, accountID string) (*domain.AccountSnapshot, error)

	// PutSnapshot stores a snapshot with the given TTL. Implementations must
	// refuse to overwrite an entry holding a higher account version, so a
	// read-through repopulation cannot clobber the result of a newer
	// mutation.
	PutSnapshot(ctx context.Context, snapshot domain.AccountSnapshot, ttl time.Duration) error

	// Invalidate removes any cached snapshot for the account.
	Invalidate(ctx context.Context, accountID string) error
}
