package redisc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/skalice/ledger-engine/internal/apperrors"
	"github.com/skalice/ledger-engine/internal/core/domain"
	portsrepo "github.com/skalice/ledger-engine/internal/core/ports/repositories"
)

const (
	snapshotNamespace = "snapshot"

	// snapshotSchemaVersion tags every cached payload. Entries written by an
	// older build are treated as misses instead of being deserialized into
	// the wrong shape.
	snapshotSchemaVersion = 1
)

// cachedSnapshot is the explicit versioned value type stored in Redis.
type cachedSnapshot struct {
	SchemaVersion int                    `json:"schemaVersion"`
	Snapshot      domain.AccountSnapshot `json:"snapshot"`
}

// RedisSnapshotCache stores denormalized account snapshots in Redis.
// It is never authoritative; every error path degrades to a cache miss
// or a logged failure, not to invented account state.
type RedisSnapshotCache struct {
	client *redis.Client
}

// NewSnapshotCache creates a snapshot cache on top of an existing client.
func NewSnapshotCache(client *redis.Client) *RedisSnapshotCache {
	return &RedisSnapshotCache{client: client}
}

// Ensure RedisSnapshotCache implements portsrepo.SnapshotCache
var _ portsrepo.SnapshotCache = (*RedisSnapshotCache)(nil)

func snapshotKey(accountID string) string {
	return snapshotNamespace + ":" + accountID
}

// decodeSnapshot parses a cached payload. ok is false for undecodable bytes
// and for entries written under a different schema version.
func decodeSnapshot(payload []byte) (*domain.AccountSnapshot, bool) {
	var cached cachedSnapshot
	if err := json.Unmarshal(payload, &cached); err != nil || cached.SchemaVersion != snapshotSchemaVersion {
		return nil, false
	}
	return &cached.Snapshot, true
}

// supersedes reports whether an existing cached payload already carries a
// snapshot at the same or a newer account version than the candidate.
// Undecodable or foreign-schema payloads never supersede anything.
func supersedes(existing []byte, candidateVersion int64) bool {
	snap, ok := decodeSnapshot(existing)
	return ok && snap.Version >= candidateVersion
}

// GetSnapshot returns the cached snapshot for an account. Absent, expired or
// schema-mismatched entries all surface as apperrors.ErrCacheMiss.
func (c *RedisSnapshotCache) GetSnapshot(ctx context.Context, accountID string) (*domain.AccountSnapshot, error) {
	payload, err := c.client.Get(ctx, snapshotKey(accountID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.ErrCacheMiss
		}
		return nil, fmt.Errorf("%w: cache get for account %s: %v", apperrors.ErrInfrastructure, accountID, err)
	}

	snap, ok := decodeSnapshot(payload)
	if !ok {
		// Unreadable or foreign-schema entry: drop it and report a miss.
		_ = c.client.Del(ctx, snapshotKey(accountID)).Err()
		return nil, apperrors.ErrCacheMiss
	}

	return snap, nil
}

// PutSnapshot stores a snapshot with the given TTL. The write runs under a
// WATCH on the key and is skipped when the cache already holds a snapshot
// with an equal or higher account version, so a slow read-through cannot
// overwrite the result of a newer mutation.
//
// An invalidation that lands between the caller's store read and the WATCH
// leaves no key to compare against, so a stale snapshot can still be written
// and lives until its TTL or the next invalidation.
func (c *RedisSnapshotCache) PutSnapshot(ctx context.Context, snapshot domain.AccountSnapshot, ttl time.Duration) error {
	key := snapshotKey(snapshot.AccountID)

	payload, err := json.Marshal(cachedSnapshot{
		SchemaVersion: snapshotSchemaVersion,
		Snapshot:      snapshot,
	})
	if err != nil {
		return fmt.Errorf("%w: cache marshal for account %s: %v", apperrors.ErrInfrastructure, snapshot.AccountID, err)
	}

	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		existing, err := tx.Get(ctx, key).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if err == nil && supersedes(existing, snapshot.Version) {
			// Cache already reflects the same or newer state.
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, ttl)
			return nil
		})
		return err
	}, key)
	if err != nil {
		if errors.Is(err, redis.TxFailedErr) {
			// The key changed mid-write, which means a newer invalidation or
			// snapshot raced us. Skipping the stale write is the safe outcome.
			return nil
		}
		return fmt.Errorf("%w: cache put for account %s: %v", apperrors.ErrInfrastructure, snapshot.AccountID, err)
	}
	return nil
}

// Invalidate removes any cached snapshot for the account.
func (c *RedisSnapshotCache) Invalidate(ctx context.Context, accountID string) error {
	if err := c.client.Del(ctx, snapshotKey(accountID)).Err(); err != nil {
		return fmt.Errorf("%w: cache invalidate for account %s: %v", apperrors.ErrInfrastructure, accountID, err)
	}
	return nil
}
