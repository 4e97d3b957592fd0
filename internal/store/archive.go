package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/contextforge/forge/pkg/envelope"
)

// Archive persists completed session histories to Redis so finished runs
// can be inspected after the process exits. The live pipeline never reads
// from the archive; it is written once at session teardown.
type Archive struct {
	rdb *redis.Client
}

// NewArchive creates an archive client.
func NewArchive(redisOpts *redis.Options) *Archive {
	return &Archive{rdb: redis.NewClient(redisOpts)}
}

// Close closes the Redis connection. Implements io.Closer.
func (a *Archive) Close() error {
	return a.rdb.Close()
}

// Ping verifies Redis connectivity. Useful for health checks.
func (a *Archive) Ping(ctx context.Context) error {
	return a.rdb.Ping(ctx).Err()
}

// Persist writes a session's full history. Each envelope is stored as a
// hash at forge:{session}:envelope:{id}, indexed by a ZSET scored by
// sequence number so load order matches history order. Idempotent:
// persisting the same session twice is safe.
func (a *Archive) Persist(ctx context.Context, sessionID string, envelopes []*envelope.Envelope, meta map[string]string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID cannot be empty")
	}

	for _, e := range envelopes {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("invalid envelope %s: %w", e.ID, err)
		}

		key := envelope.Key(sessionID, e.ID)
		if err := a.rdb.HSet(ctx, key, envelope.ToHash(e)).Err(); err != nil {
			return fmt.Errorf("failed to write envelope to Redis: %w", err)
		}

		z := redis.Z{Score: float64(e.Seq), Member: e.ID}
		if err := a.rdb.ZAdd(ctx, envelope.IndexKey(sessionID), z).Err(); err != nil {
			return fmt.Errorf("failed to index envelope: %w", err)
		}
	}

	if len(meta) > 0 {
		if err := a.rdb.HSet(ctx, envelope.MetaKey(sessionID), meta).Err(); err != nil {
			return fmt.Errorf("failed to write session meta: %w", err)
		}
	}

	return nil
}

// Load reads an archived session's envelopes in sequence order.
// Returns (nil, redis.Nil) if the session was never archived.
func (a *Archive) Load(ctx context.Context, sessionID string) ([]*envelope.Envelope, error) {
	ids, err := a.rdb.ZRange(ctx, envelope.IndexKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read session index: %w", err)
	}
	if len(ids) == 0 {
		return nil, redis.Nil
	}

	envelopes := make([]*envelope.Envelope, 0, len(ids))
	for _, id := range ids {
		hashData, err := a.rdb.HGetAll(ctx, envelope.Key(sessionID, id)).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read envelope %s: %w", id, err)
		}
		if len(hashData) == 0 {
			return nil, fmt.Errorf("indexed envelope %s missing from archive", id)
		}

		e, err := envelope.FromHash(hashData)
		if err != nil {
			return nil, fmt.Errorf("failed to deserialize envelope %s: %w", id, err)
		}
		envelopes = append(envelopes, e)
	}

	return envelopes, nil
}

// Meta reads an archived session's metadata hash.
// Returns an empty map if the session has no metadata.
func (a *Archive) Meta(ctx context.Context, sessionID string) (map[string]string, error) {
	meta, err := a.rdb.HGetAll(ctx, envelope.MetaKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read session meta: %w", err)
	}
	return meta, nil
}

// IsNotFound returns true if the error is a Redis "key not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, redis.Nil)
}
