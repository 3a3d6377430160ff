package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// Redis key prefix for session records
	recordKeyPrefix = "collab:session:"
	// Redis key prefix for user reverse index sets
	userKeyPrefix = "collab:user:"
)

// RedisStore implements Store using Redis with optimistic locking.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a new Redis-based session store.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisStore{
		client: client,
		ttl:    ttl,
	}
}

// Create implements Store.
// Creates a new record with Version set to 1 and sets TTL. The write is
// conditional (SETNX): when another process created the record first,
// ErrAlreadyExists is returned and nothing is overwritten.
func (s *RedisStore) Create(ctx context.Context, record *Record) error {
	key := s.key(record.ID)
	now := time.Now()
	record.CreatedAt = now
	record.UpdatedAt = now
	record.Version = 1

	val, err := json.Marshal(record)
	if err != nil {
		return err
	}

	ok, err := s.client.SetNX(ctx, key, val, s.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrAlreadyExists
	}
	return nil
}

// Get implements Store.
// Returns nil if the record is not found (not an error).
// Refreshes TTL on every read.
func (s *RedisStore) Get(ctx context.Context, id string) (*Record, error) {
	key := s.key(id)
	val, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, err
	}

	var record Record
	if err := json.Unmarshal([]byte(val), &record); err != nil {
		return nil, err
	}

	// Refresh TTL on read
	_ = s.client.Expire(ctx, key, s.ttl).Err()

	return &record, nil
}

// Update implements Store.
// Implements optimistic locking using Redis WATCH/MULTI/EXEC.
// Verifies Version matches, increments it, updates UpdatedAt, and persists.
// Returns ErrVersionConflict if the version does not match.
// Returns ErrNotFound if the record does not exist.
// Refreshes TTL on every write.
func (s *RedisStore) Update(ctx context.Context, record *Record) error {
	key := s.key(record.ID)

	// Use WATCH/MULTI/EXEC for optimistic locking
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		// Get current value
		val, err := tx.Get(ctx, key).Result()
		if err == redis.Nil {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		// Unmarshal to check version
		var stored Record
		if err := json.Unmarshal([]byte(val), &stored); err != nil {
			return err
		}

		// Check version for optimistic locking
		if stored.Version != record.Version {
			return ErrVersionConflict
		}

		// Increment version and update timestamp
		record.Version++
		record.UpdatedAt = time.Now()

		// Marshal updated record
		newVal, err := json.Marshal(record)
		if err != nil {
			return err
		}

		// Execute transaction
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, newVal, s.ttl)
			return nil
		})
		return err
	}, key)

	return err
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	key := s.key(id)
	return s.client.Del(ctx, key).Err()
}

// List implements Store.
// Scans for all session record keys and returns their IDs.
func (s *RedisStore) List(ctx context.Context) ([]string, error) {
	var ids []string
	iter := s.client.Scan(ctx, 0, recordKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		ids = append(ids, key[len(recordKeyPrefix):])
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

// AddUserChannel implements Store.
func (s *RedisStore) AddUserChannel(ctx context.Context, userID, channelID string) error {
	key := s.userKey(userID)
	if err := s.client.SAdd(ctx, key, channelID).Err(); err != nil {
		return err
	}
	return s.client.Expire(ctx, key, s.ttl).Err()
}

// RemoveUserChannel implements Store.
func (s *RedisStore) RemoveUserChannel(ctx context.Context, userID, channelID string) error {
	return s.client.SRem(ctx, s.userKey(userID), channelID).Err()
}

// UserChannels implements Store.
func (s *RedisStore) UserChannels(ctx context.Context, userID string) ([]string, error) {
	return s.client.SMembers(ctx, s.userKey(userID)).Result()
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// key constructs the Redis key for a session record ID.
func (s *RedisStore) key(id string) string {
	return recordKeyPrefix + id
}

// userKey constructs the Redis key for a user's joined-channel set.
func (s *RedisStore) userKey(userID string) string {
	return userKeyPrefix + userID + ":channels"
}

// Compile-time check that RedisStore implements Store
var _ Store = (*RedisStore)(nil)
