// Package pending stores the shared pending-participant sets for open
// captcha challenges. State lives in Redis so it survives restarts and is
// visible to every concurrent handler.
package pending

import (
	"context"
	"errors"
	"strconv"
	"time"

	"gatekeeper/internal/cache"

	"github.com/redis/go-redis/v9"
)

// Store manages one Redis set plus an "open" marker per challenge. The
// marker is what makes resolution exactly-once: whichever caller's Claim
// succeeds owns the resolution, regardless of how set mutations interleave.
type Store struct {
	rdb *redis.Client
}

// NewStore returns a Store backed by the given Redis client.
func NewStore(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

// Create registers a challenge's pending set and its open marker. Keys carry
// a TTL of twice the challenge timeout so entries orphaned by a crash expire
// on their own.
func (s *Store) Create(ctx context.Context, chatID int64, messageID int, userIDs []int64, timeout time.Duration) error {
	setKey := cache.ChallengePendingKey(chatID, messageID)
	openKey := cache.ChallengeOpenKey(chatID, messageID)

	members := make([]interface{}, 0, len(userIDs))
	for _, id := range userIDs {
		members = append(members, id)
	}

	ttl := 2 * timeout
	pipe := s.rdb.TxPipeline()
	pipe.SAdd(ctx, setKey, members...)
	pipe.Expire(ctx, setKey, ttl)
	pipe.Set(ctx, openKey, "1", ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// IsOpen reports whether the challenge still has an unclaimed open marker.
func (s *Store) IsOpen(ctx context.Context, chatID int64, messageID int) (bool, error) {
	n, err := s.rdb.Exists(ctx, cache.ChallengeOpenKey(chatID, messageID)).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Remove takes one participant out of the pending set. The boolean reports
// whether the participant was actually pending; under a concurrent timeout
// only one actor observes true for a given participant.
func (s *Store) Remove(ctx context.Context, chatID int64, messageID int, userID int64) (bool, error) {
	n, err := s.rdb.SRem(ctx, cache.ChallengePendingKey(chatID, messageID), userID).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Count returns the number of participants still pending.
func (s *Store) Count(ctx context.Context, chatID int64, messageID int) (int64, error) {
	return s.rdb.SCard(ctx, cache.ChallengePendingKey(chatID, messageID)).Result()
}

// Pop atomically removes and returns one pending participant, or ok=false
// when the set is empty. Used by the timeout path so a racing response can
// never act on the same participant.
func (s *Store) Pop(ctx context.Context, chatID int64, messageID int) (int64, bool, error) {
	val, err := s.rdb.SPop(ctx, cache.ChallengePendingKey(chatID, messageID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	id, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// Claim atomically consumes the challenge's open marker. Exactly one caller
// per challenge observes true; everyone else sees an already-resolved
// challenge.
func (s *Store) Claim(ctx context.Context, chatID int64, messageID int) (bool, error) {
	_, err := s.rdb.GetDel(ctx, cache.ChallengeOpenKey(chatID, messageID)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Clear removes all remaining challenge state.
func (s *Store) Clear(ctx context.Context, chatID int64, messageID int) error {
	return s.rdb.Del(ctx,
		cache.ChallengePendingKey(chatID, messageID),
		cache.ChallengeOpenKey(chatID, messageID),
	).Err()
}
