// Package drafts caches unsaved canvas state in Redis. Clients push their
// in-progress canvas over HTTP so a crashed session can recover work that
// was never explicitly saved; entries expire on their own.
package drafts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNoDraft is returned when a design has no live draft.
var ErrNoDraft = errors.New("drafts: no draft")

// Draft is one autosaved canvas with its provenance.
type Draft struct {
	DesignID      string          `json:"design_id"`
	ParticipantID string          `json:"participant_id"`
	Canvas        json.RawMessage `json:"canvas"`
	SavedAt       time.Time       `json:"saved_at"`
}

// RedisStore holds drafts keyed by design id, one draft per design —
// the latest autosave wins, same policy as the live relay.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisStore(redisURL string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisStore{client: client, prefix: "draft:", ttl: ttl}, nil
}

func (s *RedisStore) key(designID string) string {
	return s.prefix + designID
}

// Save overwrites the design's draft and resets its TTL.
func (s *RedisStore) Save(ctx context.Context, designID, participantID string, canvas json.RawMessage) error {
	draft := Draft{
		DesignID:      designID,
		ParticipantID: participantID,
		Canvas:        canvas,
		SavedAt:       time.Now().UTC(),
	}
	payload, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("marshal draft: %w", err)
	}
	if err := s.client.Set(ctx, s.key(designID), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("save draft: %w", err)
	}
	return nil
}

// Load returns the design's current draft, or ErrNoDraft if it never
// existed or has expired.
func (s *RedisStore) Load(ctx context.Context, designID string) (Draft, error) {
	payload, err := s.client.Get(ctx, s.key(designID)).Result()
	if err == redis.Nil {
		return Draft{}, ErrNoDraft
	}
	if err != nil {
		return Draft{}, fmt.Errorf("load draft: %w", err)
	}
	var draft Draft
	if err := json.Unmarshal([]byte(payload), &draft); err != nil {
		return Draft{}, fmt.Errorf("unmarshal draft: %w", err)
	}
	return draft, nil
}

// Discard drops the draft, typically right after an explicit save made it
// redundant. Discarding a missing draft is not an error.
func (s *RedisStore) Discard(ctx context.Context, designID string) error {
	if err := s.client.Del(ctx, s.key(designID)).Err(); err != nil {
		return fmt.Errorf("discard draft: %w", err)
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
