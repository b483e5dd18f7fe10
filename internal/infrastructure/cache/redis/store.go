package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"datanav/internal/core/domain"
)

// Store keeps completed answers and feedback in Redis as JSON blobs under a
// namespaced key, so entries stay inspectable with redis-cli.
type Store struct {
	client    *redis.Client
	keyPrefix string
}

func New(addr, password string, db int) *Store {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &Store{client: client, keyPrefix: "datanav:"}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) Get(ctx context.Context, key string) (*domain.AnswerRecord, error) {
	raw, err := s.client.Get(ctx, s.answerKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.WrapError(domain.ErrNotFound, "cache.get", err)
		}
		return nil, domain.WrapError(domain.ErrCacheUnavailable, "cache.get", err)
	}

	var record domain.AnswerRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("cache.get: decode record: %w", err)
	}
	return &record, nil
}

func (s *Store) Set(ctx context.Context, key string, record *domain.AnswerRecord, ttl time.Duration) error {
	if record == nil {
		return fmt.Errorf("cache.set: nil record")
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("cache.set: encode record: %w", err)
	}
	if err := s.client.Set(ctx, s.answerKey(key), raw, ttl).Err(); err != nil {
		return domain.WrapError(domain.ErrCacheUnavailable, "cache.set", err)
	}
	return nil
}

func (s *Store) SaveFeedback(ctx context.Context, fb domain.Feedback, ttl time.Duration) error {
	raw, err := json.Marshal(fb)
	if err != nil {
		return fmt.Errorf("feedback.save: encode feedback: %w", err)
	}
	key := fmt.Sprintf("%sfeedback:%s:%d", s.keyPrefix, fb.AnswerID, fb.CreatedAt.UnixNano())
	if err := s.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		return domain.WrapError(domain.ErrCacheUnavailable, "feedback.save", err)
	}
	return nil
}

func (s *Store) answerKey(key string) string {
	return s.keyPrefix + "answer:" + key
}
