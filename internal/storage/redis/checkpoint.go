package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"recipe_importer/internal/domain"
)

type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string        // default "recipe_importer:"
	TTL      time.Duration // 0 keeps checkpoints forever
}

// CheckpointStore stores each checkpoint as a JSON string under
// <prefix>checkpoint:<source>.
type CheckpointStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewCheckpointStore(ctx context.Context, opts Options) (*CheckpointStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	prefix := opts.Prefix
	if prefix == "" {
		prefix = "recipe_importer:"
	}

	return &CheckpointStore{client: client, prefix: prefix, ttl: opts.TTL}, nil
}

func (s *CheckpointStore) key(sourceName string) string {
	return fmt.Sprintf("%scheckpoint:%s", s.prefix, sourceName)
}

func (s *CheckpointStore) Get(ctx context.Context, sourceName string) (*domain.Checkpoint, error) {
	data, err := s.client.Get(ctx, s.key(sourceName)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrCheckpointNotFound
		}
		return nil, fmt.Errorf("load checkpoint from redis: %w", err)
	}

	var cp domain.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}
	return &cp, nil
}

func (s *CheckpointStore) Save(ctx context.Context, cp *domain.Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}

	if err := s.client.Set(ctx, s.key(cp.SourceName), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save checkpoint to redis: %w", err)
	}
	return nil
}

func (s *CheckpointStore) Close() error {
	return s.client.Close()
}
