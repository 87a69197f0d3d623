package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const changesChannel = "__changes"

// RedisConfig holds the local cache settings
type RedisConfig struct {
	Prefix     string // namespace prepended to every key
	QuotaBytes int64  // total bytes allowed across the namespace, 0 disables
}

type redisStore struct {
	client *redis.Client
	config RedisConfig
	origin string
	logger *zap.Logger
}

// NewRedisStore creates a Store backed by Redis strings
func NewRedisStore(client *redis.Client, config RedisConfig, logger *zap.Logger) Store {
	return &redisStore{
		client: client,
		config: config,
		origin: uuid.NewString(),
		logger: logger,
	}
}

func (s *redisStore) key(k string) string {
	return s.config.Prefix + k
}

// Get returns the stored value and whether the key exists
func (s *redisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return value, true, nil
}

// Set stores the value after checking the namespace quota
func (s *redisStore) Set(ctx context.Context, key string, value []byte) error {
	if s.config.QuotaBytes > 0 {
		used, err := s.usage(ctx, s.key(key))
		if err != nil {
			return err
		}
		if used+int64(len(value)) > s.config.QuotaBytes {
			s.logger.Error("Local cache quota exceeded",
				zap.String("key", key),
				zap.Int64("used", used),
				zap.Int("value_bytes", len(value)),
				zap.Int64("quota", s.config.QuotaBytes),
			)
			return ErrQuotaExceeded
		}
	}

	if err := s.client.Set(ctx, s.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}

	s.publish(ctx, Change{Key: key})
	return nil
}

// Delete removes the key; removing a missing key is not an error
func (s *redisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}

	s.publish(ctx, Change{Key: key, Deleted: true})
	return nil
}

// usage sums the size of every key in the namespace except the one being replaced
func (s *redisStore) usage(ctx context.Context, exclude string) (int64, error) {
	var (
		cursor uint64
		total  int64
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.config.Prefix+"*", 100).Result()
		if err != nil {
			return 0, fmt.Errorf("failed to scan cache keys: %w", err)
		}

		pipe := s.client.Pipeline()
		lens := make([]*redis.IntCmd, 0, len(keys))
		for _, k := range keys {
			if k == exclude {
				continue
			}
			lens = append(lens, pipe.StrLen(ctx, k))
		}
		if len(lens) > 0 {
			if _, err := pipe.Exec(ctx); err != nil {
				return 0, fmt.Errorf("failed to measure cache keys: %w", err)
			}
		}
		for _, l := range lens {
			total += l.Val()
		}

		cursor = next
		if cursor == 0 {
			return total, nil
		}
	}
}

func (s *redisStore) publish(ctx context.Context, change Change) {
	change.Origin = s.origin
	payload, err := json.Marshal(change)
	if err != nil {
		return
	}
	if err := s.client.Publish(ctx, s.key(changesChannel), payload).Err(); err != nil {
		// The write itself succeeded; other instances just miss the notification.
		s.logger.Warn("Failed to publish cache change", zap.String("key", change.Key), zap.Error(err))
	}
}

// Watch streams changes made by other store instances until ctx is done
func (s *redisStore) Watch(ctx context.Context) (<-chan Change, error) {
	pubsub := s.client.Subscribe(ctx, s.key(changesChannel))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to cache changes: %w", err)
	}

	out := make(chan Change, 16)
	go func() {
		defer close(out)
		defer pubsub.Close()

		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var change Change
				if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
					s.logger.Debug("Ignoring malformed cache change", zap.Error(err))
					continue
				}
				if change.Origin == s.origin {
					continue
				}
				select {
				case out <- change:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}
