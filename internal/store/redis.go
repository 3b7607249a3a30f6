package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Talha-Tahir2001/CollabSphere/internal/crypto"
	"github.com/Talha-Tahir2001/CollabSphere/internal/metrics"
	"github.com/Talha-Tahir2001/CollabSphere/internal/models"
)

// RedisStore handles Redis operations for room messages and rate limits.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// roomMessagesKey returns the key for a room's message sorted set.
func roomMessagesKey(roomID string) string {
	return fmt.Sprintf("room:%s:messages", roomID)
}

// roomIndexKey returns the key for a room's message id -> message hash.
func roomIndexKey(roomID string) string {
	return fmt.Sprintf("room:%s:ids", roomID)
}

// rateLimitKey returns the key for a rate limit counter.
func rateLimitKey(key string) string {
	return fmt.Sprintf("ratelimit:%s", key)
}

func observe(start time.Time) {
	metrics.RedisLatency.Observe(time.Since(start).Seconds())
}

// AddMessage stores a message in Redis.
func (s *RedisStore) AddMessage(ctx context.Context, msg *models.Message) error {
	defer observe(time.Now())
	prepareMessage(msg)

	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, roomMessagesKey(msg.RoomID), redis.Z{
			Score:  float64(msg.CreatedAt.UnixMilli()),
			Member: string(data),
		})
		pipe.HSet(ctx, roomIndexKey(msg.RoomID), msg.ID, string(data))
		return nil
	})
	return err
}

// GetRoomMessages retrieves messages from a room, oldest first.
func (s *RedisStore) GetRoomMessages(ctx context.Context, roomID string, limit int, before models.Cursor) ([]models.Message, error) {
	defer observe(time.Now())
	key := roomMessagesKey(roomID)

	maxScore := "+inf"
	var newest []models.Message
	if !before.IsZero() {
		ms := before.CreatedAt.UnixMilli()
		maxScore = fmt.Sprintf("(%d", ms) // exclusive

		// Messages sharing the cursor's millisecond are split by id.
		if before.ID != "" {
			score := strconv.FormatInt(ms, 10)
			same, err := s.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{Min: score, Max: score}).Result()
			if err != nil {
				return nil, err
			}
			for _, msg := range decodeMessages(same) {
				if before.Follows(msg) {
					newest = append(newest, msg)
				}
			}
			slices.SortFunc(newest, models.Message.Compare)
			if len(newest) >= limit {
				return newest[len(newest)-limit:], nil
			}
		}
	}

	// Newest first, so the limit keeps the latest page.
	results, err := s.client.ZRevRangeByScore(ctx, key, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   maxScore,
		Count: int64(limit - len(newest)),
	}).Result()
	if err != nil {
		return nil, err
	}

	messages := decodeMessages(results)
	slices.SortFunc(messages, models.Message.Compare)
	return append(messages, newest...), nil
}

// decodeMessages parses stored members, skipping any that are malformed.
func decodeMessages(members []string) []models.Message {
	messages := make([]models.Message, 0, len(members))
	for _, m := range members {
		var msg models.Message
		if err := json.Unmarshal([]byte(m), &msg); err != nil {
			continue
		}
		messages = append(messages, msg)
	}
	return messages
}

// GetMessage retrieves a specific message by ID.
func (s *RedisStore) GetMessage(ctx context.Context, roomID, msgID string) (*models.Message, error) {
	defer observe(time.Now())

	data, err := s.client.HGet(ctx, roomIndexKey(roomID), msgID).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var msg models.Message
	if err := json.Unmarshal([]byte(data), &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// CheckRateLimit reports whether key is still below limit in the current window.
func (s *RedisStore) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	defer observe(time.Now())

	count, err := s.client.Get(ctx, rateLimitKey(key)).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, err
	}
	return count < limit, nil
}

// IncrementRateLimit increments the rate limit counter and returns the new
// count. The window starts with the first increment.
func (s *RedisStore) IncrementRateLimit(ctx context.Context, key string, window time.Duration) (int, error) {
	defer observe(time.Now())

	k := rateLimitKey(key)
	pipe := s.client.Pipeline()
	incr := pipe.Incr(ctx, k)
	pipe.ExpireNX(ctx, k, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return int(incr.Val()), nil
}

// prepareMessage assigns a ULID and a millisecond UTC timestamp when unset.
func prepareMessage(msg *models.Message) {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	msg.CreatedAt = msg.CreatedAt.UTC().Truncate(time.Millisecond)
	if msg.ID == "" {
		msg.ID = crypto.NewMessageID(msg.CreatedAt)
	}
	msg.ClientToken = ""
}
