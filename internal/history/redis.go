package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	errx "github.com/web3buddy/server/internal/core/error"
	logx "github.com/web3buddy/server/pkg/logger"
)

// RedisStore keeps each conversation as a Redis list, newest message first.
type RedisStore struct {
	rdb redis.Cmdable
	ttl time.Duration
}

// NewRedisStore wraps rdb. A non-zero ttl is refreshed on every append so
// active conversations stay alive while idle ones expire.
func NewRedisStore(rdb redis.Cmdable, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func (s *RedisStore) Append(ctx context.Context, conversationID string, message Message) error {
	b, err := json.Marshal(message)
	if err != nil {
		logx.Error().Err(err).Str("conversation_id", conversationID).Msg("failed to marshal message")
		return fmt.Errorf("marshal message: %w", err)
	}

	// push-front: the new message becomes the head of the log
	if err := s.rdb.LPush(ctx, conversationID, b).Err(); err != nil {
		logx.Error().Err(err).Str("conversation_id", conversationID).Msg("failed to push message to redis")
		return errx.WrapRedis(err)
	}
	if s.ttl > 0 {
		if ok, err := s.rdb.Expire(ctx, conversationID, s.ttl).Result(); err != nil {
			logx.Error().Err(err).Str("conversation_id", conversationID).Msg("failed to set expire")
			return errx.WrapRedis(err)
		} else if !ok {
			logx.Warn().Str("conversation_id", conversationID).Dur("ttl", s.ttl).Msg("failed to refresh TTL on conversation key")
		}
	}
	return nil
}

func (s *RedisStore) Range(ctx context.Context, conversationID string, start, stop int64) ([]Message, error) {
	rows, err := s.rdb.LRange(ctx, conversationID, start, stop).Result()
	if err != nil {
		if err == redis.Nil {
			return []Message{}, nil
		}
		logx.Error().Err(err).Str("conversation_id", conversationID).Msg("failed to load conversation history from redis")
		return nil, errx.WrapRedis(err)
	}

	msgs := make([]Message, 0, len(rows))
	for i, row := range rows {
		var m Message
		if err := json.Unmarshal([]byte(row), &m); err != nil {
			logx.Error().Err(err).Str("conversation_id", conversationID).Int("index", i).Msg("failed to unmarshal message")
			return nil, fmt.Errorf("unmarshal message at index %d: %w", i, err)
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

func (s *RedisStore) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	keys := []string{}
	var cursor uint64
	for {
		batch, next, err := s.rdb.Scan(ctx, cursor, prefix+"-*", 100).Result()
		if err != nil {
			logx.Error().Err(err).Str("prefix", prefix).Msg("failed to scan conversation keys")
			return nil, errx.WrapRedis(err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return keys, nil
}

func (s *RedisStore) Count(ctx context.Context, conversationID string) (int64, error) {
	n, err := s.rdb.LLen(ctx, conversationID).Result()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		logx.Error().Err(err).Str("conversation_id", conversationID).Msg("failed to get message count from redis")
		return 0, errx.WrapRedis(err)
	}
	return n, nil
}

var _ Store = (*RedisStore)(nil)
