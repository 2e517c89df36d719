package dao

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"procure-agent/model"
)

const defaultMaxRetries = 3

type RedisStore struct {
	client     redis.UniversalClient
	keyPrefix  string
	ttl        time.Duration
	maxRetries int
}

func NewRedisStore(addr, password string, db int, ttl time.Duration) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewRedisStoreWithClient(client, ttl)
}

// NewRedisStoreWithClient wraps an existing client, e.g. a cluster client.
func NewRedisStoreWithClient(client redis.UniversalClient, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &RedisStore{
		client:     client,
		keyPrefix:  "procure-agent:",
		ttl:        ttl,
		maxRetries: defaultMaxRetries,
	}
}

func (s *RedisStore) conversationKey(conversationID string) string {
	return s.keyPrefix + "conversation:" + conversationID
}

func (s *RedisStore) fileKey(fileID string) string {
	return s.keyPrefix + "file:" + fileID
}

// stringGetter is satisfied by both the client and a WATCH transaction.
type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *RedisStore) load(ctx context.Context, g stringGetter, key string) (*conversation, error) {
	data, err := g.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var conv conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

func (s *RedisStore) GetMessages(ctx context.Context, conversationID, userScope string) ([]model.Message, error) {
	if err := validateIDs(conversationID); err != nil {
		return nil, err
	}
	conv, err := s.load(ctx, s.client, s.conversationKey(conversationID))
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return []model.Message{}, nil
	}
	if err := checkOwner(conversationID, conv.Owner, userScope); err != nil {
		return nil, err
	}
	sortMessages(conv.Messages)
	return conv.Messages, nil
}

// AppendMessage 使用乐观锁追加消息，防止并发覆盖写
func (s *RedisStore) AppendMessage(ctx context.Context, conversationID, userScope, content string, isUser bool) (model.Message, error) {
	if err := validateIDs(conversationID); err != nil {
		return model.Message{}, err
	}

	key := s.conversationKey(conversationID)
	msg := newMessage(content, isUser)

	for i := 0; i <= s.maxRetries; i++ {
		// 使用WATCH监控key
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			conv, err := s.load(ctx, tx, key)
			if err != nil {
				return err
			}
			if conv == nil {
				conv = &conversation{ID: conversationID, Owner: userScope}
			}
			if err := checkOwner(conversationID, conv.Owner, userScope); err != nil {
				return err
			}
			if conv.Owner == "" {
				conv.Owner = userScope
			}
			conv.Messages = append(conv.Messages, msg)
			conv.UpdatedAt = msg.CreatedAt

			data, err := json.Marshal(conv)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				return pipe.Set(ctx, key, data, s.ttl).Err()
			})
			return err
		}, key)

		// 检查错误类型，决定是否重试
		shouldRetry, retryErr := s.shouldRetry(err)
		if !shouldRetry {
			if retryErr != nil {
				return model.Message{}, retryErr
			}
			return msg, nil
		}

		if i < s.maxRetries {
			time.Sleep(time.Millisecond * time.Duration(10*(i+1)))
			continue
		}
		return model.Message{}, fmt.Errorf("%w for conversation %s: %v", ErrMaxRetries, conversationID, retryErr)
	}

	return model.Message{}, fmt.Errorf("%w for conversation %s", ErrMaxRetries, conversationID)
}

// shouldRetry 判断错误是否应该重试
func (s *RedisStore) shouldRetry(err error) (bool, error) {
	if err == nil {
		return false, nil
	}
	// Redis WATCH事务失败错误
	if errors.Is(err, redis.TxFailedErr) {
		return true, fmt.Errorf("%w: %v", ErrSessionConflict, err)
	}
	return false, err
}

func (s *RedisStore) UpdateFileStatus(ctx context.Context, fileID string, status model.FileStatus, errMsg string) error {
	if err := validateFileStatus(fileID, status); err != nil {
		return err
	}
	key := s.fileKey(fileID)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, map[string]interface{}{
			"status":     string(status),
			"error":      errMsg,
			"updated_at": time.Now().UTC().Format(time.RFC3339Nano),
		})
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	return err
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
