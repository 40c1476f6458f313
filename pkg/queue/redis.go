package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"MT5Hub/pkg/logger"
)

// ListStore pushes onto a capped list.
type ListStore interface {
	PushCapped(ctx context.Context, key string, value []byte, maxLen int64) error
}

type redisListStore struct {
	client *redis.Client
}

// NewRedisListStore adapts a go-redis client to ListStore.
func NewRedisListStore(client *redis.Client) ListStore {
	return &redisListStore{client: client}
}

// PushCapped runs LPUSH and LTRIM in one transaction so the list never exceeds maxLen.
func (s *redisListStore) PushCapped(ctx context.Context, key string, value []byte, maxLen int64) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, value)
		if maxLen > 0 {
			pipe.LTrim(ctx, key, 0, maxLen-1)
		}
		return nil
	})
	return err
}

// RedisPublisher appends messages to a Redis list consumed by external workers.
type RedisPublisher struct {
	logger    *logger.Logger
	store     ListStore
	keyPrefix string
	maxLen    int64
	now       func() time.Time
}

// RedisPublisherOption configures RedisPublisher.
type RedisPublisherOption func(*RedisPublisher)

// WithKeyPrefix sets custom key prefix.
func WithKeyPrefix(prefix string) RedisPublisherOption {
	return func(r *RedisPublisher) {
		r.keyPrefix = prefix
	}
}

// WithMaxLen caps the list length; older messages are dropped first. Zero means unbounded.
func WithMaxLen(n int64) RedisPublisherOption {
	return func(r *RedisPublisher) {
		r.maxLen = n
	}
}

// NewRedisPublisher creates a publisher over store.
func NewRedisPublisher(lgr *logger.Logger, store ListStore, opts ...RedisPublisherOption) *RedisPublisher {
	p := &RedisPublisher{
		logger:    lgr,
		store:     store,
		keyPrefix: "mt5hub:queue",
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Enqueue adds a message to the queue.
func (r *RedisPublisher) Enqueue(ctx context.Context, msgType string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	now := r.now()
	msg := Message{
		ID:        strconv.FormatInt(now.UnixNano(), 10),
		Type:      msgType,
		Payload:   raw,
		Timestamp: now,
	}

	msgData, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	if err := r.store.PushCapped(ctx, r.QueueKey(), msgData, r.maxLen); err != nil {
		return fmt.Errorf("lpush: %w", err)
	}
	r.logger.Debug("message enqueued", logger.String("type", msgType), logger.String("key", r.QueueKey()))
	return nil
}

// PublishMessage publishes a message (implements QueueService).
func (r *RedisPublisher) PublishMessage(ctx context.Context, msgType string, payload interface{}) error {
	return r.Enqueue(ctx, msgType, payload)
}

// QueueKey is the list the messages are pushed to.
func (r *RedisPublisher) QueueKey() string {
	return fmt.Sprintf("%s:messages", r.keyPrefix)
}
