package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"mentorlink/pkg/interfaces"
)

// DefaultChannelPrefix is prepended to the recipient id to form a channel.
const DefaultChannelPrefix = "notifications:"

// NewRedisClient parses redisURL and pings the server.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}
	return client, nil
}

// envelope is the optional JSON shape of a published notification.
type envelope struct {
	UserID  string          `json:"userId"`
	Payload json.RawMessage `json:"payload"`
}

// RedisSubscriber feeds notifications published by other services into a
// Notifier. Messages on <prefix><userId> are routed to that user; a JSON
// body with userId overrides the channel suffix.
type RedisSubscriber struct {
	client   *redis.Client
	prefix   string
	notifier interfaces.Notifier
	logger   *zap.Logger
}

func NewRedisSubscriber(client *redis.Client, prefix string, notifier interfaces.Notifier, logger *zap.Logger) *RedisSubscriber {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisSubscriber{client: client, prefix: prefix, notifier: notifier, logger: logger}
}

// Run subscribes to <prefix>* and routes messages until ctx is done.
func (s *RedisSubscriber) Run(ctx context.Context) error {
	pubsub := s.client.PSubscribe(ctx, s.prefix+"*")
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s*: %w", s.prefix, err)
	}

	s.logger.Info("notification subscriber started", zap.String("pattern", s.prefix+"*"))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			s.handle(msg.Channel, msg.Payload)
		}
	}
}

func (s *RedisSubscriber) handle(channel, body string) bool {
	userID, payload := s.decode(channel, body)
	if userID == "" {
		s.logger.Warn("notification without recipient", zap.String("channel", channel))
		return false
	}
	return s.notifier.Notify(userID, payload)
}

func (s *RedisSubscriber) decode(channel, body string) (string, interface{}) {
	userID := strings.TrimPrefix(channel, s.prefix)
	if userID == channel {
		userID = ""
	}

	raw := []byte(body)
	if !json.Valid(raw) {
		return userID, body
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err == nil && env.UserID != "" {
		userID = env.UserID
		if len(env.Payload) > 0 {
			return userID, env.Payload
		}
	}
	return userID, json.RawMessage(raw)
}
