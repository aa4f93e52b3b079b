package state

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

var _ Store = (*RedisStore)(nil)

type RedisConfig struct {
	URL      string `envconfig:"URL" split_words:"true"`
	Addr     string `envconfig:"ADDR" split_words:"true"`
	Password string `envconfig:"PASSWORD" split_words:"true"`
	DB       int    `envconfig:"DB" split_words:"true"`
}

func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.URL) != "" || strings.TrimSpace(c.Addr) != ""
}

// Options resolves URL first, then Addr/Password/DB.
func (c RedisConfig) Options() (*redis.Options, error) {
	if u := strings.TrimSpace(c.URL); u != "" {
		opts, err := redis.ParseURL(u)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return opts, nil
	}
	addr := strings.TrimSpace(c.Addr)
	if addr == "" {
		return nil, errors.New("redis addr or url is required")
	}
	return &redis.Options{Addr: addr, Password: c.Password, DB: c.DB}, nil
}

// RedisStore keeps each session as a Redis list over a native connection.
type RedisStore struct {
	rdb  redis.UniversalClient
	opts storeOptions
}

func NewRedisStore(rdb redis.UniversalClient, opts ...StoreOption) (*RedisStore, error) {
	if rdb == nil {
		return nil, errors.New("redis client is required")
	}
	o, err := applyOptions(opts)
	if err != nil {
		return nil, err
	}
	return &RedisStore{rdb: rdb, opts: o}, nil
}

func (s *RedisStore) Load(ctx context.Context, sessionID string) (*Conversation, error) {
	key, err := s.opts.key(sessionID)
	if err != nil {
		return nil, err
	}
	entries, err := s.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange: %w", err)
	}
	return decodeConversation(sessionID, entries)
}

func (s *RedisStore) Append(ctx context.Context, sessionID string, msgs ...Message) error {
	key, err := s.opts.key(sessionID)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		return nil
	}

	encoded, err := encodeMessages(msgs)
	if err != nil {
		return err
	}
	values := make([]any, 0, len(encoded))
	for _, e := range encoded {
		values = append(values, e)
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, values...)
		pipe.LTrim(ctx, key, int64(-s.opts.maxMessages), -1)
		if s.opts.ttl > 0 {
			pipe.Expire(ctx, key, s.opts.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis append: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context, sessionID string) error {
	key, err := s.opts.key(sessionID)
	if err != nil {
		return err
	}
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
