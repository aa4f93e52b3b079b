package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrInvalidSession       = errors.New("session id is empty")
	ErrInvalidMessage       = errors.New("message requires a known role and content")
)

const (
	defaultStoreKeyPrefix   = "bizai:chat:"
	defaultStoreTTL         = 7 * 24 * time.Hour
	defaultMaxStoredMessage = 100
	maxResponseSizeBytes    = 2 << 20
)

// Store persists chat history per session.
type Store interface {
	Load(ctx context.Context, sessionID string) (*Conversation, error)
	Append(ctx context.Context, sessionID string, msgs ...Message) error
	Clear(ctx context.Context, sessionID string) error
}

type storeOptions struct {
	keyPrefix   string
	ttl         time.Duration
	maxMessages int
	httpClient  *http.Client
	now         func() time.Time
}

func defaultStoreOptions() storeOptions {
	return storeOptions{
		keyPrefix:   defaultStoreKeyPrefix,
		ttl:         defaultStoreTTL,
		maxMessages: defaultMaxStoredMessage,
		now:         time.Now,
	}
}

// StoreOption customizes any Store implementation in this package.
type StoreOption func(*storeOptions)

func WithKeyPrefix(prefix string) StoreOption {
	return func(o *storeOptions) {
		trimmed := strings.TrimSpace(prefix)
		if trimmed != "" {
			o.keyPrefix = trimmed
		}
	}
}

func WithTTL(ttl time.Duration) StoreOption {
	return func(o *storeOptions) {
		o.ttl = ttl
	}
}

// WithMaxMessages bounds how many messages are retained per session.
func WithMaxMessages(n int) StoreOption {
	return func(o *storeOptions) {
		if n > 0 {
			o.maxMessages = n
		}
	}
}

func WithHTTPClient(client *http.Client) StoreOption {
	return func(o *storeOptions) {
		if client != nil {
			o.httpClient = client
		}
	}
}

func applyOptions(opts []StoreOption) (storeOptions, error) {
	o := defaultStoreOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.ttl < 0 {
		return o, errors.New("ttl must be >= 0")
	}
	return o, nil
}

func (o storeOptions) key(sessionID string) (string, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return "", ErrInvalidSession
	}
	return o.keyPrefix + sessionID, nil
}

func encodeMessages(msgs []Message) ([]string, error) {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if err := m.Validate(); err != nil {
			return nil, err
		}
		raw, err := json.Marshal(m)
		if err != nil {
			return nil, fmt.Errorf("marshal message: %w", err)
		}
		out = append(out, string(raw))
	}
	return out, nil
}

func decodeConversation(sessionID string, entries []string) (*Conversation, error) {
	if len(entries) == 0 {
		return nil, ErrConversationNotFound
	}
	conv := NewConversation(sessionID)
	for _, e := range entries {
		var m Message
		if err := json.Unmarshal([]byte(e), &m); err != nil {
			return nil, fmt.Errorf("unmarshal message: %w", err)
		}
		conv.Messages = append(conv.Messages, m)
	}
	conv.touch()
	return conv, nil
}

func ttlSeconds(ttl time.Duration) int64 {
	seconds := ttl / time.Second
	if seconds <= 0 {
		return 1
	}
	if ttl%time.Second != 0 {
		seconds++
	}
	return int64(seconds)
}
