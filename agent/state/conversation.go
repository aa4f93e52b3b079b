package state

import (
	"strings"
	"time"

	"github.com/tanpawarit/bizai-insight/agent/response"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one stored chat turn. Assistant turns keep the display payload
// they were rendered with so a client can redraw history.
type Message struct {
	Role          Role                    `json:"role"`
	Content       string                  `json:"content"`
	FormattedData *response.FormattedData `json:"formatted_data,omitempty"`
	CreatedAt     time.Time               `json:"created_at"`
}

type Conversation struct {
	SessionID string    `json:"session_id"`
	Messages  []Message `json:"messages"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewConversation(sessionID string) *Conversation {
	return &Conversation{
		SessionID: strings.TrimSpace(sessionID),
		Messages:  []Message{},
	}
}

func UserMessage(content string, now time.Time) Message {
	return Message{Role: RoleUser, Content: content, CreatedAt: now.UTC()}
}

func AssistantMessage(content string, data *response.FormattedData, now time.Time) Message {
	return Message{Role: RoleAssistant, Content: content, FormattedData: data, CreatedAt: now.UTC()}
}

func (m Message) Validate() error {
	switch m.Role {
	case RoleUser, RoleAssistant:
	default:
		return ErrInvalidMessage
	}
	if strings.TrimSpace(m.Content) == "" {
		return ErrInvalidMessage
	}
	return nil
}

// Tail returns at most n of the most recent messages.
func (c *Conversation) Tail(n int) []Message {
	if c == nil || n <= 0 {
		return nil
	}
	if len(c.Messages) <= n {
		return append([]Message(nil), c.Messages...)
	}
	return append([]Message(nil), c.Messages[len(c.Messages)-n:]...)
}

func (c *Conversation) touch() {
	if len(c.Messages) == 0 {
		return
	}
	c.UpdatedAt = c.Messages[len(c.Messages)-1].CreatedAt
}
