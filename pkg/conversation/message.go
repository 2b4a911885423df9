package conversation

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one finalized turn of a transcript. Messages are immutable once
// appended; history is only ever rewritten wholesale through an edit.
type Message struct {
	ID      uuid.UUID `json:"id"`
	Role    Role      `json:"role"`
	Content string    `json:"content"`
	Time    time.Time `json:"time"`

	// IsError marks the single user-visible message produced by an error
	// event or a transport failure.
	IsError bool `json:"is_error,omitempty"`
	// IsFunctionCall marks the transient progress indicator appended while
	// the backend invokes a function.
	IsFunctionCall bool `json:"is_function_call,omitempty"`
}

type MessageOption func(*Message)

func WithTime(t time.Time) MessageOption {
	return func(m *Message) {
		m.Time = t
	}
}

func WithError() MessageOption {
	return func(m *Message) {
		m.IsError = true
	}
}

func WithFunctionCall() MessageOption {
	return func(m *Message) {
		m.IsFunctionCall = true
	}
}

func NewMessage(role Role, content string, options ...MessageOption) *Message {
	ret := &Message{
		ID:      uuid.New(),
		Role:    role,
		Content: content,
		Time:    time.Now(),
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

func (m *Message) View() string {
	return fmt.Sprintf("[%s]: %s", m.Role, strings.TrimRight(m.Content, "\n"))
}

// Transcript is the ordered sequence of messages of one chat.
type Transcript []*Message

// Visible filters out tool turns, which are retained for the backend's
// benefit but never rendered.
func (t Transcript) Visible() Transcript {
	ret := make(Transcript, 0, len(t))
	for _, m := range t {
		if m.Role == RoleTool {
			continue
		}
		ret = append(ret, m)
	}
	return ret
}
