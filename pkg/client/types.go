package client

import (
	"encoding/json"

	"github.com/inkwell-ai/inkwell/pkg/conversation"
)

// ChatSummary is one entry of the chat list, newest first.
type ChatSummary struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	CreatedAt string `json:"created_at"`
}

// HistoryMessage is one persisted turn as the backend returns it. Assistant
// turns that invoked a function have a null content and carry tool_calls;
// tool turns carry the function result payload.
type HistoryMessage struct {
	Role       string          `json:"role"`
	Content    string          `json:"content"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	ToolCalls  json.RawMessage `json:"tool_calls,omitempty"`
}

// ToMessage converts a persisted turn into the transcript model.
func (m HistoryMessage) ToMessage() *conversation.Message {
	return conversation.NewMessage(conversation.Role(m.Role), m.Content)
}

// ToTranscript converts a full fetched history.
func ToTranscript(msgs []HistoryMessage) conversation.Transcript {
	ret := make(conversation.Transcript, 0, len(msgs))
	for _, m := range msgs {
		ret = append(ret, m.ToMessage())
	}
	return ret
}

// ChatHistory is the full fetched state of one chat.
type ChatHistory struct {
	ID       string           `json:"id"`
	Title    string           `json:"title"`
	Messages []HistoryMessage `json:"messages"`
}

// TurnRequest is the payload for one chat turn. Message is omitted when
// Regenerate is set: the backend then re-runs inference over the existing
// history without appending a new user turn.
type TurnRequest struct {
	SessionID  string `json:"session_id"`
	ChatID     string `json:"chat_id"`
	Message    string `json:"message,omitempty"`
	Regenerate bool   `json:"regenerate"`
}

// EditResponse is the authoritative rewritten history after an edit: the
// edited message with all of its successors discarded, plus the possibly
// re-titled chat.
type EditResponse struct {
	Messages []HistoryMessage `json:"messages"`
	Title    string           `json:"title"`
}
