package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwell-ai/inkwell/pkg/conversation"
	"github.com/inkwell-ai/inkwell/pkg/protocol"
)

func TestListChats(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/chats/session-1", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"chats": []ChatSummary{
				{ID: "chat-2", Title: "Lease draft", CreatedAt: "2026-08-28T10:00:00"},
				{ID: "chat-1", Title: "NDA", CreatedAt: "2026-08-27T09:00:00"},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	chats, err := c.ListChats(context.Background(), "session-1")
	require.NoError(t, err)
	require.Len(t, chats, 2)
	assert.Equal(t, "chat-2", chats[0].ID)
}

func TestCreateChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chats", r.URL.Path)
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "session-1", req["session_id"])
		_ = json.NewEncoder(w).Encode(map[string]string{
			"chat_id":    "chat-3",
			"title":      "New Chat",
			"created_at": "2026-08-28T11:00:00",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	chat, err := c.CreateChat(context.Background(), "session-1", "")
	require.NoError(t, err)
	assert.Equal(t, "chat-3", chat.ID)
	assert.Equal(t, "New Chat", chat.Title)
}

func TestFetchChatNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "Chat not found"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.FetchChat(context.Background(), "session-1", "stale-chat")
	assert.ErrorIs(t, err, ErrChatNotFound)
}

func TestEditMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chats/session-1/chat-1/edit", r.URL.Path)
		var req struct {
			MessageIndex int    `json:"message_index"`
			NewContent   string `json:"new_content"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 2, req.MessageIndex)

		// backend truncates: response ends at the edited message
		_ = json.NewEncoder(w).Encode(EditResponse{
			Title: "Lease draft",
			Messages: []HistoryMessage{
				{Role: "user", Content: "draft me a lease"},
				{Role: "assistant", Content: "Sure, tell me more."},
				{Role: "user", Content: req.NewContent},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	res, err := c.EditMessage(context.Background(), "session-1", "chat-1", 2, "make it a sublease")
	require.NoError(t, err)
	require.Len(t, res.Messages, 3)
	assert.Equal(t, "make it a sublease", res.Messages[2].Content)
}

func TestStreamTurnRegenerateOmitsMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.NotContains(t, string(body), `"message"`)
		assert.Contains(t, string(body), `"regenerate":true`)

		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "data: {\"type\":\"content\",\"content\":\"again\"}\n")
		_, _ = io.WriteString(w, "data: [DONE]\n")
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	body, err := c.StreamTurn(context.Background(), TurnRequest{
		SessionID:  "session-1",
		ChatID:     "chat-1",
		Regenerate: true,
	})
	require.NoError(t, err)
	defer func() {
		_ = body.Close()
	}()

	d := protocol.NewDecoder(body, protocol.EventMetadata{})
	ev, err := d.Next()
	require.NoError(t, err)
	assert.Equal(t, "again", ev.(*protocol.EventContent).Content)

	_, err = d.Next()
	assert.Equal(t, io.EOF, err)
}

func TestStreamTurnNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "Message is required"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.StreamTurn(context.Background(), TurnRequest{SessionID: "s", ChatID: "c"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Message is required")
}

func TestToTranscript(t *testing.T) {
	msgs := []HistoryMessage{
		{Role: "user", Content: "hi"},
		{Role: "tool", Content: `{"status":"success"}`, ToolCallID: "call-1"},
		{Role: "assistant", Content: "hello"},
	}

	tr := ToTranscript(msgs)
	require.Len(t, tr, 3)
	assert.Equal(t, conversation.RoleTool, tr[1].Role)
	assert.Len(t, tr.Visible(), 2)
}
