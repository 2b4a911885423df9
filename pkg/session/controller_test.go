package session

import (
	"context"
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwell-ai/inkwell/pkg/client"
	"github.com/inkwell-ai/inkwell/pkg/conversation"
)

// fakeChatService is an in-memory stand-in for the backend, mirroring its
// newest-first ordering.
type fakeChatService struct {
	chats      []client.ChatSummary
	histories  map[string][]client.HistoryMessage
	nextID     int
	failCreate bool
	listCalls  int
}

func newFakeChatService(chats ...client.ChatSummary) *fakeChatService {
	return &fakeChatService{
		chats:     chats,
		histories: map[string][]client.HistoryMessage{},
	}
}

func (f *fakeChatService) ListChats(_ context.Context, _ string) ([]client.ChatSummary, error) {
	f.listCalls++
	return append([]client.ChatSummary(nil), f.chats...), nil
}

func (f *fakeChatService) CreateChat(_ context.Context, _ string, title string) (*client.ChatSummary, error) {
	if f.failCreate {
		return nil, errors.New("create failed")
	}
	f.nextID++
	if title == "" {
		title = "New Chat"
	}
	chat := client.ChatSummary{ID: fmt.Sprintf("created-%d", f.nextID), Title: title}
	f.chats = append([]client.ChatSummary{chat}, f.chats...)
	return &chat, nil
}

func (f *fakeChatService) FetchChat(_ context.Context, _ string, chatID string) (*client.ChatHistory, error) {
	for _, c := range f.chats {
		if c.ID == chatID {
			return &client.ChatHistory{ID: c.ID, Title: c.Title, Messages: f.histories[chatID]}, nil
		}
	}
	return nil, client.ErrChatNotFound
}

func (f *fakeChatService) DeleteChat(_ context.Context, _ string, chatID string) error {
	for i, c := range f.chats {
		if c.ID == chatID {
			f.chats = append(f.chats[:i], f.chats[i+1:]...)
			return nil
		}
	}
	return client.ErrChatNotFound
}

func TestBootstrapEmptyListCreatesExactlyOneChat(t *testing.T) {
	svc := newFakeChatService()
	c := NewController(NewID(), svc, conversation.NewState())

	require.NoError(t, c.Bootstrap(context.Background()))

	assert.Equal(t, 1, c.Registry().Len())
	assert.NotEmpty(t, c.Registry().ActiveChatID())
	assert.True(t, c.Registry().Contains(c.Registry().ActiveChatID()))
}

func TestBootstrapActivatesMostRecentChat(t *testing.T) {
	svc := newFakeChatService(
		client.ChatSummary{ID: "chat-new", Title: "newest"},
		client.ChatSummary{ID: "chat-old", Title: "oldest"},
	)
	svc.histories["chat-new"] = []client.HistoryMessage{
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
	}

	st := conversation.NewState()
	c := NewController(NewID(), svc, st)
	require.NoError(t, c.Bootstrap(context.Background()))

	assert.Equal(t, "chat-new", c.Registry().ActiveChatID())
	require.Len(t, st.Messages, 2)
}

func TestEnsureActiveChatFallsBackToCreation(t *testing.T) {
	svc := newFakeChatService()
	c := NewController(NewID(), svc, conversation.NewState())

	id, err := c.EnsureActiveChat(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, id, c.Registry().ActiveChatID())
}

func TestEnsureActiveChatReturnsExistingWithoutNetwork(t *testing.T) {
	svc := newFakeChatService(client.ChatSummary{ID: "chat-1"})
	c := NewController(NewID(), svc, conversation.NewState())
	require.NoError(t, c.Bootstrap(context.Background()))
	listCallsAfterBootstrap := svc.listCalls

	id, err := c.EnsureActiveChat(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "chat-1", id)
	assert.Equal(t, listCallsAfterBootstrap, svc.listCalls)
}

func TestSwitchChatReplacesTranscriptWholesale(t *testing.T) {
	svc := newFakeChatService(
		client.ChatSummary{ID: "chat-a"},
		client.ChatSummary{ID: "chat-b"},
	)
	svc.histories["chat-b"] = []client.HistoryMessage{
		{Role: "user", Content: "older question"},
	}

	st := conversation.NewState()
	c := NewController(NewID(), svc, st)
	require.NoError(t, c.Bootstrap(context.Background()))

	// a reply is in flight when the user switches away
	st.BeginStream()
	st.AppendMessages(conversation.NewMessage(conversation.RoleUser, "in chat-a"))

	require.NoError(t, c.SwitchChat(context.Background(), "chat-b"))

	assert.Equal(t, "chat-b", c.Registry().ActiveChatID())
	assert.Empty(t, st.StreamingBuffer())
	require.Len(t, st.Messages, 1)
	assert.Equal(t, "older question", st.Messages[0].Content)
}

func TestSwitchChatStaleIDRefreshesRegistry(t *testing.T) {
	svc := newFakeChatService(client.ChatSummary{ID: "chat-1"})
	c := NewController(NewID(), svc, conversation.NewState())
	require.NoError(t, c.Bootstrap(context.Background()))

	err := c.SwitchChat(context.Background(), "chat-gone")
	require.Error(t, err)
	assert.ErrorIs(t, err, client.ErrChatNotFound)
	assert.False(t, c.Registry().Contains("chat-gone"))
}

func TestDeleteActiveChatCreatesReplacement(t *testing.T) {
	svc := newFakeChatService(client.ChatSummary{ID: "chat-1"})
	st := conversation.NewState()
	c := NewController(NewID(), svc, st)
	require.NoError(t, c.Bootstrap(context.Background()))

	require.NoError(t, c.DeleteChat(context.Background(), "chat-1"))

	assert.False(t, c.Registry().Contains("chat-1"))
	assert.NotEmpty(t, c.Registry().ActiveChatID())
	assert.Empty(t, st.Messages)
}

func TestDeleteActiveChatFailedReplacementLeavesChatless(t *testing.T) {
	svc := newFakeChatService(client.ChatSummary{ID: "chat-1"})
	c := NewController(NewID(), svc, conversation.NewState())
	require.NoError(t, c.Bootstrap(context.Background()))

	svc.failCreate = true
	require.NoError(t, c.DeleteChat(context.Background(), "chat-1"))

	assert.Empty(t, c.Registry().ActiveChatID())
	assert.Equal(t, 0, c.Registry().Len())
}

func TestDeleteInactiveChatKeepsActive(t *testing.T) {
	svc := newFakeChatService(
		client.ChatSummary{ID: "chat-a"},
		client.ChatSummary{ID: "chat-b"},
	)
	c := NewController(NewID(), svc, conversation.NewState())
	require.NoError(t, c.Bootstrap(context.Background()))
	require.Equal(t, "chat-a", c.Registry().ActiveChatID())

	require.NoError(t, c.DeleteChat(context.Background(), "chat-b"))

	assert.Equal(t, "chat-a", c.Registry().ActiveChatID())
	assert.False(t, c.Registry().Contains("chat-b"))
}

func TestRegistryInsertIsIdempotent(t *testing.T) {
	r := NewRegistry()
	r.Insert(client.ChatSummary{ID: "chat-1", Title: "one"})
	r.Insert(client.ChatSummary{ID: "chat-2", Title: "two"})
	r.Insert(client.ChatSummary{ID: "chat-1", Title: "one again"})

	require.Equal(t, 2, r.Len())
	// newest first, duplicate insert did not reorder
	assert.Equal(t, "chat-2", r.Chats()[0].ID)
	assert.Equal(t, "one", r.Chats()[1].Title)
}

func TestRegistryReplaceClearsMissingActive(t *testing.T) {
	r := NewRegistry()
	r.Insert(client.ChatSummary{ID: "chat-1"})
	require.NoError(t, r.SetActive("chat-1"))

	r.Replace([]client.ChatSummary{{ID: "chat-2"}})

	assert.Empty(t, r.ActiveChatID())
}

func TestRegistrySetActiveRequiresMembership(t *testing.T) {
	r := NewRegistry()
	require.Error(t, r.SetActive("nope"))
}
