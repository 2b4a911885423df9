package events

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwell-ai/inkwell/pkg/conversation"
	"github.com/inkwell-ai/inkwell/pkg/protocol"
)

func runRouter(t *testing.T, router *EventRouter) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		_ = router.Run(ctx)
	}()
	select {
	case <-router.Running():
	case <-time.After(5 * time.Second):
		t.Fatal("router did not start")
	}
	return cancel
}

func TestSinkDeliversEventsInOrder(t *testing.T) {
	router, err := NewEventRouter()
	require.NoError(t, err)
	defer func() {
		_ = router.Close()
	}()

	var mu sync.Mutex
	var received []string
	done := make(chan struct{})
	router.AddHandler("collect", TopicChatEvents, func(msg *message.Message) error {
		ev, err := protocol.NewEventFromJSON(msg.Payload)
		require.NoError(t, err)

		mu.Lock()
		defer mu.Unlock()
		content, ok := ev.(*protocol.EventContent)
		require.True(t, ok)
		received = append(received, content.Content)
		if len(received) == 3 {
			close(done)
		}
		return nil
	})

	cancel := runRouter(t, router)
	defer cancel()

	sink := NewWatermillSink(router.Publisher, TopicChatEvents)
	for _, delta := range []string{"one", "two", "three"} {
		ev, err := protocol.NewEventFromJSON([]byte(`{"type":"content","content":"` + delta + `"}`))
		require.NoError(t, err)
		require.NoError(t, sink.PublishEvent(ev))
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("events not delivered")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"one", "two", "three"}, received)
}

func TestStateUpdateRoundTrip(t *testing.T) {
	router, err := NewEventRouter()
	require.NoError(t, err)
	defer func() {
		_ = router.Close()
	}()

	updates := make(chan StateUpdate, 1)
	router.AddHandler("state", TopicStateUpdates, func(msg *message.Message) error {
		var update StateUpdate
		require.NoError(t, json.Unmarshal(msg.Payload, &update))
		updates <- update
		return nil
	})

	cancel := runRouter(t, router)
	defer cancel()

	st := conversation.NewState()
	st.AppendMessages(conversation.NewMessage(conversation.RoleUser, "hello"))
	st.Document.Set("a draft")

	PublishStateUpdate(router.Publisher, NewStateUpdate("chat-1", st, true))

	select {
	case update := <-updates:
		assert.Equal(t, "chat-1", update.ChatID)
		assert.True(t, update.Streaming)
		assert.True(t, update.DocumentPresent)
		assert.Equal(t, "a draft", update.Document)
		require.Len(t, update.Messages, 1)
		assert.Equal(t, "hello", update.Messages[0].Content)
	case <-time.After(5 * time.Second):
		t.Fatal("state update not delivered")
	}
}

func TestNullSinkDiscards(t *testing.T) {
	ev, err := protocol.NewEventFromJSON([]byte(`{"type":"content","content":"x"}`))
	require.NoError(t, err)
	assert.NoError(t, NullSink{}.PublishEvent(ev))
}
