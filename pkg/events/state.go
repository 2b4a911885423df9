package events

import (
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog/log"

	"github.com/inkwell-ai/inkwell/pkg/conversation"
)

// StateUpdate is the snapshot published after each applied transition:
// "apply event, then publish new state", independent of any display layer.
// Subscribers compare Version to discard out-of-date snapshots.
type StateUpdate struct {
	ChatID          string                  `json:"chat_id"`
	Version         int64                   `json:"version"`
	Messages        conversation.Transcript `json:"messages"`
	StreamingBuffer string                  `json:"streaming_buffer,omitempty"`
	Document        string                  `json:"document,omitempty"`
	DocumentPresent bool                    `json:"document_present"`
	Streaming       bool                    `json:"streaming"`
}

func NewStateUpdate(chatID string, st *conversation.State, streaming bool) StateUpdate {
	doc, present := st.Document.Value()
	return StateUpdate{
		ChatID:          chatID,
		Version:         st.Version,
		Messages:        st.Messages,
		StreamingBuffer: st.StreamingBuffer(),
		Document:        doc,
		DocumentPresent: present,
		Streaming:       streaming,
	}
}

// PublishStateUpdate sends the snapshot on TopicStateUpdates. Publish
// failures are logged and swallowed: state distribution is best-effort and
// must never fail the stream.
func PublishStateUpdate(publisher message.Publisher, update StateUpdate) {
	payload, err := json.Marshal(update)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal state update")
		return
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := publisher.Publish(TopicStateUpdates, msg); err != nil {
		log.Warn().Err(err).Msg("Failed to publish state update")
	}
}
