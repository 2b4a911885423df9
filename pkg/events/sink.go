package events

import "github.com/inkwell-ai/inkwell/pkg/protocol"

// Topics on which the streaming pipeline publishes.
const (
	// TopicChatEvents carries every decoded protocol event, in arrival order.
	TopicChatEvents = "chat.events"
	// TopicStateUpdates carries a state snapshot after each applied transition.
	TopicStateUpdates = "chat.state"
)

// EventSink is a destination for decoded protocol events. The streaming
// pipeline publishes to sinks so that display layers can subscribe without
// the reducer ever depending on rendering.
type EventSink interface {
	PublishEvent(event protocol.Event) error
}

// NullSink discards everything.
type NullSink struct{}

func (NullSink) PublishEvent(protocol.Event) error {
	return nil
}

var _ EventSink = NullSink{}
