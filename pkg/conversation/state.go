package conversation

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/inkwell-ai/inkwell/pkg/protocol"
)

// State is the canonical container for the active chat: the transcript, the
// transient streaming buffer of a reply in flight, and the current document.
//
// State is owned by a single goroutine; all transitions run to completion
// between stream reads. Apply is the only transition driven by protocol
// events, everything else is an explicit reset from the controllers.
type State struct {
	Messages Transcript
	Document DocumentRegister

	buffer strings.Builder
	halted bool

	// Version increments on every applied transition, so subscribers can
	// discard out-of-date snapshots.
	Version int64
}

func NewState() *State {
	return &State{}
}

// Apply transitions the state with a single protocol event.
//
// After an error event has been applied, the state is halted: all later
// events from the same stream are no-ops.
func (s *State) Apply(ev protocol.Event) error {
	if s == nil {
		return errors.New("state is nil")
	}
	if ev == nil {
		return errors.New("event is nil")
	}
	if s.halted {
		log.Trace().Str("event_type", string(ev.Type())).Msg("State halted, dropping event")
		return nil
	}

	switch e := ev.(type) {
	case *protocol.EventContent:
		// deltas only ever accumulate in the buffer, never in the transcript
		s.buffer.WriteString(e.Content)
	case *protocol.EventFunctionCall:
		s.Messages = append(s.Messages, NewMessage(
			RoleAssistant,
			fmt.Sprintf("Invoking %s…", e.FunctionName),
			WithFunctionCall(),
		))
	case *protocol.EventFunctionResult:
		if e.FunctionName == protocol.FunctionGenerateDocument || e.FunctionName == protocol.FunctionApplyEdits {
			if doc, ok := e.DocumentPayload(); ok {
				s.Document.Set(doc)
			}
		}
	case *protocol.EventDocument:
		s.Document.Set(e.Content)
	case *protocol.EventError:
		s.Messages = append(s.Messages, NewMessage(RoleAssistant, e.Message, WithError()))
		s.buffer.Reset()
		s.halted = true
	default:
		return errors.Errorf("unhandled event type %s", ev.Type())
	}

	s.Version++
	return nil
}

// Finalize ends the stream: a non-empty buffer becomes exactly one assistant
// message, an empty buffer appends nothing. Returns the appended message, if
// any.
func (s *State) Finalize() *Message {
	defer s.buffer.Reset()

	if s.halted || s.buffer.Len() == 0 {
		return nil
	}

	msg := NewMessage(RoleAssistant, s.buffer.String())
	s.Messages = append(s.Messages, msg)
	s.Version++
	return msg
}

// BeginStream prepares the state for a new send or regenerate: the buffer,
// the halted flag and the current document are all reset.
func (s *State) BeginStream() {
	s.buffer.Reset()
	s.halted = false
	s.Document.Clear()
	s.Version++
}

// DiscardBuffer drops any partial reply without finalizing it, as happens
// when the transport fails mid-stream.
func (s *State) DiscardBuffer() {
	if s.buffer.Len() == 0 {
		return
	}
	s.buffer.Reset()
	s.Version++
}

// AdoptTranscript swaps the transcript for the authoritative persisted
// history after a completed stream. Unlike ReplaceTranscript it keeps the
// current document: the reply that produced it was just persisted.
func (s *State) AdoptTranscript(msgs Transcript) {
	s.Messages = msgs
	s.buffer.Reset()
	s.Version++
}

// ReplaceTranscript swaps the transcript wholesale, as happens on chat
// switch or after an authoritative edit response. Any in-flight buffer and
// the current document are discarded; the new transcript is never merged
// with prior state.
func (s *State) ReplaceTranscript(msgs Transcript) {
	s.Messages = msgs
	s.buffer.Reset()
	s.halted = false
	s.Document.Clear()
	s.Version++
}

// AppendMessages adds finalized messages, for user turns and for the
// transport-failure error message.
func (s *State) AppendMessages(msgs ...*Message) {
	s.Messages = append(s.Messages, msgs...)
	s.Version++
}

// StreamingBuffer returns the partial reply accumulated so far.
func (s *State) StreamingBuffer() string {
	return s.buffer.String()
}

func (s *State) Halted() bool {
	return s.halted
}
