package protocol

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

type EventType string

const (
	// EventTypeContent carries one delta of assistant reply text.
	EventTypeContent EventType = "content"
	// EventTypeFunctionCall announces that the backend started invoking a function.
	EventTypeFunctionCall   EventType = "function_call"
	EventTypeFunctionResult EventType = "function_result"
	// EventTypeDocument carries a full generated document, out of band of the reply text.
	EventTypeDocument EventType = "document"
	EventTypeError    EventType = "error"
)

// Function names the backend reports in function_call / function_result events.
const (
	FunctionExtractInformation = "extract_information"
	FunctionGenerateDocument   = "generate_document"
	FunctionApplyEdits         = "apply_edits"
)

// Event is one decoded unit from the streaming transport.
type Event interface {
	Type() EventType
	Metadata() EventMetadata
	Payload() []byte
}

// EventMetadata identifies the stream an event was decoded from. It is not
// part of the wire format; the decoder attaches it so that downstream
// consumers can check event identity against the currently active chat.
type EventMetadata struct {
	SessionID string    `json:"session_id,omitempty"`
	ChatID    string    `json:"chat_id,omitempty"`
	StreamID  uuid.UUID `json:"stream_id,omitempty"`
}

func (em EventMetadata) MarshalZerologObject(e *zerolog.Event) {
	if em.SessionID != "" {
		e.Str("session_id", em.SessionID)
	}
	if em.ChatID != "" {
		e.Str("chat_id", em.ChatID)
	}
	if em.StreamID != uuid.Nil {
		e.Str("stream_id", em.StreamID.String())
	}
}

type EventImpl struct {
	Type_     EventType     `json:"type"`
	Metadata_ EventMetadata `json:"-"`

	// raw wire payload the event was decoded from
	payload []byte
}

func (e *EventImpl) Type() EventType {
	return e.Type_
}

func (e *EventImpl) Metadata() EventMetadata {
	return e.Metadata_
}

func (e *EventImpl) Payload() []byte {
	return e.payload
}

func (e *EventImpl) SetPayload(b []byte) {
	e.payload = b
}

func (e *EventImpl) SetMetadata(md EventMetadata) {
	e.Metadata_ = md
}

func (e *EventImpl) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("type", string(e.Type_))
	ev.Object("meta", e.Metadata_)
}

var _ Event = &EventImpl{}

// EventContent is a partial completion delta for the reply in flight.
type EventContent struct {
	EventImpl
	Content string `json:"content"`
}

func NewContentEvent(metadata EventMetadata, delta string) *EventContent {
	return &EventContent{
		EventImpl: EventImpl{Type_: EventTypeContent, Metadata_: metadata},
		Content:   delta,
	}
}

var _ Event = &EventContent{}

func (e EventContent) MarshalZerologObject(ev *zerolog.Event) {
	e.EventImpl.MarshalZerologObject(ev)
	ev.Str("content", e.Content)
}

type EventFunctionCall struct {
	EventImpl
	FunctionName string `json:"function_name"`
}

func NewFunctionCallEvent(metadata EventMetadata, functionName string) *EventFunctionCall {
	return &EventFunctionCall{
		EventImpl:    EventImpl{Type_: EventTypeFunctionCall, Metadata_: metadata},
		FunctionName: functionName,
	}
}

var _ Event = &EventFunctionCall{}

func (e EventFunctionCall) MarshalZerologObject(ev *zerolog.Event) {
	e.EventImpl.MarshalZerologObject(ev)
	ev.Str("function_name", e.FunctionName)
}

// EventFunctionResult carries the backend-side result of a function
// invocation. The result payload is function-specific; generate_document and
// apply_edits carry a document under the "document" key.
type EventFunctionResult struct {
	EventImpl
	FunctionName string          `json:"function_name"`
	Result       json.RawMessage `json:"result,omitempty"`
}

func NewFunctionResultEvent(metadata EventMetadata, functionName string, result json.RawMessage) *EventFunctionResult {
	return &EventFunctionResult{
		EventImpl:    EventImpl{Type_: EventTypeFunctionResult, Metadata_: metadata},
		FunctionName: functionName,
		Result:       result,
	}
}

// DocumentPayload extracts the generated document from the result, if the
// result carries one.
func (e *EventFunctionResult) DocumentPayload() (string, bool) {
	if len(e.Result) == 0 {
		return "", false
	}
	var res struct {
		Document string `json:"document"`
	}
	if err := json.Unmarshal(e.Result, &res); err != nil {
		return "", false
	}
	if res.Document == "" {
		return "", false
	}
	return res.Document, true
}

var _ Event = &EventFunctionResult{}

func (e EventFunctionResult) MarshalZerologObject(ev *zerolog.Event) {
	e.EventImpl.MarshalZerologObject(ev)
	ev.Str("function_name", e.FunctionName)
}

type EventDocument struct {
	EventImpl
	Content string `json:"content"`
}

func NewDocumentEvent(metadata EventMetadata, content string) *EventDocument {
	return &EventDocument{
		EventImpl: EventImpl{Type_: EventTypeDocument, Metadata_: metadata},
		Content:   content,
	}
}

var _ Event = &EventDocument{}

func (e EventDocument) MarshalZerologObject(ev *zerolog.Event) {
	e.EventImpl.MarshalZerologObject(ev)
	ev.Int("content_length", len(e.Content))
}

type EventError struct {
	EventImpl
	Message string `json:"message"`
}

func NewErrorEvent(metadata EventMetadata, message string) *EventError {
	return &EventError{
		EventImpl: EventImpl{Type_: EventTypeError, Metadata_: metadata},
		Message:   message,
	}
}

var _ Event = &EventError{}

func (e EventError) MarshalZerologObject(ev *zerolog.Event) {
	e.EventImpl.MarshalZerologObject(ev)
	ev.Str("error", e.Message)
}

// NewEventFromJSON decodes a single wire payload into its typed event.
func NewEventFromJSON(b []byte) (Event, error) {
	var hdr struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(b, &hdr); err != nil {
		return nil, errors.Wrap(err, "could not parse event header")
	}

	switch hdr.Type {
	case EventTypeContent:
		return toTypedEvent[EventContent](b)
	case EventTypeFunctionCall:
		return toTypedEvent[EventFunctionCall](b)
	case EventTypeFunctionResult:
		return toTypedEvent[EventFunctionResult](b)
	case EventTypeDocument:
		return toTypedEvent[EventDocument](b)
	case EventTypeError:
		return toTypedEvent[EventError](b)
	}

	return nil, errors.Errorf("unknown event type %q", hdr.Type)
}

type payloadSetter interface {
	Event
	SetPayload([]byte)
}

func toTypedEvent[T any, PT interface {
	*T
	payloadSetter
}](b []byte) (Event, error) {
	ret := PT(new(T))
	if err := json.Unmarshal(b, ret); err != nil {
		return nil, errors.Wrapf(err, "could not cast event to %T", ret)
	}
	ret.SetPayload(b)
	return ret, nil
}
