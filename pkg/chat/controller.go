package chat

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/inkwell-ai/inkwell/pkg/client"
	"github.com/inkwell-ai/inkwell/pkg/conversation"
	"github.com/inkwell-ai/inkwell/pkg/events"
	"github.com/inkwell-ai/inkwell/pkg/protocol"
	"github.com/inkwell-ai/inkwell/pkg/session"
)

var (
	// ErrStreamInFlight rejects a second send while a stream is open. At
	// most one streaming request is in flight per session.
	ErrStreamInFlight = errors.New("a stream is already in flight")
	ErrEmptyMessage   = errors.New("message is empty")
	ErrNoOpEdit       = errors.New("edit does not change the message")
)

// transportErrorText is the single generic error message surfaced when the
// transport fails mid-stream.
const transportErrorText = "Something went wrong while generating the response. Please try again."

// Backend is the slice of the client the chat controller needs on top of
// session management.
type Backend interface {
	session.ChatService
	StreamTurn(ctx context.Context, turn client.TurnRequest) (io.ReadCloser, error)
	EditMessage(ctx context.Context, sessionID string, chatID string, messageIndex int, newContent string) (*client.EditResponse, error)
}

// Controller drives chat turns: it opens one streaming request per send or
// regenerate, feeds the response through the decoder into the reducer, and
// publishes each decoded event and resulting state snapshot.
//
// Every stream carries an identity (chat id plus stream uuid). Before each
// reducer application the identity is checked against the currently active
// chat, so a stream left over from a switched-away chat can no longer mutate
// state.
type Controller struct {
	backend   Backend
	session   *session.Controller
	sinks     []events.EventSink
	publisher message.Publisher

	mu            sync.Mutex
	inFlight      bool
	currentStream uuid.UUID
	streamCancel  context.CancelFunc
}

type ControllerOption func(*Controller)

// WithSink adds a destination for decoded protocol events.
func WithSink(sink events.EventSink) ControllerOption {
	return func(c *Controller) {
		c.sinks = append(c.sinks, sink)
	}
}

// WithPublisher enables state-update publication on events.TopicStateUpdates.
func WithPublisher(publisher message.Publisher) ControllerOption {
	return func(c *Controller) {
		c.publisher = publisher
	}
}

func NewController(backend Backend, sessionController *session.Controller, options ...ControllerOption) *Controller {
	ret := &Controller{
		backend: backend,
		session: sessionController,
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

func (c *Controller) Session() *session.Controller {
	return c.session
}

// Send submits a new user turn on the active chat and streams the reply.
// The user message is appended only once the stream slot is held, so a send
// racing an in-flight stream is rejected without leaving an orphan turn.
func (c *Controller) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}

	chatID, err := c.session.EnsureActiveChat(ctx)
	if err != nil {
		return err
	}

	turn := client.TurnRequest{
		SessionID: c.session.SessionID().String(),
		ChatID:    chatID,
		Message:   text,
	}
	return c.runStream(ctx, chatID, turn, conversation.NewMessage(conversation.RoleUser, text))
}

// Regenerate re-runs inference over the existing history without appending a
// new user turn.
func (c *Controller) Regenerate(ctx context.Context) error {
	chatID, err := c.session.EnsureActiveChat(ctx)
	if err != nil {
		return err
	}

	return c.runStream(ctx, chatID, client.TurnRequest{
		SessionID:  c.session.SessionID().String(),
		ChatID:     chatID,
		Regenerate: true,
	}, nil)
}

// EditMessage rewrites the user turn at the given transcript index. The
// backend truncates the history; its response replaces the local transcript
// entirely, after which the downstream reply is regenerated.
func (c *Controller) EditMessage(ctx context.Context, index int, newContent string) error {
	newContent = strings.TrimSpace(newContent)
	if newContent == "" {
		return ErrEmptyMessage
	}

	state := c.session.State()
	if index < 0 || index >= len(state.Messages) {
		return errors.Errorf("message index %d out of range", index)
	}
	if strings.TrimSpace(state.Messages[index].Content) == newContent {
		return ErrNoOpEdit
	}

	chatID, err := c.session.EnsureActiveChat(ctx)
	if err != nil {
		return err
	}

	res, err := c.backend.EditMessage(ctx, c.session.SessionID().String(), chatID, index, newContent)
	if err != nil {
		if errors.Is(err, client.ErrChatNotFound) {
			return c.recoverLostChat(ctx, newContent)
		}
		return errors.Wrap(err, "could not edit message")
	}

	// the response is the authoritative truncated history, never merged
	state.ReplaceTranscript(client.ToTranscript(res.Messages))
	if res.Title != "" {
		c.session.Registry().SetTitle(chatID, res.Title)
	}
	c.publishState(chatID, false)

	log.Debug().Str("chat_id", chatID).Int("index", index).Int("messages", len(res.Messages)).Msg("Edit applied, regenerating")
	return c.Regenerate(ctx)
}

// recoverLostChat handles the backend reporting that the edited chat no
// longer exists: refresh the registry, create a replacement chat, and submit
// the edited content as a fresh user message.
func (c *Controller) recoverLostChat(ctx context.Context, content string) error {
	log.Warn().Msg("Chat vanished during edit, recovering with a replacement chat")

	if err := c.session.RefreshRegistry(ctx); err != nil {
		log.Warn().Err(err).Msg("Could not refresh registry during recovery")
	}
	if _, err := c.session.CreateChat(ctx, ""); err != nil {
		return errors.Wrap(err, "could not create replacement chat")
	}
	return c.Send(ctx, content)
}

// Cancel aborts the in-flight stream, if any.
func (c *Controller) Cancel() {
	c.mu.Lock()
	cancel := c.streamCancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// SwitchChat cancels any in-flight stream, then switches the active chat.
func (c *Controller) SwitchChat(ctx context.Context, chatID string) error {
	c.Cancel()
	if err := c.session.SwitchChat(ctx, chatID); err != nil {
		return err
	}
	c.publishState(chatID, false)
	return nil
}

func (c *Controller) beginStream(ctx context.Context) (context.Context, uuid.UUID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight {
		return nil, uuid.Nil, ErrStreamInFlight
	}

	streamCtx, cancel := context.WithCancel(ctx)
	c.inFlight = true
	c.currentStream = uuid.New()
	c.streamCancel = cancel
	return streamCtx, c.currentStream, nil
}

func (c *Controller) endStream(streamID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.currentStream != streamID {
		return
	}
	c.inFlight = false
	c.streamCancel = nil
}

// streamIsCurrent reports whether events from this stream may still be
// applied: the stream must not have been superseded and its chat must still
// be active.
func (c *Controller) streamIsCurrent(streamID uuid.UUID, chatID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentStream == streamID && c.session.Registry().ActiveChatID() == chatID
}

func (c *Controller) runStream(ctx context.Context, chatID string, turn client.TurnRequest, userMsg *conversation.Message) error {
	streamCtx, streamID, err := c.beginStream(ctx)
	if err != nil {
		return err
	}
	defer c.endStream(streamID)

	state := c.session.State()
	if userMsg != nil {
		state.AppendMessages(userMsg)
	}
	state.BeginStream()
	c.publishState(chatID, true)

	body, err := c.backend.StreamTurn(streamCtx, turn)
	if err != nil {
		state.AppendMessages(conversation.NewMessage(conversation.RoleAssistant, transportErrorText, conversation.WithError()))
		c.publishState(chatID, false)
		return errors.Wrap(err, "could not open stream")
	}
	defer func() {
		_ = body.Close()
	}()

	metadata := protocol.EventMetadata{
		SessionID: turn.SessionID,
		ChatID:    chatID,
		StreamID:  streamID,
	}
	decoder := protocol.NewDecoder(body, metadata)

	invokedFunction := false
	for {
		ev, err := decoder.Next()
		if err == io.EOF {
			if c.streamIsCurrent(streamID, chatID) {
				state.Finalize()
				if invokedFunction {
					c.syncTranscript(ctx, chatID, streamID)
				}
				c.publishState(chatID, false)
			}
			return nil
		}
		if err != nil {
			if c.streamIsCurrent(streamID, chatID) {
				// the partial reply is unusable, drop it before surfacing the error
				state.DiscardBuffer()
				state.AppendMessages(conversation.NewMessage(conversation.RoleAssistant, transportErrorText, conversation.WithError()))
				c.publishState(chatID, false)
			}
			return errors.Wrap(err, "stream failed")
		}

		if !c.streamIsCurrent(streamID, chatID) {
			// the user switched away; late events must not mutate state
			log.Debug().Str("chat_id", chatID).Str("stream_id", streamID.String()).Msg("Discarding events of superseded stream")
			return nil
		}

		if _, ok := ev.(*protocol.EventFunctionCall); ok {
			invokedFunction = true
		}

		if err := state.Apply(ev); err != nil {
			log.Warn().Err(err).Str("event_type", string(ev.Type())).Msg("Reducer rejected event")
			continue
		}
		c.publishEvent(ev)
		c.publishState(chatID, true)

		if state.Halted() {
			// error event: remaining events of this stream are not applied
			c.publishState(chatID, false)
			return nil
		}
	}
}

// syncTranscript replaces the local transcript with the authoritative
// persisted history. Function-invoking turns are stored as assistant+tool
// rows the stream never surfaces, so after such a turn the local ordinals no
// longer line up with the backend's; the fetched history restores the mapping
// that EditMessage indices depend on. The current document survives the swap.
func (c *Controller) syncTranscript(ctx context.Context, chatID string, streamID uuid.UUID) {
	history, err := c.backend.FetchChat(ctx, c.session.SessionID().String(), chatID)
	if err != nil {
		log.Warn().Err(err).Str("chat_id", chatID).Msg("Could not refresh history after stream")
		return
	}
	if !c.streamIsCurrent(streamID, chatID) {
		return
	}
	c.session.State().AdoptTranscript(client.ToTranscript(history.Messages))
	log.Debug().Str("chat_id", chatID).Int("messages", len(history.Messages)).Msg("Realigned transcript with persisted history")
}

func (c *Controller) publishEvent(ev protocol.Event) {
	for _, sink := range c.sinks {
		// best-effort, a failing sink must not disturb the stream
		if err := sink.PublishEvent(ev); err != nil {
			log.Warn().Err(err).Msg("Failed to publish event to sink")
		}
	}
}

func (c *Controller) publishState(chatID string, streaming bool) {
	if c.publisher == nil {
		return
	}
	events.PublishStateUpdate(c.publisher, events.NewStateUpdate(chatID, c.session.State(), streaming))
}
