package session

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/inkwell-ai/inkwell/pkg/client"
	"github.com/inkwell-ai/inkwell/pkg/conversation"
)

// ChatService is the slice of the backend client the controller needs.
type ChatService interface {
	ListChats(ctx context.Context, sessionID string) ([]client.ChatSummary, error)
	CreateChat(ctx context.Context, sessionID string, title string) (*client.ChatSummary, error)
	FetchChat(ctx context.Context, sessionID string, chatID string) (*client.ChatHistory, error)
	DeleteChat(ctx context.Context, sessionID string, chatID string) error
}

// Controller owns the registry of saved chats and the currently active one.
// It mediates bootstrap, switching, creation and deletion; it is the only
// component besides the reducer that resets the conversation state.
type Controller struct {
	sessionID ID
	service   ChatService
	registry  *Registry
	state     *conversation.State
}

func NewController(sessionID ID, service ChatService, state *conversation.State) *Controller {
	return &Controller{
		sessionID: sessionID,
		service:   service,
		registry:  NewRegistry(),
		state:     state,
	}
}

func (c *Controller) SessionID() ID {
	return c.sessionID
}

func (c *Controller) Registry() *Registry {
	return c.registry
}

func (c *Controller) State() *conversation.State {
	return c.state
}

// Bootstrap fetches the chat list for the session. An empty list yields
// exactly one created chat which becomes active; otherwise the most recent
// entry is activated. The active chat's history is loaded into the
// transcript.
func (c *Controller) Bootstrap(ctx context.Context) error {
	chats, err := c.service.ListChats(ctx, c.sessionID.String())
	if err != nil {
		return errors.Wrap(err, "bootstrap: could not list chats")
	}
	c.registry.Replace(chats)

	if c.registry.Len() == 0 {
		chat, err := c.service.CreateChat(ctx, c.sessionID.String(), "")
		if err != nil {
			return errors.Wrap(err, "bootstrap: could not create initial chat")
		}
		c.registry.Insert(*chat)
		_ = c.registry.SetActive(chat.ID)
		c.state.ReplaceTranscript(nil)
		log.Info().Str("chat_id", chat.ID).Msg("Bootstrapped with a fresh chat")
		return nil
	}

	if c.registry.ActiveChatID() == "" {
		// the list comes back newest first
		if err := c.SwitchChat(ctx, chats[0].ID); err != nil {
			return err
		}
	}
	log.Info().Int("chats", c.registry.Len()).Str("active", c.registry.ActiveChatID()).Msg("Bootstrapped session")
	return nil
}

// EnsureActiveChat resolves the active chat id before any stream opens. If
// none is active it tries a fresh list fetch, falling back to creating a new
// chat.
func (c *Controller) EnsureActiveChat(ctx context.Context) (string, error) {
	if id := c.registry.ActiveChatID(); id != "" {
		return id, nil
	}

	chats, err := c.service.ListChats(ctx, c.sessionID.String())
	if err != nil {
		return "", errors.Wrap(err, "could not list chats")
	}
	c.registry.Replace(chats)
	if len(chats) > 0 {
		if err := c.registry.SetActive(chats[0].ID); err != nil {
			return "", err
		}
		return chats[0].ID, nil
	}

	chat, err := c.service.CreateChat(ctx, c.sessionID.String(), "")
	if err != nil {
		return "", errors.Wrap(err, "could not create chat")
	}
	c.registry.Insert(*chat)
	_ = c.registry.SetActive(chat.ID)
	return chat.ID, nil
}

// SwitchChat makes another chat active. Any in-flight buffer and the current
// document are discarded; the transcript is replaced wholesale with the
// fetched history of the target chat.
func (c *Controller) SwitchChat(ctx context.Context, chatID string) error {
	history, err := c.service.FetchChat(ctx, c.sessionID.String(), chatID)
	if err != nil {
		if errors.Is(err, client.ErrChatNotFound) {
			// stale registry entry, refresh and report
			if chats, lerr := c.service.ListChats(ctx, c.sessionID.String()); lerr == nil {
				c.registry.Replace(chats)
			}
		}
		return errors.Wrapf(err, "could not fetch chat %s", chatID)
	}

	c.registry.Insert(client.ChatSummary{ID: history.ID, Title: history.Title})
	if err := c.registry.SetActive(chatID); err != nil {
		return err
	}
	c.state.ReplaceTranscript(client.ToTranscript(history.Messages))

	log.Debug().Str("chat_id", chatID).Int("messages", len(history.Messages)).Msg("Switched active chat")
	return nil
}

// CreateChat creates a fresh chat and makes it active with an empty
// transcript.
func (c *Controller) CreateChat(ctx context.Context, title string) (*client.ChatSummary, error) {
	chat, err := c.service.CreateChat(ctx, c.sessionID.String(), title)
	if err != nil {
		return nil, errors.Wrap(err, "could not create chat")
	}
	c.registry.Insert(*chat)
	_ = c.registry.SetActive(chat.ID)
	c.state.ReplaceTranscript(nil)
	return chat, nil
}

// DeleteChat removes a chat. Deleting the active chat creates a replacement
// (or leaves a cleared, chatless state if creation fails) before the
// registry is refreshed from the backend.
func (c *Controller) DeleteChat(ctx context.Context, chatID string) error {
	wasActive := c.registry.ActiveChatID() == chatID

	if err := c.service.DeleteChat(ctx, c.sessionID.String(), chatID); err != nil && !errors.Is(err, client.ErrChatNotFound) {
		return errors.Wrapf(err, "could not delete chat %s", chatID)
	}
	c.registry.Remove(chatID)

	if wasActive {
		chat, err := c.service.CreateChat(ctx, c.sessionID.String(), "")
		if err != nil {
			log.Warn().Err(err).Msg("Could not create replacement chat, session is chatless")
			c.registry.ClearActive()
			c.state.ReplaceTranscript(nil)
		} else {
			c.registry.Insert(*chat)
			_ = c.registry.SetActive(chat.ID)
			c.state.ReplaceTranscript(nil)
		}
	}

	if chats, err := c.service.ListChats(ctx, c.sessionID.String()); err == nil {
		active := c.registry.ActiveChatID()
		c.registry.Replace(chats)
		// the replacement may not be listed yet if the backend is eventually
		// consistent; keep it either way
		if active != "" && !c.registry.Contains(active) {
			c.registry.Insert(client.ChatSummary{ID: active})
			_ = c.registry.SetActive(active)
		}
	}

	return nil
}

// RefreshRegistry replaces the registry with a fresh list fetch.
func (c *Controller) RefreshRegistry(ctx context.Context) error {
	chats, err := c.service.ListChats(ctx, c.sessionID.String())
	if err != nil {
		return errors.Wrap(err, "could not refresh chat list")
	}
	c.registry.Replace(chats)
	return nil
}
