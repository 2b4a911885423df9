package session

import (
	"github.com/pkg/errors"

	"github.com/inkwell-ai/inkwell/pkg/client"
)

// Registry is the ordered set of saved chats for one session, newest first,
// together with the id of the active chat. The active id, once resolved,
// always refers to an entry present in the registry; it is empty only before
// bootstrap completes or after deletion left the session chatless.
type Registry struct {
	chats        []client.ChatSummary
	activeChatID string
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Replace swaps the chat list wholesale with a fresh fetch. The active id is
// kept if the chat is still listed, cleared otherwise.
func (r *Registry) Replace(chats []client.ChatSummary) {
	r.chats = append([]client.ChatSummary(nil), chats...)
	if r.activeChatID != "" && !r.Contains(r.activeChatID) {
		r.activeChatID = ""
	}
}

// Insert prepends a newly created chat. Inserting an id already present is a
// no-op, so duplicate insertion cannot corrupt the ordering.
func (r *Registry) Insert(chat client.ChatSummary) {
	if r.Contains(chat.ID) {
		return
	}
	r.chats = append([]client.ChatSummary{chat}, r.chats...)
}

func (r *Registry) Remove(chatID string) {
	for i, c := range r.chats {
		if c.ID == chatID {
			r.chats = append(r.chats[:i], r.chats[i+1:]...)
			break
		}
	}
	if r.activeChatID == chatID {
		r.activeChatID = ""
	}
}

func (r *Registry) Contains(chatID string) bool {
	for _, c := range r.chats {
		if c.ID == chatID {
			return true
		}
	}
	return false
}

// Chats returns a copy of the registry entries, newest first.
func (r *Registry) Chats() []client.ChatSummary {
	return append([]client.ChatSummary(nil), r.chats...)
}

func (r *Registry) Len() int {
	return len(r.chats)
}

func (r *Registry) ActiveChatID() string {
	return r.activeChatID
}

// SetActive marks a chat as active. The chat must be present in the
// registry.
func (r *Registry) SetActive(chatID string) error {
	if !r.Contains(chatID) {
		return errors.Errorf("chat %s not in registry", chatID)
	}
	r.activeChatID = chatID
	return nil
}

func (r *Registry) ClearActive() {
	r.activeChatID = ""
}

// SetTitle updates a chat title in place, as happens when the backend
// re-titles a chat after a first-message edit.
func (r *Registry) SetTitle(chatID string, title string) {
	for i := range r.chats {
		if r.chats[i].ID == chatID {
			r.chats[i].Title = title
			return
		}
	}
}
