package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ErrChatNotFound signals a stale chat id: the chat was deleted (or never
// existed) on the backend. Controllers recover from it by refreshing the
// registry or creating a replacement chat.
var ErrChatNotFound = errors.New("chat not found")

// Client talks to the document-drafting backend: plain JSON endpoints for
// chat management, plus the streaming turn endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

func NewClient(baseURL string, options ...Option) *Client {
	ret := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// ListChats returns the chat summaries for a session, newest first.
func (c *Client) ListChats(ctx context.Context, sessionID string) ([]ChatSummary, error) {
	var res struct {
		Chats []ChatSummary `json:"chats"`
	}
	err := c.doJSON(ctx, http.MethodGet, "/api/chats/"+url.PathEscape(sessionID), nil, &res)
	if err != nil {
		return nil, errors.Wrap(err, "could not list chats")
	}
	return res.Chats, nil
}

// CreateChat creates a new chat thread for the session.
func (c *Client) CreateChat(ctx context.Context, sessionID string, title string) (*ChatSummary, error) {
	req := map[string]string{"session_id": sessionID}
	if title != "" {
		req["title"] = title
	}
	var res struct {
		ChatID    string `json:"chat_id"`
		Title     string `json:"title"`
		CreatedAt string `json:"created_at"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/api/chats", req, &res)
	if err != nil {
		return nil, errors.Wrap(err, "could not create chat")
	}
	return &ChatSummary{ID: res.ChatID, Title: res.Title, CreatedAt: res.CreatedAt}, nil
}

// FetchChat returns the full persisted history of one chat.
func (c *Client) FetchChat(ctx context.Context, sessionID string, chatID string) (*ChatHistory, error) {
	var res struct {
		Chat ChatHistory `json:"chat"`
	}
	path := "/api/chats/" + url.PathEscape(sessionID) + "/" + url.PathEscape(chatID)
	err := c.doJSON(ctx, http.MethodGet, path, nil, &res)
	if err != nil {
		return nil, err
	}
	return &res.Chat, nil
}

// DeleteChat removes one chat.
func (c *Client) DeleteChat(ctx context.Context, sessionID string, chatID string) error {
	path := "/api/chats/" + url.PathEscape(sessionID) + "/" + url.PathEscape(chatID)
	return c.doJSON(ctx, http.MethodDelete, path, nil, nil)
}

// ClearSession deletes every chat belonging to the session.
func (c *Client) ClearSession(ctx context.Context, sessionID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/conversations/"+url.PathEscape(sessionID), nil, nil)
}

// EditMessage rewrites a past user turn. The backend performs the
// truncation: the response history is authoritative and ends at the edited
// message.
func (c *Client) EditMessage(ctx context.Context, sessionID string, chatID string, messageIndex int, newContent string) (*EditResponse, error) {
	req := map[string]interface{}{
		"message_index": messageIndex,
		"new_content":   newContent,
	}
	var res EditResponse
	path := "/api/chats/" + url.PathEscape(sessionID) + "/" + url.PathEscape(chatID) + "/edit"
	if err := c.doJSON(ctx, http.MethodPost, path, req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Health checks the backend liveness endpoint.
func (c *Client) Health(ctx context.Context) error {
	var res struct {
		Status string `json:"status"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/health", nil, &res); err != nil {
		return err
	}
	if res.Status != "healthy" {
		return errors.Errorf("unexpected health status %q", res.Status)
	}
	return nil
}

// StreamTurn opens one streaming chat turn and returns the raw response
// body. The caller owns the body and feeds it through a protocol.Decoder.
func (c *Client) StreamTurn(ctx context.Context, turn TurnRequest) (io.ReadCloser, error) {
	b, err := json.Marshal(turn)
	if err != nil {
		return nil, errors.Wrap(err, "could not marshal turn request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(b))
	if err != nil {
		return nil, errors.Wrap(err, "could not create turn request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	log.Debug().
		Str("chat_id", turn.ChatID).
		Bool("regenerate", turn.Regenerate).
		Msg("Opening chat turn stream")

	// the stream can outlive any reasonable request timeout, so it goes
	// through a transport without one
	streamClient := &http.Client{Transport: c.httpClient.Transport}
	resp, err := streamClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "could not open turn stream")
	}

	if resp.StatusCode != http.StatusOK {
		defer func() {
			_ = resp.Body.Close()
		}()
		return nil, c.errorFromResponse(resp)
	}

	return resp.Body, nil
}

func (c *Client) doJSON(ctx context.Context, method string, path string, body interface{}, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "could not marshal request body")
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return errors.Wrapf(err, "could not create %s %s request", method, path)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s failed", method, path)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return c.errorFromResponse(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "could not decode %s %s response", method, path)
	}
	return nil
}

func (c *Client) errorFromResponse(resp *http.Response) error {
	var res struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&res)

	if resp.StatusCode == http.StatusNotFound {
		log.Debug().Str("error", res.Error).Msg("Backend reported missing chat")
		return ErrChatNotFound
	}
	if res.Error != "" {
		return errors.Errorf("backend returned %d: %s", resp.StatusCode, res.Error)
	}
	return errors.Errorf("backend returned %d", resp.StatusCode)
}
