package chatapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"storefront-chat/internal/dto"
	"storefront-chat/internal/widget"
)

// TokenSource returns the current bearer token, or "" when logged out.
type TokenSource func() string

// Client talks to the chat REST API under baseURL (for example http://host/api/v1).
type Client struct {
	baseURL string
	token   TokenSource
	client  *http.Client
}

var _ widget.API = (*Client)(nil)

func NewClient(baseURL string, token TokenSource, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

// StatusError is a non-2xx reply. A 401 unwraps to widget.ErrUnauthenticated and a 400
// to widget.ErrRejected.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Code       string
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
}

func (e *StatusError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnauthorized:
		return widget.ErrUnauthenticated
	case http.StatusBadRequest:
		return widget.ErrRejected
	}
	return nil
}

func (c *Client) ListCustomerSessions(ctx context.Context) ([]dto.Session, error) {
	var resp dto.ListSessionsResponse
	if err := c.do(ctx, http.MethodGet, "/chat/customer", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Sessions, nil
}

func (c *Client) ListSessions(ctx context.Context) ([]dto.Session, error) {
	var resp dto.ListSessionsResponse
	if err := c.do(ctx, http.MethodGet, "/chat", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Sessions, nil
}

// ListInbox is the agent conversation list. Customer tokens get a 403.
func (c *Client) ListInbox(ctx context.Context) ([]dto.Session, error) {
	var resp dto.ListSessionsResponse
	if err := c.do(ctx, http.MethodGet, "/chat/inbox", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Sessions, nil
}

func (c *Client) CreateSession(ctx context.Context, req dto.CreateSessionRequest) (dto.Session, error) {
	var resp dto.SessionResponse
	if err := c.do(ctx, http.MethodPost, "/chat", req, &resp); err != nil {
		return dto.Session{}, err
	}
	return resp.Session, nil
}

func (c *Client) GetSession(ctx context.Context, sessionID string) (dto.Session, error) {
	var resp dto.SessionResponse
	if err := c.do(ctx, http.MethodGet, "/chat/"+url.PathEscape(sessionID), nil, &resp); err != nil {
		return dto.Session{}, err
	}
	return resp.Session, nil
}

func (c *Client) ListMessages(ctx context.Context, sessionID string) ([]dto.Message, error) {
	var resp dto.ListMessagesResponse
	if err := c.do(ctx, http.MethodGet, "/chat/"+url.PathEscape(sessionID)+"/messages", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

func (c *Client) PostMessage(ctx context.Context, sessionID string, req dto.PostMessageRequest) (dto.Message, error) {
	var resp dto.MessageResponse
	if err := c.do(ctx, http.MethodPost, "/chat/"+url.PathEscape(sessionID)+"/message", req, &resp); err != nil {
		return dto.Message{}, err
	}
	return resp.Message, nil
}

func (c *Client) Availability(ctx context.Context) (dto.Availability, error) {
	var resp dto.Availability
	if err := c.do(ctx, http.MethodGet, "/chat/availability", nil, &resp); err != nil {
		return dto.Availability{}, err
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s %s: marshal request: %w", method, path, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s %s: create request: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != nil {
		if token := c.token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := &StatusError{Method: method, Path: path, StatusCode: resp.StatusCode}
		var apiErr dto.ErrorResponse
		if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&apiErr); err == nil {
			statusErr.Message = apiErr.Message
			statusErr.Code = apiErr.Code
		}
		return statusErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}
