// Package api is the client for the board persistence API.
//
// All calls are authenticated with the bearer token the client was built with.
// Request bodies are validated before they are sent; a non-2xx response is
// returned as *Error.
package api

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

	"github.com/freudmarin/TaskBoardApp/pkg/board"
	"github.com/sirupsen/logrus"
)

// DefaultTimeout bounds each request when no HTTP client is supplied.
const DefaultTimeout = 15 * time.Second

const apiPrefix = "/api/v1"

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// Client talks to the persistence API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	log     logrus.FieldLogger
}

// NewClient creates a client for the server at baseURL. The /api/v1 prefix is
// added when missing.
func NewClient(baseURL, token string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid API base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid API base URL %q: scheme must be http or https", baseURL)
	}
	if !strings.HasSuffix(u.Path, apiPrefix) {
		u.Path += apiPrefix
	}

	c := &Client{
		baseURL: u.String(),
		token:   token,
		http:    &http.Client{Timeout: DefaultTimeout},
		log:     logrus.WithField("component", "api"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the resolved API root.
func (c *Client) BaseURL() string { return c.baseURL }

// Login exchanges a username and password for tokens.
func (c *Client) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	if err := Validate(&req); err != nil {
		return nil, err
	}
	var out AuthResponse
	if err := c.do(ctx, http.MethodPost, "/auth/login", &req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListBoards returns the boards visible to the caller.
func (c *Client) ListBoards(ctx context.Context) ([]*board.Board, error) {
	var out []*board.Board
	if err := c.do(ctx, http.MethodGet, "/boards", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetBoard returns a board with its lists and cards.
func (c *Client) GetBoard(ctx context.Context, boardID int64) (*board.Board, error) {
	var out board.Board
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/boards/%d", boardID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FetchBoard is GetBoard under the name refetch callers expect.
func (c *Client) FetchBoard(ctx context.Context, boardID int64) (*board.Board, error) {
	return c.GetBoard(ctx, boardID)
}

// CreateBoard creates a board.
func (c *Client) CreateBoard(ctx context.Context, req BoardRequest) (*board.Board, error) {
	req.normalize()
	if err := Validate(&req); err != nil {
		return nil, err
	}
	var out board.Board
	if err := c.do(ctx, http.MethodPost, "/boards", &req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateBoard replaces a board's details.
func (c *Client) UpdateBoard(ctx context.Context, boardID int64, req BoardRequest) (*board.Board, error) {
	req.normalize()
	if err := Validate(&req); err != nil {
		return nil, err
	}
	var out board.Board
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/boards/%d", boardID), &req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteBoard archives a board.
func (c *Client) DeleteBoard(ctx context.Context, boardID int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/boards/%d", boardID), nil, nil)
}

// BoardActivity returns the board's recent activity log.
func (c *Client) BoardActivity(ctx context.Context, boardID int64) ([]*Activity, error) {
	var out []*Activity
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/boards/%d/activity", boardID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListsByBoard returns a board's lists.
func (c *Client) ListsByBoard(ctx context.Context, boardID int64) ([]*board.List, error) {
	var out []*board.List
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/lists/board/%d", boardID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetList returns one list.
func (c *Client) GetList(ctx context.Context, listID int64) (*board.List, error) {
	var out board.List
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/lists/%d", listID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateList creates a list.
func (c *Client) CreateList(ctx context.Context, req ListRequest) (*board.List, error) {
	if err := Validate(&req); err != nil {
		return nil, err
	}
	var out board.List
	if err := c.do(ctx, http.MethodPost, "/lists", &req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateList replaces a list's details.
func (c *Client) UpdateList(ctx context.Context, listID int64, req ListRequest) (*board.List, error) {
	if err := Validate(&req); err != nil {
		return nil, err
	}
	var out board.List
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/lists/%d", listID), &req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteList deletes a list and its cards.
func (c *Client) DeleteList(ctx context.Context, listID int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/lists/%d", listID), nil, nil)
}

// CardsByList returns a list's cards.
func (c *Client) CardsByList(ctx context.Context, listID int64) ([]*board.Card, error) {
	var out []*board.Card
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/cards/list/%d", listID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetCard returns one card.
func (c *Client) GetCard(ctx context.Context, cardID int64) (*board.Card, error) {
	var out board.Card
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/cards/%d", cardID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateCard creates a card.
func (c *Client) CreateCard(ctx context.Context, req CardRequest) (*board.Card, error) {
	req.normalize()
	if err := Validate(&req); err != nil {
		return nil, err
	}
	var out board.Card
	if err := c.do(ctx, http.MethodPost, "/cards", &req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateCard replaces a card's details.
func (c *Client) UpdateCard(ctx context.Context, cardID int64, req CardRequest) (*board.Card, error) {
	req.normalize()
	if err := Validate(&req); err != nil {
		return nil, err
	}
	var out board.Card
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/cards/%d", cardID), &req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MoveCard places a card in a list at a position and returns the canonical card.
func (c *Client) MoveCard(ctx context.Context, cardID int64, req MoveRequest) (*board.Card, error) {
	if err := Validate(&req); err != nil {
		return nil, err
	}
	var out board.Card
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/cards/%d/move", cardID), &req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteCard deletes a card.
func (c *Client) DeleteCard(ctx context.Context, cardID int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/cards/%d", cardID), nil, nil)
}

// Mover adapts the client to the reconciler's commit interface.
type Mover struct{ *Client }

// MoveCard commits a drag placement.
func (m Mover) MoveCard(ctx context.Context, cardID, newListID int64, newPosition int) error {
	_, err := m.Client.MoveCard(ctx, cardID, MoveRequest{NewListID: newListID, NewPosition: newPosition})
	return err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.log.WithFields(logrus.Fields{
		"method":   method,
		"path":     path,
		"status":   resp.StatusCode,
		"duration": time.Since(start),
	}).Debug("API request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	return nil
}
