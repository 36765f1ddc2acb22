// Package api is the request/response transport to the room and vision
// services.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/lox/tablesync/internal/protocol"
)

const (
	DefaultConnectTimeout = 15 * time.Second
	DefaultReadTimeout    = 20 * time.Second

	// RequestIDHeader carries a per-request id for log correlation.
	RequestIDHeader = "X-Request-ID"

	maxErrorBody = 512
)

// StatusError is returned for non-2xx answers.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: HTTP %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Op, e.StatusCode, e.Body)
}

// Client talks to the middleware over HTTP.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	logger  *log.Logger

	connectTimeout time.Duration
	readTimeout    time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithTimeouts sets the connect and response-header timeouts.
func WithTimeouts(connect, read time.Duration) Option {
	return func(c *Client) {
		c.connectTimeout = connect
		c.readTimeout = read
	}
}

// WithHTTPClient replaces the HTTP client; timeouts are then the caller's.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// New creates a client for the service at baseURL.
func New(baseURL string, logger *log.Logger, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid base URL %q: scheme must be http or https", baseURL)
	}

	c := &Client{
		baseURL:        u,
		logger:         logger.WithPrefix("api"),
		connectTimeout: DefaultConnectTimeout,
		readTimeout:    DefaultReadTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				DialContext:           (&net.Dialer{Timeout: c.connectTimeout}).DialContext,
				ResponseHeaderTimeout: c.readTimeout,
				IdleConnTimeout:       90 * time.Second,
			},
			Timeout: c.connectTimeout + c.readTimeout,
		}
	}
	return c, nil
}

// StreamURL returns the websocket endpoint for a game's event stream.
func (c *Client) StreamURL(gameID string) string {
	u := *c.baseURL
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = u.Path + "/ws/camera/" + url.PathEscape(gameID)
	return u.String()
}

func (c *Client) JoinRoom(ctx context.Context, playerName, roomID string) (*protocol.JoinRoomResponse, error) {
	var resp protocol.JoinRoomResponse
	body := protocol.JoinRoomRequest{PlayerName: playerName, RoomID: roomID}
	if err := c.do(ctx, "join room", http.MethodPost, "/joinRoom", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) CreateRoom(ctx context.Context, playerName string) (*protocol.JoinRoomResponse, error) {
	var resp protocol.JoinRoomResponse
	body := protocol.CreateRoomRequest{PlayerName: playerName}
	if err := c.do(ctx, "create room", http.MethodPost, "/createRoom", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RoomState fetches the current snapshot of a room.
func (c *Client) RoomState(ctx context.Context, roomID string) (*protocol.RoomSnapshot, error) {
	var snap protocol.RoomSnapshot
	path := "/room/" + url.PathEscape(roomID) + "/state"
	if err := c.do(ctx, "room state", http.MethodGet, path, nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (c *Client) PlayCard(ctx context.Context, playerID, roomID string, card protocol.Card) (*protocol.ActionResponse, error) {
	var resp protocol.ActionResponse
	body := protocol.PlayCardRequest{PlayerID: playerID, RoomID: roomID, Card: card}
	if err := c.do(ctx, "play card", http.MethodPost, "/playCard", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StartGame starts a vision-mode game. An empty roomID lets the server pick.
func (c *Client) StartGame(ctx context.Context, playerName, roomID string) (*protocol.StartGameResponse, error) {
	var resp protocol.StartGameResponse
	body := protocol.StartGameRequest{PlayerName: playerName, RoomID: roomID}
	if err := c.do(ctx, "start game", http.MethodPost, "/game/start", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) MarkReady(ctx context.Context, gameID string) (*protocol.ActionResponse, error) {
	return c.action(ctx, "mark ready", http.MethodPost, "/game/ready/"+url.PathEscape(gameID), nil)
}

func (c *Client) NewRound(ctx context.Context, gameID string) (*protocol.ActionResponse, error) {
	return c.action(ctx, "new round", http.MethodPost, "/game/new_round/"+url.PathEscape(gameID), nil)
}

func (c *Client) AddBot(ctx context.Context, seat int) (*protocol.ActionResponse, error) {
	return c.action(ctx, "add bot", http.MethodPost, "/bot/add/"+strconv.Itoa(seat), nil)
}

func (c *Client) RemoveBot(ctx context.Context, seat int) (*protocol.ActionResponse, error) {
	return c.action(ctx, "remove bot", http.MethodDelete, "/bot/"+strconv.Itoa(seat), nil)
}

func (c *Client) ListBots(ctx context.Context) (*protocol.BotListResponse, error) {
	var resp protocol.BotListResponse
	if err := c.do(ctx, "list bots", http.MethodGet, "/bots", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) StartBotRecognition(ctx context.Context, seats []int) (*protocol.ActionResponse, error) {
	return c.action(ctx, "start bot recognition", http.MethodPost, "/bot/recognition/start",
		protocol.BotRecognitionRequest{Bots: seats})
}

func (c *Client) action(ctx context.Context, op, method, path string, body any) (*protocol.ActionResponse, error) {
	var resp protocol.ActionResponse
	if err := c.do(ctx, op, method, path, body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	u := *c.baseURL
	u.Path = u.Path + path
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	requestID := uuid.NewString()
	req.Header.Set(RequestIDHeader, requestID)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("Request failed", "op", op, "request_id", requestID, "error", err)
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	c.logger.Debug("Request completed", "op", op, "status", resp.StatusCode,
		"request_id", requestID, "elapsed", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}
