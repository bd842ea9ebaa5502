// Package client is a Go client for the relay: a reconnecting WebSocket
// session backed by REST backfill and a deduplicating cache.
package client

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/protocol"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"
)

type Config struct {
	// BackendURL and WebSocketURL are resolved once, when the client is built.
	BackendURL   string
	WebSocketURL string
	// Conversations restricts backfill. Every conversation of the identity
	// is backfilled when empty.
	Conversations   []string
	PageLimit       int
	WriteTimeout    time.Duration
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// HTTPClient is used for REST calls, http.DefaultClient when nil.
	HTTPClient *http.Client
}

type Client struct {
	config Config
	api    *API
	cache  *Cache
	tokens TokenSource
	dialer *websocket.Dialer
	log    *slog.Logger

	mu   sync.Mutex
	conn *websocket.Conn

	subscribersMu sync.RWMutex
	onMessage     []func(domain.Message)
	onNotify      []func(domain.Notification)
	onError       []func(domain.ErrorPayload)
}

func New(config Config, tokens TokenSource, log *slog.Logger) *Client {
	if config.PageLimit <= 0 {
		config.PageLimit = 50
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 10 * time.Second
	}
	if config.InitialInterval <= 0 {
		config.InitialInterval = 500 * time.Millisecond
	}
	if config.MaxInterval <= 0 {
		config.MaxInterval = 30 * time.Second
	}
	return &Client{
		config: config,
		api:    NewAPI(config.BackendURL, tokens, config.HTTPClient),
		cache:  NewCache(),
		tokens: tokens,
		dialer: websocket.DefaultDialer,
		log:    log,
	}
}

func (c *Client) API() *API     { return c.api }
func (c *Client) Cache() *Cache { return c.cache }

// OnMessage subscribes to chat messages not seen before.
func (c *Client) OnMessage(fn func(domain.Message)) {
	c.subscribersMu.Lock()
	defer c.subscribersMu.Unlock()
	c.onMessage = append(c.onMessage, fn)
}

// OnNotification subscribes to notifications not seen before.
func (c *Client) OnNotification(fn func(domain.Notification)) {
	c.subscribersMu.Lock()
	defer c.subscribersMu.Unlock()
	c.onNotify = append(c.onNotify, fn)
}

// OnError subscribes to error envelopes sent back for this connection.
func (c *Client) OnError(fn func(domain.ErrorPayload)) {
	c.subscribersMu.Lock()
	defer c.subscribersMu.Unlock()
	c.onError = append(c.onError, fn)
}

func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Run keeps a session open until ctx is cancelled. Every attempt asks the
// token source for a fresh credential and backfills before waiting on the
// next drop.
func (c *Client) Run(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.config.InitialInterval
	bo.MaxInterval = c.config.MaxInterval
	bo.RandomizationFactor = 0.5
	bo.MaxElapsedTime = 0
	bo.Reset()

	for {
		err := c.session(ctx, bo.Reset)
		if ctx.Err() != nil {
			return nil
		}
		wait := bo.NextBackOff()
		c.log.Warn("Session ended, reconnecting", "error", err, "wait", wait)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

// session dials, backfills and reads until the connection drops.
func (c *Client) session(ctx context.Context, connected func()) error {
	// Cursors are taken before any live push can land in the cache: a push
	// racing the backfill must not move a cursor past the gap.
	cursors := c.cache.Cursors()
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	connected()
	c.setConn(conn)
	defer c.setConn(nil)
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	c.log.Info("Connected", "url", c.config.WebSocketURL)

	readErr := make(chan error, 1)
	go func() { readErr <- c.read(conn) }()

	if err = c.backfill(ctx, cursors); err != nil {
		c.log.Warn("Backfill failed", "error", err)
	}
	err = <-readErr
	_ = conn.Close()
	return err
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to get token: %w", err)
	}
	target, err := url.Parse(c.config.WebSocketURL)
	if err != nil {
		return nil, err
	}
	query := target.Query()
	query.Set("token", token)
	target.RawQuery = query.Encode()

	conn, resp, err := c.dialer.DialContext(ctx, target.String(), nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, errors.ErrAuthRejected
		}
		return nil, err
	}
	return conn, nil
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = conn
}

func (c *Client) read(conn *websocket.Conn) error {
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		envelope, err := protocol.DecodeOutbound(frame)
		if err != nil {
			c.log.Debug("Dropping frame", "error", err)
			continue
		}
		c.dispatch(envelope)
	}
}

func (c *Client) dispatch(envelope domain.Envelope) {
	c.subscribersMu.RLock()
	defer c.subscribersMu.RUnlock()
	switch payload := envelope.Payload.(type) {
	case domain.Message:
		if c.cache.ApplyMessage(payload) {
			lo.ForEach(c.onMessage, func(fn func(domain.Message), _ int) { fn(payload) })
		}
	case domain.Notification:
		if c.cache.ApplyNotification(payload) {
			lo.ForEach(c.onNotify, func(fn func(domain.Notification), _ int) { fn(payload) })
		}
	case domain.ErrorPayload:
		lo.ForEach(c.onError, func(fn func(domain.ErrorPayload), _ int) { fn(payload) })
	}
}

// Backfill pages the history of each conversation of interest, newest
// first, until it meets the last message already in the cache. The first
// page of notifications is refreshed as well.
func (c *Client) Backfill(ctx context.Context) error {
	return c.backfill(ctx, c.cache.Cursors())
}

// backfill replays, for each conversation, every message above its cursor.
// A conversation without cursor is replayed from the start.
func (c *Client) backfill(ctx context.Context, cursors map[string]int64) error {
	conversations := c.config.Conversations
	if len(conversations) == 0 {
		all, err := c.api.ListConversations(ctx)
		if err != nil {
			return err
		}
		conversations = lo.Map(all, func(conv domain.Conversation, _ int) string { return conv.ID })
	}
	for _, id := range conversations {
		if err := c.backfillConversation(ctx, id, cursors[id]); err != nil {
			return fmt.Errorf("conversation %s: %w", id, err)
		}
	}
	notifications, err := c.api.ListNotifications(ctx, 1, c.config.PageLimit)
	if err != nil {
		return err
	}
	for _, n := range notifications.Notifications {
		c.dispatch(domain.NotificationEnvelope(n))
	}
	return nil
}

func (c *Client) backfillConversation(ctx context.Context, conversationID string, last int64) error {
	for page := 1; ; page++ {
		result, err := c.api.ListMessages(ctx, conversationID, page, c.config.PageLimit)
		if err != nil {
			return err
		}
		if len(result.Messages) == 0 {
			return nil
		}
		oldest := result.Messages[len(result.Messages)-1].ID
		// Pages are newest first, replay them oldest first.
		for i := len(result.Messages) - 1; i >= 0; i-- {
			if m := result.Messages[i]; m.ID > last {
				c.dispatch(domain.ChatEnvelope(m))
			}
		}
		if oldest <= last+1 || page*max(result.Limit, 1) >= result.Total {
			return nil
		}
	}
}

// Send pushes a chat message on the live connection.
func (c *Client) Send(payload domain.ChatSendPayload) error {
	frame, err := protocol.Encode(domain.Envelope{Type: domain.EnvelopeChat, Payload: payload})
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return errors.ErrNotConnected
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

// WebSocketURL derives the socket address from an http(s) backend URL.
func WebSocketURL(backendURL, path string) string {
	switch {
	case strings.HasPrefix(backendURL, "https://"):
		backendURL = "wss://" + strings.TrimPrefix(backendURL, "https://")
	case strings.HasPrefix(backendURL, "http://"):
		backendURL = "ws://" + strings.TrimPrefix(backendURL, "http://")
	}
	return strings.TrimRight(backendURL, "/") + path
}
