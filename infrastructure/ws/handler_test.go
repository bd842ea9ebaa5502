package ws

import (
	"chat-relay/auth"
	"chat-relay/domain"
	"chat-relay/infrastructure/storage"
	"chat-relay/mocks"
	"chat-relay/protocol"
	"chat-relay/runtime"
	"chat-relay/sink"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var (
	alice = domain.NewIdentity(domain.KindUser, "alice")
	acme  = domain.NewIdentity(domain.KindEmployer, "acme")
)

type fixture struct {
	server        *httptest.Server
	authenticator *auth.Authenticator
	registry      *runtime.Registry
	router        *runtime.Router
	store         *storage.Store
	handler       *Handler
}

func setup(t *testing.T, config Config) fixture {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	db, err := badger.Open(storage.Options(t.TempDir(), log))
	require.NoError(t, err)

	store := storage.NewStore(db, log)
	registry := runtime.NewRegistry()
	router := runtime.NewRouter(store, registry, nil, nil, nil, 200, log)
	authenticator := auth.NewAuthenticator([]byte("secret"), "chat-relay")

	ctx, cancel := context.WithCancel(context.Background())
	handler := NewHandler(ctx, authenticator, registry, router, nil, config, log)
	server := httptest.NewServer(handler)
	t.Cleanup(func() {
		cancel()
		server.Close()
		handler.Wait()
		_ = db.Close()
	})
	return fixture{server: server, authenticator: authenticator, registry: registry, router: router, store: store, handler: handler}
}

func defaultConfig() Config {
	return Config{
		MaxFrameBytes: 4096,
		InboundRate:   100,
		InboundBurst:  100,
		Connection:    sink.Config{BufferSize: 16, WriteTimeout: time.Second, PongTimeout: time.Minute},
	}
}

func (f fixture) dial(t *testing.T, identity domain.Identity) *websocket.Conn {
	t.Helper()
	token, err := f.authenticator.GenerateToken(identity, time.Minute)
	require.NoError(t, err)
	conn, resp, err := websocket.DefaultDialer.Dial(f.wsURL(token), nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func (f fixture) wsURL(token string) string {
	u := "ws" + strings.TrimPrefix(f.server.URL, "http")
	if token == "" {
		return u
	}
	return u + "?" + url.Values{auth.TokenQueryParam: {token}}.Encode()
}

func readEnvelope(t *testing.T, conn *websocket.Conn) domain.Envelope {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, frame, err := conn.ReadMessage()
	require.NoError(t, err)
	env, err := protocol.DecodeOutbound(frame)
	require.NoError(t, err)
	return env
}

func chatFrame(conversationID string, recipient domain.Identity, content string) []byte {
	frame, _ := protocol.Encode(domain.Envelope{
		Type: domain.EnvelopeChat,
		Payload: domain.ChatSendPayload{
			ConversationID: conversationID,
			RecipientID:    recipient.ID,
			RecipientType:  recipient.Kind,
			Content:        content,
		},
	})
	return frame
}

func TestHandler_Rejects_Handshake_Without_Valid_Token(t *testing.T) {
	req := require.New(t)
	f := setup(t, defaultConfig())

	for _, token := range []string{"", "not-a-jwt"} {
		_, resp, err := websocket.DefaultDialer.Dial(f.wsURL(token), nil)
		req.ErrorIs(err, websocket.ErrBadHandshake)
		req.Equal(http.StatusUnauthorized, resp.StatusCode)
		_ = resp.Body.Close()
	}
	req.Zero(f.registry.Count())
}

func TestHandler_Chat_Reaches_Both_Participants(t *testing.T) {
	req := require.New(t)
	f := setup(t, defaultConfig())
	conversation, err := f.store.CreateConversation(alice, acme)
	req.NoError(err)

	aliceConn := f.dial(t, alice)
	acmeConn := f.dial(t, acme)
	req.Eventually(func() bool { return f.registry.Count() == 2 }, time.Second, 5*time.Millisecond)

	// A malformed frame is dropped and the connection stays usable
	req.NoError(aliceConn.WriteMessage(websocket.TextMessage, []byte(`{"type":"typing"}`)))
	req.NoError(aliceConn.WriteMessage(websocket.TextMessage, chatFrame(conversation.ID, acme, "Hello, is the position still open?")))

	for _, conn := range []*websocket.Conn{acmeConn, aliceConn} {
		env := readEnvelope(t, conn)
		req.Equal(domain.EnvelopeChat, env.Type)
		message := env.Payload.(domain.Message)
		req.Equal(int64(1), message.ID)
		req.Equal(alice, message.Sender)
		req.Equal("Hello, is the position still open?", message.Content)
	}

	conversation, err = f.store.GetConversation(conversation.ID)
	req.NoError(err)
	req.Equal(1, conversation.UnreadFor(acme))
}

func TestHandler_Error_Envelope_Goes_To_Origin_Only(t *testing.T) {
	req := require.New(t)
	f := setup(t, defaultConfig())
	_, err := f.store.CreateConversation(alice, acme)
	req.NoError(err)

	aliceConn := f.dial(t, alice)
	req.Eventually(func() bool { return f.registry.Count() == 1 }, time.Second, 5*time.Millisecond)

	req.NoError(aliceConn.WriteMessage(websocket.TextMessage, chatFrame("unknown-conversation", acme, "hi")))
	env := readEnvelope(t, aliceConn)
	req.Equal(domain.EnvelopeError, env.Type)
	req.Equal("permission_denied", env.Payload.(domain.ErrorPayload).Code)

	req.NoError(aliceConn.WriteMessage(websocket.TextMessage, chatFrame("unknown-conversation", acme, "   ")))
	env = readEnvelope(t, aliceConn)
	req.Equal("invalid_payload", env.Payload.(domain.ErrorPayload).Code)
}

func TestHandler_Rate_Limits_Inbound_Frames(t *testing.T) {
	req := require.New(t)
	config := defaultConfig()
	config.InboundRate = 0.001
	config.InboundBurst = 1
	f := setup(t, config)
	conversation, err := f.store.CreateConversation(alice, acme)
	req.NoError(err)

	aliceConn := f.dial(t, alice)
	req.NoError(aliceConn.WriteMessage(websocket.TextMessage, chatFrame(conversation.ID, acme, "first")))
	req.NoError(aliceConn.WriteMessage(websocket.TextMessage, chatFrame(conversation.ID, acme, "second")))

	env := readEnvelope(t, aliceConn)
	req.Equal(domain.EnvelopeChat, env.Type)
	env = readEnvelope(t, aliceConn)
	req.Equal(domain.EnvelopeError, env.Type)
	req.Equal("rate_limited", env.Payload.(domain.ErrorPayload).Code)
}

func TestHandler_Unregisters_On_Disconnect(t *testing.T) {
	req := require.New(t)
	f := setup(t, defaultConfig())

	conn := f.dial(t, alice)
	req.Eventually(func() bool { return f.registry.Count() == 1 }, time.Second, 5*time.Millisecond)
	_ = conn.Close()
	req.Eventually(func() bool { return f.registry.Count() == 0 }, time.Second, 5*time.Millisecond)
	req.Empty(f.registry.ConnectionsFor(alice))
}

func TestHandler_Check_Origin(t *testing.T) {
	req := require.New(t)
	h := &Handler{config: Config{AllowedOrigins: []string{"https://jobs.example.com"}}}

	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.True(h.checkOrigin(r))
	r.Header.Set("Origin", "https://jobs.example.com")
	req.True(h.checkOrigin(r))
	r.Header.Set("Origin", "https://evil.example.com")
	req.False(h.checkOrigin(r))
}

func TestHandler_Wait_Lets_Inbound_In_Flight_Complete(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	router := mocks.NewMockIRouter(ctrl)
	authenticator := auth.NewAuthenticator([]byte("secret"), "chat-relay")

	started := make(chan struct{})
	release := make(chan struct{})
	stored := make(chan struct{})
	router.EXPECT().
		HandleInboundChat(gomock.Any(), alice, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ domain.Identity, payload domain.ChatSendPayload) (domain.Message, error) {
			close(started)
			<-release
			close(stored)
			return domain.Message{ID: 1, ConversationID: payload.ConversationID}, nil
		})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	handler := NewHandler(ctx, authenticator, runtime.NewRegistry(), router, nil, defaultConfig(), log)
	server := httptest.NewServer(handler)
	defer server.Close()
	f := fixture{server: server, authenticator: authenticator}

	conn := f.dial(t, alice)
	req.NoError(conn.WriteMessage(websocket.TextMessage, chatFrame("c1", acme, "Are you still hiring?")))
	<-started

	// Given the relay shuts down while the message is being stored
	cancel()
	waited := make(chan struct{})
	go func() {
		handler.Wait()
		close(waited)
	}()

	// Then Wait holds until the store call returned
	select {
	case <-waited:
		req.Fail("Wait returned before the in-flight message was stored")
	case <-time.After(100 * time.Millisecond):
	}
	close(release)
	select {
	case <-waited:
	case <-time.After(2 * time.Second):
		req.Fail("Wait should return once the connection is served")
	}
	select {
	case <-stored:
	default:
		req.Fail("message should have been stored")
	}

	// And no new socket is accepted
	token, err := authenticator.GenerateToken(acme, time.Minute)
	req.NoError(err)
	_, resp, err := websocket.DefaultDialer.Dial(f.wsURL(token), nil)
	req.ErrorIs(err, websocket.ErrBadHandshake)
	req.Equal(http.StatusServiceUnavailable, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestHandler_Stalled_Consumer_Does_Not_Block_Fanout(t *testing.T) {
	req := require.New(t)
	config := defaultConfig()
	config.Connection.BufferSize = 4
	config.Connection.WriteTimeout = 2 * time.Second
	f := setup(t, config)

	// Given a peer that never reads
	_ = f.dial(t, acme)
	req.Eventually(func() bool { return f.registry.Count() == 1 }, time.Second, 5*time.Millisecond)
	stalled := f.registry.ConnectionsFor(acme)[0].(*sink.Connection)

	// When large notifications keep coming until its queue overflows
	text := strings.Repeat("x", 512*1024)
	var worst time.Duration
	for i := 0; i < 100 && !closed(stalled.Done()); i++ {
		start := time.Now()
		_, err := f.router.PublishNotification(context.Background(), acme, text, nil)
		req.NoError(err)
		worst = max(worst, time.Since(start))
	}

	// Then closing it never held up the publisher
	req.True(closed(stalled.Done()), "stalled connection should have been closed")
	req.Less(worst, 500*time.Millisecond)
	req.Eventually(func() bool { return f.registry.Count() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func closed(done <-chan struct{}) bool {
	select {
	case <-done:
		return true
	default:
		return false
	}
}
