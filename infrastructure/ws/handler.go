package ws

import (
	"chat-relay/auth"
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/observability"
	"chat-relay/protocol"
	"chat-relay/sink"
	"context"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

type Config struct {
	AllowedOrigins []string
	MaxFrameBytes  int64
	InboundRate    float64
	InboundBurst   int
	Connection     sink.Config
}

// Handler upgrades authenticated requests and serves one delivery channel
// per socket. Connections live as long as the peer or ctx, whichever ends first.
// Upgraded sockets are hijacked from net/http, so http.Server.Shutdown does not
// wait for them: Wait does.
type Handler struct {
	ctx           context.Context
	authenticator *auth.Authenticator
	registry      contract.IRegistry
	router        contract.IRouter
	monitor       *observability.MonitoringManager
	config        Config
	upgrader      websocket.Upgrader
	log           *slog.Logger
	connections   sync.WaitGroup
}

func NewHandler(ctx context.Context, authenticator *auth.Authenticator, registry contract.IRegistry,
	router contract.IRouter, monitor *observability.MonitoringManager, config Config, log *slog.Logger) *Handler {
	h := &Handler{
		ctx:           ctx,
		authenticator: authenticator,
		registry:      registry,
		router:        router,
		monitor:       monitor,
		config:        config,
		log:           log,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin:      h.checkOrigin,
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.config.AllowedOrigins) == 0 || slices.Contains(h.config.AllowedOrigins, "*") {
		return true
	}
	return slices.Contains(h.config.AllowedOrigins, origin)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Authenticate before upgrading: a rejected credential never becomes a connection
	identity, err := h.authenticator.FromQuery(r)
	if err != nil {
		h.log.Debug("Handshake rejected", "remote", r.RemoteAddr, "error", err)
		http.Error(w, "invalid or expired token", http.StatusUnauthorized)
		return
	}
	if h.ctx.Err() != nil {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	// Counted before the hijack, while http.Server.Shutdown still tracks the request
	h.connections.Add(1)
	defer h.connections.Done()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("Upgrade failed", "identity", identity.String(), "error", err)
		return
	}

	connection := sink.NewConnection(identity, NewWire(conn, h.config.MaxFrameBytes), h.config.Connection, h.monitor, h.log)
	h.registry.Register(connection)
	defer h.registry.Unregister(connection)
	h.log.Info("Connection opened", "identity", identity.String(), "connection_id", connection.ID().String())

	limiter := rate.NewLimiter(rate.Limit(h.config.InboundRate), h.config.InboundBurst)
	connection.Serve(h.ctx, h.inbound(limiter))
	h.log.Info("Connection closed",
		"identity", identity.String(),
		"connection_id", connection.ID().String(),
		"duration", time.Since(connection.CreatedAt()).Truncate(time.Millisecond).String())
}

// Wait blocks until every upgraded connection has been served, including the
// inbound frame each one was processing when it was closed.
func (h *Handler) Wait() {
	h.connections.Wait()
}

// inbound handles the frames of one connection, in arrival order.
func (h *Handler) inbound(limiter *rate.Limiter) sink.InboundHandler {
	return func(ctx context.Context, connection *sink.Connection, frame []byte) {
		if !limiter.Allow() {
			h.reject(connection, errors.ErrRateLimited)
			return
		}
		payload, err := protocol.DecodeInbound(frame)
		if err != nil {
			observability.InboundRejected.WithLabelValues(errors.Code(err)).Inc()
			h.log.Debug("Dropping inbound frame",
				"connection_id", connection.ID().String(), "error", err)
			return
		}
		if _, err = h.router.HandleInboundChat(ctx, connection.Identity(), payload); err != nil {
			h.reject(connection, err)
		}
	}
}

// reject answers the originating connection only.
func (h *Handler) reject(connection *sink.Connection, err error) {
	code := errors.Code(err)
	observability.InboundRejected.WithLabelValues(code).Inc()
	if h.monitor != nil {
		h.monitor.IncrErrorCount()
	}
	if enqueueErr := connection.Enqueue(domain.ErrorEnvelope(code, errorMessage(code, err))); enqueueErr != nil {
		h.log.Debug("Unable to send error envelope", "connection_id", connection.ID().String(), "error", enqueueErr)
	}
}

func errorMessage(code string, err error) string {
	switch code {
	case "persistence_failure":
		return "message could not be saved, please retry"
	case "internal":
		return "internal error"
	default:
		return err.Error()
	}
}
