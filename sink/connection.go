package sink

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/observability"
	"chat-relay/protocol"
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

var _ contract.Session = (*Connection)(nil)

// Wire is the framed, bidirectional stream under a connection.
// Reads happen on one goroutine and writes on another; implementations
// don't need to support more concurrency than that.
type Wire interface {
	ReadFrame() ([]byte, error)
	WriteFrame(frame []byte) error
	Ping() error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(handler func())
	Close() error
}

// InboundHandler processes one inbound frame on the reader goroutine.
type InboundHandler func(ctx context.Context, connection *Connection, frame []byte)

type Config struct {
	BufferSize   int
	WriteTimeout time.Duration
	PongTimeout  time.Duration
}

// Connection is the delivery channel of one client stream.
//
// Outbound envelopes go through a bounded queue drained by a single writer,
// so order on the wire is enqueue order. A full queue means the peer can't
// keep up: the connection is closed rather than growing or dropping.
type Connection struct {
	id           uuid.UUID
	identity     domain.Identity
	createdAt    time.Time
	lastActivity atomic.Int64

	wire    Wire
	log     *slog.Logger
	config  Config
	monitor *observability.MonitoringManager

	mu         sync.Mutex
	closed     bool
	queue      chan domain.Envelope
	done       chan struct{}
	wireClosed chan struct{}
	closeOnce  sync.Once
}

func NewConnection(identity domain.Identity, wire Wire, config Config,
	monitor *observability.MonitoringManager, log *slog.Logger) *Connection {
	id := uuid.New()
	c := &Connection{
		id:         id,
		identity:   identity,
		createdAt:  time.Now().UTC(),
		wire:       wire,
		config:     config,
		monitor:    monitor,
		log:        log.With("connection_id", id.String(), "identity", identity.String()),
		queue:      make(chan domain.Envelope, config.BufferSize),
		done:       make(chan struct{}),
		wireClosed: make(chan struct{}),
	}
	c.touch()
	return c
}

func (c *Connection) ID() uuid.UUID             { return c.id }
func (c *Connection) Identity() domain.Identity { return c.identity }
func (c *Connection) CreatedAt() time.Time      { return c.createdAt }
func (c *Connection) Done() <-chan struct{}     { return c.done }
func (c *Connection) Len() int                  { return len(c.queue) }
func (c *Connection) Cap() int                  { return cap(c.queue) }

func (c *Connection) LastActivity() time.Time {
	return time.Unix(0, c.lastActivity.Load()).UTC()
}

func (c *Connection) touch() {
	c.lastActivity.Store(time.Now().UnixNano())
}

// Enqueue never blocks. It fails with ErrConnectionClosed once the connection
// is gone, and closes the connection with ErrQueueOverflow when the queue is full.
func (c *Connection) Enqueue(env domain.Envelope) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.ErrConnectionClosed
	}
	select {
	case c.queue <- env:
		c.mu.Unlock()
		return nil
	default:
	}
	c.mu.Unlock()

	c.log.Warn("Outbound queue full, closing slow connection", "capacity", cap(c.queue))
	observability.DeliveryFailures.WithLabelValues("overflow").Inc()
	if c.monitor != nil {
		c.monitor.IncrOverflows()
	}
	c.Close()
	return errors.ErrQueueOverflow
}

// Close is idempotent and never blocks the caller. Envelopes are refused
// from the moment it returns. Shutting the wire down can take up to a write
// timeout when the peer is stalled, so it happens in the background.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.done)
		go c.closeWire()
	})
}

func (c *Connection) closeWire() {
	defer close(c.wireClosed)
	if err := c.wire.Close(); err != nil {
		c.log.Debug("Closing wire", "error", err)
	}
}

// Serve runs the writer and reader until the peer goes away, ctx is done,
// or the connection is closed. It always returns with the connection and its
// wire closed.
func (c *Connection) Serve(ctx context.Context, handler InboundHandler) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.writePump()
	}()

	stop := context.AfterFunc(ctx, c.Close)
	defer stop()

	c.readPump(ctx, handler)
	c.Close()
	wg.Wait()
	<-c.wireClosed
}

func (c *Connection) readPump(ctx context.Context, handler InboundHandler) {
	_ = c.wire.SetReadDeadline(time.Now().Add(c.config.PongTimeout))
	c.wire.SetPongHandler(func() {
		c.touch()
		_ = c.wire.SetReadDeadline(time.Now().Add(c.config.PongTimeout))
	})
	for {
		frame, err := c.wire.ReadFrame()
		if err != nil {
			select {
			case <-c.done:
			default:
				c.log.Debug("Read loop ended", "error", err)
			}
			return
		}
		select {
		case <-c.done:
			return
		default:
		}
		c.touch()
		_ = c.wire.SetReadDeadline(time.Now().Add(c.config.PongTimeout))
		handler(ctx, c, frame)
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(c.config.PongTimeout * 9 / 10)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case env := <-c.queue:
			frame, err := protocol.Encode(env)
			if err != nil {
				c.log.Error("Unable to encode envelope", "type", env.Type, "error", err)
				continue
			}
			_ = c.wire.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			if err = c.wire.WriteFrame(frame); err != nil {
				c.log.Debug("Write failed, closing connection", "error", err)
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.wire.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			if err := c.wire.Ping(); err != nil {
				c.log.Debug("Ping failed, closing connection", "error", err)
				c.Close()
				return
			}
		}
	}
}
