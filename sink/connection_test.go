package sink

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/protocol"
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

// memoryWire is an in-process Wire. Frames pushed into inbound are read by
// the connection; frames written by the connection are collected.
type memoryWire struct {
	inbound chan []byte
	closed  chan struct{}
	once    sync.Once

	mu      sync.Mutex
	written [][]byte
}

func newMemoryWire() *memoryWire {
	return &memoryWire{inbound: make(chan []byte, 16), closed: make(chan struct{})}
}

func (w *memoryWire) ReadFrame() ([]byte, error) {
	select {
	case frame := <-w.inbound:
		return frame, nil
	case <-w.closed:
		return nil, io.EOF
	}
}

func (w *memoryWire) WriteFrame(frame []byte) error {
	select {
	case <-w.closed:
		return io.ErrClosedPipe
	default:
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.written = append(w.written, frame)
	return nil
}

func (w *memoryWire) Ping() error                      { return nil }
func (w *memoryWire) SetReadDeadline(time.Time) error  { return nil }
func (w *memoryWire) SetWriteDeadline(time.Time) error { return nil }
func (w *memoryWire) SetPongHandler(func())            {}

func (w *memoryWire) Close() error {
	w.once.Do(func() { close(w.closed) })
	return nil
}

func (w *memoryWire) frames() [][]byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([][]byte(nil), w.written...)
}

var config = Config{BufferSize: 4, WriteTimeout: time.Second, PongTimeout: time.Minute}

func newTestConnection(wire Wire, bufferSize int) *Connection {
	cfg := config
	cfg.BufferSize = bufferSize
	alice := domain.NewIdentity(domain.KindUser, "alice")
	return NewConnection(alice, wire, cfg, nil, logs.GetLoggerFromLevel(slog.LevelDebug))
}

func chat(id int64) domain.Envelope {
	return domain.ChatEnvelope(domain.Message{ID: id, ConversationID: "c1", Content: "hello"})
}

func TestConnection_Writes_In_Enqueue_Order(t *testing.T) {
	req := require.New(t)
	wire := newMemoryWire()
	connection := newTestConnection(wire, 64)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go connection.Serve(ctx, func(context.Context, *Connection, []byte) {})

	for id := int64(1); id <= 50; id++ {
		req.NoError(connection.Enqueue(chat(id)))
	}

	req.Eventually(func() bool { return len(wire.frames()) == 50 }, time.Second, 5*time.Millisecond)
	for i, frame := range wire.frames() {
		env, err := protocol.DecodeOutbound(frame)
		req.NoError(err)
		req.Equal(int64(i+1), env.Payload.(domain.Message).ID)
	}
}

func TestConnection_Overflow_Closes_Only_Slow_Connection(t *testing.T) {
	req := require.New(t)

	// Given a connection whose writer never drains
	slow := newTestConnection(newMemoryWire(), 2)
	fastWire := newMemoryWire()
	fast := newTestConnection(fastWire, 2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go fast.Serve(ctx, func(context.Context, *Connection, []byte) {})

	// When more envelopes than the queue holds are pushed
	req.NoError(slow.Enqueue(chat(1)))
	req.NoError(slow.Enqueue(chat(2)))
	err := slow.Enqueue(chat(3))

	// Then the slow connection is closed
	req.ErrorIs(err, errors.ErrQueueOverflow)
	req.ErrorIs(err, errors.ErrDelivery)
	select {
	case <-slow.Done():
	default:
		req.Fail("slow connection should be closed")
	}
	req.ErrorIs(slow.Enqueue(chat(4)), errors.ErrConnectionClosed)

	// And the other connection keeps receiving
	req.NoError(fast.Enqueue(chat(1)))
	req.Eventually(func() bool { return len(fastWire.frames()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestConnection_Reads_Frames_In_Order_Until_Peer_Leaves(t *testing.T) {
	req := require.New(t)
	wire := newMemoryWire()
	connection := newTestConnection(wire, 4)
	before := connection.LastActivity()

	var mu sync.Mutex
	var received []string
	served := make(chan struct{})
	go func() {
		connection.Serve(context.Background(), func(_ context.Context, c *Connection, frame []byte) {
			mu.Lock()
			defer mu.Unlock()
			received = append(received, string(frame))
		})
		close(served)
	}()

	wire.inbound <- []byte("one")
	wire.inbound <- []byte("two")
	wire.inbound <- []byte("three")
	req.Eventually(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 3
	}, time.Second, 5*time.Millisecond)
	req.Equal([]string{"one", "two", "three"}, received)
	req.False(connection.LastActivity().Before(before))

	// When the peer goes away Serve returns with the connection closed
	_ = wire.Close()
	req.Eventually(func() bool {
		select {
		case <-served:
			return true
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
	req.ErrorIs(connection.Enqueue(chat(1)), errors.ErrConnectionClosed)
}

func TestConnection_Context_Cancel_Stops_Serve(t *testing.T) {
	req := require.New(t)
	connection := newTestConnection(newMemoryWire(), 4)
	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan struct{})
	go func() {
		connection.Serve(ctx, func(context.Context, *Connection, []byte) {})
		close(served)
	}()

	cancel()
	select {
	case <-served:
	case <-time.After(time.Second):
		req.Fail("serve should return after cancel")
	}
	connection.Close()
}

// stalledWire blocks in Close until released, like a socket whose peer
// stopped reading while a write holds it.
type stalledWire struct {
	*memoryWire
	release chan struct{}
}

func (w *stalledWire) Close() error {
	<-w.release
	return w.memoryWire.Close()
}

func TestConnection_Overflow_Does_Not_Wait_For_Stalled_Wire(t *testing.T) {
	req := require.New(t)
	wire := &stalledWire{memoryWire: newMemoryWire(), release: make(chan struct{})}
	slow := newTestConnection(wire, 1)
	req.NoError(slow.Enqueue(chat(1)))

	start := time.Now()
	err := slow.Enqueue(chat(2))
	req.ErrorIs(err, errors.ErrQueueOverflow)
	req.Less(time.Since(start), 100*time.Millisecond)
	select {
	case <-slow.Done():
	default:
		req.Fail("slow connection should be closed")
	}
	req.ErrorIs(slow.Enqueue(chat(3)), errors.ErrConnectionClosed)

	// The socket is shut once the stalled write gives up
	close(wire.release)
	req.Eventually(func() bool {
		select {
		case <-wire.closed:
			return true
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}
