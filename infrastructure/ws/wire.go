package ws

import (
	"time"

	"github.com/gorilla/websocket"
)

const closeGracePeriod = time.Second

// Wire adapts a gorilla connection to sink.Wire.
type Wire struct {
	conn *websocket.Conn
}

func NewWire(conn *websocket.Conn, maxFrameBytes int64) *Wire {
	if maxFrameBytes > 0 {
		conn.SetReadLimit(maxFrameBytes)
	}
	return &Wire{conn: conn}
}

// ReadFrame returns the next data frame. Control frames are handled by gorilla.
func (w *Wire) ReadFrame() ([]byte, error) {
	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if messageType == websocket.TextMessage || messageType == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (w *Wire) WriteFrame(frame []byte) error {
	return w.conn.WriteMessage(websocket.TextMessage, frame)
}

func (w *Wire) Ping() error {
	return w.conn.WriteMessage(websocket.PingMessage, nil)
}

func (w *Wire) SetReadDeadline(t time.Time) error  { return w.conn.SetReadDeadline(t) }
func (w *Wire) SetWriteDeadline(t time.Time) error { return w.conn.SetWriteDeadline(t) }

func (w *Wire) SetPongHandler(handler func()) {
	w.conn.SetPongHandler(func(string) error {
		handler()
		return nil
	})
}

// Close sends a close frame when possible, then drops the socket.
// WriteControl is safe to call concurrently with the writer.
func (w *Wire) Close() error {
	message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = w.conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(closeGracePeriod))
	return w.conn.Close()
}
