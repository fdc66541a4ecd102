package channel

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const closeGrace = time.Second

// ErrUnsupportedFrame is returned by a websocket Conn when the peer sends
// anything other than a text frame. Relay payloads are always text.
var ErrUnsupportedFrame = errors.New("unsupported websocket frame type")

// wsConn adapts a gorilla websocket to Conn. gorilla allows one concurrent
// reader and one concurrent writer, which is how the hub uses it.
type wsConn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration
	closeCode    atomic.Int32
	closeOnce    sync.Once
	closeErr     error
}

// NewWebsocketConn wraps ws. A zero writeTimeout disables write deadlines.
func NewWebsocketConn(ws *websocket.Conn, writeTimeout time.Duration) Conn {
	c := &wsConn{ws: ws, writeTimeout: writeTimeout}
	c.closeCode.Store(websocket.CloseNormalClosure)
	return c
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	mt, data, err := c.ws.ReadMessage()
	if err != nil {
		return nil, err
	}
	if mt != websocket.TextMessage {
		c.closeCode.Store(websocket.CloseUnsupportedData)
		return nil, ErrUnsupportedFrame
	}
	return data, nil
}

func (c *wsConn) WriteMessage(data []byte) error {
	if c.writeTimeout > 0 {
		if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return err
		}
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(int(c.closeCode.Load()), "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace))
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}
