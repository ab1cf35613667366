package stompbus

import (
	"io"
	"net"
	"sync"

	"github.com/gorilla/websocket"
)

// wsConn adapts a WebSocket to the byte stream a STOMP connection expects.
// Inbound messages are concatenated; every Write becomes one text message.
type wsConn struct {
	ws     *websocket.Conn
	reader io.Reader
	wmu    sync.Mutex
}

func newWSConn(ws *websocket.Conn) *wsConn {
	return &wsConn{ws: ws}
}

func (c *wsConn) Read(p []byte) (int, error) {
	for {
		if c.reader == nil {
			_, r, err := c.ws.NextReader()
			if err != nil {
				return 0, err
			}
			c.reader = r
		}
		n, err := c.reader.Read(p)
		if err == io.EOF {
			c.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (c *wsConn) Write(p []byte) (int, error) {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := c.ws.WriteMessage(websocket.TextMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *wsConn) Close() error {
	c.wmu.Lock()
	_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.wmu.Unlock()
	return c.ws.Close()
}

// watchedConn closes done on the first read failure or on Close.
type watchedConn struct {
	io.ReadWriteCloser
	done chan struct{}
	once sync.Once
}

func watch(conn io.ReadWriteCloser) *watchedConn {
	return &watchedConn{ReadWriteCloser: conn, done: make(chan struct{})}
}

func (w *watchedConn) Read(p []byte) (int, error) {
	n, err := w.ReadWriteCloser.Read(p)
	if err != nil {
		w.lost()
	}
	return n, err
}

func (w *watchedConn) Close() error {
	w.lost()
	return w.ReadWriteCloser.Close()
}

func (w *watchedConn) lost() {
	w.once.Do(func() { close(w.done) })
}

// remoteHost extracts the host for the STOMP host header.
func remoteHost(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
