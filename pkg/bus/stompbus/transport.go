// Package stompbus implements bus.Transport over STOMP 1.2.
//
// The broker is reached either through a WebSocket endpoint (ws:// or wss://
// URLs) or a raw TCP socket (tcp:// or stomp:// URLs). The bearer credential
// is sent in the Authorization header of the CONNECT frame.
package stompbus

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/freudmarin/TaskBoardApp/pkg/bus"
	"github.com/go-stomp/stomp/v3"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Destination patterns used by the board server.
const (
	topicPattern     = "/topic/board/%d"
	subscribePattern = "/app/board/%d/subscribe"
	cardMovePattern  = "/app/board/%d/card-move"
)

// TopicDestination returns the topic a board's events are broadcast on.
func TopicDestination(boardID int64) string {
	return fmt.Sprintf(topicPattern, boardID)
}

// SendDestination returns the application destination for an outbound message.
func SendDestination(boardID int64, dest bus.Destination) (string, error) {
	switch dest {
	case bus.DestinationSubscribe:
		return fmt.Sprintf(subscribePattern, boardID), nil
	case bus.DestinationCardMove:
		return fmt.Sprintf(cardMovePattern, boardID), nil
	default:
		return "", fmt.Errorf("unsupported destination: %s", dest)
	}
}

// Option configures a dialer.
type Option func(*dialer)

// WithHeartbeat sets the send and receive heartbeat interval.
func WithHeartbeat(interval time.Duration) Option {
	return func(d *dialer) {
		if interval > 0 {
			d.heartbeat = interval
		}
	}
}

// WithHeader adds a header to the WebSocket handshake.
func WithHeader(key, value string) Option {
	return func(d *dialer) {
		d.header.Add(key, value)
	}
}

// WithLogger sets the logger used by transports.
func WithLogger(l logrus.FieldLogger) Option {
	return func(d *dialer) {
		if l != nil {
			d.log = l
		}
	}
}

type dialer struct {
	rawURL    string
	heartbeat time.Duration
	header    http.Header
	log       logrus.FieldLogger
}

// NewDialer returns a bus.DialFunc for the broker at rawURL.
func NewDialer(rawURL string, opts ...Option) bus.DialFunc {
	d := &dialer{
		rawURL:    rawURL,
		heartbeat: bus.DefaultHeartbeat,
		header:    http.Header{},
		log:       logrus.WithField("component", "stompbus"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d.dial
}

func (d *dialer) dial(ctx context.Context, credential string) (bus.Transport, error) {
	u, err := url.Parse(d.rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid broker URL: %w", err)
	}

	var raw io.ReadWriteCloser
	switch u.Scheme {
	case "ws", "wss":
		ws := websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
			Subprotocols:     []string{"v12.stomp", "v11.stomp", "v10.stomp"},
		}
		conn, resp, err := ws.DialContext(ctx, u.String(), d.header)
		if err != nil {
			if resp != nil {
				return nil, fmt.Errorf("websocket handshake failed with status %d: %w", resp.StatusCode, err)
			}
			return nil, fmt.Errorf("websocket dial failed: %w", err)
		}
		raw = newWSConn(conn)
	case "tcp", "stomp":
		var nd net.Dialer
		conn, err := nd.DialContext(ctx, "tcp", u.Host)
		if err != nil {
			return nil, fmt.Errorf("tcp dial failed: %w", err)
		}
		raw = conn
	default:
		return nil, fmt.Errorf("unsupported broker scheme: %q", u.Scheme)
	}

	watched := watch(raw)
	connOpts := []func(*stomp.Conn) error{
		stomp.ConnOpt.HeartBeat(d.heartbeat, d.heartbeat),
		stomp.ConnOpt.Host(remoteHost(u.Host)),
	}
	if credential != "" {
		connOpts = append(connOpts, stomp.ConnOpt.Header("Authorization", "Bearer "+credential))
	}

	conn, err := stomp.Connect(watched, connOpts...)
	if err != nil {
		watched.Close()
		return nil, fmt.Errorf("stomp connect failed: %w", err)
	}

	d.log.WithField("broker", u.Host).Debug("STOMP session established")
	return &Transport{conn: conn, raw: watched, log: d.log}, nil
}

// Transport is one STOMP session used as a board message bus.
type Transport struct {
	conn *stomp.Conn
	raw  *watchedConn
	log  logrus.FieldLogger

	closeOnce sync.Once
}

var _ bus.Transport = (*Transport)(nil)

// Subscribe opens the board topic with automatic acknowledgement.
func (t *Transport) Subscribe(ctx context.Context, boardID int64) (bus.TopicSubscription, error) {
	dest := TopicDestination(boardID)
	sub, err := t.conn.Subscribe(dest, stomp.AckAuto)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", dest, err)
	}

	s := newSubscription(sub.C, func() error {
		if !sub.Active() {
			return nil
		}
		return sub.Unsubscribe()
	}, t.log.WithField("destination", dest))
	go s.pump(ctx)
	return s, nil
}

// Send delivers a JSON body to the board-scoped application destination.
func (t *Transport) Send(ctx context.Context, boardID int64, dest bus.Destination, body []byte) error {
	destination, err := SendDestination(boardID, dest)
	if err != nil {
		return err
	}
	if err := t.conn.Send(destination, "application/json", body); err != nil {
		return fmt.Errorf("failed to send to %s: %w", destination, err)
	}
	return nil
}

// Done is closed when the underlying stream fails or is closed.
func (t *Transport) Done() <-chan struct{} {
	return t.raw.done
}

// Close ends the STOMP session gracefully when possible.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		select {
		case <-t.raw.done:
		default:
			if err := t.conn.Disconnect(); err != nil {
				t.log.WithError(err).Debug("STOMP disconnect failed")
			}
		}
		t.raw.Close()
	})
	return nil
}

type subscription struct {
	frames      <-chan *stomp.Message
	unsubscribe func() error
	log         logrus.FieldLogger

	messages chan []byte
	stop     chan struct{}
	stopOnce sync.Once
}

func newSubscription(frames <-chan *stomp.Message, unsubscribe func() error, log logrus.FieldLogger) *subscription {
	return &subscription{
		frames:      frames,
		unsubscribe: unsubscribe,
		log:         log,
		messages:    make(chan []byte, 10),
		stop:        make(chan struct{}),
	}
}

func (s *subscription) pump(ctx context.Context) {
	defer close(s.messages)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case msg, ok := <-s.frames:
			if !ok {
				return
			}
			if msg.Err != nil {
				s.log.WithError(msg.Err).Debug("Subscription ended")
				return
			}
			select {
			case s.messages <- msg.Body:
			case <-s.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *subscription) Messages() <-chan []byte {
	return s.messages
}

func (s *subscription) Close() error {
	s.stopOnce.Do(func() {
		close(s.stop)
		// Keep the session's read loop moving while the unsubscribe completes.
		go func() {
			for range s.frames {
			}
		}()
		if err := s.unsubscribe(); err != nil {
			s.log.WithError(err).Debug("STOMP unsubscribe failed")
		}
	})
	return nil
}
