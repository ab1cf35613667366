// Package redisbus implements bus.Transport over Redis Pub/Sub.
package redisbus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/freudmarin/TaskBoardApp/pkg/bus"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Option configures a dialer.
type Option func(*dialer)

// WithPrefix sets the channel namespace.
func WithPrefix(prefix string) Option {
	return func(d *dialer) {
		if prefix != "" {
			d.prefix = prefix
		}
	}
}

// WithHeartbeat sets the interval between liveness pings.
func WithHeartbeat(interval time.Duration) Option {
	return func(d *dialer) {
		if interval > 0 {
			d.heartbeat = interval
		}
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
	base      redis.Options
	prefix    string
	heartbeat time.Duration
	log       logrus.FieldLogger
}

// NewDialer returns a bus.DialFunc that connects to the Redis server described
// by base. The credential passed to the DialFunc is used as the Redis password
// when non-empty.
func NewDialer(base *redis.Options, opts ...Option) bus.DialFunc {
	d := &dialer{
		base:      *base,
		prefix:    DefaultPrefix,
		heartbeat: bus.DefaultHeartbeat,
		log:       logrus.WithField("component", "redisbus"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d.dial
}

func (d *dialer) dial(ctx context.Context, credential string) (bus.Transport, error) {
	opts := d.base
	if credential != "" {
		opts.Password = credential
	}

	rdb := redis.NewClient(&opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	t := &Transport{
		rdb:       rdb,
		prefix:    d.prefix,
		heartbeat: d.heartbeat,
		log:       d.log,
		done:      make(chan struct{}),
		stop:      make(chan struct{}),
	}
	go t.keepAlive()
	return t, nil
}

// Transport is one Redis connection pool used as a board message bus.
type Transport struct {
	rdb       *redis.Client
	prefix    string
	heartbeat time.Duration
	log       logrus.FieldLogger

	done     chan struct{}
	doneOnce sync.Once
	stop     chan struct{}
	stopOnce sync.Once
}

var _ bus.Transport = (*Transport)(nil)

// Subscribe opens the board's topic channel. It returns once Redis has
// confirmed the subscription.
func (t *Transport) Subscribe(ctx context.Context, boardID int64) (bus.TopicSubscription, error) {
	channel := BoardChannel(t.prefix, boardID)
	pubsub := t.rdb.Subscribe(ctx, channel)

	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	messages := make(chan []byte, 10)
	subCtx, cancel := context.WithCancel(ctx)

	go func() {
		defer close(messages)
		defer pubsub.Close()

		ch := pubsub.Channel(redis.WithChannelHealthCheckInterval(t.heartbeat))

		for {
			select {
			case <-subCtx.Done():
				return
			case <-t.done:
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case messages <- []byte(msg.Payload):
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &subscription{messages: messages, cancel: cancel}, nil
}

// Send publishes a message to the board-scoped destination channel.
func (t *Transport) Send(ctx context.Context, boardID int64, dest bus.Destination, body []byte) error {
	var channel string
	switch dest {
	case bus.DestinationSubscribe:
		channel = SubscribeChannel(t.prefix, boardID)
	case bus.DestinationCardMove:
		channel = CardMoveChannel(t.prefix, boardID)
	default:
		return fmt.Errorf("unsupported destination: %s", dest)
	}

	if err := t.rdb.Publish(ctx, channel, body).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	return nil
}

// Done is closed when the heartbeat detects that Redis is unreachable.
func (t *Transport) Done() <-chan struct{} {
	return t.done
}

// Close stops the heartbeat and closes the Redis client.
func (t *Transport) Close() error {
	var err error
	t.stopOnce.Do(func() {
		close(t.stop)
		t.markDone()
		err = t.rdb.Close()
	})
	return err
}

func (t *Transport) markDone() {
	t.doneOnce.Do(func() { close(t.done) })
}

// keepAlive pings Redis every heartbeat interval and marks the transport
// done on the first failure.
func (t *Transport) keepAlive() {
	ticker := time.NewTicker(t.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), t.heartbeat)
			err := t.rdb.Ping(ctx).Err()
			cancel()
			if err != nil {
				t.log.WithError(err).Warn("Redis heartbeat failed")
				t.markDone()
				return
			}
		}
	}
}

type subscription struct {
	messages chan []byte
	cancel   context.CancelFunc
}

func (s *subscription) Messages() <-chan []byte {
	return s.messages
}

func (s *subscription) Close() error {
	s.cancel()
	return nil
}
