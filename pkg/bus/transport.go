package bus

import (
	"context"
	"time"
)

const (
	// DefaultReconnectDelay is the fixed wait between reconnect attempts after
	// a transport is lost.
	DefaultReconnectDelay = 5 * time.Second

	// DefaultHeartbeat is the heartbeat interval used in each direction.
	DefaultHeartbeat = 4 * time.Second
)

// Destination names an outbound message kind. Each transport maps it to its
// own addressing scheme.
type Destination int

const (
	// DestinationSubscribe receives the subscribe-intent sent once per board subscription.
	DestinationSubscribe Destination = iota

	// DestinationCardMove receives card-move broadcasts.
	DestinationCardMove
)

func (d Destination) String() string {
	switch d {
	case DestinationSubscribe:
		return "subscribe"
	case DestinationCardMove:
		return "card-move"
	default:
		return "unknown"
	}
}

// Transport is one live connection to the message bus.
// Implementations must be safe for concurrent use.
type Transport interface {
	// Subscribe opens the topic for a board. Raw payloads arrive on the
	// returned subscription in delivery order.
	Subscribe(ctx context.Context, boardID int64) (TopicSubscription, error)

	// Send publishes a message to a board-scoped destination.
	Send(ctx context.Context, boardID int64, dest Destination, body []byte) error

	// Done is closed when the connection is lost.
	Done() <-chan struct{}

	// Close tears the connection down. Safe to call more than once.
	Close() error
}

// TopicSubscription delivers raw payloads for one board topic.
type TopicSubscription interface {
	// Messages is closed when the subscription ends.
	Messages() <-chan []byte

	// Close ends the subscription. Safe to call more than once.
	Close() error
}

// DialFunc establishes a Transport authenticated with the bearer credential.
type DialFunc func(ctx context.Context, credential string) (Transport, error)
