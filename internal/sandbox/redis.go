package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/freudmarin/TaskBoardApp/pkg/bus"
	"github.com/freudmarin/TaskBoardApp/pkg/bus/redisbus"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisPublisher publishes envelopes on the board channels redisbus clients
// subscribe to.
type RedisPublisher struct {
	rdb    *redis.Client
	prefix string
	log    logrus.FieldLogger
}

// NewRedisPublisher creates a publisher. An empty prefix means redisbus.DefaultPrefix.
func NewRedisPublisher(rdb *redis.Client, prefix string, log logrus.FieldLogger) *RedisPublisher {
	if prefix == "" {
		prefix = redisbus.DefaultPrefix
	}
	if log == nil {
		log = logrus.WithField("component", "sandbox-relay")
	}
	return &RedisPublisher{rdb: rdb, prefix: prefix, log: log}
}

// Publish sends payload to the board's topic channel.
func (p *RedisPublisher) Publish(ctx context.Context, boardID int64, payload []byte) error {
	channel := redisbus.BoardChannel(p.prefix, boardID)
	if err := p.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	return nil
}

type cardMoveBody struct {
	CardID      int64 `json:"cardId"`
	NewListID   int64 `json:"newListId"`
	NewPosition int   `json:"newPosition"`
}

// Relay answers client-sent messages until ctx is cancelled. A subscribe
// intent is acknowledged with SUBSCRIPTION_ACK on the board topic and a
// card-move message is rebroadcast as CARD_MOVE_BROADCAST.
//
// ready, if non-nil, is closed once the relay is listening.
func (p *RedisPublisher) Relay(ctx context.Context, ready chan<- struct{}) error {
	pubsub := p.rdb.PSubscribe(ctx,
		p.prefix+":board:*:"+bus.DestinationSubscribe.String(),
		p.prefix+":board:*:"+bus.DestinationCardMove.String(),
	)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe relay channels: %w", err)
	}
	if ready != nil {
		close(ready)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			p.handle(ctx, msg.Channel, []byte(msg.Payload))
		}
	}
}

func (p *RedisPublisher) handle(ctx context.Context, channel string, payload []byte) {
	boardID, dest, ok := p.parseChannel(channel)
	if !ok {
		p.log.WithField("channel", channel).Debug("Ignoring message on unexpected channel")
		return
	}

	env := bus.Envelope{BoardID: &boardID}
	switch dest {
	case bus.DestinationSubscribe.String():
		env.Type = bus.TypeSubscriptionAck
		env.Message = fmt.Sprintf("Subscribed to board %d", boardID)
	case bus.DestinationCardMove.String():
		var body cardMoveBody
		if err := json.Unmarshal(payload, &body); err != nil {
			p.log.WithError(err).WithField("board_id", boardID).Warn("Dropping malformed card-move message")
			return
		}
		env.Type = bus.TypeCardMoveBroadcast
		env.NewListID = &body.NewListID
		env.NewPosition = &body.NewPosition
	default:
		return
	}

	out, err := json.Marshal(&env)
	if err != nil {
		p.log.WithError(err).Warn("Failed to encode relay reply")
		return
	}
	if err := p.Publish(ctx, boardID, out); err != nil {
		p.log.WithError(err).Warn("Failed to publish relay reply")
	}
}

// parseChannel splits {prefix}:board:{id}:{dest}.
func (p *RedisPublisher) parseChannel(channel string) (int64, string, bool) {
	rest, ok := strings.CutPrefix(channel, p.prefix+":board:")
	if !ok {
		return 0, "", false
	}
	idPart, dest, ok := strings.Cut(rest, ":")
	if !ok {
		return 0, "", false
	}
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil {
		return 0, "", false
	}
	return id, dest, true
}
