package bus

import (
	"encoding/json"
	"fmt"

	"github.com/freudmarin/TaskBoardApp/pkg/board"
)

// EventType is the wire type tag of an inbound envelope.
type EventType string

const (
	TypeCardCreated       EventType = "CARD_CREATED"
	TypeCardUpdated       EventType = "CARD_UPDATED"
	TypeCardDeleted       EventType = "CARD_DELETED"
	TypeCardMoved         EventType = "CARD_MOVED"
	TypeCardMoveBroadcast EventType = "CARD_MOVE_BROADCAST"
	TypeListCreated       EventType = "LIST_CREATED"
	TypeListUpdated       EventType = "LIST_UPDATED"
	TypeListDeleted       EventType = "LIST_DELETED"
	TypeSubscriptionAck   EventType = "SUBSCRIPTION_ACK"
)

// Known reports whether the type is one of the recognized envelope kinds.
func (t EventType) Known() bool {
	switch t {
	case TypeCardCreated, TypeCardUpdated, TypeCardDeleted,
		TypeCardMoved, TypeCardMoveBroadcast,
		TypeListCreated, TypeListUpdated, TypeListDeleted,
		TypeSubscriptionAck:
		return true
	default:
		return false
	}
}

// Envelope is the raw shape of a message broadcast on a board topic.
type Envelope struct {
	Type      EventType       `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp json.RawMessage `json:"timestamp,omitempty"`
	UserID    *int64          `json:"userId,omitempty"`
	Username  string          `json:"username,omitempty"`
	BoardID   *int64          `json:"boardId,omitempty"`

	// Present only on SUBSCRIPTION_ACK and CARD_MOVE_BROADCAST.
	Message     string `json:"message,omitempty"`
	NewListID   *int64 `json:"newListId,omitempty"`
	NewPosition *int   `json:"newPosition,omitempty"`
}

// Header carries the fields common to every event.
type Header struct {
	Type      EventType
	UserID    *int64
	Username  string
	BoardID   *int64
	Timestamp *board.Timestamp
}

// OriginatedBy reports whether the event names userID as its originator.
// Events without a user id never match.
func (h Header) OriginatedBy(userID int64) bool {
	return h.UserID != nil && *h.UserID == userID
}

// Event is one decoded envelope. The set of implementations is closed:
// CardMoved, CardCreated, CardUpdated, CardDeleted, ListCreated, ListUpdated,
// ListDeleted, SubscriptionAck and Unknown.
type Event interface {
	EventHeader() Header
	isEvent()
}

// CardMoved is a card-move notification. Broadcast marks the
// CARD_MOVE_BROADCAST variant. Card is nil when the envelope had no card payload.
type CardMoved struct {
	Header
	Broadcast   bool
	Card        *board.Card
	FromListID  int64
	ToListID    int64
	NewListID   *int64
	NewPosition *int
}

// CardCreated announces a new card.
type CardCreated struct {
	Header
	Card *board.Card
}

// CardUpdated announces a changed card.
type CardUpdated struct {
	Header
	Card *board.Card
}

// CardDeleted announces a removed card.
type CardDeleted struct {
	Header
	CardID int64
	ListID int64
}

// ListCreated announces a new list.
type ListCreated struct {
	Header
	List *board.List
}

// ListUpdated announces a changed list.
type ListUpdated struct {
	Header
	List *board.List
}

// ListDeleted announces a removed list.
type ListDeleted struct {
	Header
	ListID int64
}

// SubscriptionAck confirms a board subscription.
type SubscriptionAck struct {
	Header
	Message string
}

// Unknown is any envelope with an unrecognized type tag.
type Unknown struct {
	Header
	Data json.RawMessage
}

func (e *CardMoved) EventHeader() Header       { return e.Header }
func (e *CardCreated) EventHeader() Header     { return e.Header }
func (e *CardUpdated) EventHeader() Header     { return e.Header }
func (e *CardDeleted) EventHeader() Header     { return e.Header }
func (e *ListCreated) EventHeader() Header     { return e.Header }
func (e *ListUpdated) EventHeader() Header     { return e.Header }
func (e *ListDeleted) EventHeader() Header     { return e.Header }
func (e *SubscriptionAck) EventHeader() Header { return e.Header }
func (e *Unknown) EventHeader() Header         { return e.Header }

func (*CardMoved) isEvent()       {}
func (*CardCreated) isEvent()     {}
func (*CardUpdated) isEvent()     {}
func (*CardDeleted) isEvent()     {}
func (*ListCreated) isEvent()     {}
func (*ListUpdated) isEvent()     {}
func (*ListDeleted) isEvent()     {}
func (*SubscriptionAck) isEvent() {}
func (*Unknown) isEvent()         {}

// DecodeEnvelope parses a raw bus payload into its Event variant.
//
// Only an undecodable outer envelope or a missing type tag is an error. A
// payload whose data does not match the expected shape still yields the
// variant, with its typed fields left empty; structural events are resolved
// by refetch and do not depend on them.
func DecodeEnvelope(raw []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("envelope has no type")
	}

	h := Header{
		Type:      env.Type,
		UserID:    env.UserID,
		Username:  env.Username,
		BoardID:   env.BoardID,
		Timestamp: decodeTimestamp(env.Timestamp),
	}

	switch env.Type {
	case TypeCardMoved, TypeCardMoveBroadcast:
		ev := &CardMoved{
			Header:      h,
			Broadcast:   env.Type == TypeCardMoveBroadcast,
			NewListID:   env.NewListID,
			NewPosition: env.NewPosition,
		}
		var data struct {
			Card       *board.Card `json:"card"`
			FromListID int64       `json:"fromListId"`
			ToListID   int64       `json:"toListId"`
		}
		if decodeData(env.Data, &data) {
			ev.Card = data.Card
			ev.FromListID = data.FromListID
			ev.ToListID = data.ToListID
		}
		return ev, nil

	case TypeCardCreated:
		ev := &CardCreated{Header: h}
		var card board.Card
		if decodeData(env.Data, &card) {
			ev.Card = &card
		}
		return ev, nil

	case TypeCardUpdated:
		ev := &CardUpdated{Header: h}
		var card board.Card
		if decodeData(env.Data, &card) {
			ev.Card = &card
		}
		return ev, nil

	case TypeCardDeleted:
		ev := &CardDeleted{Header: h}
		var data struct {
			CardID int64 `json:"cardId"`
			ListID int64 `json:"listId"`
		}
		if decodeData(env.Data, &data) {
			ev.CardID = data.CardID
			ev.ListID = data.ListID
		}
		return ev, nil

	case TypeListCreated:
		ev := &ListCreated{Header: h}
		var list board.List
		if decodeData(env.Data, &list) {
			ev.List = &list
		}
		return ev, nil

	case TypeListUpdated:
		ev := &ListUpdated{Header: h}
		var list board.List
		if decodeData(env.Data, &list) {
			ev.List = &list
		}
		return ev, nil

	case TypeListDeleted:
		ev := &ListDeleted{Header: h}
		var data struct {
			ListID int64 `json:"listId"`
			ID     int64 `json:"id"`
		}
		if decodeData(env.Data, &data) {
			ev.ListID = data.ListID
			if ev.ListID == 0 {
				ev.ListID = data.ID
			}
		}
		return ev, nil

	case TypeSubscriptionAck:
		return &SubscriptionAck{Header: h, Message: env.Message}, nil

	default:
		return &Unknown{Header: h, Data: env.Data}, nil
	}
}

func decodeData(data json.RawMessage, v any) bool {
	if len(data) == 0 || string(data) == "null" {
		return false
	}
	return json.Unmarshal(data, v) == nil
}

// decodeTimestamp is lenient: servers may send the timestamp in a layout we
// cannot read, and the event is still usable without it.
func decodeTimestamp(raw json.RawMessage) *board.Timestamp {
	if len(raw) == 0 {
		return nil
	}
	var ts board.Timestamp
	if err := json.Unmarshal(raw, &ts); err != nil || ts.IsZero() {
		return nil
	}
	return &ts
}
