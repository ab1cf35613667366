// Package router decides how each inbound board event affects the local board
// model and applies incremental moves.
package router

import (
	"fmt"

	"github.com/freudmarin/TaskBoardApp/pkg/board"
	"github.com/freudmarin/TaskBoardApp/pkg/bus"
	"github.com/sirupsen/logrus"
)

// Action is the routing decision for one event.
type Action int

const (
	// Ignore drops the event without touching the model.
	Ignore Action = iota
	// ApplyMove applies a card move incrementally.
	ApplyMove
	// Refetch replaces the model with a fresh snapshot.
	Refetch
	// Acknowledge records a subscription confirmation.
	Acknowledge
	// Unrecognized drops an event with an unknown type tag.
	Unrecognized
)

func (a Action) String() string {
	switch a {
	case Ignore:
		return "ignore"
	case ApplyMove:
		return "apply-move"
	case Refetch:
		return "refetch"
	case Acknowledge:
		return "acknowledge"
	case Unrecognized:
		return "unrecognized"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Decide maps an event to an action. Events naming localUserID as their
// originator are ignored whatever their type. Delivery identity is not
// tracked: the same event delivered twice gets the same decision twice.
func Decide(ev bus.Event, localUserID int64) Action {
	if ev.EventHeader().OriginatedBy(localUserID) {
		return Ignore
	}

	switch e := ev.(type) {
	case *bus.CardMoved:
		if e.Card == nil {
			return Ignore
		}
		return ApplyMove
	case *bus.CardCreated, *bus.CardUpdated, *bus.CardDeleted,
		*bus.ListCreated, *bus.ListUpdated, *bus.ListDeleted:
		return Refetch
	case *bus.SubscriptionAck:
		return Acknowledge
	default:
		return Unrecognized
	}
}

// Outcome reports what Route did with an event.
type Outcome struct {
	Action Action

	// Applied is set when an ApplyMove changed the model.
	Applied bool

	// NeedsRefetch asks the caller to fetch a snapshot and replace the model.
	// Set for Refetch decisions and for moves that could not be applied.
	NeedsRefetch bool

	// Err is the move failure that caused a fallback refetch.
	Err error
}

// Router applies routing decisions to one board model. It is not safe for
// concurrent use; callers serialise events onto a single goroutine.
type Router struct {
	model       *board.Model
	localUserID int64
	log         logrus.FieldLogger
}

// New creates a router for the model owned by the local user.
func New(model *board.Model, localUserID int64, log logrus.FieldLogger) *Router {
	if log == nil {
		log = logrus.WithField("component", "router")
	}
	return &Router{model: model, localUserID: localUserID, log: log}
}

// Route decides and executes the action for ev.
func (r *Router) Route(ev bus.Event) Outcome {
	action := Decide(ev, r.localUserID)
	h := ev.EventHeader()
	log := r.log.WithFields(logrus.Fields{"type": h.Type, "action": action})

	switch action {
	case ApplyMove:
		return r.applyMove(ev.(*bus.CardMoved), log)
	case Refetch:
		log.Debug("Structural change, refetching board")
		return Outcome{Action: Refetch, NeedsRefetch: true}
	case Acknowledge:
		log.WithField("message", ev.(*bus.SubscriptionAck).Message).Info("Subscription acknowledged")
		return Outcome{Action: Acknowledge}
	case Unrecognized:
		log.Debug("Ignoring unrecognized event")
		return Outcome{Action: Unrecognized}
	default:
		return Outcome{Action: Ignore}
	}
}

func (r *Router) applyMove(ev *bus.CardMoved, log logrus.FieldLogger) Outcome {
	card := ev.Card
	to := ev.ToListID
	if to == 0 {
		to = card.ListID
	}
	from := ev.FromListID

	_, curList, curIndex, found := r.model.FindCard(card.ID)
	if found && curList == to && curIndex == card.Position {
		// Already in place, usually the server's echo of a local commit.
		log.WithField("card_id", card.ID).Debug("Move already applied")
		return Outcome{Action: ApplyMove}
	}
	if from == 0 && found {
		from = curList
	}

	if err := r.model.MoveCard(card.ID, from, to, card.Position); err != nil {
		log.WithError(err).WithField("card_id", card.ID).Warn("Could not apply remote move, refetching board")
		return Outcome{Action: ApplyMove, NeedsRefetch: true, Err: err}
	}
	log.WithFields(logrus.Fields{
		"card_id":  card.ID,
		"from":     from,
		"to":       to,
		"position": card.Position,
	}).Debug("Applied remote move")
	return Outcome{Action: ApplyMove, Applied: true}
}
