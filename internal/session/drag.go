package session

import (
	"context"

	"github.com/freudmarin/TaskBoardApp/internal/api"
	"github.com/freudmarin/TaskBoardApp/internal/reconciler"
	"github.com/freudmarin/TaskBoardApp/pkg/board"
	"github.com/sirupsen/logrus"
)

// StartDrag begins dragging a card.
func (s *Session) StartDrag(cardID int64) error {
	return s.call(func() error {
		return s.recon.Start(cardID)
	})
}

// DragOver moves the dragged card under target. It reports whether the board
// changed. Nothing is sent to the server.
func (s *Session) DragOver(target reconciler.Target) (bool, error) {
	var moved bool
	err := s.call(func() error {
		var err error
		moved, err = s.recon.Over(target)
		if moved {
			s.changed()
		}
		return err
	})
	return moved, err
}

// CancelDrag abandons the gesture. The board is reloaded so speculative moves
// are discarded.
func (s *Session) CancelDrag() error {
	return s.call(func() error {
		if s.recon.State() != reconciler.Dragging {
			return reconciler.ErrNotDragging
		}
		s.recon.Cancel()
		s.deferred = false
		s.refetch("drag cancelled")
		return nil
	})
}

// Drop ends the gesture on target. The placement is applied locally at once;
// the commit runs in the background and its result arrives on the returned
// channel. A rejected commit is corrected by reloading the board.
func (s *Session) Drop(target reconciler.Target) (<-chan DropResult, error) {
	result := make(chan DropResult, 1)
	err := s.call(func() error {
		intent, err := s.recon.DropIntent(target)
		if err != nil {
			s.settle()
			return err
		}
		s.changed()
		if !intent.Changed {
			result <- DropResult{Outcome: reconciler.Unchanged}
			s.settle()
			return nil
		}
		s.inFlightMoves++
		go s.commit(intent, result)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Session) commit(intent reconciler.Intent, result chan<- DropResult) {
	log := s.log.WithFields(logrus.Fields{
		"card_id":  intent.CardID,
		"list_id":  intent.ListID,
		"position": intent.Position,
	})

	outcome, snapshot, err := reconciler.Commit(s.ctx, s.boardID, intent, apiMover{s.cfg.API}, apiMover{s.cfg.API}, log)
	if outcome == reconciler.Committed && s.cfg.BroadcastMoves && s.cfg.Bus != nil {
		if perr := s.cfg.Bus.PublishCardMove(s.ctx, s.boardID, intent.CardID, intent.ListID, intent.Position); perr != nil {
			log.WithError(perr).Debug("Card move broadcast not sent")
		}
	}

	posted := s.post(func() {
		s.inFlightMoves--
		switch {
		case outcome == reconciler.Committed:
			log.Debug("Move committed")
		case snapshot != nil:
			s.deferred = false
			s.adopt(snapshot)
		default:
			s.log.WithError(err).Warn("Board reload after rejected move failed")
			s.deferred = true
		}
		s.settle()
	})
	if !posted {
		err = ErrClosed
	}
	result <- DropResult{Outcome: outcome, Err: err}
}

// apiMover runs reconciler commits against the persistence API.
type apiMover struct {
	api API
}

func (m apiMover) MoveCard(ctx context.Context, cardID, newListID int64, newPosition int) error {
	_, err := m.api.MoveCard(ctx, cardID, api.MoveRequest{
		NewListID:   newListID,
		NewPosition: newPosition,
	})
	return err
}

func (m apiMover) FetchBoard(ctx context.Context, boardID int64) (*board.Board, error) {
	return m.api.GetBoard(ctx, boardID)
}
