package session

import (
	"context"
	"errors"

	"github.com/freudmarin/TaskBoardApp/internal/api"
	"github.com/freudmarin/TaskBoardApp/pkg/board"
)

// Each mutation runs its request on the caller's goroutine. On success the
// canonical entity is applied to the model; if that cannot be applied, or the
// request fails, the board is reloaded.

// CreateCard creates a card and adds it to the board.
func (s *Session) CreateCard(ctx context.Context, req api.CardRequest) (*board.Card, error) {
	card, err := s.cfg.API.CreateCard(ctx, req)
	if err != nil {
		return nil, s.rejected("create card", err)
	}
	return card, s.apply("create card", func(m *board.Model) error {
		if _, _, _, exists := m.FindCard(card.ID); exists {
			return m.UpdateCard(card)
		}
		return m.AddCard(card)
	})
}

// UpdateCard replaces a card's details.
func (s *Session) UpdateCard(ctx context.Context, cardID int64, req api.CardRequest) (*board.Card, error) {
	card, err := s.cfg.API.UpdateCard(ctx, cardID, req)
	if err != nil {
		return nil, s.rejected("update card", err)
	}
	return card, s.apply("update card", func(m *board.Model) error {
		return m.UpdateCard(card)
	})
}

// DeleteCard deletes a card.
func (s *Session) DeleteCard(ctx context.Context, cardID int64) error {
	if err := s.cfg.API.DeleteCard(ctx, cardID); err != nil {
		return s.rejected("delete card", err)
	}
	return s.apply("delete card", func(m *board.Model) error {
		return ignoreMissing(m.RemoveCard(cardID))
	})
}

// CreateList creates a list on this board.
func (s *Session) CreateList(ctx context.Context, name string) (*board.List, error) {
	list, err := s.cfg.API.CreateList(ctx, api.ListRequest{Name: name, BoardID: s.boardID})
	if err != nil {
		return nil, s.rejected("create list", err)
	}
	return list, s.apply("create list", func(m *board.Model) error {
		if _, exists := m.List(list.ID); exists {
			return m.UpdateList(list)
		}
		return m.AddList(list)
	})
}

// RenameList changes a list's name.
func (s *Session) RenameList(ctx context.Context, listID int64, name string) (*board.List, error) {
	list, err := s.cfg.API.UpdateList(ctx, listID, api.ListRequest{Name: name, BoardID: s.boardID})
	if err != nil {
		return nil, s.rejected("rename list", err)
	}
	return list, s.apply("rename list", func(m *board.Model) error {
		return m.UpdateList(list)
	})
}

// DeleteList deletes a list and its cards.
func (s *Session) DeleteList(ctx context.Context, listID int64) error {
	if err := s.cfg.API.DeleteList(ctx, listID); err != nil {
		return s.rejected("delete list", err)
	}
	return s.apply("delete list", func(m *board.Model) error {
		return ignoreMissing(m.RemoveList(listID))
	})
}

// UpdateBoard replaces the board's details.
func (s *Session) UpdateBoard(ctx context.Context, req api.BoardRequest) (*board.Board, error) {
	b, err := s.cfg.API.UpdateBoard(ctx, s.boardID, req)
	if err != nil {
		return nil, s.rejected("update board", err)
	}
	return b, s.apply("update board", func(m *board.Model) error {
		return m.UpdateBoardMeta(b)
	})
}

// apply runs fn against the model on the loop.
func (s *Session) apply(op string, fn func(*board.Model) error) error {
	return s.call(func() error {
		if err := fn(s.model); err != nil {
			s.log.WithError(err).WithField("op", op).Warn("Could not apply result locally, reloading board")
			s.refetch(op)
			return nil
		}
		s.changed()
		return nil
	})
}

// rejected schedules a corrective reload and returns err.
func (s *Session) rejected(op string, err error) error {
	s.log.WithError(err).WithField("op", op).Warn("Request rejected, reloading board")
	s.post(func() { s.refetch(op) })
	return err
}

func ignoreMissing(err error) error {
	if errors.Is(err, board.ErrCardNotFound) || errors.Is(err, board.ErrListNotFound) {
		return nil
	}
	return err
}
