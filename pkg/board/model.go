package board

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrListNotFound is returned when a referenced list is not on the board.
	ErrListNotFound = errors.New("list not found")

	// ErrCardNotFound is returned when a referenced card is not where the caller expects it.
	ErrCardNotFound = errors.New("card not found")

	// ErrDuplicateCard is returned when adding a card whose ID is already on the board.
	ErrDuplicateCard = errors.New("card already exists")

	// ErrDuplicateList is returned when adding a list whose ID is already on the board.
	ErrDuplicateList = errors.New("list already exists")

	// ErrNoBoard is returned by mutations on a model that has not adopted a board yet.
	ErrNoBoard = errors.New("no board loaded")
)

// Model is the in-memory ordered representation of one board.
//
// A Model is owned by a single event loop and is not safe for concurrent use.
// Every exported mutation leaves each list's card positions equal to 0..n-1 in
// sequence order; the reindex happens before the method returns, so no caller
// can observe a half-applied state.
type Model struct {
	board *Board
}

// NewModel creates a model holding a deep copy of the snapshot. A nil snapshot
// yields an empty model that adopts a board on the first ReplaceBoard.
func NewModel(snapshot *Board) *Model {
	m := &Model{}
	if snapshot != nil {
		m.ReplaceBoard(snapshot)
	}
	return m
}

// ReplaceBoard adopts the snapshot wholesale. No diffing is done: the previous
// structure is discarded. Cards are ordered by their server positions so
// sequence order matches position order.
func (m *Model) ReplaceBoard(snapshot *Board) {
	b := snapshot.Clone()
	if b != nil {
		if b.Lists == nil {
			b.Lists = []*List{}
		}
		for _, l := range b.Lists {
			if l.Cards == nil {
				l.Cards = []*Card{}
			}
			sortCards(l.Cards)
		}
	}
	m.board = b
}

// Loaded reports whether the model holds a board.
func (m *Model) Loaded() bool {
	return m.board != nil
}

// BoardID returns the ID of the held board, or 0 if none is loaded.
func (m *Model) BoardID() int64 {
	if m.board == nil {
		return 0
	}
	return m.board.ID
}

// Board returns a deep copy of the current structure.
func (m *Model) Board() *Board {
	return m.board.Clone()
}

// List returns a copy of the list with the given ID.
func (m *Model) List(listID int64) (*List, bool) {
	l := m.findList(listID)
	if l == nil {
		return nil, false
	}
	return l.Clone(), true
}

// FindCard locates a card anywhere on the board and returns a copy of it along
// with its list ID and index in that list's sequence.
func (m *Model) FindCard(cardID int64) (card *Card, listID int64, index int, ok bool) {
	if m.board == nil {
		return nil, 0, -1, false
	}
	for _, l := range m.board.Lists {
		for i, c := range l.Cards {
			if c.ID == cardID {
				return c.Clone(), l.ID, i, true
			}
		}
	}
	return nil, 0, -1, false
}

// CardIDs returns every card ID on the board in ascending order.
func (m *Model) CardIDs() []int64 {
	ids := []int64{}
	if m.board == nil {
		return ids
	}
	for _, l := range m.board.Lists {
		for _, c := range l.Cards {
			ids = append(ids, c.ID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// MoveCard removes the card from the source list, assigns it to the
// destination list, inserts it at destIndex (clamped to [0, len]) and
// reindexes every list that changed.
//
// Applying the same move against the same starting structure always gives the
// same result, but the move is not safe to repeat against a model that has
// already moved: callers decide whether a given event has been applied.
// On error the model is unchanged.
func (m *Model) MoveCard(cardID, sourceListID, destListID int64, destIndex int) error {
	if m.board == nil {
		return ErrNoBoard
	}
	src := m.findList(sourceListID)
	if src == nil {
		return fmt.Errorf("source list %d: %w", sourceListID, ErrListNotFound)
	}
	dst := m.findList(destListID)
	if dst == nil {
		return fmt.Errorf("destination list %d: %w", destListID, ErrListNotFound)
	}
	idx := indexOfCard(src.Cards, cardID)
	if idx < 0 {
		return fmt.Errorf("card %d in list %d: %w", cardID, sourceListID, ErrCardNotFound)
	}

	card := src.Cards[idx]
	src.Cards = append(src.Cards[:idx:idx], src.Cards[idx+1:]...)

	card.ListID = dst.ID
	card.ListName = dst.Name
	dst.Cards = insertCard(dst.Cards, clamp(destIndex, 0, len(dst.Cards)), card)

	reindex(dst.Cards)
	if src != dst {
		reindex(src.Cards)
	}
	return nil
}

// AddCard places a new card in its list. A position inside [0, len] inserts
// there; anything else appends.
func (m *Model) AddCard(card *Card) error {
	if m.board == nil {
		return ErrNoBoard
	}
	if _, _, _, exists := m.FindCard(card.ID); exists {
		return fmt.Errorf("card %d: %w", card.ID, ErrDuplicateCard)
	}
	l := m.findList(card.ListID)
	if l == nil {
		return fmt.Errorf("list %d: %w", card.ListID, ErrListNotFound)
	}
	c := card.Clone()
	c.ListName = l.Name
	pos := c.Position
	if pos < 0 || pos > len(l.Cards) {
		pos = len(l.Cards)
	}
	l.Cards = insertCard(l.Cards, pos, c)
	reindex(l.Cards)
	return nil
}

// UpdateCard replaces a card's fields with the canonical entity. If the entity
// names a different list or position the card is relocated accordingly.
func (m *Model) UpdateCard(card *Card) error {
	if m.board == nil {
		return ErrNoBoard
	}
	_, srcID, _, ok := m.FindCard(card.ID)
	if !ok {
		return fmt.Errorf("card %d: %w", card.ID, ErrCardNotFound)
	}
	dst := m.findList(card.ListID)
	if dst == nil {
		return fmt.Errorf("list %d: %w", card.ListID, ErrListNotFound)
	}
	src := m.findList(srcID)
	idx := indexOfCard(src.Cards, card.ID)
	src.Cards = append(src.Cards[:idx:idx], src.Cards[idx+1:]...)

	c := card.Clone()
	c.ListName = dst.Name
	dst.Cards = insertCard(dst.Cards, clamp(c.Position, 0, len(dst.Cards)), c)

	reindex(dst.Cards)
	if src != dst {
		reindex(src.Cards)
	}
	return nil
}

// RemoveCard deletes a card and closes the gap it leaves.
func (m *Model) RemoveCard(cardID int64) error {
	if m.board == nil {
		return ErrNoBoard
	}
	for _, l := range m.board.Lists {
		if idx := indexOfCard(l.Cards, cardID); idx >= 0 {
			l.Cards = append(l.Cards[:idx:idx], l.Cards[idx+1:]...)
			reindex(l.Cards)
			return nil
		}
	}
	return fmt.Errorf("card %d: %w", cardID, ErrCardNotFound)
}

// AddList appends a list to the board. Its cards are ordered and reindexed.
func (m *Model) AddList(list *List) error {
	if m.board == nil {
		return ErrNoBoard
	}
	if m.findList(list.ID) != nil {
		return fmt.Errorf("list %d: %w", list.ID, ErrDuplicateList)
	}
	l := list.Clone()
	if l.Cards == nil {
		l.Cards = []*Card{}
	}
	for _, c := range l.Cards {
		if _, _, _, exists := m.FindCard(c.ID); exists {
			return fmt.Errorf("card %d: %w", c.ID, ErrDuplicateCard)
		}
		c.ListID = l.ID
		c.ListName = l.Name
	}
	sortCards(l.Cards)
	reindex(l.Cards)
	l.BoardID = m.board.ID
	m.board.Lists = append(m.board.Lists, l)
	return nil
}

// UpdateList applies a list's name and position. Its cards are kept.
func (m *Model) UpdateList(list *List) error {
	if m.board == nil {
		return ErrNoBoard
	}
	l := m.findList(list.ID)
	if l == nil {
		return fmt.Errorf("list %d: %w", list.ID, ErrListNotFound)
	}
	l.Name = list.Name
	l.Position = list.Position
	l.UpdatedAt = cloneTimestamp(list.UpdatedAt)
	for _, c := range l.Cards {
		c.ListName = l.Name
	}
	return nil
}

// RemoveList deletes a list together with its cards.
func (m *Model) RemoveList(listID int64) error {
	if m.board == nil {
		return ErrNoBoard
	}
	for i, l := range m.board.Lists {
		if l.ID == listID {
			m.board.Lists = append(m.board.Lists[:i:i], m.board.Lists[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("list %d: %w", listID, ErrListNotFound)
}

// UpdateBoardMeta applies display metadata from a canonical board entity.
// Lists are not touched.
func (m *Model) UpdateBoardMeta(b *Board) error {
	if m.board == nil {
		return ErrNoBoard
	}
	m.board.Name = b.Name
	m.board.Description = b.Description
	m.board.Color = b.Color
	m.board.Archived = b.Archived
	m.board.UpdatedAt = cloneTimestamp(b.UpdatedAt)
	return nil
}

// Validate checks the structural invariants: unique list and card IDs, every
// card pointing at its owning list, and positions exactly 0..n-1 per list.
func (m *Model) Validate() error {
	if m.board == nil {
		return nil
	}
	return ValidateBoard(m.board)
}

// ValidateBoard checks the structural invariants of a board value.
func ValidateBoard(b *Board) error {
	listsSeen := make(map[int64]bool, len(b.Lists))
	cardsSeen := make(map[int64]int64)
	for _, l := range b.Lists {
		if listsSeen[l.ID] {
			return fmt.Errorf("list %d appears more than once", l.ID)
		}
		listsSeen[l.ID] = true

		for i, c := range l.Cards {
			if owner, dup := cardsSeen[c.ID]; dup {
				return fmt.Errorf("card %d appears in lists %d and %d", c.ID, owner, l.ID)
			}
			cardsSeen[c.ID] = l.ID
			if c.ListID != l.ID {
				return fmt.Errorf("card %d in list %d has listId %d", c.ID, l.ID, c.ListID)
			}
			if c.Position != i {
				return fmt.Errorf("card %d in list %d has position %d at index %d", c.ID, l.ID, c.Position, i)
			}
		}
	}
	return nil
}

func (m *Model) findList(listID int64) *List {
	if m.board == nil {
		return nil
	}
	for _, l := range m.board.Lists {
		if l.ID == listID {
			return l
		}
	}
	return nil
}

func indexOfCard(cards []*Card, cardID int64) int {
	for i, c := range cards {
		if c.ID == cardID {
			return i
		}
	}
	return -1
}

func insertCard(cards []*Card, at int, card *Card) []*Card {
	cards = append(cards, nil)
	copy(cards[at+1:], cards[at:])
	cards[at] = card
	return cards
}

func reindex(cards []*Card) {
	for i, c := range cards {
		c.Position = i
	}
}

func sortCards(cards []*Card) {
	sort.SliceStable(cards, func(i, j int) bool {
		return cards[i].Position < cards[j].Position
	})
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
