package sandbox

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/freudmarin/TaskBoardApp/internal/api"
	"github.com/freudmarin/TaskBoardApp/pkg/board"
)

// ErrNotFound is returned for unknown boards, lists, cards and users.
var ErrNotFound = errors.New("not found")

// User is a sandbox account.
type User struct {
	ID       int64
	Username string
	Password string
	Email    string
}

// Store is the in-memory state behind the sandbox server. Every board is held
// in a board.Model so server-side moves follow the same ordering rules the
// client applies. Safe for concurrent use.
type Store struct {
	mu        sync.Mutex
	boards    map[int64]*board.Model
	listBoard map[int64]int64
	cardBoard map[int64]int64
	activity  map[int64][]*api.Activity
	users     map[string]User
	nextID    int64
	now       func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		boards:    make(map[int64]*board.Model),
		listBoard: make(map[int64]int64),
		cardBoard: make(map[int64]int64),
		activity:  make(map[int64][]*api.Activity),
		users:     make(map[string]User),
		now:       time.Now,
	}
}

// AddUser registers an account. A zero ID is assigned.
func (s *Store) AddUser(u User) User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == 0 {
		u.ID = s.allocLocked()
	} else {
		s.bumpLocked(u.ID)
	}
	s.users[u.Username] = u
	return u
}

// Authenticate checks a username and password.
func (s *Store) Authenticate(username, password string) (User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok || u.Password != password {
		return User{}, false
	}
	return u, true
}

// Seed stores a complete board as given. IDs must be set and unused.
func (s *Store) Seed(b *board.Board) error {
	if err := board.ValidateBoard(b); err != nil {
		return fmt.Errorf("invalid seed board: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.boards[b.ID]; exists {
		return fmt.Errorf("board %d already exists", b.ID)
	}
	s.bumpLocked(b.ID)
	for _, l := range b.Lists {
		s.listBoard[l.ID] = b.ID
		s.bumpLocked(l.ID)
		for _, c := range l.Cards {
			s.cardBoard[c.ID] = b.ID
			s.bumpLocked(c.ID)
		}
	}
	s.boards[b.ID] = board.NewModel(b)
	return nil
}

// Boards returns every board that is not archived, ordered by ID.
func (s *Store) Boards() []*board.Board {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*board.Board{}
	for _, m := range s.boards {
		b := m.Board()
		if !b.Archived {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Board returns one board with its lists and cards.
func (s *Store) Board(boardID int64) (*board.Board, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.modelLocked(boardID)
	if err != nil {
		return nil, err
	}
	return m.Board(), nil
}

// CreateBoard creates an empty board owned by owner.
func (s *Store) CreateBoard(req api.BoardRequest, owner User) *board.Board {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.stamp()
	b := &board.Board{
		ID:            s.allocLocked(),
		Name:          req.Name,
		Description:   req.Description,
		Color:         req.Color,
		OwnerID:       owner.ID,
		OwnerUsername: owner.Username,
		Lists:         []*board.List{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.boards[b.ID] = board.NewModel(b)
	s.recordLocked(b.ID, owner, "BOARD_CREATED", fmt.Sprintf("Board '%s' was created", b.Name))
	return b.Clone()
}

// UpdateBoard replaces a board's details.
func (s *Store) UpdateBoard(boardID int64, req api.BoardRequest, actor User) (*board.Board, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.modelLocked(boardID)
	if err != nil {
		return nil, err
	}
	meta := m.Board()
	meta.Name = req.Name
	meta.Description = req.Description
	meta.Color = req.Color
	meta.UpdatedAt = s.stamp()
	if err := m.UpdateBoardMeta(meta); err != nil {
		return nil, err
	}
	s.recordLocked(boardID, actor, "BOARD_UPDATED", fmt.Sprintf("Board '%s' was updated", meta.Name))
	return m.Board(), nil
}

// ArchiveBoard hides a board from Boards.
func (s *Store) ArchiveBoard(boardID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.modelLocked(boardID)
	if err != nil {
		return err
	}
	meta := m.Board()
	meta.Archived = true
	meta.UpdatedAt = s.stamp()
	return m.UpdateBoardMeta(meta)
}

// Activity returns a board's activity log, newest first.
func (s *Store) Activity(boardID int64) ([]*api.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.modelLocked(boardID); err != nil {
		return nil, err
	}
	log := s.activity[boardID]
	out := make([]*api.Activity, 0, len(log))
	for i := len(log) - 1; i >= 0; i-- {
		out = append(out, log[i])
	}
	return out, nil
}

// Lists returns a board's lists ordered by position.
func (s *Store) Lists(boardID int64) ([]*board.List, error) {
	b, err := s.Board(boardID)
	if err != nil {
		return nil, err
	}
	return b.SortedLists(), nil
}

// List returns one list.
func (s *Store) List(listID int64) (*board.List, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.modelForListLocked(listID)
	if err != nil {
		return nil, err
	}
	l, _ := m.List(listID)
	return l, nil
}

// CreateList adds a list. Without a position it goes last.
func (s *Store) CreateList(req api.ListRequest, actor User) (*board.List, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.modelLocked(req.BoardID)
	if err != nil {
		return nil, err
	}
	now := s.stamp()
	l := &board.List{
		ID:        s.allocLocked(),
		BoardID:   req.BoardID,
		Name:      req.Name,
		Position:  len(m.Board().Lists),
		Cards:     []*board.Card{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if req.Position != nil {
		l.Position = *req.Position
	}
	if err := m.AddList(l); err != nil {
		return nil, err
	}
	s.listBoard[l.ID] = req.BoardID
	s.recordLocked(req.BoardID, actor, "LIST_CREATED", fmt.Sprintf("List '%s' was created", l.Name))
	out, _ := m.List(l.ID)
	return out, nil
}

// UpdateList renames or repositions a list.
func (s *Store) UpdateList(listID int64, req api.ListRequest, actor User) (*board.List, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.modelForListLocked(listID)
	if err != nil {
		return nil, err
	}
	l, _ := m.List(listID)
	l.Name = req.Name
	if req.Position != nil {
		l.Position = *req.Position
	}
	l.UpdatedAt = s.stamp()
	if err := m.UpdateList(l); err != nil {
		return nil, err
	}
	s.recordLocked(l.BoardID, actor, "LIST_UPDATED", fmt.Sprintf("List '%s' was updated", l.Name))
	out, _ := m.List(listID)
	return out, nil
}

// DeleteList removes a list with its cards and returns its board.
func (s *Store) DeleteList(listID int64, actor User) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.modelForListLocked(listID)
	if err != nil {
		return 0, err
	}
	l, _ := m.List(listID)
	if err := m.RemoveList(listID); err != nil {
		return 0, err
	}
	for _, c := range l.Cards {
		delete(s.cardBoard, c.ID)
	}
	delete(s.listBoard, listID)
	s.recordLocked(l.BoardID, actor, "LIST_DELETED", fmt.Sprintf("List '%s' was deleted", l.Name))
	return l.BoardID, nil
}

// Cards returns a list's cards in order.
func (s *Store) Cards(listID int64) ([]*board.Card, error) {
	l, err := s.List(listID)
	if err != nil {
		return nil, err
	}
	return l.Cards, nil
}

// Card returns one card.
func (s *Store) Card(cardID int64) (*board.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.modelForCardLocked(cardID)
	if err != nil {
		return nil, err
	}
	c, _, _, _ := m.FindCard(cardID)
	return c, nil
}

// CreateCard adds a card. Without a position it goes last.
func (s *Store) CreateCard(req api.CardRequest, actor User) (*board.Card, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.modelForListLocked(req.ListID)
	if err != nil {
		return nil, 0, err
	}
	now := s.stamp()
	c := &board.Card{
		ID:        s.allocLocked(),
		ListID:    req.ListID,
		Position:  -1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	applyCardRequest(c, req)
	if req.Position != nil {
		c.Position = *req.Position
	}
	if err := m.AddCard(c); err != nil {
		return nil, 0, err
	}
	boardID := m.BoardID()
	s.cardBoard[c.ID] = boardID
	s.recordLocked(boardID, actor, "CARD_CREATED", fmt.Sprintf("Card '%s' was created", c.Title))
	out, _, _, _ := m.FindCard(c.ID)
	return out, boardID, nil
}

// UpdateCard replaces a card's details. List and position are unchanged.
func (s *Store) UpdateCard(cardID int64, req api.CardRequest, actor User) (*board.Card, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.modelForCardLocked(cardID)
	if err != nil {
		return nil, 0, err
	}
	c, _, _, _ := m.FindCard(cardID)
	applyCardRequest(c, req)
	c.UpdatedAt = s.stamp()
	if err := m.UpdateCard(c); err != nil {
		return nil, 0, err
	}
	s.recordLocked(m.BoardID(), actor, "CARD_UPDATED", fmt.Sprintf("Card '%s' was updated", c.Title))
	out, _, _, _ := m.FindCard(cardID)
	return out, m.BoardID(), nil
}

// MoveCard places a card and returns it with the list it left.
func (s *Store) MoveCard(cardID int64, req api.MoveRequest, actor User) (*board.Card, int64, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.modelForCardLocked(cardID)
	if err != nil {
		return nil, 0, 0, err
	}
	if s.listBoard[req.NewListID] != m.BoardID() {
		return nil, 0, 0, fmt.Errorf("list %d: %w", req.NewListID, ErrNotFound)
	}
	_, fromListID, _, _ := m.FindCard(cardID)
	if err := m.MoveCard(cardID, fromListID, req.NewListID, req.NewPosition); err != nil {
		return nil, 0, 0, err
	}
	c, _, _, _ := m.FindCard(cardID)
	s.recordLocked(m.BoardID(), actor, "CARD_MOVED", fmt.Sprintf("Card '%s' was moved", c.Title))
	return c, fromListID, m.BoardID(), nil
}

// DeleteCard removes a card and returns the list and board it was on.
func (s *Store) DeleteCard(cardID int64, actor User) (int64, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.modelForCardLocked(cardID)
	if err != nil {
		return 0, 0, err
	}
	c, listID, _, _ := m.FindCard(cardID)
	if err := m.RemoveCard(cardID); err != nil {
		return 0, 0, err
	}
	delete(s.cardBoard, cardID)
	s.recordLocked(m.BoardID(), actor, "CARD_DELETED", fmt.Sprintf("Card '%s' was deleted", c.Title))
	return listID, m.BoardID(), nil
}

func applyCardRequest(c *board.Card, req api.CardRequest) {
	c.Title = req.Title
	c.Description = req.Description
	if req.Priority != "" {
		c.Priority = req.Priority
	}
	if c.Priority == "" {
		c.Priority = board.PriorityMedium
	}
	c.DueDate = req.DueDate
	if req.AssignedToID != nil {
		id := *req.AssignedToID
		c.AssignedToID = &id
	}
}

func (s *Store) modelLocked(boardID int64) (*board.Model, error) {
	m, ok := s.boards[boardID]
	if !ok {
		return nil, fmt.Errorf("board %d: %w", boardID, ErrNotFound)
	}
	return m, nil
}

func (s *Store) modelForListLocked(listID int64) (*board.Model, error) {
	boardID, ok := s.listBoard[listID]
	if !ok {
		return nil, fmt.Errorf("list %d: %w", listID, ErrNotFound)
	}
	return s.modelLocked(boardID)
}

func (s *Store) modelForCardLocked(cardID int64) (*board.Model, error) {
	boardID, ok := s.cardBoard[cardID]
	if !ok {
		return nil, fmt.Errorf("card %d: %w", cardID, ErrNotFound)
	}
	return s.modelLocked(boardID)
}

func (s *Store) recordLocked(boardID int64, actor User, kind, description string) {
	s.activity[boardID] = append(s.activity[boardID], &api.Activity{
		ID:           s.allocLocked(),
		BoardID:      boardID,
		UserID:       actor.ID,
		Username:     actor.Username,
		ActivityType: kind,
		Description:  description,
		CreatedAt:    s.stamp(),
	})
}

func (s *Store) allocLocked() int64 {
	s.nextID++
	return s.nextID
}

func (s *Store) bumpLocked(id int64) {
	if id > s.nextID {
		s.nextID = id
	}
}

func (s *Store) stamp() *board.Timestamp {
	return &board.Timestamp{Time: s.now().UTC()}
}
