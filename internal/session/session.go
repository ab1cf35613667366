// Package session keeps one board view in sync.
//
// A Session owns the board model for a single board and runs one goroutine
// that performs every mutation on it: remote events delivered by the bus,
// drag gestures from the caller, and the results of network calls, which run
// on their own goroutines and post back. Results for a different board or
// arriving after Close are discarded.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/freudmarin/TaskBoardApp/internal/api"
	"github.com/freudmarin/TaskBoardApp/internal/notify"
	"github.com/freudmarin/TaskBoardApp/internal/reconciler"
	"github.com/freudmarin/TaskBoardApp/internal/router"
	"github.com/freudmarin/TaskBoardApp/pkg/board"
	"github.com/freudmarin/TaskBoardApp/pkg/bus"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrClosed is returned by operations on a closed session.
var ErrClosed = errors.New("session closed")

// pruneInterval is how often expired notifications are evicted.
const pruneInterval = time.Second

// API is the part of the persistence API a session uses. *api.Client
// satisfies it.
type API interface {
	GetBoard(ctx context.Context, boardID int64) (*board.Board, error)
	UpdateBoard(ctx context.Context, boardID int64, req api.BoardRequest) (*board.Board, error)
	CreateList(ctx context.Context, req api.ListRequest) (*board.List, error)
	UpdateList(ctx context.Context, listID int64, req api.ListRequest) (*board.List, error)
	DeleteList(ctx context.Context, listID int64) error
	CreateCard(ctx context.Context, req api.CardRequest) (*board.Card, error)
	UpdateCard(ctx context.Context, cardID int64, req api.CardRequest) (*board.Card, error)
	MoveCard(ctx context.Context, cardID int64, req api.MoveRequest) (*board.Card, error)
	DeleteCard(ctx context.Context, cardID int64) error
}

// Bus is the part of the connection manager a session uses. *bus.Manager
// satisfies it.
type Bus interface {
	IsConnected() bool
	OnStateChange(fn func(bus.State)) (remove func())
	Subscribe(boardID int64, handler bus.Handler) (bus.HandlerID, error)
	RemoveHandler(boardID int64, id bus.HandlerID)
	PublishCardMove(ctx context.Context, boardID, cardID, newListID int64, newPosition int) error
}

// Config holds what a session needs. API and BoardID are required.
type Config struct {
	BoardID int64
	API     API

	// Bus delivers remote events. A nil Bus gives an offline session.
	Bus Bus

	UserID   int64
	Username string

	// Notifications receives toasts for other users' changes. One is created
	// when nil.
	Notifications *notify.Queue

	// BroadcastMoves sends a card-move message on the bus after each
	// committed drop.
	BroadcastMoves bool

	// OnChange is called on the session goroutine with a copy of the board
	// after every settled change.
	OnChange func(*board.Board)

	// OnConnectivity is called on the session goroutine when the bus
	// connection comes or goes.
	OnConnectivity func(connected bool)

	Logger logrus.FieldLogger
}

// DropResult is the settled outcome of a drop.
type DropResult struct {
	Outcome reconciler.Outcome
	Err     error
}

// Session is a live view of one board.
type Session struct {
	id      string
	boardID int64
	cfg     Config
	log     logrus.FieldLogger

	model  *board.Model
	router *router.Router
	recon  *reconciler.Reconciler
	queue  *notify.Queue

	ctx      context.Context
	cancel   context.CancelFunc
	ops      chan func()
	loopDone chan struct{}
	closing  sync.Once

	connected  atomic.Bool
	stopStates func()

	// Owned by the loop.
	handlerID     bus.HandlerID
	lost          bool
	refetching    bool
	refetchAgain  bool
	deferred      bool
	inFlightMoves int
}

// Open loads the board and starts the session. When the bus is connected the
// board's topic is subscribed immediately, otherwise as soon as it connects.
func Open(ctx context.Context, cfg Config) (*Session, error) {
	if cfg.API == nil {
		return nil, fmt.Errorf("session requires an API client")
	}
	if cfg.BoardID <= 0 {
		return nil, fmt.Errorf("invalid board id %d", cfg.BoardID)
	}

	snapshot, err := cfg.API.GetBoard(ctx, cfg.BoardID)
	if err != nil {
		return nil, fmt.Errorf("failed to load board %d: %w", cfg.BoardID, err)
	}

	id := uuid.New().String()
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithFields(logrus.Fields{
		"component":  "session",
		"session_id": id[:8],
		"board_id":   cfg.BoardID,
	})

	queue := cfg.Notifications
	if queue == nil {
		queue = notify.New(cfg.UserID, cfg.Username, notify.WithLogger(log))
	}

	model := board.NewModel(snapshot)
	loopCtx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:       id,
		boardID:  cfg.BoardID,
		cfg:      cfg,
		log:      log,
		model:    model,
		router:   router.New(model, cfg.UserID, log),
		recon:    reconciler.New(model, log),
		queue:    queue,
		ctx:      loopCtx,
		cancel:   cancel,
		ops:      make(chan func()),
		loopDone: make(chan struct{}),
	}

	go s.run()

	if cfg.Bus != nil {
		s.stopStates = cfg.Bus.OnStateChange(func(st bus.State) {
			s.post(func() { s.onState(st) })
		})
		if err := s.call(func() error {
			s.subscribe()
			return nil
		}); err != nil {
			s.stopStates()
			return nil, err
		}
	}

	log.WithField("lists", len(snapshot.Lists)).Info("Board session opened")
	return s, nil
}

// ID returns the session's unique id.
func (s *Session) ID() string { return s.id }

// BoardID returns the board this session shows.
func (s *Session) BoardID() int64 { return s.boardID }

// Connected reports whether the board's topic is live.
func (s *Session) Connected() bool { return s.connected.Load() }

// Notifications returns the toast queue fed by this session.
func (s *Session) Notifications() *notify.Queue { return s.queue }

// Board returns a copy of the current board.
func (s *Session) Board() (*board.Board, error) {
	var out *board.Board
	err := s.call(func() error {
		out = s.model.Board()
		return nil
	})
	return out, err
}

// Refresh replaces the model with a fresh snapshot and waits for it.
func (s *Session) Refresh(ctx context.Context) error {
	snapshot, err := s.cfg.API.GetBoard(ctx, s.boardID)
	if err != nil {
		return fmt.Errorf("failed to refresh board: %w", err)
	}
	return s.call(func() error {
		s.adopt(snapshot)
		return nil
	})
}

// Close unsubscribes the board and stops the session. Later calls on the
// session return ErrClosed.
func (s *Session) Close() error {
	s.closing.Do(func() {
		if s.stopStates != nil {
			s.stopStates()
		}
		_ = s.call(func() error {
			if s.handlerID != 0 {
				s.cfg.Bus.RemoveHandler(s.boardID, s.handlerID)
				s.handlerID = 0
			}
			return nil
		})
		s.cancel()
		<-s.loopDone
		s.connected.Store(false)
		s.log.Info("Board session closed")
	})
	return nil
}

func (s *Session) run() {
	defer close(s.loopDone)

	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case op := <-s.ops:
			op()
		case now := <-ticker.C:
			s.queue.Prune(now)
		}
	}
}

// call runs fn on the loop and waits for its result.
func (s *Session) call(fn func() error) error {
	errc := make(chan error, 1)
	if !s.post(func() { errc <- fn() }) {
		return ErrClosed
	}
	select {
	case err := <-errc:
		return err
	case <-s.ctx.Done():
		return ErrClosed
	}
}

// post queues fn on the loop without waiting for it to run. It reports false
// once the session is closed.
func (s *Session) post(fn func()) bool {
	select {
	case s.ops <- fn:
		return true
	case <-s.ctx.Done():
		return false
	}
}

func (s *Session) subscribe() {
	if s.handlerID != 0 || !s.cfg.Bus.IsConnected() {
		return
	}
	id, err := s.cfg.Bus.Subscribe(s.boardID, func(ev bus.Event) {
		s.post(func() { s.handleEvent(ev) })
	})
	if err != nil {
		s.log.WithError(err).Warn("Failed to subscribe to board topic")
		return
	}
	s.handlerID = id
	s.setConnected(true)
}

func (s *Session) onState(st bus.State) {
	switch st {
	case bus.StateConnected:
		if s.handlerID == 0 {
			s.subscribe()
			return
		}
		s.setConnected(true)
		if s.lost {
			// Events published while offline were missed.
			s.lost = false
			s.refetch("reconnected")
		}
	case bus.StateDisconnected:
		if s.handlerID != 0 {
			s.lost = true
		}
		s.setConnected(false)
	}
}

func (s *Session) setConnected(v bool) {
	if s.connected.Swap(v) == v {
		return
	}
	s.log.WithField("connected", v).Info("Board connectivity changed")
	if s.cfg.OnConnectivity != nil {
		s.cfg.OnConnectivity(v)
	}
}

func (s *Session) handleEvent(ev bus.Event) {
	s.queue.Observe(ev)

	out := s.router.Route(ev)
	if out.Applied {
		s.changed()
	}
	if out.NeedsRefetch {
		s.refetch(string(ev.EventHeader().Type))
	}
}

// refetch loads a snapshot off the loop. Requests made while one is in flight
// are folded into a single follow-up.
func (s *Session) refetch(reason string) {
	if s.refetching {
		s.refetchAgain = true
		return
	}
	s.refetching = true
	s.log.WithField("reason", reason).Debug("Refetching board")

	boardID := s.boardID
	go func() {
		snapshot, err := s.cfg.API.GetBoard(s.ctx, boardID)
		s.post(func() {
			s.refetching = false
			if err != nil {
				s.log.WithError(err).Warn("Board refetch failed")
			} else if snapshot.ID == s.model.BoardID() {
				s.adopt(snapshot)
			}
			if s.refetchAgain {
				s.refetchAgain = false
				s.refetch("queued")
			}
		})
	}()
}

// adopt replaces the model unless a drag or an uncommitted drop would be
// overwritten, in which case a refetch runs once they settle.
func (s *Session) adopt(snapshot *board.Board) {
	if s.recon.State() == reconciler.Dragging || s.inFlightMoves > 0 {
		s.deferred = true
		return
	}
	s.model.ReplaceBoard(snapshot)
	s.changed()
}

func (s *Session) settle() {
	if s.recon.State() == reconciler.Dragging || s.inFlightMoves > 0 || !s.deferred {
		return
	}
	s.deferred = false
	s.refetch("deferred")
}

func (s *Session) changed() {
	if s.cfg.OnChange != nil {
		s.cfg.OnChange(s.model.Board())
	}
}
