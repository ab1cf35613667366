// Package sandbox is a self-contained board server for local development and
// tests. It serves the persistence API from memory and publishes board events
// on Redis Pub/Sub in the envelope format clients consume.
package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/freudmarin/TaskBoardApp/internal/api"
	"github.com/freudmarin/TaskBoardApp/internal/auth"
	"github.com/freudmarin/TaskBoardApp/pkg/board"
	"github.com/freudmarin/TaskBoardApp/pkg/bus"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

const identityKey = "identity"

// Publisher delivers an encoded envelope to a board's topic.
type Publisher interface {
	Publish(ctx context.Context, boardID int64, payload []byte) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, boardID int64, payload []byte) error

// Publish calls f.
func (f PublisherFunc) Publish(ctx context.Context, boardID int64, payload []byte) error {
	return f(ctx, boardID, payload)
}

// Server serves the persistence API.
type Server struct {
	echo      *echo.Echo
	store     *Store
	issuer    *auth.Issuer
	pub       Publisher
	log       logrus.FieldLogger
	failMoves atomic.Int32
}

// NewServer creates a server over store. Events are published through pub,
// which may be nil.
func NewServer(store *Store, issuer *auth.Issuer, pub Publisher, log logrus.FieldLogger) *Server {
	if log == nil {
		log = logrus.WithField("component", "sandbox")
	}
	s := &Server{
		echo:   echo.New(),
		store:  store,
		issuer: issuer,
		pub:    pub,
		log:    log,
	}
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.HTTPErrorHandler = s.handleError
	s.routes()
	return s
}

func (s *Server) routes() {
	g := s.echo.Group("/api/v1")
	g.POST("/auth/login", s.login)

	authed := s.authenticate
	g.GET("/boards", s.listBoards, authed)
	g.POST("/boards", s.createBoard, authed)
	g.GET("/boards/:id", s.getBoard, authed)
	g.PUT("/boards/:id", s.updateBoard, authed)
	g.DELETE("/boards/:id", s.deleteBoard, authed)
	g.GET("/boards/:id/activity", s.boardActivity, authed)

	g.GET("/lists/board/:id", s.listsByBoard, authed)
	g.GET("/lists/:id", s.getList, authed)
	g.POST("/lists", s.createList, authed)
	g.PUT("/lists/:id", s.updateList, authed)
	g.DELETE("/lists/:id", s.deleteList, authed)

	g.GET("/cards/list/:id", s.cardsByList, authed)
	g.GET("/cards/:id", s.getCard, authed)
	g.POST("/cards", s.createCard, authed)
	g.PUT("/cards/:id", s.updateCard, authed)
	g.POST("/cards/:id/move", s.moveCard, authed)
	g.DELETE("/cards/:id", s.deleteCard, authed)
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.echo }

// Start listens on addr until Shutdown.
func (s *Server) Start(addr string) error {
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("sandbox server failed: %w", err)
	}
	return nil
}

// Shutdown stops the listener started by Start.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// FailMoves makes the next n move requests fail with 409 Conflict.
func (s *Server) FailMoves(n int) {
	s.failMoves.Store(int32(n))
}

func (s *Server) authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ident, err := s.issuer.VerifyHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
		}
		c.Set(identityKey, ident)
		return next(c)
	}
}

func actor(c echo.Context) User {
	ident, _ := c.Get(identityKey).(auth.Identity)
	return User{ID: ident.UserID, Username: ident.Username, Email: ident.Email}
}

func (s *Server) login(c echo.Context) error {
	var req api.LoginRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	u, ok := s.store.Authenticate(req.Username, req.Password)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid username or password")
	}
	token, err := s.issuer.Issue(u.ID, u.Username, u.Email)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, &api.AuthResponse{
		AccessToken:  token,
		RefreshToken: token,
		TokenType:    "Bearer",
		UserID:       u.ID,
		Username:     u.Username,
		Email:        u.Email,
	})
}

func (s *Server) listBoards(c echo.Context) error {
	return c.JSON(http.StatusOK, s.store.Boards())
}

func (s *Server) getBoard(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	b, err := s.store.Board(id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, b)
}

func (s *Server) createBoard(c echo.Context) error {
	var req api.BoardRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	if req.Color == "" {
		req.Color = api.DefaultBoardColor
	}
	return c.JSON(http.StatusCreated, s.store.CreateBoard(req, actor(c)))
}

func (s *Server) updateBoard(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req api.BoardRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	b, err := s.store.UpdateBoard(id, req, actor(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, b)
}

func (s *Server) deleteBoard(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := s.store.ArchiveBoard(id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) boardActivity(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	log, err := s.store.Activity(id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, log)
}

func (s *Server) listsByBoard(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	lists, err := s.store.Lists(id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, lists)
}

func (s *Server) getList(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	l, err := s.store.List(id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, l)
}

func (s *Server) createList(c echo.Context) error {
	var req api.ListRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	u := actor(c)
	l, err := s.store.CreateList(req, u)
	if err != nil {
		return err
	}
	s.broadcast(c, l.BoardID, u, bus.TypeListCreated, l)
	return c.JSON(http.StatusCreated, l)
}

func (s *Server) updateList(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req api.ListRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	u := actor(c)
	l, err := s.store.UpdateList(id, req, u)
	if err != nil {
		return err
	}
	s.broadcast(c, l.BoardID, u, bus.TypeListUpdated, l)
	return c.JSON(http.StatusOK, l)
}

func (s *Server) deleteList(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	u := actor(c)
	boardID, err := s.store.DeleteList(id, u)
	if err != nil {
		return err
	}
	s.broadcast(c, boardID, u, bus.TypeListDeleted, map[string]int64{"listId": id})
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) cardsByList(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	cards, err := s.store.Cards(id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, cards)
}

func (s *Server) getCard(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	card, err := s.store.Card(id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, card)
}

func (s *Server) createCard(c echo.Context) error {
	var req api.CardRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	u := actor(c)
	card, boardID, err := s.store.CreateCard(req, u)
	if err != nil {
		return err
	}
	s.broadcast(c, boardID, u, bus.TypeCardCreated, card)
	return c.JSON(http.StatusCreated, card)
}

func (s *Server) updateCard(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req api.CardRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	u := actor(c)
	card, boardID, err := s.store.UpdateCard(id, req, u)
	if err != nil {
		return err
	}
	s.broadcast(c, boardID, u, bus.TypeCardUpdated, card)
	return c.JSON(http.StatusOK, card)
}

func (s *Server) moveCard(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req api.MoveRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	if s.consumeFailure() {
		return echo.NewHTTPError(http.StatusConflict, "move rejected")
	}
	u := actor(c)
	card, fromListID, boardID, err := s.store.MoveCard(id, req, u)
	if err != nil {
		return err
	}
	s.broadcast(c, boardID, u, bus.TypeCardMoved, map[string]any{
		"card":       card,
		"fromListId": fromListID,
		"toListId":   card.ListID,
	})
	return c.JSON(http.StatusOK, card)
}

func (s *Server) deleteCard(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	u := actor(c)
	listID, boardID, err := s.store.DeleteCard(id, u)
	if err != nil {
		return err
	}
	s.broadcast(c, boardID, u, bus.TypeCardDeleted, map[string]int64{"cardId": id, "listId": listID})
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) consumeFailure() bool {
	for {
		n := s.failMoves.Load()
		if n <= 0 {
			return false
		}
		if s.failMoves.CompareAndSwap(n, n-1) {
			return true
		}
	}
}

// broadcast publishes an event after a successful mutation. A publish failure
// does not fail the request.
func (s *Server) broadcast(c echo.Context, boardID int64, u User, kind bus.EventType, data any) {
	if s.pub == nil {
		return
	}
	payload, err := EncodeEvent(kind, boardID, u, data, time.Now())
	if err != nil {
		s.log.WithError(err).Warn("Failed to encode event")
		return
	}
	if err := s.pub.Publish(c.Request().Context(), boardID, payload); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"board_id": boardID,
			"type":     kind,
		}).Warn("Failed to publish event")
	}
}

// EncodeEvent builds a board envelope attributed to u.
func EncodeEvent(kind bus.EventType, boardID int64, u User, data any, at time.Time) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event data: %w", err)
	}
	ts, err := json.Marshal(board.Timestamp{Time: at.UTC()})
	if err != nil {
		return nil, err
	}
	env := bus.Envelope{
		Type:      kind,
		Data:      raw,
		Timestamp: ts,
		Username:  u.Username,
		BoardID:   &boardID,
	}
	if u.ID != 0 {
		id := u.ID
		env.UserID = &id
	}
	return json.Marshal(&env)
}

func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := err.Error()
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		status = he.Code
		message = fmt.Sprint(he.Message)
	case errors.Is(err, ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, board.ErrListNotFound), errors.Is(err, board.ErrCardNotFound):
		status = http.StatusNotFound
	}
	if status >= http.StatusInternalServerError {
		s.log.WithError(err).Error("Request failed")
	}

	body := map[string]any{
		"status":  status,
		"error":   http.StatusText(status),
		"message": message,
		"path":    c.Request().URL.Path,
	}
	if err := c.JSON(status, body); err != nil {
		s.log.WithError(err).Warn("Failed to write error response")
	}
}

func bindValid(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	if err := api.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

func pathID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid id %q", c.Param("id")))
	}
	return id, nil
}
