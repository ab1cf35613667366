package sandbox

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/freudmarin/TaskBoardApp/internal/api"
	"github.com/freudmarin/TaskBoardApp/internal/auth"
	"github.com/freudmarin/TaskBoardApp/pkg/board"
	"github.com/freudmarin/TaskBoardApp/pkg/bus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

type recorder struct {
	mu     sync.Mutex
	events []bus.Event
	boards []int64
}

func (r *recorder) Publish(_ context.Context, boardID int64, payload []byte) error {
	ev, err := bus.DecodeEnvelope(payload)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	r.boards = append(r.boards, boardID)
	return nil
}

func (r *recorder) last(t *testing.T) bus.Event {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.events, "no event published")
	return r.events[len(r.events)-1]
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

type testServer struct {
	srv    *Server
	http   *httptest.Server
	rec    *recorder
	issuer *auth.Issuer
}

// setupTestServer serves the demo board over httptest
func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	store := NewStore()
	require.NoError(t, store.Seed(DemoBoard()))
	for _, u := range DemoUsers {
		store.AddUser(u)
	}
	issuer, err := auth.NewIssuer("test-secret", time.Hour)
	require.NoError(t, err)

	rec := &recorder{}
	srv := NewServer(store, issuer, rec, quietLogger())
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(hs.Close)
	return &testServer{srv: srv, http: hs, rec: rec, issuer: issuer}
}

func (ts *testServer) client(t *testing.T, u User) *api.Client {
	t.Helper()
	token, err := ts.issuer.Issue(u.ID, u.Username, u.Email)
	require.NoError(t, err)
	c, err := api.NewClient(ts.http.URL, token, api.WithLogger(quietLogger()))
	require.NoError(t, err)
	return c
}

func TestLogin(t *testing.T) {
	ts := setupTestServer(t)
	anon, err := api.NewClient(ts.http.URL, "", api.WithLogger(quietLogger()))
	require.NoError(t, err)
	ctx := context.Background()

	resp, err := anon.Login(ctx, api.LoginRequest{Username: "ann", Password: "password"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Equal(t, DemoUsers[0].ID, resp.UserID)

	ident, err := auth.ParseIdentity(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "ann", ident.Username)

	_, err = anon.Login(ctx, api.LoginRequest{Username: "ann", Password: "wrong"})
	assert.True(t, api.IsForbidden(err))

	_, err = anon.ListBoards(ctx)
	assert.Equal(t, http.StatusUnauthorized, api.StatusOf(err), "routes need a token")
}

func TestErrorBody(t *testing.T) {
	ts := setupTestServer(t)
	token, err := ts.issuer.Issue(1001, "ann", "")
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, ts.http.URL+"/api/v1/boards/999", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, float64(404), body["status"])
	assert.Equal(t, "Not Found", body["error"])
	assert.Equal(t, "/api/v1/boards/999", body["path"])
}

func TestMoveCardPublishesEvent(t *testing.T) {
	ts := setupTestServer(t)
	ann := ts.client(t, DemoUsers[0])

	card, err := ann.MoveCard(context.Background(), 100, api.MoveRequest{NewListID: 11, NewPosition: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(11), card.ListID)
	assert.Equal(t, 1, card.Position)

	ev := ts.rec.last(t)
	moved, ok := ev.(*bus.CardMoved)
	require.True(t, ok, "got %T", ev)
	assert.False(t, moved.Broadcast)
	require.NotNil(t, moved.Card)
	assert.Equal(t, int64(100), moved.Card.ID)
	assert.Equal(t, int64(10), moved.FromListID)
	assert.Equal(t, int64(11), moved.ToListID)
	assert.True(t, moved.Header.OriginatedBy(DemoUsers[0].ID))
	assert.Equal(t, "ann", moved.Header.Username)
	require.NotNil(t, moved.Header.Timestamp)
}

func TestFailMoves(t *testing.T) {
	ts := setupTestServer(t)
	ann := ts.client(t, DemoUsers[0])
	ctx := context.Background()

	ts.srv.FailMoves(1)
	_, err := ann.MoveCard(ctx, 100, api.MoveRequest{NewListID: 11, NewPosition: 0})
	assert.Equal(t, http.StatusConflict, api.StatusOf(err))
	assert.Zero(t, ts.rec.count(), "rejected move publishes nothing")

	b, err := ann.GetBoard(ctx, DemoBoardID)
	require.NoError(t, err)
	assert.Len(t, b.SortedLists()[0].Cards, 3, "state unchanged")

	_, err = ann.MoveCard(ctx, 100, api.MoveRequest{NewListID: 11, NewPosition: 0})
	assert.NoError(t, err, "only the next n moves fail")
}

func TestStructuralEvents(t *testing.T) {
	ts := setupTestServer(t)
	bob := ts.client(t, DemoUsers[1])
	ctx := context.Background()

	l, err := bob.CreateList(ctx, api.ListRequest{Name: "Blocked", BoardID: DemoBoardID})
	require.NoError(t, err)
	_, ok := ts.rec.last(t).(*bus.ListCreated)
	assert.True(t, ok)

	card, err := bob.CreateCard(ctx, api.CardRequest{Title: "Investigate", ListID: l.ID})
	require.NoError(t, err)
	created, ok := ts.rec.last(t).(*bus.CardCreated)
	require.True(t, ok)
	assert.Equal(t, card.ID, created.Card.ID)
	assert.Equal(t, "bob", created.Header.Username)

	_, err = bob.UpdateCard(ctx, card.ID, api.CardRequest{Title: "Investigate crash", ListID: l.ID, Priority: board.PriorityHigh})
	require.NoError(t, err)
	updated, ok := ts.rec.last(t).(*bus.CardUpdated)
	require.True(t, ok)
	assert.Equal(t, "Investigate crash", updated.Card.Title)

	require.NoError(t, bob.DeleteCard(ctx, card.ID))
	deleted, ok := ts.rec.last(t).(*bus.CardDeleted)
	require.True(t, ok)
	assert.Equal(t, card.ID, deleted.CardID)
	assert.Equal(t, l.ID, deleted.ListID)

	require.NoError(t, bob.DeleteList(ctx, l.ID))
	listGone, ok := ts.rec.last(t).(*bus.ListDeleted)
	require.True(t, ok)
	assert.Equal(t, l.ID, listGone.ListID)

	for _, id := range ts.rec.boards {
		assert.Equal(t, int64(DemoBoardID), id)
	}
}

func TestValidation(t *testing.T) {
	ts := setupTestServer(t)
	token, err := ts.issuer.Issue(1001, "ann", "")
	require.NoError(t, err)

	tests := []struct {
		name string
		path string
		body string
	}{
		{"empty card title", "/api/v1/cards", `{"title":"","listId":10}`},
		{"bad priority", "/api/v1/cards", `{"title":"x","listId":10,"priority":"URGENT"}`},
		{"negative move position", "/api/v1/cards/100/move", `{"newListId":11,"newPosition":-1}`},
		{"malformed body", "/api/v1/lists", `{"name":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodPost, ts.http.URL+tt.path, strings.NewReader(tt.body))
			require.NoError(t, err)
			req.Header.Set("Authorization", "Bearer "+token)
			req.Header.Set("Content-Type", "application/json")
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestBoardsAndActivity(t *testing.T) {
	ts := setupTestServer(t)
	ann := ts.client(t, DemoUsers[0])
	ctx := context.Background()

	created, err := ann.CreateBoard(ctx, api.BoardRequest{Name: "Ops"})
	require.NoError(t, err)
	assert.Equal(t, api.DefaultBoardColor, created.Color)
	assert.Equal(t, "ann", created.OwnerUsername)

	boards, err := ann.ListBoards(ctx)
	require.NoError(t, err)
	assert.Len(t, boards, 2)

	require.NoError(t, ann.DeleteBoard(ctx, created.ID))
	boards, err = ann.ListBoards(ctx)
	require.NoError(t, err)
	assert.Len(t, boards, 1)

	_, err = ann.MoveCard(ctx, 101, api.MoveRequest{NewListID: 12, NewPosition: 0})
	require.NoError(t, err)
	log, err := ann.BoardActivity(ctx, DemoBoardID)
	require.NoError(t, err)
	require.NotEmpty(t, log)
	assert.Equal(t, "CARD_MOVED", log[0].ActivityType)
	assert.Equal(t, "ann", log[0].Username)

	lists, err := ann.ListsByBoard(ctx, DemoBoardID)
	require.NoError(t, err)
	require.Len(t, lists, 3)
	cards, err := ann.CardsByList(ctx, 12)
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, int64(101), cards[0].ID)
}
