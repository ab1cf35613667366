package router

import (
	"testing"

	"github.com/freudmarin/TaskBoardApp/pkg/board"
	"github.com/freudmarin/TaskBoardApp/pkg/bus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const localUser = 42

func fixture() *board.Board {
	return &board.Board{
		ID:   10,
		Name: "Release",
		Lists: []*board.List{
			{ID: 1, BoardID: 10, Name: "Todo", Position: 0, Cards: []*board.Card{
				{ID: 7, ListID: 1, Position: 0, Title: "seven"},
				{ID: 8, ListID: 1, Position: 1, Title: "eight"},
				{ID: 9, ListID: 1, Position: 2, Title: "nine"},
			}},
			{ID: 2, BoardID: 10, Name: "Doing", Position: 1, Cards: []*board.Card{
				{ID: 20, ListID: 2, Position: 0, Title: "twenty"},
			}},
		},
	}
}

func setupRouter(t *testing.T) (*Router, *board.Model) {
	m := board.NewModel(fixture())
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return New(m, localUser, l), m
}

func decode(t *testing.T, raw string) bus.Event {
	t.Helper()
	ev, err := bus.DecodeEnvelope([]byte(raw))
	require.NoError(t, err)
	return ev
}

func cardIDs(t *testing.T, m *board.Model, listID int64) []int64 {
	t.Helper()
	l, ok := m.List(listID)
	require.True(t, ok)
	ids := make([]int64, len(l.Cards))
	for i, c := range l.Cards {
		ids[i] = c.ID
	}
	return ids
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Action
	}{
		{"remote move with card", `{"type":"CARD_MOVED","userId":99,"data":{"card":{"id":7},"fromListId":1,"toListId":2}}`, ApplyMove},
		{"server move without user", `{"type":"CARD_MOVED","data":{"card":{"id":7},"fromListId":1,"toListId":2}}`, ApplyMove},
		{"broadcast without card", `{"type":"CARD_MOVE_BROADCAST","userId":99,"newListId":2,"newPosition":0}`, Ignore},
		{"self echo move", `{"type":"CARD_MOVED","userId":42,"data":{"card":{"id":7},"fromListId":1,"toListId":2}}`, Ignore},
		{"self echo structural", `{"type":"CARD_CREATED","userId":42,"data":{"id":30}}`, Ignore},
		{"self echo ack", `{"type":"SUBSCRIPTION_ACK","userId":42,"message":"ok"}`, Ignore},
		{"card created", `{"type":"CARD_CREATED","userId":99,"data":{"id":30}}`, Refetch},
		{"card updated", `{"type":"CARD_UPDATED","userId":99,"data":{"id":7}}`, Refetch},
		{"card deleted", `{"type":"CARD_DELETED","data":{"cardId":7,"listId":1}}`, Refetch},
		{"list created", `{"type":"LIST_CREATED","data":{"id":3}}`, Refetch},
		{"list updated", `{"type":"LIST_UPDATED","data":{"id":1}}`, Refetch},
		{"list deleted", `{"type":"LIST_DELETED","data":{"listId":2}}`, Refetch},
		{"subscription ack", `{"type":"SUBSCRIPTION_ACK","userId":99,"message":"ok"}`, Acknowledge},
		{"unknown type", `{"type":"BOARD_RENAMED","userId":99}`, Unrecognized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(decode(t, tt.raw), localUser))
		})
	}
}

func TestRouteApplyMove(t *testing.T) {
	t.Run("applies cross-list move", func(t *testing.T) {
		r, m := setupRouter(t)
		out := r.Route(decode(t, `{"type":"CARD_MOVED","userId":99,"data":{"card":{"id":7,"listId":2,"position":1},"fromListId":1,"toListId":2}}`))

		assert.Equal(t, ApplyMove, out.Action)
		assert.True(t, out.Applied)
		assert.False(t, out.NeedsRefetch)
		assert.Equal(t, []int64{8, 9}, cardIDs(t, m, 1))
		assert.Equal(t, []int64{20, 7}, cardIDs(t, m, 2))
		assert.NoError(t, m.Validate())
	})

	t.Run("applies same-list move", func(t *testing.T) {
		r, m := setupRouter(t)
		out := r.Route(decode(t, `{"type":"CARD_MOVED","userId":99,"data":{"card":{"id":7,"listId":1,"position":2},"fromListId":1,"toListId":1}}`))

		assert.True(t, out.Applied)
		assert.Equal(t, []int64{8, 9, 7}, cardIDs(t, m, 1))
	})

	t.Run("destination defaults to card list", func(t *testing.T) {
		r, m := setupRouter(t)
		out := r.Route(decode(t, `{"type":"CARD_MOVED","userId":99,"data":{"card":{"id":9,"listId":2,"position":0}}}`))

		assert.True(t, out.Applied)
		assert.Equal(t, []int64{9, 20}, cardIDs(t, m, 2))
		assert.Equal(t, []int64{7, 8}, cardIDs(t, m, 1))
	})

	t.Run("unknown card falls back to refetch", func(t *testing.T) {
		r, m := setupRouter(t)
		before := m.Board()
		out := r.Route(decode(t, `{"type":"CARD_MOVED","userId":99,"data":{"card":{"id":999,"listId":2,"position":0},"fromListId":1,"toListId":2}}`))

		assert.Equal(t, ApplyMove, out.Action)
		assert.False(t, out.Applied)
		assert.True(t, out.NeedsRefetch)
		assert.ErrorIs(t, out.Err, board.ErrCardNotFound)
		assert.Equal(t, before, m.Board())
	})

	t.Run("unknown list falls back to refetch", func(t *testing.T) {
		r, _ := setupRouter(t)
		out := r.Route(decode(t, `{"type":"CARD_MOVED","userId":99,"data":{"card":{"id":7,"listId":5,"position":0},"fromListId":1,"toListId":5}}`))

		assert.True(t, out.NeedsRefetch)
		assert.ErrorIs(t, out.Err, board.ErrListNotFound)
	})
}

// A repeated delivery is routed again; it settles as a no-op because the
// card already sits where the event puts it.
func TestRouteRepeatedDelivery(t *testing.T) {
	r, m := setupRouter(t)
	raw := `{"type":"CARD_MOVED","userId":99,"data":{"card":{"id":7,"listId":2,"position":1},"fromListId":1,"toListId":2}}`

	first := r.Route(decode(t, raw))
	require.True(t, first.Applied)
	afterFirst := m.Board()

	second := r.Route(decode(t, raw))
	assert.Equal(t, ApplyMove, second.Action)
	assert.False(t, second.Applied)
	assert.False(t, second.NeedsRefetch)
	assert.Equal(t, afterFirst, m.Board())
	assert.Equal(t, []int64{7, 8, 9, 20}, m.CardIDs())
}

func TestRouteSelfEcho(t *testing.T) {
	r, m := setupRouter(t)
	before := m.Board()

	out := r.Route(decode(t, `{"type":"CARD_MOVED","userId":42,"data":{"card":{"id":7,"listId":2,"position":0},"fromListId":1,"toListId":2}}`))
	assert.Equal(t, Ignore, out.Action)
	assert.False(t, out.NeedsRefetch)
	assert.Equal(t, before, m.Board())

	out = r.Route(decode(t, `{"type":"LIST_DELETED","userId":42,"data":{"listId":2}}`))
	assert.Equal(t, Ignore, out.Action)
	assert.False(t, out.NeedsRefetch)
}

func TestRouteNonMoveEvents(t *testing.T) {
	r, m := setupRouter(t)
	before := m.Board()

	out := r.Route(decode(t, `{"type":"CARD_DELETED","userId":99,"data":{"cardId":7,"listId":1}}`))
	assert.Equal(t, Refetch, out.Action)
	assert.True(t, out.NeedsRefetch)

	out = r.Route(decode(t, `{"type":"SUBSCRIPTION_ACK","message":"Subscribed to board 10"}`))
	assert.Equal(t, Acknowledge, out.Action)
	assert.False(t, out.NeedsRefetch)

	out = r.Route(decode(t, `{"type":"SOMETHING_NEW","data":{}}`))
	assert.Equal(t, Unrecognized, out.Action)
	assert.False(t, out.NeedsRefetch)

	assert.Equal(t, before, m.Board())
}

func TestActionString(t *testing.T) {
	assert.Equal(t, "apply-move", ApplyMove.String())
	assert.Equal(t, "refetch", Refetch.String())
	assert.Equal(t, "action(12)", Action(12).String())
}
