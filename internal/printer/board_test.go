package printer

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/freudmarin/TaskBoardApp/internal/api"
	"github.com/freudmarin/TaskBoardApp/internal/notify"
	"github.com/freudmarin/TaskBoardApp/pkg/board"
	"github.com/freudmarin/TaskBoardApp/pkg/bus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBoard() *board.Board {
	return &board.Board{
		ID:            1,
		Name:          "Launch",
		OwnerUsername: "ann",
		Lists: []*board.List{
			{ID: 11, BoardID: 1, Name: "Done", Position: 1},
			{ID: 10, BoardID: 1, Name: "To Do", Position: 0, Cards: []*board.Card{
				{ID: 100, ListID: 10, Position: 0, Title: "Write plan", Priority: board.PriorityHigh, AssignedToUsername: "bob"},
				{ID: 101, ListID: 10, Position: 1, Title: "Book venue", Priority: board.PriorityLow},
			}},
		},
	}
}

func TestFormatBoard(t *testing.T) {
	captureOutput(t)
	var buf bytes.Buffer
	require.NoError(t, FormatBoard(&buf, testBoard()))

	out := buf.String()
	assert.Contains(t, out, "Launch (board 1)")
	assert.Less(t, strings.Index(out, "To Do"), strings.Index(out, "Done"), "lists render in position order")
	assert.Less(t, strings.Index(out, "Write plan"), strings.Index(out, "Book venue"))
	assert.Contains(t, out, "@bob")
	assert.Contains(t, out, "(empty)")
}

func TestFormatBoards(t *testing.T) {
	captureOutput(t)

	t.Run("empty", func(t *testing.T) {
		var buf bytes.Buffer
		n, err := FormatBoards(&buf, nil)
		require.NoError(t, err)
		assert.Zero(t, n)
		assert.Contains(t, buf.String(), "No boards found")
	})

	t.Run("table", func(t *testing.T) {
		var buf bytes.Buffer
		n, err := FormatBoards(&buf, []*board.Board{testBoard()})
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Contains(t, buf.String(), "Launch")
		assert.Contains(t, buf.String(), "1 board\n")
	})
}

func TestFormatActivity(t *testing.T) {
	captureOutput(t)
	var buf bytes.Buffer
	err := FormatActivity(&buf, []*api.Activity{
		{ID: 1, Username: "ann", ActivityType: "CARD_MOVED", Description: "Moved card 'Write plan'"},
	})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "CARD_MOVED")
	assert.Contains(t, buf.String(), "ann")
}

func TestFormatEvent(t *testing.T) {
	captureOutput(t)
	at := time.Date(2025, 1, 2, 9, 30, 0, 0, time.UTC)

	tests := []struct {
		name string
		ev   bus.Event
		want string
	}{
		{
			name: "card moved",
			ev: &bus.CardMoved{
				Header: bus.Header{Type: bus.TypeCardMoved, Username: "bob"},
				Card:   &board.Card{ID: 100, ListID: 11, Position: 0},
			},
			want: "card #100 -> list 11 pos 0",
		},
		{
			name: "card deleted",
			ev:   &bus.CardDeleted{Header: bus.Header{Type: bus.TypeCardDeleted}, CardID: 7, ListID: 10},
			want: "card #7 from list 10",
		},
		{
			name: "ack",
			ev:   &bus.SubscriptionAck{Header: bus.Header{Type: bus.TypeSubscriptionAck}, Message: "Subscribed to board 1"},
			want: "Subscribed to board 1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			FormatEvent(&buf, tt.ev, at)
			assert.True(t, strings.HasPrefix(buf.String(), "09:30:00 "))
			assert.Contains(t, buf.String(), tt.want)
		})
	}
}

func TestFormatToasts(t *testing.T) {
	captureOutput(t)
	var buf bytes.Buffer
	FormatToasts(&buf, []notify.Entry{{Text: "bob moved a card"}})
	assert.Contains(t, buf.String(), "bob moved a card")
}

func TestFormatJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, FormatJSON(&buf, testBoard()))

	var decoded board.Board
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "Launch", decoded.Name)

	buf.Reset()
	require.NoError(t, FormatJSONL(&buf, []byte(" {\"type\":\"CARD_MOVED\"}\n")))
	assert.Equal(t, "{\"type\":\"CARD_MOVED\"}\n", buf.String())
}
