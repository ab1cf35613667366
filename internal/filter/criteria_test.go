package filter

import (
	"testing"
	"time"

	"github.com/freudmarin/TaskBoardApp/internal/api"
	"github.com/freudmarin/TaskBoardApp/pkg/board"
	"github.com/freudmarin/TaskBoardApp/pkg/bus"
	"github.com/stretchr/testify/assert"
)

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func moved(user string, ts *board.Timestamp) bus.Event {
	return &bus.CardMoved{Header: bus.Header{Type: bus.TypeCardMoved, Username: user, Timestamp: ts}}
}

func TestMatchesEvent(t *testing.T) {
	stamped := &board.Timestamp{Time: base.Add(-time.Hour)}

	tests := []struct {
		name     string
		criteria Criteria
		ev       bus.Event
		want     bool
	}{
		{"no filters", Criteria{}, moved("bob", nil), true},
		{"glob match", Criteria{TypeGlob: "CARD_*"}, moved("bob", nil), true},
		{"glob miss", Criteria{TypeGlob: "LIST_*"}, moved("bob", nil), false},
		{"bad glob", Criteria{TypeGlob: "["}, moved("bob", nil), false},
		{"user match", Criteria{Username: "bob"}, moved("bob", nil), true},
		{"user miss", Criteria{Username: "ann"}, moved("bob", nil), false},
		{"receive time inside", Criteria{Since: base.Add(-time.Minute)}, moved("bob", nil), true},
		{"event timestamp wins", Criteria{Since: base.Add(-time.Minute)}, moved("bob", stamped), false},
		{"until", Criteria{Until: base.Add(-30 * time.Minute)}, moved("bob", stamped), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.criteria.MatchesEvent(tt.ev, base))
		})
	}
}

func TestMatchesActivity(t *testing.T) {
	entry := &api.Activity{
		Username:     "ann",
		ActivityType: "LIST_CREATED",
		CreatedAt:    &board.Timestamp{Time: base},
	}

	assert.True(t, (&Criteria{TypeGlob: "LIST_*", Username: "ann"}).MatchesActivity(entry))
	assert.False(t, (&Criteria{Since: base.Add(time.Second)}).MatchesActivity(entry))
	assert.False(t, (&Criteria{Since: base}).MatchesActivity(&api.Activity{}), "undated entries fail time bounds")
}

func TestHasFilters(t *testing.T) {
	assert.False(t, (&Criteria{}).HasFilters())
	assert.True(t, (&Criteria{TypeGlob: "CARD_*"}).HasFilters())
	assert.True(t, (&Criteria{Until: base}).HasFilters())
}
