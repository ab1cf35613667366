package board

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriorityValidate(t *testing.T) {
	validPriorities := []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical}
	for _, p := range validPriorities {
		t.Run(string(p), func(t *testing.T) {
			assert.NoError(t, p.Validate())
		})
	}

	t.Run("rejects unknown", func(t *testing.T) {
		err := Priority("URGENT").Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "unknown priority")
	})
}

func TestTimestampJSON(t *testing.T) {
	t.Run("parses zone-less server layout", func(t *testing.T) {
		var ts Timestamp
		require.NoError(t, json.Unmarshal([]byte(`"2024-03-01T09:30:15.123456"`), &ts))
		assert.Equal(t, 2024, ts.Year())
		assert.Equal(t, time.March, ts.Month())
		assert.Equal(t, 15, ts.Second())
	})

	t.Run("parses RFC3339", func(t *testing.T) {
		var ts Timestamp
		require.NoError(t, json.Unmarshal([]byte(`"2024-03-01T09:30:15Z"`), &ts))
		assert.Equal(t, 9, ts.Hour())
	})

	t.Run("null and empty leave zero value", func(t *testing.T) {
		var ts Timestamp
		require.NoError(t, json.Unmarshal([]byte(`null`), &ts))
		require.NoError(t, json.Unmarshal([]byte(`""`), &ts))
		assert.True(t, ts.IsZero())
	})

	t.Run("rejects garbage", func(t *testing.T) {
		var ts Timestamp
		assert.Error(t, json.Unmarshal([]byte(`"yesterday"`), &ts))
		assert.Error(t, json.Unmarshal([]byte(`42`), &ts))
	})

	t.Run("marshals as RFC3339", func(t *testing.T) {
		ts, err := ParseTimestamp("2024-03-01T09:30:15")
		require.NoError(t, err)
		data, err := json.Marshal(ts)
		require.NoError(t, err)
		assert.Equal(t, `"2024-03-01T09:30:15Z"`, string(data))
	})
}

func TestBoardDecoding(t *testing.T) {
	payload := `{
		"id": 5, "name": "Launch", "color": "#3498db", "ownerId": 42, "archived": false,
		"lists": [
			{"id": 11, "boardId": 5, "name": "Todo", "position": 0, "cards": [
				{"id": 100, "title": "Write", "listId": 11, "listName": "Todo", "position": 0,
				 "priority": "HIGH", "dueDate": "2024-05-01T00:00:00", "assignedToId": 7}
			]}
		],
		"createdAt": "2024-01-01T10:00:00"
	}`

	var b Board
	require.NoError(t, json.Unmarshal([]byte(payload), &b))

	require.Len(t, b.Lists, 1)
	require.Len(t, b.Lists[0].Cards, 1)
	card := b.Lists[0].Cards[0]
	assert.Equal(t, PriorityHigh, card.Priority)
	require.NotNil(t, card.DueDate)
	assert.Equal(t, time.May, card.DueDate.Month())
	require.NotNil(t, card.AssignedToID)
	assert.Equal(t, int64(7), *card.AssignedToID)
	assert.NoError(t, ValidateBoard(&b))
}

func TestClone(t *testing.T) {
	assignee := int64(3)
	due, err := ParseTimestamp("2024-05-01")
	require.NoError(t, err)
	b := testBoard()
	b.Lists[0].Cards[0].AssignedToID = &assignee
	b.Lists[0].Cards[0].DueDate = &due

	c := b.Clone()
	*c.Lists[0].Cards[0].AssignedToID = 99
	c.Lists[0].Cards[0].DueDate.Time = time.Time{}
	c.Lists[0].Name = "changed"

	assert.Equal(t, int64(3), *b.Lists[0].Cards[0].AssignedToID)
	assert.False(t, b.Lists[0].Cards[0].DueDate.IsZero())
	assert.Equal(t, "Todo", b.Lists[0].Name)
	assert.Nil(t, (*Board)(nil).Clone())
}
