// Package board provides the ordered in-memory model of a task board:
// boards, lists, cards, and the position-preserving mutations on them.
package board

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Board is a single task board with its ordered lists.
// While a board view is active the Board is owned by exactly one Model.
type Board struct {
	ID            int64      `json:"id"`
	Name          string     `json:"name"`
	Description   string     `json:"description,omitempty"`
	Color         string     `json:"color,omitempty"`
	OwnerID       int64      `json:"ownerId,omitempty"`
	OwnerUsername string     `json:"ownerUsername,omitempty"`
	Archived      bool       `json:"archived"`
	Lists         []*List    `json:"lists"`
	CreatedAt     *Timestamp `json:"createdAt,omitempty"`
	UpdatedAt     *Timestamp `json:"updatedAt,omitempty"`
}

// List is a column on a board. Position orders it among its sibling lists.
type List struct {
	ID        int64      `json:"id"`
	BoardID   int64      `json:"boardId"`
	Name      string     `json:"name"`
	Position  int        `json:"position"`
	Cards     []*Card    `json:"cards"`
	CreatedAt *Timestamp `json:"createdAt,omitempty"`
	UpdatedAt *Timestamp `json:"updatedAt,omitempty"`
}

// Card is a single task. Position is zero-based and contiguous within its list.
type Card struct {
	ID                 int64      `json:"id"`
	ListID             int64      `json:"listId"`
	ListName           string     `json:"listName,omitempty"`
	Position           int        `json:"position"`
	Title              string     `json:"title"`
	Description        string     `json:"description,omitempty"`
	Priority           Priority   `json:"priority"`
	DueDate            *Timestamp `json:"dueDate,omitempty"`
	AssignedToID       *int64     `json:"assignedToId,omitempty"`
	AssignedToUsername string     `json:"assignedToUsername,omitempty"`
	AssignedToFullName string     `json:"assignedToFullName,omitempty"`
	CreatedAt          *Timestamp `json:"createdAt,omitempty"`
	UpdatedAt          *Timestamp `json:"updatedAt,omitempty"`
}

// Priority is the urgency of a card.
type Priority string

const (
	PriorityLow      Priority = "LOW"
	PriorityMedium   Priority = "MEDIUM"
	PriorityHigh     Priority = "HIGH"
	PriorityCritical Priority = "CRITICAL"
)

// Validate checks if the Priority is a valid enum value.
func (p Priority) Validate() error {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return nil
	default:
		return fmt.Errorf("unknown priority: %q", p)
	}
}

// MoveIntent describes where a card should go during a drag gesture.
// It is never persisted.
type MoveIntent struct {
	CardID       int64
	SourceListID int64
	DestListID   int64
	DestIndex    int
}

// Timestamp is a JSON time that accepts RFC3339 as well as the zone-less
// ISO-8601 layout the persistence API emits.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses any of the accepted layouts. Zone-less values are read as UTC.
func ParseTimestamp(s string) (Timestamp, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Timestamp{Time: t}, nil
		}
	}
	return Timestamp{}, fmt.Errorf("invalid timestamp: %q", s)
}

// MarshalJSON writes the timestamp as RFC3339.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Time.Format(time.RFC3339Nano))
}

// UnmarshalJSON accepts a string in any supported layout, or null.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp must be a string: %w", err)
	}
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// SortedLists returns the board's lists ordered by Position.
// The underlying slice is left untouched.
func (b *Board) SortedLists() []*List {
	lists := make([]*List, len(b.Lists))
	copy(lists, b.Lists)
	sort.SliceStable(lists, func(i, j int) bool {
		return lists[i].Position < lists[j].Position
	})
	return lists
}

// Clone returns a deep copy of the board.
func (b *Board) Clone() *Board {
	if b == nil {
		return nil
	}
	out := *b
	out.CreatedAt = cloneTimestamp(b.CreatedAt)
	out.UpdatedAt = cloneTimestamp(b.UpdatedAt)
	out.Lists = make([]*List, len(b.Lists))
	for i, l := range b.Lists {
		out.Lists[i] = l.Clone()
	}
	return &out
}

// Clone returns a deep copy of the list and its cards.
func (l *List) Clone() *List {
	if l == nil {
		return nil
	}
	out := *l
	out.CreatedAt = cloneTimestamp(l.CreatedAt)
	out.UpdatedAt = cloneTimestamp(l.UpdatedAt)
	out.Cards = make([]*Card, len(l.Cards))
	for i, c := range l.Cards {
		out.Cards[i] = c.Clone()
	}
	return &out
}

// Clone returns a copy of the card.
func (c *Card) Clone() *Card {
	if c == nil {
		return nil
	}
	out := *c
	out.DueDate = cloneTimestamp(c.DueDate)
	out.CreatedAt = cloneTimestamp(c.CreatedAt)
	out.UpdatedAt = cloneTimestamp(c.UpdatedAt)
	if c.AssignedToID != nil {
		id := *c.AssignedToID
		out.AssignedToID = &id
	}
	return &out
}

func cloneTimestamp(t *Timestamp) *Timestamp {
	if t == nil {
		return nil
	}
	out := *t
	return &out
}
