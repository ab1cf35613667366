package board

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testBoard builds a board with list 1 = [A(1), B(2), C(3)] and list 2 = [D(4)].
func testBoard() *Board {
	return &Board{
		ID:   10,
		Name: "Sprint",
		Lists: []*List{
			{ID: 1, BoardID: 10, Name: "Todo", Position: 0, Cards: []*Card{
				{ID: 1, ListID: 1, Position: 0, Title: "A", Priority: PriorityLow},
				{ID: 2, ListID: 1, Position: 1, Title: "B", Priority: PriorityMedium},
				{ID: 3, ListID: 1, Position: 2, Title: "C", Priority: PriorityHigh},
			}},
			{ID: 2, BoardID: 10, Name: "Done", Position: 1, Cards: []*Card{
				{ID: 4, ListID: 2, Position: 0, Title: "D", Priority: PriorityCritical},
			}},
		},
	}
}

func titles(t *testing.T, m *Model, listID int64) []string {
	t.Helper()
	l, ok := m.List(listID)
	require.True(t, ok)
	out := make([]string, len(l.Cards))
	for i, c := range l.Cards {
		assert.Equal(t, i, c.Position, "card %s position", c.Title)
		out[i] = c.Title
	}
	return out
}

func TestMoveCard(t *testing.T) {
	t.Run("reorders within a single list", func(t *testing.T) {
		m := NewModel(testBoard())

		require.NoError(t, m.MoveCard(1, 1, 1, 2))

		assert.Equal(t, []string{"B", "C", "A"}, titles(t, m, 1))
		assert.NoError(t, m.Validate())
	})

	t.Run("moves across lists and reindexes both", func(t *testing.T) {
		m := NewModel(testBoard())

		require.NoError(t, m.MoveCard(2, 1, 2, 1))

		assert.Equal(t, []string{"A", "C"}, titles(t, m, 1))
		assert.Equal(t, []string{"D", "B"}, titles(t, m, 2))
		card, listID, idx, ok := m.FindCard(2)
		require.True(t, ok)
		assert.Equal(t, int64(2), listID)
		assert.Equal(t, int64(2), card.ListID)
		assert.Equal(t, "Done", card.ListName)
		assert.Equal(t, 1, idx)
	})

	t.Run("shifts the existing card when inserted at index zero", func(t *testing.T) {
		m := NewModel(testBoard())

		require.NoError(t, m.MoveCard(2, 1, 2, 0))

		assert.Equal(t, []string{"B", "D"}, titles(t, m, 2))
	})

	t.Run("clamps destination index", func(t *testing.T) {
		m := NewModel(testBoard())

		require.NoError(t, m.MoveCard(1, 1, 2, 99))
		assert.Equal(t, []string{"D", "A"}, titles(t, m, 2))

		require.NoError(t, m.MoveCard(3, 1, 2, -5))
		assert.Equal(t, []string{"C", "D", "A"}, titles(t, m, 2))
		assert.NoError(t, m.Validate())
	})

	t.Run("same inputs on same start give same structure", func(t *testing.T) {
		m1 := NewModel(testBoard())
		m2 := NewModel(testBoard())

		require.NoError(t, m1.MoveCard(3, 1, 2, 0))
		require.NoError(t, m2.MoveCard(3, 1, 2, 0))

		assert.Equal(t, m1.Board(), m2.Board())
	})

	t.Run("repeating a move against a moved model is rejected", func(t *testing.T) {
		m := NewModel(testBoard())

		require.NoError(t, m.MoveCard(1, 1, 2, 0))
		err := m.MoveCard(1, 1, 2, 0)

		assert.True(t, errors.Is(err, ErrCardNotFound))
	})

	t.Run("unknown lists leave the model untouched", func(t *testing.T) {
		m := NewModel(testBoard())
		before := m.Board()

		err := m.MoveCard(1, 1, 42, 0)
		assert.True(t, errors.Is(err, ErrListNotFound))

		err = m.MoveCard(1, 42, 1, 0)
		assert.True(t, errors.Is(err, ErrListNotFound))

		assert.Equal(t, before, m.Board())
	})

	t.Run("fails without a board", func(t *testing.T) {
		m := NewModel(nil)
		assert.ErrorIs(t, m.MoveCard(1, 1, 1, 0), ErrNoBoard)
	})
}

func TestReplaceBoard(t *testing.T) {
	t.Run("adopts snapshot wholesale", func(t *testing.T) {
		m := NewModel(testBoard())
		require.NoError(t, m.MoveCard(1, 1, 2, 0))

		m.ReplaceBoard(testBoard())

		assert.Equal(t, []string{"A", "B", "C"}, titles(t, m, 1))
		assert.Equal(t, []string{"D"}, titles(t, m, 2))
	})

	t.Run("is idempotent", func(t *testing.T) {
		once := NewModel(nil)
		once.ReplaceBoard(testBoard())

		twice := NewModel(nil)
		twice.ReplaceBoard(testBoard())
		twice.ReplaceBoard(testBoard())

		assert.Equal(t, once.Board(), twice.Board())
	})

	t.Run("does not alias the snapshot", func(t *testing.T) {
		snap := testBoard()
		m := NewModel(snap)

		snap.Lists[0].Cards[0].Title = "mutated"

		card, _, _, ok := m.FindCard(1)
		require.True(t, ok)
		assert.Equal(t, "A", card.Title)
	})

	t.Run("orders cards by server position", func(t *testing.T) {
		snap := testBoard()
		cards := snap.Lists[0].Cards
		cards[0], cards[2] = cards[2], cards[0]

		m := NewModel(snap)

		assert.Equal(t, []string{"A", "B", "C"}, titles(t, m, 1))
	})

	t.Run("normalises nil slices", func(t *testing.T) {
		m := NewModel(&Board{ID: 3, Lists: []*List{{ID: 9}}})

		b := m.Board()
		assert.NotNil(t, b.Lists[0].Cards)
		assert.Equal(t, int64(3), m.BoardID())
	})
}

func TestCardMutations(t *testing.T) {
	t.Run("AddCard inserts at position and reindexes", func(t *testing.T) {
		m := NewModel(testBoard())

		require.NoError(t, m.AddCard(&Card{ID: 5, ListID: 1, Position: 1, Title: "E"}))

		assert.Equal(t, []string{"A", "E", "B", "C"}, titles(t, m, 1))
		assert.Len(t, m.CardIDs(), 5)
	})

	t.Run("AddCard appends when position is out of range", func(t *testing.T) {
		m := NewModel(testBoard())

		require.NoError(t, m.AddCard(&Card{ID: 5, ListID: 2, Position: 17, Title: "E"}))

		assert.Equal(t, []string{"D", "E"}, titles(t, m, 2))
	})

	t.Run("AddCard rejects duplicates and unknown lists", func(t *testing.T) {
		m := NewModel(testBoard())

		assert.ErrorIs(t, m.AddCard(&Card{ID: 1, ListID: 2}), ErrDuplicateCard)
		assert.ErrorIs(t, m.AddCard(&Card{ID: 9, ListID: 77}), ErrListNotFound)
		assert.Len(t, m.CardIDs(), 4)
	})

	t.Run("UpdateCard replaces fields in place", func(t *testing.T) {
		m := NewModel(testBoard())

		require.NoError(t, m.UpdateCard(&Card{ID: 2, ListID: 1, Position: 1, Title: "B2", Priority: PriorityHigh}))

		card, _, idx, ok := m.FindCard(2)
		require.True(t, ok)
		assert.Equal(t, "B2", card.Title)
		assert.Equal(t, PriorityHigh, card.Priority)
		assert.Equal(t, 1, idx)
	})

	t.Run("UpdateCard relocates when the entity changed list", func(t *testing.T) {
		m := NewModel(testBoard())

		require.NoError(t, m.UpdateCard(&Card{ID: 1, ListID: 2, Position: 0, Title: "A"}))

		assert.Equal(t, []string{"B", "C"}, titles(t, m, 1))
		assert.Equal(t, []string{"A", "D"}, titles(t, m, 2))
	})

	t.Run("RemoveCard closes the gap", func(t *testing.T) {
		m := NewModel(testBoard())

		require.NoError(t, m.RemoveCard(2))

		assert.Equal(t, []string{"A", "C"}, titles(t, m, 1))
		assert.ErrorIs(t, m.RemoveCard(2), ErrCardNotFound)
	})
}

func TestListMutations(t *testing.T) {
	t.Run("AddList normalises cards", func(t *testing.T) {
		m := NewModel(testBoard())

		require.NoError(t, m.AddList(&List{ID: 3, Name: "Review", Position: 2, Cards: []*Card{
			{ID: 8, Position: 5, Title: "Y"},
			{ID: 7, Position: 3, Title: "X"},
		}}))

		assert.Equal(t, []string{"X", "Y"}, titles(t, m, 3))
		assert.NoError(t, m.Validate())
		l, _ := m.List(3)
		assert.Equal(t, int64(10), l.BoardID)
	})

	t.Run("AddList rejects duplicates", func(t *testing.T) {
		m := NewModel(testBoard())

		assert.ErrorIs(t, m.AddList(&List{ID: 1}), ErrDuplicateList)
		assert.ErrorIs(t, m.AddList(&List{ID: 5, Cards: []*Card{{ID: 1}}}), ErrDuplicateCard)
	})

	t.Run("UpdateList keeps cards", func(t *testing.T) {
		m := NewModel(testBoard())

		require.NoError(t, m.UpdateList(&List{ID: 1, Name: "Backlog", Position: 4}))

		l, _ := m.List(1)
		assert.Equal(t, "Backlog", l.Name)
		assert.Equal(t, 4, l.Position)
		assert.Len(t, l.Cards, 3)
		assert.Equal(t, "Backlog", l.Cards[0].ListName)
	})

	t.Run("RemoveList drops its cards", func(t *testing.T) {
		m := NewModel(testBoard())

		require.NoError(t, m.RemoveList(1))

		assert.Equal(t, []int64{4}, m.CardIDs())
		assert.ErrorIs(t, m.RemoveList(1), ErrListNotFound)
	})

	t.Run("UpdateBoardMeta leaves lists", func(t *testing.T) {
		m := NewModel(testBoard())

		require.NoError(t, m.UpdateBoardMeta(&Board{Name: "Renamed", Color: "#fff", Archived: true}))

		b := m.Board()
		assert.Equal(t, "Renamed", b.Name)
		assert.True(t, b.Archived)
		assert.Len(t, b.Lists, 2)
	})
}

func TestSortedLists(t *testing.T) {
	b := testBoard()
	b.Lists[0].Position, b.Lists[1].Position = 5, 1

	sorted := b.SortedLists()

	assert.Equal(t, int64(2), sorted[0].ID)
	assert.Equal(t, int64(1), sorted[1].ID)
	assert.Equal(t, int64(1), b.Lists[0].ID, "underlying order untouched")
}

func TestValidateBoard(t *testing.T) {
	t.Run("accepts a settled board", func(t *testing.T) {
		assert.NoError(t, ValidateBoard(testBoard()))
	})

	t.Run("detects position gaps", func(t *testing.T) {
		b := testBoard()
		b.Lists[0].Cards[2].Position = 3
		assert.Error(t, ValidateBoard(b))
	})

	t.Run("detects duplicated cards", func(t *testing.T) {
		b := testBoard()
		b.Lists[1].Cards = append(b.Lists[1].Cards, &Card{ID: 1, ListID: 2, Position: 1})
		assert.Error(t, ValidateBoard(b))
	})

	t.Run("detects wrong parent reference", func(t *testing.T) {
		b := testBoard()
		b.Lists[1].Cards[0].ListID = 1
		assert.Error(t, ValidateBoard(b))
	})
}

// TestRandomOperationsKeepInvariants drives the model through a long random
// sequence and checks contiguity plus card accounting after each step.
func TestRandomOperationsKeepInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	m := NewModel(testBoard())
	nextID := int64(100)
	listIDs := []int64{1, 2}

	for step := 0; step < 2000; step++ {
		before := m.CardIDs()

		switch op := rng.Intn(4); op {
		case 0, 1: // move
			if len(before) == 0 {
				continue
			}
			cardID := before[rng.Intn(len(before))]
			_, src, _, ok := m.FindCard(cardID)
			require.True(t, ok)
			dst := listIDs[rng.Intn(len(listIDs))]
			require.NoError(t, m.MoveCard(cardID, src, dst, rng.Intn(8)-2))
			assert.Equal(t, before, m.CardIDs(), "step %d: move changed card set", step)

		case 2: // create
			nextID++
			dst := listIDs[rng.Intn(len(listIDs))]
			require.NoError(t, m.AddCard(&Card{ID: nextID, ListID: dst, Position: rng.Intn(6)}))
			assert.Len(t, m.CardIDs(), len(before)+1, "step %d: create", step)

		case 3: // delete
			if len(before) == 0 {
				continue
			}
			require.NoError(t, m.RemoveCard(before[rng.Intn(len(before))]))
			assert.Len(t, m.CardIDs(), len(before)-1, "step %d: delete", step)
		}

		require.NoError(t, m.Validate(), "step %d", step)
	}
}
