package notify

import (
	"sync"
	"testing"
	"time"

	"github.com/freudmarin/TaskBoardApp/pkg/bus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func setupQueue(t *testing.T, opts ...Option) (*Queue, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	opts = append([]Option{WithClock(clock.Now), WithLogger(l)}, opts...)
	return New(42, "ann", opts...), clock
}

func event(t *testing.T, raw string) bus.Event {
	t.Helper()
	ev, err := bus.DecodeEnvelope([]byte(raw))
	require.NoError(t, err)
	return ev
}

func texts(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Text
	}
	return out
}

func TestPhrase(t *testing.T) {
	tests := map[bus.EventType]string{
		bus.TypeCardMoved:         "moved a card",
		bus.TypeCardMoveBroadcast: "moved a card",
		bus.TypeCardCreated:       "created a card",
		bus.TypeCardUpdated:       "updated a card",
		bus.TypeCardDeleted:       "deleted a card",
		bus.TypeListCreated:       "created a list",
		bus.TypeListUpdated:       "updated a list",
		bus.TypeListDeleted:       "deleted a list",
		bus.TypeSubscriptionAck:   "made a change",
		"SOMETHING_ELSE":          "made a change",
	}
	for typ, want := range tests {
		t.Run(string(typ), func(t *testing.T) {
			assert.Equal(t, want, Phrase(typ))
		})
	}
}

func TestObserve(t *testing.T) {
	t.Run("records remote user action", func(t *testing.T) {
		q, _ := setupQueue(t)
		e, ok := q.Observe(event(t, `{"type":"CARD_CREATED","userId":7,"username":"bob"}`))
		require.True(t, ok)
		assert.Equal(t, "bob created a card", e.Text)
		assert.NotEmpty(t, e.ID)
		assert.Equal(t, []string{"bob created a card"}, texts(q.Snapshot()))
	})

	t.Run("skips local user by name and id", func(t *testing.T) {
		q, _ := setupQueue(t)
		_, ok := q.Observe(event(t, `{"type":"CARD_CREATED","userId":7,"username":"ann"}`))
		assert.False(t, ok)
		_, ok = q.Observe(event(t, `{"type":"CARD_CREATED","userId":42,"username":"ann-laptop"}`))
		assert.False(t, ok)
		assert.Empty(t, q.Snapshot())
	})

	t.Run("skips events without a username", func(t *testing.T) {
		q, _ := setupQueue(t)
		_, ok := q.Observe(event(t, `{"type":"CARD_MOVED","data":{"card":{"id":1}}}`))
		assert.False(t, ok)
	})
}

func TestCapacity(t *testing.T) {
	q, _ := setupQueue(t)
	for _, name := range []string{"u1", "u2", "u3", "u4", "u5", "u6", "u7"} {
		q.Push(bus.TypeListCreated, name)
	}

	assert.Equal(t, []string{
		"u7 created a list",
		"u6 created a list",
		"u5 created a list",
		"u4 created a list",
		"u3 created a list",
	}, texts(q.Snapshot()))
}

func TestExpiry(t *testing.T) {
	q, clock := setupQueue(t)
	q.Push(bus.TypeCardMoved, "bob")
	clock.Advance(3 * time.Second)
	q.Push(bus.TypeCardMoved, "bob")

	entries := q.Snapshot()
	require.Len(t, entries, 2)
	assert.NotEqual(t, entries[0].ID, entries[1].ID)

	clock.Advance(2 * time.Second)
	assert.Len(t, q.Snapshot(), 1, "identical text expires independently")
	assert.Equal(t, 1, q.Prune(clock.Now()))
	assert.Equal(t, 1, q.Len())

	clock.Advance(3 * time.Second)
	assert.Equal(t, 1, q.Prune(clock.Now()))
	assert.Equal(t, 0, q.Prune(clock.Now()))
	assert.Empty(t, q.Snapshot())
}

func TestOptions(t *testing.T) {
	q, clock := setupQueue(t, WithCapacity(2), WithLifetime(time.Second))
	q.Push(bus.TypeCardDeleted, "a")
	q.Push(bus.TypeCardDeleted, "b")
	q.Push(bus.TypeCardDeleted, "c")
	assert.Equal(t, []string{"c deleted a card", "b deleted a card"}, texts(q.Snapshot()))

	clock.Advance(time.Second)
	assert.Empty(t, q.Snapshot())
}

func TestSubscribers(t *testing.T) {
	q, clock := setupQueue(t)

	var seen [][]string
	q.Subscribe(func([]Entry) { panic("boom") })
	q.Subscribe(func(entries []Entry) { seen = append(seen, texts(entries)) })

	assert.NotPanics(t, func() { q.Push(bus.TypeCardUpdated, "bob") })
	clock.Advance(DefaultLifetime)
	q.Prune(clock.Now())

	assert.Equal(t, [][]string{{"bob updated a card"}, {}}, seen)
}
