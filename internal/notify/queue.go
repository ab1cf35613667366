// Package notify keeps the short-lived "someone changed the board" messages
// shown while a board is open.
package notify

import (
	"fmt"
	"sync"
	"time"

	"github.com/freudmarin/TaskBoardApp/pkg/bus"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultCapacity is the most entries kept at once.
	DefaultCapacity = 5

	// DefaultLifetime is how long an entry stays visible.
	DefaultLifetime = 5 * time.Second
)

// Entry is one visible notification.
type Entry struct {
	ID        string
	Text      string
	Type      bus.EventType
	Username  string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Phrase returns the action text used for an event type.
func Phrase(t bus.EventType) string {
	switch t {
	case bus.TypeCardMoved, bus.TypeCardMoveBroadcast:
		return "moved a card"
	case bus.TypeCardCreated:
		return "created a card"
	case bus.TypeCardUpdated:
		return "updated a card"
	case bus.TypeCardDeleted:
		return "deleted a card"
	case bus.TypeListCreated:
		return "created a list"
	case bus.TypeListUpdated:
		return "updated a list"
	case bus.TypeListDeleted:
		return "deleted a list"
	default:
		return "made a change"
	}
}

// Option configures a Queue.
type Option func(*Queue)

// WithCapacity overrides DefaultCapacity.
func WithCapacity(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.capacity = n
		}
	}
}

// WithLifetime overrides DefaultLifetime.
func WithLifetime(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.lifetime = d
		}
	}
}

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) {
		if now != nil {
			q.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(q *Queue) {
		if l != nil {
			q.log = l
		}
	}
}

// Queue is a bounded, newest-first list of expiring notifications. It is safe
// for concurrent use.
type Queue struct {
	localUserID   int64
	localUsername string
	capacity      int
	lifetime      time.Duration
	now           func() time.Time
	log           logrus.FieldLogger

	mu          sync.Mutex
	entries     []Entry
	subscribers []func([]Entry)
}

// New creates an empty queue for the local identity. Events from that
// identity never produce entries.
func New(localUserID int64, localUsername string, opts ...Option) *Queue {
	q := &Queue{
		localUserID:   localUserID,
		localUsername: localUsername,
		capacity:      DefaultCapacity,
		lifetime:      DefaultLifetime,
		now:           time.Now,
		log:           logrus.WithField("component", "notify"),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Observe records a notification for ev when it names another user. It
// reports whether an entry was added.
func (q *Queue) Observe(ev bus.Event) (Entry, bool) {
	h := ev.EventHeader()
	if h.Username == "" || h.Username == q.localUsername || h.OriginatedBy(q.localUserID) {
		return Entry{}, false
	}
	return q.Push(h.Type, h.Username), true
}

// Push adds an entry for username performing an action of type t, evicting the
// oldest entry when full.
func (q *Queue) Push(t bus.EventType, username string) Entry {
	now := q.now()
	e := Entry{
		ID:        uuid.New().String(),
		Text:      fmt.Sprintf("%s %s", username, Phrase(t)),
		Type:      t,
		Username:  username,
		CreatedAt: now,
		ExpiresAt: now.Add(q.lifetime),
	}

	q.mu.Lock()
	q.entries = q.liveLocked(now)
	q.entries = append([]Entry{e}, q.entries...)
	if len(q.entries) > q.capacity {
		q.entries = q.entries[:q.capacity]
	}
	snapshot, subs := q.snapshotLocked()
	q.mu.Unlock()

	q.notify(snapshot, subs)
	return e
}

// Prune drops entries expired at now and reports how many were removed.
func (q *Queue) Prune(now time.Time) int {
	q.mu.Lock()
	before := len(q.entries)
	q.entries = q.liveLocked(now)
	removed := before - len(q.entries)
	if removed == 0 {
		q.mu.Unlock()
		return 0
	}
	snapshot, subs := q.snapshotLocked()
	q.mu.Unlock()

	q.notify(snapshot, subs)
	return removed
}

// Snapshot returns the entries still live at the current time, newest first.
func (q *Queue) Snapshot() []Entry {
	now := q.now()
	q.mu.Lock()
	defer q.mu.Unlock()
	live := q.liveLocked(now)
	out := make([]Entry, len(live))
	copy(out, live)
	return out
}

// Len returns the number of stored entries, expired or not.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Subscribe registers fn to receive the entry list after every change.
func (q *Queue) Subscribe(fn func([]Entry)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.subscribers = append(q.subscribers, fn)
}

func (q *Queue) liveLocked(now time.Time) []Entry {
	live := q.entries[:0:0]
	for _, e := range q.entries {
		if now.Before(e.ExpiresAt) {
			live = append(live, e)
		}
	}
	return live
}

func (q *Queue) snapshotLocked() ([]Entry, []func([]Entry)) {
	snapshot := make([]Entry, len(q.entries))
	copy(snapshot, q.entries)
	subs := make([]func([]Entry), len(q.subscribers))
	copy(subs, q.subscribers)
	return snapshot, subs
}

func (q *Queue) notify(entries []Entry, subs []func([]Entry)) {
	for _, fn := range subs {
		q.call(fn, entries)
	}
}

// call runs one subscriber; a panicking subscriber is logged and skipped.
func (q *Queue) call(fn func([]Entry), entries []Entry) {
	defer func() {
		if r := recover(); r != nil {
			q.log.WithField("panic", r).Error("Notification subscriber panicked")
		}
	}()
	fn(entries)
}
