package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrNotConnected is returned by operations that need a live connection.
var ErrNotConnected = errors.New("message bus not connected")

// State is the connection lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Handler receives decoded events for a board, in delivery order.
type Handler func(Event)

// HandlerID identifies one registered handler.
type HandlerID uint64

type handlerEntry struct {
	id HandlerID
	fn Handler
}

// boardTopic is the registry entry for one board: its handlers in
// registration order and the live topic subscription, if any.
type boardTopic struct {
	handlers []handlerEntry
	sub      TopicSubscription
}

// Option configures a Manager.
type Option func(*Manager)

// WithReconnectDelay overrides the fixed retry delay after transport loss.
func WithReconnectDelay(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.reconnectDelay = d
		}
	}
}

// WithLogger sets the logger used by the manager.
func WithLogger(l logrus.FieldLogger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// Manager owns one logical connection to the message bus and multiplexes
// per-board topic subscriptions over it.
//
// A Manager is created once at application start, shared by every board view
// that needs it, and torn down with Close at shutdown. It is safe for
// concurrent use. Handlers are called from a per-board delivery goroutine and
// must not block.
type Manager struct {
	dial           DialFunc
	reconnectDelay time.Duration
	log            logrus.FieldLogger

	ctx    context.Context
	cancel context.CancelFunc

	// connectMu serialises dial attempts so Connect stays idempotent.
	connectMu sync.Mutex

	mu          sync.Mutex
	state       State
	credential  string
	transport   Transport
	boards      map[int64]*boardTopic
	nextID      HandlerID
	listeners   map[int]func(State)
	nextListen  int
	pending     []State
	retryCancel context.CancelFunc

	// wantConnected is set by a successful Connect and cleared by
	// Disconnect. Retry after transport loss depends on it, not on the
	// credential, which is empty for transports without bearer auth.
	// Guarded by mu.
	wantConnected bool
}

// NewManager creates a disconnected manager that dials with the given function.
func NewManager(dial DialFunc, opts ...Option) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		dial:           dial,
		reconnectDelay: DefaultReconnectDelay,
		log:            logrus.WithField("component", "bus"),
		ctx:            ctx,
		cancel:         cancel,
		state:          StateDisconnected,
		boards:         make(map[int64]*boardTopic),
		listeners:      make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsConnected reports whether the manager currently holds a live transport.
func (m *Manager) IsConnected() bool {
	return m.State() == StateConnected
}

// OnStateChange registers a callback invoked after every state transition
// and returns a func that removes it. Callbacks run without the manager lock
// held, in registration order.
func (m *Manager) OnStateChange(fn func(State)) (remove func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextListen
	m.nextListen++
	m.listeners[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}

// ListenerCount returns the number of registered state listeners.
func (m *Manager) ListenerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.listeners)
}

// Connect establishes the connection using the bearer credential.
//
// Calling Connect while already connected returns nil without creating a
// second transport. A failed attempt is returned to the caller and is not
// retried; automatic retry only follows the loss of an established connection
// and continues until Disconnect or Close. The credential may be empty.
func (m *Manager) Connect(ctx context.Context, credential string) error {
	m.connectMu.Lock()
	defer m.connectMu.Unlock()

	m.mu.Lock()
	if m.state == StateConnected {
		m.mu.Unlock()
		return nil
	}
	if m.ctx.Err() != nil {
		m.mu.Unlock()
		return fmt.Errorf("manager is closed")
	}
	m.unlockAndNotify()

	if err := m.establish(ctx, credential); err != nil {
		return fmt.Errorf("failed to connect to message bus: %w", err)
	}
	m.log.Info("Connected to message bus")
	return nil
}

// establish dials and installs a transport. Caller holds connectMu.
func (m *Manager) establish(ctx context.Context, credential string) error {
	m.mu.Lock()
	m.transition(StateConnecting)
	m.unlockAndNotify()

	t, err := m.dial(ctx, credential)

	m.mu.Lock()
	if err != nil {
		m.transition(StateDisconnected)
		m.unlockAndNotify()
		return err
	}
	if m.ctx.Err() != nil || ctx.Err() != nil {
		m.transition(StateDisconnected)
		m.unlockAndNotify()
		t.Close()
		return fmt.Errorf("connect abandoned: %w", context.Canceled)
	}
	if m.retryCancel != nil {
		m.retryCancel()
		m.retryCancel = nil
	}
	m.credential = credential
	m.wantConnected = true
	m.transport = t
	m.transition(StateConnected)
	m.resubscribeLocked(t)
	m.unlockAndNotify()

	go m.watch(t)
	return nil
}

// Subscribe registers a handler for a board's events.
//
// Only the first registration for a board opens the topic subscription and
// sends the subscribe-intent message; later registrations join the existing
// fan-out. Handlers run in registration order.
func (m *Manager) Subscribe(boardID int64, handler Handler) (HandlerID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateConnected || m.transport == nil {
		m.log.WithField("board_id", boardID).Warn("Cannot subscribe to board: not connected")
		return 0, ErrNotConnected
	}

	m.nextID++
	id := m.nextID

	topic, exists := m.boards[boardID]
	if exists {
		topic.handlers = append(topic.handlers, handlerEntry{id: id, fn: handler})
		m.log.WithField("board_id", boardID).Debug("Already subscribed to board, added handler")
		return id, nil
	}

	topic = &boardTopic{handlers: []handlerEntry{{id: id, fn: handler}}}
	if err := m.openLocked(m.transport, boardID, topic); err != nil {
		return 0, fmt.Errorf("failed to subscribe to board %d: %w", boardID, err)
	}
	m.boards[boardID] = topic
	return id, nil
}

// RemoveHandler drops a single handler. Removing the last handler for a board
// tears down its topic subscription.
func (m *Manager) RemoveHandler(boardID int64, id HandlerID) {
	m.mu.Lock()
	topic, ok := m.boards[boardID]
	if !ok {
		m.mu.Unlock()
		return
	}
	for i, h := range topic.handlers {
		if h.id == id {
			topic.handlers = append(topic.handlers[:i:i], topic.handlers[i+1:]...)
			break
		}
	}
	if len(topic.handlers) > 0 {
		m.mu.Unlock()
		return
	}
	delete(m.boards, boardID)
	m.mu.Unlock()

	if topic.sub != nil {
		topic.sub.Close()
	}
}

// Unsubscribe tears down a board's topic subscription and drops all of its
// handlers. It is a no-op for boards that are not subscribed.
func (m *Manager) Unsubscribe(boardID int64) {
	m.mu.Lock()
	topic, ok := m.boards[boardID]
	if ok {
		delete(m.boards, boardID)
	}
	m.mu.Unlock()

	if !ok {
		return
	}
	if topic.sub != nil {
		topic.sub.Close()
	}
	m.log.WithField("board_id", boardID).Info("Unsubscribed from board")
}

// Subscribed reports whether the board has registered handlers.
func (m *Manager) Subscribed(boardID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.boards[boardID]
	return ok
}

// HandlerCount returns the number of handlers registered for a board.
func (m *Manager) HandlerCount(boardID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if topic, ok := m.boards[boardID]; ok {
		return len(topic.handlers)
	}
	return 0
}

// PublishCardMove sends a card-move broadcast for the board. It is
// fire-and-forget: the server may ignore it.
func (m *Manager) PublishCardMove(ctx context.Context, boardID, cardID, newListID int64, newPosition int) error {
	m.mu.Lock()
	t := m.transport
	m.mu.Unlock()
	if t == nil {
		m.log.Warn("Cannot send card move: not connected")
		return ErrNotConnected
	}

	body, err := json.Marshal(struct {
		CardID      int64 `json:"cardId"`
		NewListID   int64 `json:"newListId"`
		NewPosition int   `json:"newPosition"`
	}{cardID, newListID, newPosition})
	if err != nil {
		return fmt.Errorf("failed to marshal card move: %w", err)
	}
	if err := t.Send(ctx, boardID, DestinationCardMove, body); err != nil {
		return fmt.Errorf("failed to send card move: %w", err)
	}
	return nil
}

// Disconnect unsubscribes every board, closes the transport, stops any
// pending reconnect and forgets the credential.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	t := m.transport
	topics := m.boards
	m.transport = nil
	m.credential = ""
	m.wantConnected = false
	m.boards = make(map[int64]*boardTopic)
	if m.retryCancel != nil {
		m.retryCancel()
		m.retryCancel = nil
	}
	m.transition(StateDisconnected)
	m.unlockAndNotify()

	for _, topic := range topics {
		if topic.sub != nil {
			topic.sub.Close()
		}
	}
	if t != nil {
		t.Close()
		m.log.Info("Disconnected from message bus")
	}
}

// Close disconnects and releases the manager. Implements io.Closer.
func (m *Manager) Close() error {
	m.Disconnect()
	m.cancel()
	return nil
}

// openLocked opens a board topic on the transport, sends the subscribe-intent
// and starts delivery. Caller holds mu.
func (m *Manager) openLocked(t Transport, boardID int64, topic *boardTopic) error {
	sub, err := t.Subscribe(m.ctx, boardID)
	if err != nil {
		return err
	}
	topic.sub = sub
	go m.deliver(boardID, sub)

	if err := t.Send(m.ctx, boardID, DestinationSubscribe, []byte("{}")); err != nil {
		m.log.WithError(err).WithField("board_id", boardID).Warn("Failed to send subscribe intent")
	}
	m.log.WithField("board_id", boardID).Info("Subscribed to board updates")
	return nil
}

// resubscribeLocked reopens every registered board on a fresh transport.
// Caller holds mu.
func (m *Manager) resubscribeLocked(t Transport) {
	for boardID, topic := range m.boards {
		if topic.sub != nil {
			continue
		}
		if err := m.openLocked(t, boardID, topic); err != nil {
			m.log.WithError(err).WithField("board_id", boardID).Error("Failed to resubscribe to board")
		}
	}
}

// deliver decodes payloads from one topic subscription and fans them out.
// It exits when the subscription closes.
func (m *Manager) deliver(boardID int64, sub TopicSubscription) {
	for raw := range sub.Messages() {
		ev, err := DecodeEnvelope(raw)
		if err != nil {
			m.log.WithError(err).WithField("board_id", boardID).Warn("Discarding malformed message")
			continue
		}
		m.log.WithFields(logrus.Fields{
			"board_id": boardID,
			"type":     ev.EventHeader().Type,
		}).Debug("Received message")

		for _, h := range m.handlersFor(boardID, sub) {
			h(ev)
		}
	}
}

// handlersFor snapshots the handlers for a board, but only while sub is still
// the board's live subscription.
func (m *Manager) handlersFor(boardID int64, sub TopicSubscription) []Handler {
	m.mu.Lock()
	defer m.mu.Unlock()
	topic, ok := m.boards[boardID]
	if !ok || topic.sub != sub {
		return nil
	}
	out := make([]Handler, len(topic.handlers))
	for i, h := range topic.handlers {
		out[i] = h.fn
	}
	return out
}

// watch waits for transport loss and schedules reconnects unless the
// connection was dropped on purpose.
func (m *Manager) watch(t Transport) {
	select {
	case <-t.Done():
	case <-m.ctx.Done():
		return
	}

	m.mu.Lock()
	if m.transport != t {
		// Replaced or closed deliberately.
		m.mu.Unlock()
		return
	}
	m.transport = nil
	var dead []TopicSubscription
	for _, topic := range m.boards {
		if topic.sub != nil {
			dead = append(dead, topic.sub)
			topic.sub = nil
		}
	}
	m.transition(StateDisconnected)
	var retryCtx context.Context
	if m.wantConnected {
		retryCtx, m.retryCancel = context.WithCancel(m.ctx)
	}
	m.unlockAndNotify()

	for _, sub := range dead {
		sub.Close()
	}
	t.Close()

	if retryCtx == nil {
		m.log.Warn("Message bus connection lost")
		return
	}
	m.log.WithField("retry_in", m.reconnectDelay).Warn("Message bus connection lost, will reconnect")
	go m.reconnect(retryCtx)
}

// reconnect retries with a fixed delay until connected or cancelled by
// Disconnect or Close. The last credential is reused.
func (m *Manager) reconnect(ctx context.Context) {
	timer := time.NewTimer(m.reconnectDelay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		m.connectMu.Lock()
		m.mu.Lock()
		credential := m.credential
		done := m.state == StateConnected || !m.wantConnected || ctx.Err() != nil
		m.mu.Unlock()
		if done {
			m.connectMu.Unlock()
			return
		}

		err := m.establish(ctx, credential)
		m.connectMu.Unlock()
		if err == nil {
			m.log.Info("Reconnected to message bus")
			return
		}
		m.log.WithError(err).WithField("retry_in", m.reconnectDelay).Warn("Reconnect attempt failed")
		timer.Reset(m.reconnectDelay)
	}
}

// transition records a state change for delivery after unlock. Caller holds mu.
func (m *Manager) transition(s State) {
	if m.state == s {
		return
	}
	m.state = s
	m.pending = append(m.pending, s)
}

// unlockAndNotify releases mu and then runs state listeners for every
// transition recorded while it was held.
func (m *Manager) unlockAndNotify() {
	pending := m.pending
	m.pending = nil
	ids := make([]int, 0, len(m.listeners))
	for id := range m.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	listeners := make([]func(State), len(ids))
	for i, id := range ids {
		listeners[i] = m.listeners[id]
	}
	m.mu.Unlock()

	for _, s := range pending {
		for _, fn := range listeners {
			fn(s)
		}
	}
}
