// Package reconciler applies a local drag gesture to the board model as it
// happens and commits the final placement when the card is dropped.
package reconciler

import (
	"context"
	"errors"
	"fmt"

	"github.com/freudmarin/TaskBoardApp/pkg/board"
	"github.com/sirupsen/logrus"
)

var (
	// ErrNotDragging is returned by gesture calls made while no drag is active.
	ErrNotDragging = errors.New("no drag in progress")

	// ErrAlreadyDragging is returned by Start while another drag is active.
	ErrAlreadyDragging = errors.New("drag already in progress")
)

// State is the gesture state.
type State int

const (
	Idle State = iota
	Dragging
)

func (s State) String() string {
	if s == Dragging {
		return "dragging"
	}
	return "idle"
}

// Target is what the dragged card is currently over: another card or a
// list's drop surface.
type Target struct {
	cardID int64
	listID int64
}

// CardTarget targets the position of an existing card.
func CardTarget(cardID int64) Target { return Target{cardID: cardID} }

// ListTarget targets the end of a list.
func ListTarget(listID int64) Target { return Target{listID: listID} }

// IsCard reports whether the target is a card.
func (t Target) IsCard() bool { return t.cardID != 0 }

func (t Target) String() string {
	if t.IsCard() {
		return fmt.Sprintf("card %d", t.cardID)
	}
	return fmt.Sprintf("list %d", t.listID)
}

// Committer persists a card placement.
type Committer interface {
	MoveCard(ctx context.Context, cardID, newListID int64, newPosition int) error
}

// Refetcher loads the authoritative board.
type Refetcher interface {
	FetchBoard(ctx context.Context, boardID int64) (*board.Board, error)
}

// Intent is the placement computed at drop time.
type Intent struct {
	CardID   int64
	ListID   int64
	Position int

	// Changed is false when the card ends where the drag started; nothing is
	// committed then.
	Changed bool
}

// Outcome is the result of a completed drop.
type Outcome int

const (
	// Unchanged means the card was dropped where it started.
	Unchanged Outcome = iota
	// Committed means the server accepted the placement.
	Committed
	// Reverted means the commit failed and the model was replaced by a fresh snapshot.
	Reverted
)

func (o Outcome) String() string {
	switch o {
	case Committed:
		return "committed"
	case Reverted:
		return "reverted"
	default:
		return "unchanged"
	}
}

// Reconciler tracks one drag gesture against a board model. It is not safe for
// concurrent use.
type Reconciler struct {
	model *board.Model
	log   logrus.FieldLogger

	state     State
	cardID    int64
	origList  int64
	origIndex int
}

// New creates an idle reconciler over model.
func New(model *board.Model, log logrus.FieldLogger) *Reconciler {
	if log == nil {
		log = logrus.WithField("component", "reconciler")
	}
	return &Reconciler{model: model, log: log}
}

// State returns the gesture state.
func (r *Reconciler) State() State { return r.state }

// DraggedCard returns the card being dragged, or 0 when idle.
func (r *Reconciler) DraggedCard() int64 {
	if r.state != Dragging {
		return 0
	}
	return r.cardID
}

// Start begins dragging cardID and records where it started.
func (r *Reconciler) Start(cardID int64) error {
	if r.state == Dragging {
		return ErrAlreadyDragging
	}
	_, listID, index, ok := r.model.FindCard(cardID)
	if !ok {
		return fmt.Errorf("failed to start drag: card %d: %w", cardID, board.ErrCardNotFound)
	}
	r.state = Dragging
	r.cardID = cardID
	r.origList = listID
	r.origIndex = index
	return nil
}

// Over moves the dragged card to the position implied by target. It reports
// whether the model changed. No request is sent.
func (r *Reconciler) Over(target Target) (bool, error) {
	if r.state != Dragging {
		return false, ErrNotDragging
	}
	mi, err := r.placement(target)
	if err != nil {
		return false, err
	}

	_, _, curIndex, _ := r.model.FindCard(r.cardID)
	if mi.SourceListID == mi.DestListID && curIndex == mi.DestIndex {
		return false, nil
	}
	if err := r.model.MoveCard(mi.CardID, mi.SourceListID, mi.DestListID, mi.DestIndex); err != nil {
		return false, fmt.Errorf("failed to apply drag: %w", err)
	}
	return true, nil
}

// Placement reports the move Over would make for target without applying it.
func (r *Reconciler) Placement(target Target) (board.MoveIntent, error) {
	if r.state != Dragging {
		return board.MoveIntent{}, ErrNotDragging
	}
	return r.placement(target)
}

// DropIntent ends the gesture and computes the final placement from the
// target's list. If the card is not in that list it is moved to the end of it
// first, so the model always reflects the placement about to be committed.
func (r *Reconciler) DropIntent(target Target) (Intent, error) {
	if r.state != Dragging {
		return Intent{}, ErrNotDragging
	}
	defer r.reset()

	listID, err := r.targetList(target)
	if err != nil {
		return Intent{}, err
	}
	list, ok := r.model.List(listID)
	if !ok {
		return Intent{}, fmt.Errorf("drop target list %d: %w", listID, board.ErrListNotFound)
	}

	position := -1
	for i, c := range list.Cards {
		if c.ID == r.cardID {
			position = i
			break
		}
	}
	if position < 0 {
		_, curList, _, found := r.model.FindCard(r.cardID)
		if !found {
			return Intent{}, fmt.Errorf("dragged card %d: %w", r.cardID, board.ErrCardNotFound)
		}
		position = len(list.Cards)
		if err := r.model.MoveCard(r.cardID, curList, listID, position); err != nil {
			return Intent{}, fmt.Errorf("failed to apply drop: %w", err)
		}
	}

	return Intent{
		CardID:   r.cardID,
		ListID:   listID,
		Position: position,
		Changed:  listID != r.origList || position != r.origIndex,
	}, nil
}

// Cancel abandons the gesture. Speculative moves stay in the model until the
// next snapshot replaces it.
func (r *Reconciler) Cancel() {
	r.reset()
}

// Drop ends the gesture and commits the placement synchronously. A failed
// commit is resolved by replacing the model with a fresh snapshot.
func (r *Reconciler) Drop(ctx context.Context, target Target, c Committer, f Refetcher) (Outcome, error) {
	boardID := r.model.BoardID()
	intent, err := r.DropIntent(target)
	if err != nil {
		return Unchanged, err
	}
	if !intent.Changed {
		return Unchanged, nil
	}
	return Resolve(ctx, r.model, boardID, intent, c, f, r.log)
}

// Resolve commits intent and, when the server rejects it, replaces the model
// with a fresh snapshot. A reverted move whose snapshot was adopted returns a
// nil error.
func Resolve(ctx context.Context, model *board.Model, boardID int64, intent Intent, c Committer, f Refetcher, log logrus.FieldLogger) (Outcome, error) {
	outcome, snapshot, err := Commit(ctx, boardID, intent, c, f, log)
	if snapshot != nil {
		model.ReplaceBoard(snapshot)
		return outcome, nil
	}
	return outcome, err
}

// Commit persists intent without touching any model, so callers that run it
// off their event loop can adopt the result there. A rejected move is
// followed by a refetch; the snapshot is returned with the rejection as err.
// A snapshot for a different board is discarded.
func Commit(ctx context.Context, boardID int64, intent Intent, c Committer, f Refetcher, log logrus.FieldLogger) (Outcome, *board.Board, error) {
	commitErr := c.MoveCard(ctx, intent.CardID, intent.ListID, intent.Position)
	if commitErr == nil {
		return Committed, nil, nil
	}
	if log != nil {
		log.WithError(commitErr).WithField("card_id", intent.CardID).Warn("Move commit failed, refetching board")
	}

	snapshot, err := f.FetchBoard(ctx, boardID)
	if err != nil {
		return Reverted, nil, fmt.Errorf("failed to refetch board after rejected move: %w", errors.Join(commitErr, err))
	}
	if snapshot == nil || snapshot.ID != boardID {
		return Reverted, nil, fmt.Errorf("refetched snapshot is not board %d: %w", boardID, commitErr)
	}
	return Reverted, snapshot, commitErr
}

func (r *Reconciler) reset() {
	r.state = Idle
	r.cardID = 0
	r.origList = 0
	r.origIndex = 0
}

// targetList resolves the list a target belongs to.
func (r *Reconciler) targetList(target Target) (int64, error) {
	if !target.IsCard() {
		return target.listID, nil
	}
	_, listID, _, ok := r.model.FindCard(target.cardID)
	if !ok {
		return 0, fmt.Errorf("drop target card %d: %w", target.cardID, board.ErrCardNotFound)
	}
	return listID, nil
}

// placement maps a target to the list and index the dragged card should
// occupy. A list target means the end of that list.
func (r *Reconciler) placement(target Target) (board.MoveIntent, error) {
	_, curList, _, ok := r.model.FindCard(r.cardID)
	if !ok {
		return board.MoveIntent{}, fmt.Errorf("dragged card %d: %w", r.cardID, board.ErrCardNotFound)
	}
	mi := board.MoveIntent{CardID: r.cardID, SourceListID: curList}

	if target.IsCard() {
		_, listID, index, ok := r.model.FindCard(target.cardID)
		if !ok {
			return board.MoveIntent{}, fmt.Errorf("drag target card %d: %w", target.cardID, board.ErrCardNotFound)
		}
		mi.DestListID, mi.DestIndex = listID, index
		return mi, nil
	}

	list, ok := r.model.List(target.listID)
	if !ok {
		return board.MoveIntent{}, fmt.Errorf("drag target list %d: %w", target.listID, board.ErrListNotFound)
	}
	end := len(list.Cards)
	for _, c := range list.Cards {
		if c.ID == r.cardID {
			end--
			break
		}
	}
	mi.DestListID, mi.DestIndex = target.listID, end
	return mi, nil
}
