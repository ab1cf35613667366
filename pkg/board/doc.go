// Package board provides the ordered in-memory model of a task board.
//
// # Overview
//
// A Board holds Lists, and each List holds an ordered sequence of Cards. The
// Model type owns one Board while a board view is active and exposes the only
// mutations allowed on it. Rendering sorts lists by Position; card sequence
// order always equals card position order.
//
// # Invariants
//
// After every exported Model mutation returns:
//
//   - every list's card positions are exactly 0..n-1 in sequence order
//   - every card's ListID names the list that holds it
//   - no card ID appears twice on the board
//
// Validate and ValidateBoard check these and are used heavily by the tests.
//
// # Usage Example
//
//	m := board.NewModel(snapshot)
//
//	// Drag card 7 to the top of list 2
//	if err := m.MoveCard(7, 1, 2, 0); err != nil {
//		return err
//	}
//
//	// Server truth wins after a refetch
//	m.ReplaceBoard(fresh)
//
// # Concurrency
//
// A Model is not safe for concurrent use. It is designed to be mutated from a
// single event loop (see internal/session), which is what makes locking
// unnecessary.
package board
