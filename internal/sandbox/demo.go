package sandbox

import "github.com/freudmarin/TaskBoardApp/pkg/board"

// DemoBoardID is the ID of the board returned by DemoBoard.
const DemoBoardID = 1

// DemoUsers are the accounts a development server starts with.
var DemoUsers = []User{
	{ID: 1001, Username: "ann", Password: "password", Email: "ann@example.com"},
	{ID: 1002, Username: "bob", Password: "password", Email: "bob@example.com"},
}

// DemoBoard returns a small board with three lists.
func DemoBoard() *board.Board {
	card := func(id, listID int64, pos int, title string, p board.Priority) *board.Card {
		return &board.Card{ID: id, ListID: listID, Position: pos, Title: title, Priority: p}
	}
	return &board.Board{
		ID:            DemoBoardID,
		Name:          "Launch",
		Description:   "Release checklist",
		Color:         "#3498db",
		OwnerID:       DemoUsers[0].ID,
		OwnerUsername: DemoUsers[0].Username,
		Lists: []*board.List{
			{ID: 10, BoardID: DemoBoardID, Name: "To Do", Position: 0, Cards: []*board.Card{
				card(100, 10, 0, "Write release notes", board.PriorityMedium),
				card(101, 10, 1, "Update screenshots", board.PriorityLow),
				card(102, 10, 2, "Tag the release", board.PriorityHigh),
			}},
			{ID: 11, BoardID: DemoBoardID, Name: "In Progress", Position: 1, Cards: []*board.Card{
				card(110, 11, 0, "Fix login redirect", board.PriorityCritical),
			}},
			{ID: 12, BoardID: DemoBoardID, Name: "Done", Position: 2, Cards: []*board.Card{}},
		},
	}
}
