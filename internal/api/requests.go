package api

import (
	"fmt"

	"github.com/freudmarin/TaskBoardApp/pkg/board"
	"github.com/go-playground/validator/v10"
)

// DefaultBoardColor is applied to board requests without a color.
const DefaultBoardColor = "#3498db"

var validate = validator.New()

// BoardRequest creates or replaces a board.
type BoardRequest struct {
	Name        string `json:"name" validate:"required,min=1,max=100"`
	Description string `json:"description,omitempty" validate:"max=1000"`
	Color       string `json:"color,omitempty" validate:"omitempty,hexcolor"`
	OwnerID     *int64 `json:"ownerId,omitempty"`
}

// ListRequest creates or replaces a list.
type ListRequest struct {
	Name     string `json:"name" validate:"required,min=1,max=100"`
	BoardID  int64  `json:"boardId" validate:"required"`
	Position *int   `json:"position,omitempty" validate:"omitempty,min=0"`
}

// CardRequest creates or replaces a card.
type CardRequest struct {
	Title        string           `json:"title" validate:"required,min=1,max=255"`
	Description  string           `json:"description,omitempty" validate:"max=5000"`
	ListID       int64            `json:"listId" validate:"required"`
	Position     *int             `json:"position,omitempty" validate:"omitempty,min=0"`
	Priority     board.Priority   `json:"priority,omitempty" validate:"omitempty,oneof=LOW MEDIUM HIGH CRITICAL"`
	DueDate      *board.Timestamp `json:"dueDate,omitempty"`
	AssignedToID *int64           `json:"assignedToId,omitempty"`
}

// MoveRequest places a card in a list at a position.
type MoveRequest struct {
	NewListID   int64 `json:"newListId" validate:"required"`
	NewPosition int   `json:"newPosition" validate:"min=0"`
}

// LoginRequest exchanges credentials for tokens.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// AuthResponse is returned by a successful login.
type AuthResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	TokenType    string `json:"tokenType"`
	UserID       int64  `json:"userId"`
	Username     string `json:"username"`
	Email        string `json:"email"`
}

// Activity is one entry of a board's activity log.
type Activity struct {
	ID           int64            `json:"id"`
	BoardID      int64            `json:"boardId"`
	BoardName    string           `json:"boardName,omitempty"`
	UserID       int64            `json:"userId"`
	Username     string           `json:"username"`
	ActivityType string           `json:"activityType"`
	Description  string           `json:"description"`
	Metadata     map[string]any   `json:"metadata,omitempty"`
	CreatedAt    *board.Timestamp `json:"createdAt,omitempty"`
}

func (r *BoardRequest) normalize() {
	if r.Color == "" {
		r.Color = DefaultBoardColor
	}
}

func (r *CardRequest) normalize() {
	if r.Priority == "" {
		r.Priority = board.PriorityMedium
	}
}

// Validate checks a request against the server's constraints.
func Validate(req any) error {
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}
	return nil
}
