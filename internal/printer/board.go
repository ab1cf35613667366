package printer

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/freudmarin/TaskBoardApp/internal/api"
	"github.com/freudmarin/TaskBoardApp/internal/notify"
	"github.com/freudmarin/TaskBoardApp/pkg/board"
	"github.com/freudmarin/TaskBoardApp/pkg/bus"
	"github.com/olekukonko/tablewriter"
)

var priorityColors = map[board.Priority]*color.Color{
	board.PriorityLow:      color.New(color.FgBlue),
	board.PriorityMedium:   color.New(color.FgGreen),
	board.PriorityHigh:     color.New(color.FgYellow),
	board.PriorityCritical: color.New(color.FgRed, color.Bold),
}

// FormatBoards writes boards as a table and returns how many were written.
func FormatBoards(w io.Writer, boards []*board.Board) (int, error) {
	if len(boards) == 0 {
		fmt.Fprintln(w, "No boards found")
		return 0, nil
	}

	table := tablewriter.NewWriter(w)
	table.Header("ID", "NAME", "OWNER", "LISTS", "CARDS", "UPDATED")
	for _, b := range boards {
		cards := 0
		for _, l := range b.Lists {
			cards += len(l.Cards)
		}
		if err := table.Append([]string{
			strconv.FormatInt(b.ID, 10),
			truncate(b.Name, 40),
			dash(b.OwnerUsername),
			strconv.Itoa(len(b.Lists)),
			strconv.Itoa(cards),
			formatAge(b.UpdatedAt),
		}); err != nil {
			return 0, fmt.Errorf("failed to format board %d: %w", b.ID, err)
		}
	}
	if err := table.Render(); err != nil {
		return 0, fmt.Errorf("failed to render boards: %w", err)
	}

	fmt.Fprintf(w, "\n%d %s\n", len(boards), plural(len(boards), "board", "boards"))
	return len(boards), nil
}

// FormatBoard writes a board's lists in position order, each followed by its
// cards in sequence order.
func FormatBoard(w io.Writer, b *board.Board) error {
	cyan.Fprintf(w, "%s", b.Name)
	fmt.Fprintf(w, " (board %d)\n", b.ID)
	if b.Description != "" {
		faint.Fprintf(w, "%s\n", b.Description)
	}

	for _, l := range b.SortedLists() {
		fmt.Fprintf(w, "\n")
		color.New(color.Bold).Fprintf(w, "%s", l.Name)
		fmt.Fprintf(w, " [list %d, %d %s]\n", l.ID, len(l.Cards), plural(len(l.Cards), "card", "cards"))
		if len(l.Cards) == 0 {
			faint.Fprintln(w, "  (empty)")
			continue
		}
		for _, c := range l.Cards {
			fmt.Fprintf(w, "  %d. ", c.Position)
			priority(c.Priority).Fprintf(w, "%-8s", c.Priority)
			fmt.Fprintf(w, " #%-5d %s", c.ID, c.Title)
			if c.AssignedToUsername != "" {
				faint.Fprintf(w, " @%s", c.AssignedToUsername)
			}
			if c.DueDate != nil {
				faint.Fprintf(w, " due %s", c.DueDate.Format("2006-01-02"))
			}
			fmt.Fprintln(w)
		}
	}
	return nil
}

// FormatActivity writes activity entries as a table.
func FormatActivity(w io.Writer, entries []*api.Activity) error {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No activity found")
		return nil
	}
	table := tablewriter.NewWriter(w)
	table.Header("WHEN", "USER", "TYPE", "DESCRIPTION")
	for _, a := range entries {
		if err := table.Append([]string{
			formatAge(a.CreatedAt),
			dash(a.Username),
			a.ActivityType,
			truncate(a.Description, 60),
		}); err != nil {
			return fmt.Errorf("failed to format activity %d: %w", a.ID, err)
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("failed to render activity: %w", err)
	}
	return nil
}

// FormatEvent writes a one-line summary of a bus event.
func FormatEvent(w io.Writer, ev bus.Event, at time.Time) {
	h := ev.EventHeader()
	faint.Fprintf(w, "%s ", at.Format("15:04:05"))
	cyan.Fprintf(w, "%-20s", h.Type)
	if h.Username != "" {
		fmt.Fprintf(w, " %s", h.Username)
	}

	switch e := ev.(type) {
	case *bus.CardMoved:
		if e.Card != nil {
			fmt.Fprintf(w, " card #%d -> list %d pos %d", e.Card.ID, e.Card.ListID, e.Card.Position)
		} else if e.NewListID != nil && e.NewPosition != nil {
			fmt.Fprintf(w, " -> list %d pos %d", *e.NewListID, *e.NewPosition)
		}
	case *bus.CardCreated:
		if e.Card != nil {
			fmt.Fprintf(w, " card #%d %q", e.Card.ID, e.Card.Title)
		}
	case *bus.CardUpdated:
		if e.Card != nil {
			fmt.Fprintf(w, " card #%d %q", e.Card.ID, e.Card.Title)
		}
	case *bus.CardDeleted:
		fmt.Fprintf(w, " card #%d from list %d", e.CardID, e.ListID)
	case *bus.ListCreated:
		if e.List != nil {
			fmt.Fprintf(w, " list %d %q", e.List.ID, e.List.Name)
		}
	case *bus.ListUpdated:
		if e.List != nil {
			fmt.Fprintf(w, " list %d %q", e.List.ID, e.List.Name)
		}
	case *bus.ListDeleted:
		fmt.Fprintf(w, " list %d", e.ListID)
	case *bus.SubscriptionAck:
		fmt.Fprintf(w, " %s", e.Message)
	}
	fmt.Fprintln(w)
}

// FormatToasts writes live notifications, newest first.
func FormatToasts(w io.Writer, entries []notify.Entry) {
	for _, e := range entries {
		yellow.Fprintf(w, "  🔔 %s\n", e.Text)
	}
}

// FormatJSON writes v as indented JSON.
func FormatJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write JSON output: %w", err)
	}
	fmt.Fprintln(w)
	return nil
}

// FormatJSONL writes each raw payload on its own line.
func FormatJSONL(w io.Writer, raw []byte) error {
	if _, err := fmt.Fprintf(w, "%s\n", strings.TrimSpace(string(raw))); err != nil {
		return fmt.Errorf("failed to write JSONL output: %w", err)
	}
	return nil
}

func priority(p board.Priority) *color.Color {
	if c, ok := priorityColors[p]; ok {
		return c
	}
	return faint
}

// formatAge renders a timestamp relative to now, e.g. "5m ago".
func formatAge(ts *board.Timestamp) string {
	if ts == nil || ts.IsZero() {
		return "-"
	}
	d := time.Since(ts.Time)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(strings.SplitN(s, "\n", 2)[0])
	if len(s) > n {
		return s[:n-3] + "..."
	}
	return s
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
