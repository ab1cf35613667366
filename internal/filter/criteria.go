// Package filter selects bus events and activity entries for the CLI.
package filter

import (
	"path/filepath"
	"time"

	"github.com/freudmarin/TaskBoardApp/internal/api"
	"github.com/freudmarin/TaskBoardApp/pkg/bus"
)

// Criteria defines filtering criteria. All filters are ANDed together.
type Criteria struct {
	Since    time.Time // zero = no filter
	Until    time.Time // zero = no filter
	TypeGlob string    // glob over the type tag, e.g. "CARD_*"
	Username string    // exact match on the originating user
}

// MatchesEvent reports whether ev passes every criterion. at is the receive
// time, used when the event carries no timestamp.
func (c *Criteria) MatchesEvent(ev bus.Event, at time.Time) bool {
	h := ev.EventHeader()
	if h.Timestamp != nil && !h.Timestamp.IsZero() {
		at = h.Timestamp.Time
	}
	return c.matches(string(h.Type), h.Username, at)
}

// MatchesActivity reports whether a passes every criterion. Entries without a
// timestamp fail any time bound.
func (c *Criteria) MatchesActivity(a *api.Activity) bool {
	var at time.Time
	if a.CreatedAt != nil {
		at = a.CreatedAt.Time
	}
	return c.matches(a.ActivityType, a.Username, at)
}

func (c *Criteria) matches(kind, username string, at time.Time) bool {
	if !c.Since.IsZero() && (at.IsZero() || at.Before(c.Since)) {
		return false
	}
	if !c.Until.IsZero() && (at.IsZero() || at.After(c.Until)) {
		return false
	}

	if c.TypeGlob != "" {
		matched, err := filepath.Match(c.TypeGlob, kind)
		if err != nil || !matched {
			return false
		}
	}

	if c.Username != "" && username != c.Username {
		return false
	}
	return true
}

// HasFilters returns true if any filters are active.
func (c *Criteria) HasFilters() bool {
	return !c.Since.IsZero() ||
		!c.Until.IsZero() ||
		c.TypeGlob != "" ||
		c.Username != ""
}
