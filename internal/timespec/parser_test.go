package timespec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 10, 29, 14, 0, 0, 0, time.UTC)

func TestParse(t *testing.T) {
	tests := []struct {
		spec    string
		want    time.Time
		wantErr string
	}{
		{"1h", now.Add(-time.Hour), ""},
		{"1h30m", now.Add(-90 * time.Minute), ""},
		{"2025-10-29T13:00:00Z", time.Date(2025, 10, 29, 13, 0, 0, 0, time.UTC), ""},
		{"", time.Time{}, "empty time specification"},
		{"-5m", time.Time{}, "negative duration"},
		{"yesterday", time.Time{}, "invalid time specification"},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			got, err := Parse(tt.spec, now)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}
}

func TestParseRange(t *testing.T) {
	t.Run("open ended", func(t *testing.T) {
		since, until, err := ParseRange("2h", "", now)
		require.NoError(t, err)
		assert.True(t, since.Equal(now.Add(-2*time.Hour)))
		assert.True(t, until.IsZero())
	})

	t.Run("both bounds", func(t *testing.T) {
		since, until, err := ParseRange("2h", "1h", now)
		require.NoError(t, err)
		assert.True(t, since.Before(until))
	})

	t.Run("inverted", func(t *testing.T) {
		_, _, err := ParseRange("1h", "2h", now)
		assert.ErrorContains(t, err, "--since must be before --until")
	})

	t.Run("bad until", func(t *testing.T) {
		_, _, err := ParseRange("", "soon", now)
		assert.ErrorContains(t, err, "invalid --until")
	})
}
