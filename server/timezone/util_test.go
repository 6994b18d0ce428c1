package timezone

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimezone(t *testing.T) {
	tests := []struct {
		name    string
		tz      string
		want    string
		wantErr bool
	}{
		{name: "empty", tz: "", want: "UTC"},
		{name: "utc", tz: "UTC", want: "UTC"},
		{name: "sao paulo", tz: "America/Sao_Paulo", want: "America/Sao_Paulo"},
		{name: "invalid", tz: "Mars/Olympus", want: "UTC", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc, err := ParseTimezone(tt.tz)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, loc.String())
		})
	}
	assert.True(t, IsValidTimezone("Europe/Lisbon"))
	assert.False(t, IsValidTimezone("not/a/zone"))
}

func TestCalendarBoundaries(t *testing.T) {
	loc, err := ParseTimezone("America/Sao_Paulo")
	require.NoError(t, err)

	// Thursday 2026-10-15 01:30 UTC is still Wednesday evening in Sao Paulo.
	now := time.Date(2026, 10, 15, 1, 30, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2026, 10, 14, 0, 0, 0, 0, loc), StartOfDay(now, loc))
	assert.Equal(t, time.Date(2026, 10, 12, 0, 0, 0, 0, loc), StartOfWeek(now, loc))
	assert.Equal(t, time.Date(2026, 10, 1, 0, 0, 0, 0, loc), StartOfMonth(now, loc))

	assert.Equal(t, time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC), StartOfDay(now, nil))
	assert.Equal(t, time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC), StartOfWeek(now, nil))
}

func TestStartOfWeekOnSunday(t *testing.T) {
	sunday := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC), StartOfWeek(sunday, UTC))
}

func TestNowInTimezone(t *testing.T) {
	assert.Equal(t, UTC, NowInTimezone(nil).Location())
}
