package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithinCallingHours_Boundaries(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Bucharest")
	require.NoError(t, err)

	tests := []struct {
		name  string
		local string
		want  bool
	}{
		{"one minute before open", "09:59", false},
		{"exactly at open", "10:00", true},
		{"mid window", "13:30", true},
		{"one minute before close", "17:59", true},
		{"exactly at close", "18:00", false},
		{"late evening", "22:00", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now, err := time.ParseInLocation("2006-01-02 15:04", "2026-08-28 "+tt.local, loc)
			require.NoError(t, err)
			assert.Equal(t, tt.want, WithinCallingHours(now, loc, 10, 18))
		})
	}
}

func TestWithinCallingHours_EvaluatesInConfiguredZone(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Bucharest")
	require.NoError(t, err)

	// 08:00 UTC is 11:00 in Bucharest during DST.
	now := time.Date(2026, 8, 28, 8, 0, 0, 0, time.UTC)
	assert.True(t, WithinCallingHours(now, loc, 10, 18))
	assert.False(t, WithinCallingHours(now, time.UTC, 10, 18))
}
