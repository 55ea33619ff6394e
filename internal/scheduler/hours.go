// Package scheduler runs the periodic jobs that advance applications: call
// dispatch, stuck-call recovery, follow-ups, stale closes, and inbox polling.
package scheduler

import (
	"time"

	"recruitflow/internal/models"
)

// WithinCallingHours reports whether now falls inside the position's calling
// window, evaluated in loc. The window is [start, end) in whole hours of local
// time: with a 10-18 window, 09:59 is outside, 10:00 inside, 17:59 inside,
// 18:00 outside.
func WithinCallingHours(now time.Time, loc *time.Location, startHour, endHour int) bool {
	h := now.In(loc).Hour()
	return h >= startHour && h < endHour
}

// PositionCallable is the per-position gate, evaluated fresh on every tick so
// an application queued outside the window is picked up by the first tick
// inside it.
func PositionCallable(now time.Time, loc *time.Location, pos *models.Position) bool {
	return WithinCallingHours(now, loc, pos.CallingHourStart, pos.CallingHourEnd)
}
