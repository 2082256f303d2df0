// Package rules contains the pure calculation logic for perk mechanics.
// This package is PURE and must NOT import any infrastructure packages.
package rules

import "time"

// HappyHour is a wall-clock window during which kill rewards are amplified.
type HappyHour struct {
	Enabled bool
	Start   int // 0-23, inclusive
	End     int // 0-23, exclusive
}

// Active reports whether hour (0-23) falls inside the window.
// Start > End wraps overnight, e.g. Start=19 End=8 covers 19:00-07:59.
func (h HappyHour) Active(hour int) bool {
	if !h.Enabled {
		return false
	}
	if h.Start <= h.End {
		return hour >= h.Start && hour < h.End
	}
	return hour >= h.Start || hour < h.End
}

// ActiveAt samples the local hour of t.
func (h HappyHour) ActiveAt(t time.Time) bool {
	return h.Active(t.Hour())
}
