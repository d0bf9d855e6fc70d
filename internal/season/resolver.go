// Package season computes where a point in time falls within a season's
// day grid.
package season

import (
	"time"

	"github.com/quest-league/internal/domain"
)

// CurrentDay returns the 1-indexed day number of a season at the given
// instant: 0 before the season starts, totalDays+1 after it ends, otherwise
// the number of whole days elapsed since start, plus one. Both boundaries
// are inclusive, so now == start yields day 1 and now == end falls through
// the elapsed-days formula. Pure function of its inputs; callers must
// re-evaluate it on every request.
func CurrentDay(now, start, end time.Time, totalDays int) int {
	if now.Before(start) {
		return 0
	}
	if now.After(end) {
		return totalDays + 1
	}
	return int(now.Sub(start)/(24*time.Hour)) + 1
}

// Resolve annotates a season with its current day.
func Resolve(s domain.Season, now time.Time) domain.SeasonWithDay {
	return domain.SeasonWithDay{
		Season:     s,
		CurrentDay: CurrentDay(now, s.StartUTC, s.EndUTC, s.TotalDays),
	}
}

// InWindow reports whether now lies within [start, end] inclusive.
func InWindow(now, start, end time.Time) bool {
	return !now.Before(start) && !now.After(end)
}
