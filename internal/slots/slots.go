// Package slots turns a day's opening hours into fixed-length booking slots
// and marks them against existing appointments.
package slots

import (
	"fmt"
	"iter"
	"time"

	"queueless/scheduling-service/internal/models"
)

type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps uses half-open semantics: touching intervals do not overlap.
func (i Interval) Overlaps(other Interval) bool {
	return i.Start.Before(other.End) && other.Start.Before(i.End)
}

// Generate yields contiguous [start, start+length) intervals from opening up
// to closing. Each call to the returned sequence starts over from opening.
// A remainder shorter than length at the end of the window is not yielded.
func Generate(opening, closing time.Time, length time.Duration) iter.Seq[Interval] {
	return func(yield func(Interval) bool) {
		if length <= 0 || !closing.After(opening) {
			return
		}
		for start := opening; !start.Add(length).After(closing); start = start.Add(length) {
			if !yield(Interval{Start: start, End: start.Add(length)}) {
				return
			}
		}
	}
}

// DayWindow resolves a schedule entry's "HH:MM" bounds on date's calendar day
// in loc. Closed entries return ok=false.
func DayWindow(date time.Time, day models.DaySchedule, loc *time.Location) (opening, closing time.Time, ok bool, err error) {
	if !day.IsOpen {
		return time.Time{}, time.Time{}, false, nil
	}
	opening, err = wallClock(date, day.OpensAt, loc)
	if err != nil {
		return time.Time{}, time.Time{}, false, err
	}
	closing, err = wallClock(date, day.ClosesAt, loc)
	if err != nil {
		return time.Time{}, time.Time{}, false, err
	}
	return opening, closing, true, nil
}

func wallClock(date time.Time, hhmm string, loc *time.Location) (time.Time, error) {
	clock, err := time.Parse("15:04", hhmm)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time of day %q: %w", hhmm, err)
	}
	if loc == nil {
		loc = time.UTC
	}
	local := date.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), clock.Hour(), clock.Minute(), 0, 0, loc), nil
}
