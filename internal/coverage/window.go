package coverage

import (
	"time"

	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/models"
)

// Window bounds the activity an analysis considers. Both bounds are
// inclusive; a zero bound is open.
type Window struct {
	Start time.Time
	End   time.Time
}

// FixedWindow returns a window covering [start, end].
func FixedWindow(start, end time.Time) Window {
	return Window{Start: start, End: end}
}

// SlidingWindow returns the window of length d ending at now.
// A non-positive d yields an unbounded window.
func SlidingWindow(d time.Duration, now time.Time) Window {
	if d <= 0 {
		return Window{}
	}
	return Window{Start: now.Add(-d), End: now}
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	if !w.Start.IsZero() && t.Before(w.Start) {
		return false
	}
	if !w.End.IsZero() && t.After(w.End) {
		return false
	}
	return true
}

// Unbounded reports whether neither bound is set.
func (w Window) Unbounded() bool {
	return w.Start.IsZero() && w.End.IsZero()
}

// Model converts the window to its report representation.
func (w Window) Model() models.AnalysisWindow {
	return models.AnalysisWindow{Start: w.Start, End: w.End}
}
