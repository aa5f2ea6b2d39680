package eeg

import (
	"strconv"
	"time"
)

// timestampLayout renders absolute detection timestamps inside exported
// spreadsheets and range listings.
const timestampLayout = "01/02/2006 15:04:05"

// Run is a maximal stretch of consecutive positive windows, indexed by
// window position. End is exclusive.
type Run struct {
	Start int
	End   int
}

// ExtractRuns collapses per-window labels into maximal positive runs.
// A run still open at the end of the slice is closed at len(labels).
func ExtractRuns(labels []bool) []Run {
	var runs []Run
	start := -1
	for i, positive := range labels {
		switch {
		case positive && start < 0:
			start = i
		case !positive && start >= 0:
			runs = append(runs, Run{Start: start, End: i})
			start = -1
		}
	}
	if start >= 0 {
		runs = append(runs, Run{Start: start, End: len(labels)})
	}
	return runs
}

// TimeRef renders second offsets for one recording, either on its
// absolute clock or as plain seconds when no clock is known. The mode
// is fixed at construction so a single file never mixes formats.
type TimeRef struct {
	start    time.Time
	absolute bool
}

// NewTimeRef derives the rendering mode from the recording's clock.
func NewTimeRef(rec Recording) TimeRef {
	return TimeRef{start: rec.Start, absolute: rec.HasClock()}
}

// Format renders an offset in seconds from the recording start.
func (t TimeRef) Format(seconds float64) string {
	if t.absolute {
		return t.start.Add(secondsToDuration(seconds)).Format(timestampLayout)
	}
	return strconv.FormatFloat(seconds, 'f', 2, 64)
}

// IntervalsFromRuns maps window runs back onto the recording's time
// axis. times holds the retained sample offsets the windows were cut
// from; the sample interval is inferred from its first two entries and
// falls back to one second when only a single sample survived.
func IntervalsFromRuns(runs []Run, times []float64, windowLength int, ref TimeRef) []Interval {
	if len(runs) == 0 || len(times) == 0 {
		return nil
	}
	interval := 1.0
	if len(times) >= 2 {
		interval = times[1] - times[0]
	}
	windowSeconds := float64(windowLength) * interval
	out := make([]Interval, 0, len(runs))
	for _, run := range runs {
		start := times[0] + float64(run.Start)*windowSeconds
		end := times[0] + float64(run.End)*windowSeconds
		out = append(out, Interval{Start: ref.Format(start), End: ref.Format(end)})
	}
	return out
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
