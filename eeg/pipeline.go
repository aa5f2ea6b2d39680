// Package eeg implements the seizure detection pipeline: range
// filtering, window segmentation, per-window standardization, model
// scoring, and the conversion of positive windows back into time
// intervals.
package eeg

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrEmptyResult signals that the analysis produced nothing to report,
// either because no samples survived filtering and segmentation or
// because no window crossed the detection threshold. Callers treat it
// as a client error rather than a server fault.
var ErrEmptyResult = errors.New("empty analysis result")

// Pipeline runs the full detection flow over a set of recordings.
type Pipeline struct {
	classifier *Classifier
}

// NewPipeline wires a pipeline around a window classifier.
func NewPipeline(classifier *Classifier) *Pipeline {
	return &Pipeline{classifier: classifier}
}

// Process analyses every recording and returns per-file seizure
// intervals. Recordings with a known clock come first, ordered by start
// time, followed by clockless ones in upload order. Recordings left
// without samples by the range filter, or too short for a single
// window, are skipped. Processing the same input twice yields identical
// results since no stage keeps state between calls.
func (p *Pipeline) Process(recordings []Recording, windowLength int, from, to *time.Time) ([]FileResult, error) {
	ordered := orderRecordings(recordings)
	results := make([]FileResult, 0, len(ordered))
	totalIntervals := 0
	for _, rec := range ordered {
		filtered := FilterByRange(rec, from, to)
		if len(filtered.Signal) == 0 {
			continue
		}
		windows, err := Segment(filtered.Signal, windowLength)
		if err != nil {
			return nil, err
		}
		if len(windows) == 0 {
			continue
		}
		labels, err := p.classifier.Classify(StandardizeAll(windows))
		if err != nil {
			return nil, fmt.Errorf("classify %s: %w", rec.Filename, err)
		}
		runs := ExtractRuns(labels)
		intervals := IntervalsFromRuns(runs, filtered.Times, windowLength, NewTimeRef(filtered))
		totalIntervals += len(intervals)
		results = append(results, FileResult{Filename: rec.Filename, Intervals: intervals})
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("%w: no samples matched the selected analysis window", ErrEmptyResult)
	}
	if totalIntervals == 0 {
		return nil, fmt.Errorf("%w: no windows crossed the detection threshold", ErrEmptyResult)
	}
	return results, nil
}

func orderRecordings(recordings []Recording) []Recording {
	ordered := append([]Recording(nil), recordings...)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.HasClock() != b.HasClock() {
			return a.HasClock()
		}
		if a.HasClock() && !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		return a.Order < b.Order
	})
	return ordered
}
