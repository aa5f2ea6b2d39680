package eeg

import "time"

// Recording is one decoded channel of an uploaded EEG file. Values are
// never mutated after construction; every pipeline stage derives new ones.
type Recording struct {
	Filename string
	Signal   []float64
	Times    []float64 // seconds since recording start, len == len(Signal)
	Start    time.Time // absolute clock of sample offset zero; zero value when unknown
	Order    int       // zero-based upload position, stable sort tiebreak
}

// HasClock reports whether the recording carries an absolute start time.
func (r Recording) HasClock() bool {
	return !r.Start.IsZero()
}

// Interval is one detected seizure span. Both endpoints are rendered by
// the same TimeRef, so a file never mixes absolute and relative formats.
type Interval struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// FileResult pairs a recording with its detected intervals.
type FileResult struct {
	Filename  string     `json:"filename"`
	Intervals []Interval `json:"intervals"`
}

// Prototype is one labelled feature vector of the k-NN weights file.
type Prototype struct {
	ID       string            `json:"id"`
	Label    string            `json:"label"`
	Source   string            `json:"source,omitempty"`
	Features []float64         `json:"features"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ModelStats exposes metadata about a loaded model backend.
type ModelStats struct {
	Backend        string           `json:"backend"`
	PrototypeCount int              `json:"prototypeCount"`
	LabelCount     int              `json:"labelCount"`
	Labels         []ModelLabelStat `json:"labels"`
	Neighbors      int              `json:"neighbors"`
}

// ModelLabelStat summarises prototype density per label.
type ModelLabelStat struct {
	Label      string `json:"label"`
	Prototypes int    `json:"prototypes"`
}

// StatsProvider is implemented by model backends that can describe
// their loaded state.
type StatsProvider interface {
	Stats() ModelStats
}
