package models

// FileRange reports the recorded time span of one uploaded EDF file.
type FileRange struct {
	Name  string `json:"name"`
	Start string `json:"start"`
	End   string `json:"end"`
}

// RangesResponse lists per-file measurement ranges together with the
// span covering all of them.
type RangesResponse struct {
	Files        []FileRange `json:"files"`
	OverallStart string      `json:"overall_start"`
	OverallEnd   string      `json:"overall_end"`
}
