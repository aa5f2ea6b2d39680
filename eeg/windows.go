package eeg

import (
	"errors"

	"gonum.org/v1/gonum/stat"
)

// ErrWindowLength rejects non-positive window lengths before any
// segmentation work happens.
var ErrWindowLength = errors.New("window length must be a positive integer")

// Segment splits a signal into consecutive non-overlapping windows of
// windowLength samples. A trailing partial window is discarded, so a
// signal shorter than one window yields no windows at all.
func Segment(signal []float64, windowLength int) ([][]float64, error) {
	if windowLength <= 0 {
		return nil, ErrWindowLength
	}
	count := len(signal) / windowLength
	if count == 0 {
		return nil, nil
	}
	windows := make([][]float64, count)
	for i := 0; i < count; i++ {
		windows[i] = signal[i*windowLength : (i+1)*windowLength]
	}
	return windows, nil
}

// Standardize rescales one window to zero mean and unit population
// standard deviation. A flat window divides by zero and the resulting
// NaNs are passed through untouched; downstream comparisons treat them
// as non-detections.
func Standardize(window []float64) []float64 {
	mean := stat.Mean(window, nil)
	std := stat.PopStdDev(window, nil)
	out := make([]float64, len(window))
	for i, x := range window {
		out[i] = (x - mean) / std
	}
	return out
}

// StandardizeAll applies Standardize to every window.
func StandardizeAll(windows [][]float64) [][]float64 {
	out := make([][]float64, len(windows))
	for i, w := range windows {
		out[i] = Standardize(w)
	}
	return out
}
