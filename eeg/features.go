package eeg

import (
	"errors"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/stat"
)

// DescriptorLength is the dimension of the window shape descriptor.
// Prototype files store vectors of exactly this length, so the layout
// below cannot change without regenerating them.
const DescriptorLength = 11

// ExtractFeatures computes the shape descriptor for one standardized
// window. The descriptor is length-independent, which lets a fixed
// prototype set score windows of any requested length.
func ExtractFeatures(window []float64) ([]float64, error) {
	if len(window) == 0 {
		return nil, errors.New("window is empty")
	}
	return describeWindow(window, fourier.NewFFT(len(window))), nil
}

// describeWindow extracts the descriptor using a caller-supplied FFT
// plan so batch scoring can reuse one plan per window length.
//
// Layout:
//
//	0  line length per sample
//	1  zero-crossing rate
//	2  peak absolute amplitude
//	3  skewness
//	4  excess kurtosis
//	5  spectral centroid (normalized bin position)
//	6  spectral flatness
//	7-10 energy share of four equal frequency bands
//
// NaN samples from flat windows flow into the descriptor unchanged, so
// a degenerate window ends up with a NaN distance to every prototype.
func describeWindow(window []float64, fft *fourier.FFT) []float64 {
	features := make([]float64, 0, DescriptorLength)

	var lineLength float64
	crossings := 0
	peak := 0.0
	for i, x := range window {
		if a := math.Abs(x); a > peak {
			peak = a
		}
		if i == 0 {
			continue
		}
		lineLength += math.Abs(x - window[i-1])
		if (x >= 0) != (window[i-1] >= 0) {
			crossings++
		}
	}
	n := float64(len(window))
	features = append(features,
		lineLength/n,
		float64(crossings)/n,
		peak,
		stat.Skew(window, nil),
		stat.ExKurtosis(window, nil),
	)

	coeffs := fft.Coefficients(nil, window)
	power := make([]float64, len(coeffs))
	var total float64
	for i, c := range coeffs {
		p := cmplx.Abs(c)
		power[i] = p * p
		total += power[i]
	}

	centroid := 0.0
	flatness := 0.0
	if total > 0 {
		for i, p := range power {
			centroid += float64(i) * p
		}
		centroid /= total * float64(len(power))
		flatness = stat.GeometricMean(power, nil) / (total / float64(len(power)))
	}
	features = append(features, centroid, flatness)

	const bandCount = 4
	for b := 0; b < bandCount; b++ {
		lo := b * len(power) / bandCount
		hi := (b + 1) * len(power) / bandCount
		var band float64
		for _, p := range power[lo:hi] {
			band += p
		}
		if total > 0 {
			band /= total
		}
		features = append(features, band)
	}

	return features
}
