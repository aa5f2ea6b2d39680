package eeg

// Prototype-based seizure scoring.
//
// Each prototype is a labelled window descriptor extracted from reviewed
// recordings. Scoring a window extracts the same descriptor, ranks all
// prototypes by Euclidean distance, and aggregates the k nearest with
// inverse-distance weights. The returned probability is the weight share
// of the seizure label among those neighbours.

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"

	"seizure-detection/utils"
)

// PositiveLabel marks prototypes of seizure activity. Every other label
// counts toward the negative class.
const PositiveLabel = "seizure"

// KNNModel scores windows against an in-memory prototype set. The set is
// fixed at construction, so the model is safe for concurrent use.
type KNNModel struct {
	prototypes []Prototype
	k          int
}

type distancePair struct {
	index    int
	distance float64
}

// NewKNNModel validates the prototype set and clamps k to its size.
func NewKNNModel(prototypes []Prototype, k int) (*KNNModel, error) {
	if k <= 0 {
		return nil, fmt.Errorf("invalid neighbour count: %d", k)
	}
	if len(prototypes) == 0 {
		return nil, fmt.Errorf("no prototypes loaded")
	}
	for _, proto := range prototypes {
		if len(proto.Features) == 0 {
			return nil, fmt.Errorf("prototype %s has no features", proto.ID)
		}
		if proto.Label == "" {
			return nil, fmt.Errorf("prototype %s missing label", proto.ID)
		}
		if len(proto.Features) != DescriptorLength {
			return nil, fmt.Errorf("prototype %s has %d features, expected %d (prototypes must be regenerated)",
				proto.ID, len(proto.Features), DescriptorLength)
		}
	}
	if k > len(prototypes) {
		k = len(prototypes)
	}
	return &KNNModel{prototypes: prototypes, k: k}, nil
}

// NewKNNModelFromFile loads prototype descriptors from the supplied path.
func NewKNNModelFromFile(path string, k int) (*KNNModel, error) {
	resolvedPath := filepath.Clean(path)
	data, err := os.ReadFile(resolvedPath)
	if err != nil {
		// if the primary file is missing, attempt to fallback to `.example.json`
		// e.g., "prototypes.json" -> "prototypes.example.json"
		ext := filepath.Ext(resolvedPath)
		base := strings.TrimSuffix(resolvedPath, ext)
		fallbackPath := base + ".example" + ext
		data, err = os.ReadFile(fallbackPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load prototypes (%s): %w", resolvedPath, err)
		}
		logger := utils.GetLogger()
		logger.Warn("falling back to example prototypes", "path", fallbackPath)
	}

	var prototypes []Prototype
	if err := json.Unmarshal(data, &prototypes); err != nil {
		return nil, fmt.Errorf("unable to parse prototypes: %w", err)
	}
	return NewKNNModel(prototypes, k)
}

// Predict scores each window against the prototype set. Windows inside
// one call share a single FFT plan since they share a length.
func (m *KNNModel) Predict(windows [][]float64) ([]float64, error) {
	probs := make([]float64, len(windows))
	var fft *fourier.FFT
	fftLen := 0
	for i, window := range windows {
		if len(window) == 0 {
			return nil, fmt.Errorf("window %d is empty", i)
		}
		if fft == nil || fftLen != len(window) {
			fft = fourier.NewFFT(len(window))
			fftLen = len(window)
		}
		probs[i] = m.score(describeWindow(window, fft))
	}
	return probs, nil
}

// score aggregates the k nearest prototypes into a seizure probability.
// NaN descriptors produce NaN distances and a NaN probability, which the
// detection threshold treats as negative.
func (m *KNNModel) score(features []float64) float64 {
	distances := make([]distancePair, len(m.prototypes))
	for i := range m.prototypes {
		distances[i] = distancePair{index: i, distance: floats.Distance(features, m.prototypes[i].Features, 2)}
	}
	sort.Slice(distances, func(i, j int) bool {
		return distances[i].distance < distances[j].distance
	})

	var positiveWeight, totalWeight float64
	for idx := 0; idx < m.k; idx++ {
		neighbor := distances[idx]
		weight := 1.0 / (neighbor.distance + 1e-9) // Add a small epsilon to avoid division by zero
		if m.prototypes[neighbor.index].Label == PositiveLabel {
			positiveWeight += weight
		}
		totalWeight += weight
	}
	return positiveWeight / totalWeight
}

// Stats returns summary metadata about the loaded prototype set.
func (m *KNNModel) Stats() ModelStats {
	labelBuckets := make(map[string]int)
	for _, proto := range m.prototypes {
		labelBuckets[proto.Label]++
	}

	labels := make([]ModelLabelStat, 0, len(labelBuckets))
	for label, count := range labelBuckets {
		labels = append(labels, ModelLabelStat{Label: label, Prototypes: count})
	}
	// keep labels sorted for deterministic responses
	sort.Slice(labels, func(i, j int) bool { return labels[i].Label < labels[j].Label })

	return ModelStats{
		Backend:        "knn",
		PrototypeCount: len(m.prototypes),
		LabelCount:     len(labelBuckets),
		Labels:         labels,
		Neighbors:      m.k,
	}
}
