package eeg

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func smoothWindow(phase float64) []float64 {
	w := make([]float64, 128)
	for i := range w {
		w[i] = math.Sin(2*math.Pi*float64(i)/32 + phase)
	}
	return w
}

func spikyWindow(phase float64) []float64 {
	w := smoothWindow(phase)
	for i := 0; i < len(w); i += 16 {
		w[i] += 6
	}
	return w
}

func prototypeFromWindow(t *testing.T, id, label string, window []float64) Prototype {
	t.Helper()
	features, err := ExtractFeatures(Standardize(window))
	if err != nil {
		t.Fatalf("failed to extract features for %s: %v", id, err)
	}
	return Prototype{ID: id, Label: label, Features: features}
}

func newShapeModel(t *testing.T, k int) *KNNModel {
	t.Helper()
	protos := []Prototype{
		prototypeFromWindow(t, "sz_1", PositiveLabel, spikyWindow(0)),
		prototypeFromWindow(t, "sz_2", PositiveLabel, spikyWindow(0.7)),
		prototypeFromWindow(t, "sz_3", PositiveLabel, spikyWindow(1.4)),
		prototypeFromWindow(t, "bg_1", "background", smoothWindow(0)),
		prototypeFromWindow(t, "bg_2", "background", smoothWindow(0.7)),
		prototypeFromWindow(t, "bg_3", "background", smoothWindow(1.4)),
	}
	model, err := NewKNNModel(protos, k)
	if err != nil {
		t.Fatalf("failed to build model: %v", err)
	}
	return model
}

func TestExtractFeaturesDescriptorShape(t *testing.T) {
	t.Parallel()

	features, err := ExtractFeatures(Standardize(spikyWindow(0.3)))
	if err != nil {
		t.Fatalf("ExtractFeatures returned error: %v", err)
	}
	if len(features) != DescriptorLength {
		t.Fatalf("expected %d features, got %d", DescriptorLength, len(features))
	}

	var bandSum float64
	for _, v := range features[7:] {
		if v < 0 {
			t.Fatalf("band energy share below zero: %v", features[7:])
		}
		bandSum += v
	}
	if math.Abs(bandSum-1) > 1e-9 {
		t.Fatalf("band energy shares should sum to 1, got %v", bandSum)
	}

	if features[1] < 0 || features[1] > 1 {
		t.Fatalf("zero-crossing rate out of range: %v", features[1])
	}
}

func TestExtractFeaturesRejectsEmptyWindow(t *testing.T) {
	t.Parallel()

	if _, err := ExtractFeatures(nil); err == nil {
		t.Fatal("expected error for empty window")
	}
}

func TestKNNModelSeparatesActivityShapes(t *testing.T) {
	t.Parallel()

	model := newShapeModel(t, 3)

	probs, err := model.Predict([][]float64{
		Standardize(spikyWindow(2.1)),
		Standardize(smoothWindow(2.1)),
	})
	if err != nil {
		t.Fatalf("Predict returned error: %v", err)
	}
	if probs[0] <= DetectionThreshold {
		t.Fatalf("expected seizure-shaped window above threshold, got %.3f", probs[0])
	}
	if probs[1] > DetectionThreshold {
		t.Fatalf("expected background-shaped window below threshold, got %.3f", probs[1])
	}
}

func TestKNNModelFlatWindowScoresNaN(t *testing.T) {
	t.Parallel()

	model := newShapeModel(t, 3)

	probs, err := model.Predict([][]float64{Standardize([]float64{2, 2, 2, 2, 2, 2, 2, 2})})
	if err != nil {
		t.Fatalf("Predict returned error: %v", err)
	}
	if !math.IsNaN(probs[0]) {
		t.Fatalf("expected NaN probability for a flat window, got %v", probs[0])
	}
}

func TestKNNModelPredictRejectsEmptyWindow(t *testing.T) {
	t.Parallel()

	model := newShapeModel(t, 3)
	if _, err := model.Predict([][]float64{{}}); err == nil {
		t.Fatal("expected error for empty window")
	}
}

func TestNewKNNModelValidation(t *testing.T) {
	t.Parallel()

	valid := prototypeFromWindow(t, "ok", PositiveLabel, spikyWindow(0))

	cases := []struct {
		name   string
		protos []Prototype
		k      int
	}{
		{"non-positive k", []Prototype{valid}, 0},
		{"empty set", nil, 3},
		{"no features", []Prototype{{ID: "bad", Label: PositiveLabel}}, 3},
		{"missing label", []Prototype{{ID: "bad", Features: valid.Features}}, 3},
		{"wrong dimension", []Prototype{{ID: "bad", Label: PositiveLabel, Features: []float64{1, 2, 3}}}, 3},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if _, err := NewKNNModel(tc.protos, tc.k); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestNewKNNModelClampsNeighbours(t *testing.T) {
	t.Parallel()

	protos := []Prototype{
		prototypeFromWindow(t, "a", PositiveLabel, spikyWindow(0)),
		prototypeFromWindow(t, "b", "background", smoothWindow(0)),
	}
	model, err := NewKNNModel(protos, 10)
	if err != nil {
		t.Fatalf("NewKNNModel returned error: %v", err)
	}
	if model.k != 2 {
		t.Fatalf("expected k clamped to 2, got %d", model.k)
	}
}

func TestNewKNNModelFromFileFallsBackToExample(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	protos := []Prototype{
		prototypeFromWindow(t, "a", PositiveLabel, spikyWindow(0)),
		prototypeFromWindow(t, "b", "background", smoothWindow(0)),
	}
	data, err := json.Marshal(protos)
	if err != nil {
		t.Fatalf("failed to marshal prototypes: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "prototypes.example.json"), data, 0644); err != nil {
		t.Fatalf("failed to write example file: %v", err)
	}

	model, err := NewKNNModelFromFile(filepath.Join(dir, "prototypes.json"), 5)
	if err != nil {
		t.Fatalf("expected fallback to example prototypes, got %v", err)
	}
	if got := model.Stats().PrototypeCount; got != 2 {
		t.Fatalf("expected 2 prototypes, got %d", got)
	}
}

func TestNewKNNModelFromFileMissing(t *testing.T) {
	t.Parallel()

	if _, err := NewKNNModelFromFile(filepath.Join(t.TempDir(), "prototypes.json"), 5); err == nil {
		t.Fatal("expected error when no prototype file exists")
	}
}

func TestKNNModelStats(t *testing.T) {
	t.Parallel()

	model := newShapeModel(t, 4)
	stats := model.Stats()

	if stats.Backend != "knn" {
		t.Fatalf("expected knn backend, got %s", stats.Backend)
	}
	if stats.PrototypeCount != 6 || stats.LabelCount != 2 {
		t.Fatalf("unexpected counts: %+v", stats)
	}
	if stats.Neighbors != 4 {
		t.Fatalf("expected 4 neighbours, got %d", stats.Neighbors)
	}
	if len(stats.Labels) != 2 || stats.Labels[0].Label != "background" || stats.Labels[1].Label != PositiveLabel {
		t.Fatalf("expected sorted labels, got %+v", stats.Labels)
	}
	if stats.Labels[0].Prototypes != 3 || stats.Labels[1].Prototypes != 3 {
		t.Fatalf("unexpected per-label counts: %+v", stats.Labels)
	}
}
