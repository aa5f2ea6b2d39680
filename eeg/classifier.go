package eeg

import "fmt"

const (
	// DetectionThreshold is the strict probability cutoff above which a
	// window counts as seizure activity. Exactly 0.5 stays negative, and
	// so does NaN from degenerate windows.
	DetectionThreshold = 0.5

	// DefaultBatchSize bounds how many windows are scored per model call.
	DefaultBatchSize = 32
)

// Model scores standardized windows and returns one seizure probability
// per window, in order.
type Model interface {
	Predict(windows [][]float64) ([]float64, error)
}

// Classifier turns window probabilities into boolean seizure labels,
// feeding the model in bounded batches.
type Classifier struct {
	model     Model
	batchSize int
}

// NewClassifier wraps a model. A non-positive batch size falls back to
// DefaultBatchSize.
func NewClassifier(model Model, batchSize int) *Classifier {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Classifier{model: model, batchSize: batchSize}
}

// Model returns the wrapped scoring backend.
func (c *Classifier) Model() Model {
	return c.model
}

// Classify labels every window. Batches are scored sequentially and any
// model failure aborts the whole call; a partial labelling is never
// returned.
func (c *Classifier) Classify(windows [][]float64) ([]bool, error) {
	if len(windows) == 0 {
		return nil, nil
	}
	labels := make([]bool, len(windows))
	for i := 0; i < len(windows); i += c.batchSize {
		end := i + c.batchSize
		if end > len(windows) {
			end = len(windows)
		}
		batch := windows[i:end]
		probs, err := c.model.Predict(batch)
		if err != nil {
			return nil, fmt.Errorf("score windows %d-%d: %w", i, end, err)
		}
		if len(probs) != len(batch) {
			return nil, fmt.Errorf("model returned %d probabilities for %d windows", len(probs), len(batch))
		}
		for j, p := range probs {
			labels[i+j] = p > DetectionThreshold
		}
	}
	return labels, nil
}
