package inference

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client communicates with an external window scoring service. It
// satisfies the pipeline's model interface, so a remote model can stand
// in for the built-in one without touching the pipeline.
type Client struct {
	serviceURL string
	client     *http.Client
}

type predictRequest struct {
	Windows [][]float64 `json:"windows"`
}

type predictResponse struct {
	Probabilities []float64 `json:"probabilities"`
}

// NewClient creates a scoring service client.
func NewClient(serviceURL string) *Client {
	if serviceURL == "" {
		serviceURL = "http://localhost:5002"
	}

	return &Client{
		serviceURL: strings.TrimRight(serviceURL, "/"),
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Health verifies the scoring service is running.
func (c *Client) Health() error {
	resp, err := c.client.Get(c.serviceURL + "/health")
	if err != nil {
		return fmt.Errorf("scoring service not reachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("scoring service unhealthy: status %d", resp.StatusCode)
	}

	return nil
}

// Predict sends a batch of standardized windows for scoring and returns
// one probability per window.
func (c *Client) Predict(windows [][]float64) ([]float64, error) {
	payload, err := json.Marshal(predictRequest{Windows: windows})
	if err != nil {
		return nil, fmt.Errorf("failed to encode windows: %w", err)
	}

	req, err := http.NewRequest("POST", c.serviceURL+"/predict", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("scoring request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("scoring service returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var scored predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&scored); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(scored.Probabilities) != len(windows) {
		return nil, fmt.Errorf("scoring service returned %d probabilities for %d windows", len(scored.Probabilities), len(windows))
	}

	return scored.Probabilities, nil
}
