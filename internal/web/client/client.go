// Package client calls the inference service over HTTP. Any transport error,
// timeout, non-200 status or malformed answer is reported as
// common.ErrBackendUnavailable; there are no retries.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/mnistlab/internal/common"
	"github.com/dmitrijs2005/mnistlab/internal/mnist"
)

const maxResponseBytes = 64 << 10

type Prediction struct {
	Label         int
	Probabilities mnist.Probabilities
}

type HTTPClient struct {
	baseURL        string
	http           *http.Client
	predictTimeout time.Duration
	healthTimeout  time.Duration
}

func NewHTTPClient(baseURL string, predictTimeout, healthTimeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &http.Client{},
		predictTimeout: predictTimeout,
		healthTimeout:  healthTimeout,
	}
}

type predictRequest struct {
	Pixels []float64 `json:"pixels"`
}

type predictResponse struct {
	PredictedLabel *int                `json:"predicted_label"`
	Probabilities  mnist.Probabilities `json:"probabilities"`
}

// Predict sends 784 raw intensities (0–255) and returns the model's answer.
func (c *HTTPClient) Predict(ctx context.Context, pixels []float64) (*Prediction, error) {
	body, err := json.Marshal(predictRequest{Pixels: pixels})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.predictTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/mnist/predict", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	var out predictResponse
	if err := c.do(req, &out); err != nil {
		return nil, err
	}

	if out.PredictedLabel == nil || !mnist.ValidLabel(*out.PredictedLabel) {
		return nil, fmt.Errorf("%w: missing or invalid predicted_label", common.ErrBackendUnavailable)
	}
	if err := out.Probabilities.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrBackendUnavailable, err)
	}

	return &Prediction{Label: *out.PredictedLabel, Probabilities: out.Probabilities}, nil
}

// Health probes GET /health with the short health timeout.
func (c *HTTPClient) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}

	var out struct {
		Status string `json:"status"`
	}
	if err := c.do(req, &out); err != nil {
		return err
	}
	if out.Status != "ok" {
		return fmt.Errorf("%w: status %q", common.ErrBackendUnavailable, out.Status)
	}
	return nil
}

func (c *HTTPClient) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return fmt.Errorf("%w: %s returned %d", common.ErrBackendUnavailable, req.URL.Path, resp.StatusCode)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", common.ErrBackendUnavailable, req.URL.Path, err)
	}
	return nil
}
