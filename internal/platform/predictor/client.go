// Package predictor is the HTTP client for the external ML inference
// service. Both classification endpoints sit behind a shared circuit
// breaker: when the service misbehaves the breaker opens and submissions
// fail fast with ErrUnavailable instead of piling up timeouts.
package predictor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker"
)

// ErrUnavailable reports that an inference call failed for any reason:
// network error, non-2xx response, or an open circuit breaker.
var ErrUnavailable = errors.New("prediction service unavailable")

const (
	RiskHigh = "HighRisk"
	RiskLow  = "LowRisk"
)

// DiseaseScore is one candidate diagnosis with its confidence.
type DiseaseScore struct {
	Disease    string  `json:"disease"`
	Confidence float64 `json:"confidence"`
}

// DiseasePrediction is the top-3 candidate list for a feature payload.
type DiseasePrediction struct {
	Top3 []DiseaseScore `json:"top3"`
}

// OutcomePrediction is the binary risk classification for a feature payload.
type OutcomePrediction struct {
	Risk        string  `json:"risk"`
	Probability float64 `json:"probability"`
}

// FeatureWeight is one entry of the model's feature importance vector.
type FeatureWeight struct {
	Feature    string  `json:"feature"`
	Importance float64 `json:"importance"`
}

// Client is the inference service contract consumed by the console.
type Client interface {
	PredictDisease(ctx context.Context, payload interface{}) (*DiseasePrediction, error)
	PredictOutcome(ctx context.Context, payload interface{}) (*OutcomePrediction, error)
	FeatureImportance(ctx context.Context) ([]FeatureWeight, error)
}

type HTTPClient struct {
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	latency prometheus.Observer
}

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithLatencyObserver records call latency into the given histogram.
func WithLatencyObserver(obs prometheus.Observer) Option {
	return func(c *HTTPClient) { c.latency = obs }
}

func NewHTTPClient(baseURL string, timeout time.Duration, opts ...Option) *HTTPClient {
	c := &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "predictor",
			MaxRequests: 3,
			Interval:    30 * time.Second,
			Timeout:     60 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= 3 && failureRatio >= 0.6
			},
		}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *HTTPClient) PredictDisease(ctx context.Context, payload interface{}) (*DiseasePrediction, error) {
	var out DiseasePrediction
	if err := c.post(ctx, "/predict-disease", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) PredictOutcome(ctx context.Context, payload interface{}) (*OutcomePrediction, error) {
	var out OutcomePrediction
	if err := c.post(ctx, "/predict-outcome", payload, &out); err != nil {
		return nil, err
	}
	out.Risk = NormalizeRisk(out.Risk)
	return &out, nil
}

func (c *HTTPClient) FeatureImportance(ctx context.Context) ([]FeatureWeight, error) {
	var out []FeatureWeight
	if err := c.do(ctx, http.MethodGet, "/feature-importance", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) post(ctx context.Context, path string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, body, out)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body []byte, out interface{}) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		start := time.Now()
		defer func() {
			if c.latency != nil {
				c.latency.Observe(time.Since(start).Seconds())
			}
		}()

		var reader *bytes.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		} else {
			reader = bytes.NewReader(nil)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("status %d from %s", resp.StatusCode, path)
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return nil, fmt.Errorf("decode response from %s: %w", path, err)
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// NormalizeRisk canonicalizes the risk label: the upstream model emits
// "High Risk"/"Low Risk", the console stores HighRisk/LowRisk.
func NormalizeRisk(risk string) string {
	switch strings.ReplaceAll(strings.TrimSpace(risk), " ", "") {
	case "HighRisk":
		return RiskHigh
	case "LowRisk":
		return RiskLow
	default:
		return risk
	}
}
