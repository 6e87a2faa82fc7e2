package predictor

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestPredictDisease_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/predict-disease" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"top3":[{"disease":"Flu","confidence":0.8},{"disease":"Cold","confidence":0.15}]}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, 5*time.Second)
	pred, err := c.PredictDisease(context.Background(), map[string]interface{}{"Age": 45})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pred.Top3) != 2 || pred.Top3[0].Disease != "Flu" {
		t.Errorf("unexpected prediction: %+v", pred)
	}
}

func TestPredictOutcome_NormalizesRisk(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"risk":"High Risk","probability":0.7}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, 5*time.Second)
	pred, err := c.PredictOutcome(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pred.Risk != RiskHigh {
		t.Errorf("expected %s, got %s", RiskHigh, pred.Risk)
	}
	if pred.Probability != 0.7 {
		t.Errorf("expected 0.7, got %f", pred.Probability)
	}
}

func TestPredict_ServerErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, 5*time.Second)
	_, err := c.PredictDisease(context.Background(), nil)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestPredict_BreakerOpensAfterFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, 5*time.Second)
	for i := 0; i < 5; i++ {
		c.PredictOutcome(context.Background(), nil)
	}
	_, err := c.PredictOutcome(context.Background(), nil)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable with open breaker, got %v", err)
	}
}

func TestFeatureImportance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/feature-importance" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"feature":"Age","importance":0.42}]`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, 5*time.Second)
	weights, err := c.FeatureImportance(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(weights) != 1 || weights[0].Feature != "Age" {
		t.Errorf("unexpected weights: %+v", weights)
	}
}

func TestNormalizeRisk(t *testing.T) {
	cases := map[string]string{
		"High Risk": RiskHigh,
		"HighRisk":  RiskHigh,
		"Low Risk":  RiskLow,
		"LowRisk":   RiskLow,
		"unknown":   "unknown",
	}
	for in, want := range cases {
		if got := NormalizeRisk(in); got != want {
			t.Errorf("NormalizeRisk(%q) = %q, want %q", in, got, want)
		}
	}
}
