package diagnostic

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func newTestHandler(t *testing.T, pred *fakePredictor) (*Handler, *mockRepo) {
	t.Helper()
	repo := newMockRepo()
	svc := NewService(repo, pred, nil, zerolog.Nop())
	return NewHandler(svc), repo
}

func TestHandler_Submit(t *testing.T) {
	h, repo := newTestHandler(t, healthyPredictor())
	e := echo.New()

	body := `{"patientName":"Jane Doe","features":{"fever":"yes","age":33}}`
	req := httptest.NewRequest(http.MethodPost, "/records", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Submit(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	var out DiagnosticRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if out.PatientName != "Jane Doe" {
		t.Errorf("expected Jane Doe, got %q", out.PatientName)
	}
	if out.Prediction.OutcomeResult.Risk != "HighRisk" {
		t.Errorf("expected HighRisk, got %q", out.Prediction.OutcomeResult.Risk)
	}
	if repo.count() != 1 {
		t.Errorf("expected 1 stored record, got %d", repo.count())
	}
}

func TestHandler_SubmitPredictorDown(t *testing.T) {
	pred := healthyPredictor()
	pred.diseaseErr = ErrPredictionUnavailable
	h, repo := newTestHandler(t, pred)
	e := echo.New()

	req := httptest.NewRequest(http.MethodPost, "/records", strings.NewReader(`{}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.Submit(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	if httpErr.Code != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", httpErr.Code)
	}
	if repo.count() != 0 {
		t.Errorf("expected no records, got %d", repo.count())
	}
}

func TestHandler_SubmitInvalidAge(t *testing.T) {
	h, _ := newTestHandler(t, healthyPredictor())
	e := echo.New()

	req := httptest.NewRequest(http.MethodPost, "/records", strings.NewReader(`{"features":{"age":-2}}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.Submit(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	if httpErr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", httpErr.Code)
	}
}

func TestHandler_SubmitStoreFailure(t *testing.T) {
	h, repo := newTestHandler(t, healthyPredictor())
	repo.err = errors.New("db down")
	e := echo.New()

	req := httptest.NewRequest(http.MethodPost, "/records", strings.NewReader(`{"patientName":"P"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.Submit(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	// A broken store is the console's failure, not the caller's.
	if httpErr.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", httpErr.Code)
	}
}

func TestHandler_ListRecords(t *testing.T) {
	h, _ := newTestHandler(t, healthyPredictor())
	e := echo.New()

	// Seed through the service so records carry predictions.
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/records", strings.NewReader(`{"patientName":"P"}`))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		c := e.NewContext(req, httptest.NewRecorder())
		if err := h.Submit(c); err != nil {
			t.Fatalf("seed submit failed: %v", err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/records?limit=2", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.ListRecords(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var out struct {
		Data    []DiagnosticRecord `json:"data"`
		Total   int                `json:"total"`
		HasMore bool               `json:"has_more"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if out.Total != 3 || len(out.Data) != 2 || !out.HasMore {
		t.Errorf("expected total 3, page 2, has_more; got total %d, page %d, has_more %v",
			out.Total, len(out.Data), out.HasMore)
	}
}

func TestHandler_GetRecord(t *testing.T) {
	h, repo := newTestHandler(t, healthyPredictor())
	e := echo.New()

	seeded := &DiagnosticRecord{PatientName: "Jane Doe"}
	if err := repo.Create(context.Background(), seeded); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(seeded.ID.String())

	if err := h.GetRecord(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestHandler_GetRecordNotFound(t *testing.T) {
	h, _ := newTestHandler(t, healthyPredictor())
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())

	err := h.GetRecord(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	if httpErr.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", httpErr.Code)
	}
}

func TestHandler_GetRecordInvalidID(t *testing.T) {
	h, _ := newTestHandler(t, healthyPredictor())
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")

	err := h.GetRecord(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	if httpErr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", httpErr.Code)
	}
}
