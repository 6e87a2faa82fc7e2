package diagnostic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/clinsight/clinsight/internal/platform/feed"
	"github.com/clinsight/clinsight/internal/platform/metricslog"
	"github.com/clinsight/clinsight/internal/platform/predictor"
)

// ErrPredictionUnavailable is returned when either inference call fails.
// Nothing is persisted in that case.
var ErrPredictionUnavailable = errors.New("prediction unavailable")

// ErrInvalidPayload is returned when a submission fails validation; it
// separates the caller's mistakes from the console's own failures.
var ErrInvalidPayload = errors.New("invalid submission")

// Refresher receives a refresh trigger after each successful submission.
type Refresher interface {
	Trigger()
}

// Publisher pushes record events to connected dashboards.
type Publisher interface {
	Publish(ctx context.Context, event feed.Event) error
}

// SubmitRequest is a clinician's submission: who the patient is and what
// the model should see.
type SubmitRequest struct {
	PatientName string         `json:"patientName"`
	Features    FeaturePayload `json:"features"`
}

type Service struct {
	repo      Repository
	predictor predictor.Client
	metrics   metricslog.Sink
	logger    zerolog.Logger

	refresher Refresher
	publisher Publisher

	submissions  prometheus.Counter
	predFailures prometheus.Counter
	logFailures  prometheus.Counter
}

func NewService(repo Repository, pred predictor.Client, sink metricslog.Sink, logger zerolog.Logger) *Service {
	if sink == nil {
		sink = metricslog.NopSink{}
	}
	return &Service{repo: repo, predictor: pred, metrics: sink, logger: logger}
}

// SetRefresher attaches the scheduler trigger (optional).
func (s *Service) SetRefresher(r Refresher) { s.refresher = r }

// SetPublisher attaches the live feed (optional).
func (s *Service) SetPublisher(p Publisher) { s.publisher = p }

// SetCounters wires submission telemetry (any counter may be nil).
func (s *Service) SetCounters(submissions, predictionFailures, logFailures prometheus.Counter) {
	s.submissions = submissions
	s.predFailures = predictionFailures
	s.logFailures = logFailures
}

// Submit runs the full ingestion pipeline: normalize, score through both
// models, persist, then fan out to the metrics log, the refresh scheduler,
// and the live feed. Both model calls must succeed before anything is
// written; a half-scored record is never stored.
func (s *Service) Submit(ctx context.Context, req SubmitRequest, userID string) (*DiagnosticRecord, error) {
	features, err := req.Features.Normalize()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	disease, err := s.predictor.PredictDisease(ctx, features)
	if err != nil {
		if s.predFailures != nil {
			s.predFailures.Inc()
		}
		s.logger.Error().Err(err).Msg("disease prediction failed")
		return nil, fmt.Errorf("%w: %v", ErrPredictionUnavailable, err)
	}

	outcome, err := s.predictor.PredictOutcome(ctx, features)
	if err != nil {
		if s.predFailures != nil {
			s.predFailures.Inc()
		}
		s.logger.Error().Err(err).Msg("outcome prediction failed")
		return nil, fmt.Errorf("%w: %v", ErrPredictionUnavailable, err)
	}

	record := &DiagnosticRecord{
		PatientName: req.PatientName,
		Age:         features.Age,
		Features:    features,
		Prediction:  buildPrediction(disease, outcome),
	}
	if record.PatientName == "" {
		record.PatientName = "Unknown"
	}
	if userID != "" {
		record.CreatedBy = &userID
	}

	if err := s.repo.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("persist record: %w", err)
	}
	if s.submissions != nil {
		s.submissions.Inc()
	}

	// Metrics logging is fire-and-forget: a broker outage must never fail
	// a submission.
	go s.logModelMetrics(record, userID)

	// The record is durable at this point, so the triggered refresh will
	// observe it.
	if s.refresher != nil {
		s.refresher.Trigger()
	}
	s.publishCreated(ctx, record)

	return record, nil
}

func (s *Service) GetRecord(ctx context.Context, id uuid.UUID) (*DiagnosticRecord, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListRecords(ctx context.Context, limit, offset int) ([]*DiagnosticRecord, int, error) {
	return s.repo.List(ctx, limit, offset)
}

func buildPrediction(disease *predictor.DiseasePrediction, outcome *predictor.OutcomePrediction) Prediction {
	top3 := make([]DiseaseScore, 0, 3)
	for i, score := range disease.Top3 {
		if i == 3 {
			break
		}
		top3 = append(top3, DiseaseScore{
			Disease:    score.Disease,
			Confidence: clamp01(score.Confidence),
		})
	}
	return Prediction{
		DiseaseResult: DiseaseResult{Top3: top3},
		OutcomeResult: OutcomeResult{
			Risk:        predictor.NormalizeRisk(outcome.Risk),
			Probability: clamp01(outcome.Probability),
		},
	}
}

func (s *Service) logModelMetrics(record *DiagnosticRecord, userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	entries := []metricslog.Entry{
		{Model: "disease", Payload: record.Features, Prediction: record.Prediction.DiseaseResult, UserID: userID},
		{Model: "outcome", Payload: record.Features, Prediction: record.Prediction.OutcomeResult, UserID: userID},
	}
	for _, entry := range entries {
		if err := s.metrics.Log(ctx, entry); err != nil {
			if s.logFailures != nil {
				s.logFailures.Inc()
			}
			s.logger.Warn().Err(err).Str("model", entry.Model).Msg("metrics log failed")
		}
	}
}

func (s *Service) publishCreated(ctx context.Context, record *DiagnosticRecord) {
	if s.publisher == nil {
		return
	}
	data, err := json.Marshal(record)
	if err != nil {
		s.logger.Error().Err(err).Msg("marshal record event")
		return
	}
	event := feed.Event{
		Type:      "record.created",
		Topic:     feed.TopicRecords,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn().Err(err).Msg("publish record event")
	}
}
