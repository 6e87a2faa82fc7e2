// Package diagnostic implements the submission pipeline: a clinician's
// symptom payload is normalized, scored by the inference service, and
// persisted as an immutable diagnostic record.
package diagnostic

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FeatureSchemaVersion identifies the closed feature payload below. Adding
// or renaming a feature requires a version bump and a migration of stored
// records.
const FeatureSchemaVersion = 1

// FeaturePayload is the closed symptom schema the models were trained on.
type FeaturePayload struct {
	Version             int    `json:"v"`
	Fever               string `json:"fever"`
	Cough               string `json:"cough"`
	Fatigue             string `json:"fatigue"`
	DifficultyBreathing string `json:"difficultyBreathing"`
	Age                 int    `json:"age"`
	Gender              string `json:"gender"`
	BloodPressure       string `json:"bloodPressure"`
	Cholesterol         string `json:"cholesterol"`
}

// truthy accepts the spellings the upstream preprocessor accepts.
var truthy = map[string]bool{
	"yes": true, "y": true, "true": true, "1": true,
}

func canonicalFlag(v string) string {
	if truthy[strings.ToLower(strings.TrimSpace(v))] {
		return "Yes"
	}
	return "No"
}

func canonicalLevel(v string) string {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "low":
		return "Low"
	case "high":
		return "High"
	default:
		return "Normal"
	}
}

// Normalize canonicalizes a payload against the model's training baseline:
// absent flags become "No", absent gender "Female", absent levels "Normal".
// Negative ages are rejected rather than defaulted.
func (p FeaturePayload) Normalize() (FeaturePayload, error) {
	if p.Age < 0 {
		return FeaturePayload{}, fmt.Errorf("age must be non-negative, got %d", p.Age)
	}

	out := FeaturePayload{
		Version:             FeatureSchemaVersion,
		Fever:               canonicalFlag(p.Fever),
		Cough:               canonicalFlag(p.Cough),
		Fatigue:             canonicalFlag(p.Fatigue),
		DifficultyBreathing: canonicalFlag(p.DifficultyBreathing),
		Age:                 p.Age,
		BloodPressure:       canonicalLevel(p.BloodPressure),
		Cholesterol:         canonicalLevel(p.Cholesterol),
	}

	switch strings.ToLower(strings.TrimSpace(p.Gender)) {
	case "male", "m":
		out.Gender = "Male"
	case "", "female", "f":
		out.Gender = "Female"
	default:
		out.Gender = strings.TrimSpace(p.Gender)
	}
	return out, nil
}

// DiseaseScore is one candidate diagnosis with its model confidence.
type DiseaseScore struct {
	Disease    string  `json:"disease"`
	Confidence float64 `json:"confidence"`
}

// DiseaseResult holds up to the three highest-confidence diagnoses.
type DiseaseResult struct {
	Top3 []DiseaseScore `json:"top3"`
}

// OutcomeResult is the binary risk call with its probability.
type OutcomeResult struct {
	Risk        string  `json:"risk"`
	Probability float64 `json:"probability"`
}

// Prediction is set exactly once, at ingestion, and never recomputed.
type Prediction struct {
	DiseaseResult DiseaseResult `json:"diseaseResult"`
	OutcomeResult OutcomeResult `json:"outcomeResult"`
}

// DiagnosticRecord is one completed submission. Records are append-only and
// immutable; createdAt is server-assigned and is the sole ordering key.
type DiagnosticRecord struct {
	ID          uuid.UUID      `json:"id"`
	PatientName string         `json:"patientName"`
	Age         int            `json:"age"`
	Features    FeaturePayload `json:"features"`
	Prediction  Prediction     `json:"prediction"`
	CreatedBy   *string        `json:"createdBy,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// TopDisease returns the leading diagnosis, or "Unknown" when the model
// returned nothing.
func (r *DiagnosticRecord) TopDisease() string {
	if len(r.Prediction.DiseaseResult.Top3) == 0 {
		return "Unknown"
	}
	return r.Prediction.DiseaseResult.Top3[0].Disease
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
