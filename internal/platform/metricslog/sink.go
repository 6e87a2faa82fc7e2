// Package metricslog emits model-metrics entries to an external monitoring
// pipeline. Emission is fire-and-forget from the caller's perspective: a
// failed log is reported, never rolled back into the submission.
package metricslog

import (
	"context"
	"time"
)

// Entry is one model-metrics event: which model ran, what it saw, and what
// it predicted.
type Entry struct {
	Model      string      `json:"model"`
	Payload    interface{} `json:"payload"`
	Prediction interface{} `json:"prediction"`
	UserID     string      `json:"user,omitempty"`
	Timestamp  time.Time   `json:"ts"`
}

// Sink accepts model-metrics entries.
type Sink interface {
	Log(ctx context.Context, entry Entry) error
	Close() error
}

// NopSink discards entries; used when no broker is configured and in tests.
type NopSink struct{}

func (NopSink) Log(context.Context, Entry) error { return nil }
func (NopSink) Close() error                     { return nil }
