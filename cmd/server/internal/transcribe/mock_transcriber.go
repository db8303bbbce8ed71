package transcribe

import (
	"context"
	"log"
)

// MockTranscriber implements Transcriber as the "degraded mode" fallback.
// When every real whisper backend is unreachable the pipeline keeps running
// and produces records with empty text instead of failing the whole session.
//
// Behavior:
//   - Transcribe: returns an empty Result with nil error (never blocks)
//   - HealthCheck: always returns false (indicates degraded state)
//   - Logs WARN-level messages for monitoring
type MockTranscriber struct{}

// NewMockTranscriber creates a new MockTranscriber instance.
func NewMockTranscriber() *MockTranscriber {
	return &MockTranscriber{}
}

// Transcribe performs a no-op transcription that returns an empty result.
// It never returns an error so downstream aggregation is not blocked.
func (m *MockTranscriber) Transcribe(ctx context.Context, clipPath string, options *Options) (*Result, error) {
	log.Printf("[WARN] MockTranscriber: Transcribe called (degraded mode) for clip: %s", clipPath)

	return &Result{
		Segments: []Segment{},
		Text:     "",
		Language: "unknown",
		Duration: 0,
	}, nil
}

// HealthCheck always returns false: the mock represents a degraded state,
// and the degradation controller must keep probing the real backend.
func (m *MockTranscriber) HealthCheck(ctx context.Context) (bool, error) {
	return false, nil
}

// Name returns the identifier of this transcriber implementation.
func (m *MockTranscriber) Name() string {
	return "mock-degraded"
}
