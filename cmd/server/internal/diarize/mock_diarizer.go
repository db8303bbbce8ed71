package diarize

import "context"

// MockDiarizer implements Diarizer with a fixed turn script. It backs tests
// and the dev-mode configuration where no diarization backend is deployed.
type MockDiarizer struct {
	turns []Turn
}

// NewMockDiarizer creates a MockDiarizer that returns the given turns from
// every Diarize call. A nil slice yields an empty (but valid) result.
func NewMockDiarizer(turns []Turn) *MockDiarizer {
	return &MockDiarizer{turns: turns}
}

// Diarize returns a copy of the configured turns regardless of input.
func (m *MockDiarizer) Diarize(ctx context.Context, audioPath string) ([]Turn, error) {
	out := make([]Turn, len(m.turns))
	copy(out, m.turns)
	return out, nil
}

// HealthCheck always succeeds; the mock has no external dependency.
func (m *MockDiarizer) HealthCheck(ctx context.Context) (bool, error) {
	return true, nil
}

// Name returns the identifier of this diarizer implementation.
func (m *MockDiarizer) Name() string {
	return "mock-diarizer"
}
