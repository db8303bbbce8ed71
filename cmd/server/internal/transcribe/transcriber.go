// Package transcribe provides an abstraction layer for speech-to-text services.
// It defines a standard interface and data structures to support multiple
// implementations (whisper HTTP services, local whisper binaries, and a mock
// fallback used in degraded mode).
package transcribe

import (
	"context"
	"time"
)

// Segment represents a single segment of transcribed audio with timing information.
type Segment struct {
	// ID is the sequential identifier of this segment within the transcription
	ID int `json:"id"`

	// Start is the beginning time of this segment in seconds from the clip start
	Start float64 `json:"start"`

	// End is the ending time of this segment in seconds from the clip start
	End float64 `json:"end"`

	// Text is the transcribed text content of this segment
	Text string `json:"text"`
}

// Result represents the complete result of one transcription call.
type Result struct {
	// Segments is the list of all transcribed segments with timing information
	Segments []Segment `json:"segments"`

	// Text is the complete transcribed text (concatenation of all segment texts)
	Text string `json:"text"`

	// Language is the detected or specified language code (e.g., "en", "zh")
	Language string `json:"language"`

	// Duration is the total duration of the clip in seconds
	Duration float64 `json:"duration"`
}

// Transcriber defines the standard interface for speech-to-text services.
// All concrete implementations (HTTPTranscriber, CLITranscriber, MockTranscriber)
// must implement this interface to be usable by the degradation controller.
type Transcriber interface {
	// Transcribe performs speech recognition on the given WAV clip.
	//
	// Parameters:
	//   - ctx: Context for timeout control and cancellation
	//   - clipPath: Absolute path to the WAV clip (16kHz, mono, PCM)
	//   - options: Optional transcription parameters (model, language, temperature, prompt)
	//
	// Implementation notes:
	//   - Must respect context timeout and cancellation
	//   - Should wrap external errors with context for debugging
	//   - An empty transcription is a valid Result with empty Segments, not an error
	Transcribe(ctx context.Context, clipPath string, options *Options) (*Result, error)

	// HealthCheck verifies that the transcription service is operational.
	// It should be lightweight (well under 10 seconds). MockTranscriber
	// always returns (false, nil) to signal degraded mode.
	HealthCheck(ctx context.Context) (bool, error)

	// Name returns the identifier of this implementation, used in logs,
	// metrics, and the degradation controller (e.g., "whisper-http",
	// "whisper-cli", "mock-degraded").
	Name() string
}

// Options defines optional parameters for the Transcribe operation.
// All fields are optional; implementations provide sensible defaults.
type Options struct {
	// Model specifies the whisper model to use (e.g., "tiny", "base", "large-v3").
	Model string

	// Language forces transcription in a specific language (ISO 639-1 code).
	// Empty string means auto-detection.
	Language string

	// Temperature controls decoding randomness. 0.0 (the default) reduces
	// hallucinated repetitions on silence.
	Temperature float64

	// Prompt provides context to improve accuracy on domain terminology.
	Prompt string

	// Timeout overrides the implementation's default per-call timeout.
	Timeout time.Duration
}
