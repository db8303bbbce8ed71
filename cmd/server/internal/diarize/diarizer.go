// Package diarize provides an abstraction layer for speaker diarization
// services. A diarizer takes a path to a mono 16kHz WAV file and returns the
// ordered speaker turns detected in it. Implementations cover an HTTP model
// service, a local pyannote script, and a mock used in tests and dev mode.
package diarize

import "context"

// Turn is one contiguous time interval attributed to a single speaker.
// The interval is half-open: [Start, End) in seconds. Turns are read-only
// once emitted by a diarizer.
type Turn struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker string  `json:"speaker"`
}

// Duration returns the turn length in seconds.
func (t Turn) Duration() float64 {
	return t.End - t.Start
}

// Response is the wire shape shared by the HTTP service and the local script:
// an ordered segment list plus the detected speaker count.
type Response struct {
	Segments    []Turn `json:"segments"`
	NumSpeakers int    `json:"num_speakers"`
}

// Diarizer defines the standard interface for speaker diarization services.
type Diarizer interface {
	// Diarize runs speaker diarization on the given audio file and returns
	// the turns in the model's emission order. The order is not guaranteed
	// to be globally sorted by start time across speakers.
	Diarize(ctx context.Context, audioPath string) ([]Turn, error)

	// HealthCheck verifies the diarization backend is reachable and usable.
	HealthCheck(ctx context.Context) (bool, error)

	// Name returns the identifier of this implementation for logs and metrics.
	Name() string
}

// ClampTurns trims turn ends that run past the audio duration, which some
// diarization models emit near file boundaries. Ends beyond duration+tolerance
// are pulled back to the duration; a start that would then exceed its end is
// pulled just below it. Returns the adjusted turns and how many were clipped.
func ClampTurns(turns []Turn, duration float64) ([]Turn, int) {
	const tol = 0.05
	clipped := 0
	out := make([]Turn, len(turns))
	copy(out, turns)
	for i := range out {
		if out[i].End > duration+tol {
			out[i].End = duration
			if out[i].Start > out[i].End {
				out[i].Start = out[i].End - 0.01
			}
			clipped++
		}
	}
	return out, clipped
}
