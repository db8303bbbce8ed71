// Package pipeline implements the segment aggregation core: it takes the
// diarizer's speaker turns and the decoded audio buffer, slices the audio per
// turn, transcribes each retained slice sequentially through the active
// transcriber, and accumulates the per-record list and per-speaker
// aggregates that every projection and export is rendered from.
package pipeline

import (
	"time"
)

// ErrorMarker 在转写失败时代替文本写入记录
const ErrorMarker = "[transcription failed]"

// Pipeline stage identifiers used in logs, metrics and progress events.
const (
	StageIngest     = "ingest"
	StageDiarize    = "diarize"
	StageSlice      = "slice"
	StageTranscribe = "transcribe"
	StageAggregate  = "aggregate"
)

// SegmentRecord is one row of the finished transcript: a retained speaker
// turn with its captured text. Failed carries the per-slice transcription
// failure marker; Repeat flags a near-duplicate of the previous record's
// text (a common whisper artifact on silence). Both are cosmetic; records
// are never dropped for either.
type SegmentRecord struct {
	Speaker string  `json:"speaker"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
	Failed  bool    `json:"failed,omitempty"`
	Repeat  bool    `json:"repeat,omitempty"`
	Color   string  `json:"color"`
}

// SpeakerAggregate accumulates everything attributed to one speaker label:
// the concatenated text in non-decreasing start order, the earliest start,
// the latest end, total talk time (sum of retained turn durations) and the
// retained turn count.
type SpeakerAggregate struct {
	Speaker   string  `json:"speaker"`
	Text      string  `json:"text"`
	Start     float64 `json:"start"`
	End       float64 `json:"end"`
	TalkTime  float64 `json:"talk_time"`
	TurnCount int     `json:"turn_count"`
}

// Result is the complete output of one pipeline run. It is only handed out
// once every retained turn has been processed; there are no partial results
// mid-run.
type Result struct {
	SessionID   string                       `json:"session_id"`
	Records     []SegmentRecord              `json:"records"`
	Speakers    map[string]*SpeakerAggregate `json:"speakers"`
	NumSpeakers int                          `json:"num_speakers"`
	Duration    float64                      `json:"duration"`
	SourceHash  string                       `json:"source_hash,omitempty"`
	Warning     string                       `json:"warning,omitempty"`
	CreatedAt   time.Time                    `json:"created_at"`
}

// Empty reports whether the run retained zero turns.
func (r *Result) Empty() bool {
	return len(r.Records) == 0
}

// TotalTalkTime sums talk time across all speakers.
func (r *Result) TotalTalkTime() float64 {
	var total float64
	for _, agg := range r.Speakers {
		total += agg.TalkTime
	}
	return total
}

// ProgressEvent is a coarse pipeline progress notification fanned out to
// websocket subscribers and the structured log. Turn/Total are 1-based and
// only set inside the transcription loop.
type ProgressEvent struct {
	SessionID string    `json:"session_id"`
	Stage     string    `json:"stage"`
	Turn      int       `json:"turn,omitempty"`
	Total     int       `json:"total,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ProgressFunc receives progress events. Implementations must return
// quickly and never block; a nil func disables progress reporting.
type ProgressFunc func(ProgressEvent)
