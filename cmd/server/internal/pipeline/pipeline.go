package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/diascribe/diascribe/cmd/server/internal/audio"
	"github.com/diascribe/diascribe/cmd/server/internal/diarize"
	"github.com/diascribe/diascribe/cmd/server/internal/simhash"
	"github.com/diascribe/diascribe/cmd/server/internal/transcribe"
	"github.com/diascribe/diascribe/pkg/logger"
	"github.com/diascribe/diascribe/pkg/metrics"
)

// minSliceSeconds is the retention threshold: a slice strictly shorter than
// this is dropped before transcription. A slice of exactly the threshold
// is kept.
const minSliceSeconds = 0.5

// TranscriberSource yields the transcriber for the next slice call. The
// degradation controller satisfies it; FixedTranscriber wraps a single
// implementation for tests and the watch/CLI paths.
type TranscriberSource interface {
	GetTranscriber() transcribe.Transcriber
}

// FixedTranscriber adapts a bare transcriber into a TranscriberSource.
type FixedTranscriber struct {
	T transcribe.Transcriber
}

// GetTranscriber returns the wrapped transcriber.
func (f FixedTranscriber) GetTranscriber() transcribe.Transcriber { return f.T }

// Config carries the pipeline's run-independent settings.
type Config struct {
	// FFmpegPath is the converter binary used to normalize non-WAV input.
	FFmpegPath string

	// Options are the defaults passed to every transcription call.
	Options transcribe.Options
}

// Pipeline is the once-constructed aggregation service shared by the HTTP
// handlers and the watch-folder runner.
type Pipeline struct {
	diarizer     diarize.Diarizer
	transcribers TranscriberSource
	cfg          Config
	logger       *slog.Logger
	progress     ProgressFunc
}

// NewPipeline wires a pipeline over the given adapters. progress may be nil.
func NewPipeline(d diarize.Diarizer, t TranscriberSource, cfg Config, log *slog.Logger, progress ProgressFunc) *Pipeline {
	return &Pipeline{
		diarizer:     d,
		transcribers: t,
		cfg:          cfg,
		logger:       log,
		progress:     progress,
	}
}

// RunInput names one processing request.
type RunInput struct {
	SessionID  string
	UploadPath string // original uploaded file (wav or compressed)
	SourceHash string // md5 of the upload, carried into the result
	WorkDir    string // scratch dir for the normalized wav and clip files
}

// Run executes the full pipeline for one uploaded file: normalize, decode,
// diarize, then the sequential slice/transcribe/aggregate loop. The result
// is only returned once every retained turn has been processed. Zero
// retained turns produce an empty result with a warning, not an error.
func (p *Pipeline) Run(ctx context.Context, in RunInput) (*Result, error) {
	runStart := time.Now()

	// ingest: 归一化到 16kHz 单声道 WAV 并解码为样本缓冲
	p.emit(ProgressEvent{SessionID: in.SessionID, Stage: StageIngest, Message: "normalizing audio"})
	ingestStart := time.Now()
	if err := os.MkdirAll(in.WorkDir, 0755); err != nil {
		metrics.RecordPipelineRun("failed")
		return nil, NewAudioDecodeError(err)
	}
	normalizedPath := filepath.Join(in.WorkDir, "normalized.wav")
	if err := audio.EnsureNormalized(ctx, p.cfg.FFmpegPath, in.UploadPath, normalizedPath); err != nil {
		metrics.RecordPipelineRun("failed")
		logger.LogPipelineStage(p.logger, StageIngest, "error", in.SessionID, -1, time.Since(ingestStart).Milliseconds(), string(FFMPEG_FAILED))
		return nil, NewFFmpegError(err)
	}
	buf, err := audio.Decode(normalizedPath)
	if err != nil {
		metrics.RecordPipelineRun("failed")
		logger.LogPipelineStage(p.logger, StageIngest, "error", in.SessionID, -1, time.Since(ingestStart).Milliseconds(), string(AUDIO_DECODE_FAILED))
		return nil, NewAudioDecodeError(err)
	}
	metrics.RecordStageDuration(StageIngest, time.Since(ingestStart).Seconds())
	logger.LogPipelineStage(p.logger, StageIngest, "success", in.SessionID, -1, time.Since(ingestStart).Milliseconds(), "")

	// diarize
	p.emit(ProgressEvent{SessionID: in.SessionID, Stage: StageDiarize, Message: "detecting speaker turns"})
	diarizeStart := time.Now()
	turns, err := p.diarizer.Diarize(ctx, normalizedPath)
	if err != nil {
		metrics.RecordAdapterRequest("diarizer", p.diarizer.Name(), "failed")
		metrics.RecordPipelineRun("failed")
		logger.LogPipelineStage(p.logger, StageDiarize, "error", in.SessionID, -1, time.Since(diarizeStart).Milliseconds(), string(DIARIZE_FAILED))
		return nil, NewDiarizeError(err)
	}
	metrics.RecordAdapterRequest("diarizer", p.diarizer.Name(), "success")
	metrics.RecordStageDuration(StageDiarize, time.Since(diarizeStart).Seconds())
	logger.LogPipelineStage(p.logger, StageDiarize, "success", in.SessionID, -1, time.Since(diarizeStart).Milliseconds(), "")

	// 某些模型在文件边界附近会给出超出音频时长的 end，先裁剪
	turns, clipped := diarize.ClampTurns(turns, buf.Duration())
	if clipped > 0 {
		p.logger.Warn("clipped turn ends beyond audio duration",
			"session_id", in.SessionID, "clipped", clipped, "duration", buf.Duration())
	}

	records, speakers := p.aggregate(ctx, in.SessionID, in.WorkDir, buf, turns)

	result := &Result{
		SessionID:   in.SessionID,
		Records:     records,
		Speakers:    speakers,
		NumSpeakers: len(speakers),
		Duration:    buf.Duration(),
		SourceHash:  in.SourceHash,
		CreatedAt:   time.Now(),
	}

	if len(records) == 0 {
		result.Warning = "no valid segments"
		metrics.RecordPipelineRun("no_valid_segments")
		p.logger.Warn("no valid segments retained",
			"session_id", in.SessionID, "turns", len(turns))
		p.emit(ProgressEvent{SessionID: in.SessionID, Stage: StageAggregate, Message: "no valid segments"})
		return result, nil
	}

	metrics.RecordPipelineRun("success")
	p.logger.Info("pipeline run complete",
		"session_id", in.SessionID,
		"records", len(records),
		"speakers", len(speakers),
		"duration_ms", time.Since(runStart).Milliseconds())
	p.emit(ProgressEvent{SessionID: in.SessionID, Stage: StageAggregate, Message: "done"})
	return result, nil
}

// fragment is one retained turn's text contribution to a speaker aggregate.
type fragment struct {
	start float64
	text  string
}

// aggregate runs the sequential slice/transcribe loop over the turns in
// their emission order and builds the record list plus the per-speaker
// aggregates. Per turn: slice bounds are floor(t × rate) half-open, a slice
// strictly shorter than 0.5 s of samples is dropped entirely, a retained
// slice becomes a single-use clip that is removed right after the
// transcription call, and a per-slice failure marks the record instead of
// aborting the run.
func (p *Pipeline) aggregate(ctx context.Context, sessionID, workDir string, buf *audio.Buffer, turns []diarize.Turn) ([]SegmentRecord, map[string]*SpeakerAggregate) {
	aggStart := time.Now()
	minSamples := int(minSliceSeconds * float64(buf.SampleRate))

	records := make([]SegmentRecord, 0, len(turns))
	speakers := make(map[string]*SpeakerAggregate)
	fragments := make(map[string][]fragment)

	for i, turn := range turns {
		startIdx, endIdx := audio.SliceBounds(turn.Start, turn.End, buf.SampleRate)
		slice := buf.Slice(startIdx, endIdx)
		if len(slice) < minSamples {
			metrics.RecordTurn("dropped_short")
			logger.LogPipelineStage(p.logger, StageSlice, "skip", sessionID, i, 0, "")
			continue
		}

		p.emit(ProgressEvent{
			SessionID: sessionID,
			Stage:     StageTranscribe,
			Turn:      i + 1,
			Total:     len(turns),
			Message:   fmt.Sprintf("transcribing %s", turn.Speaker),
		})

		text, failed := p.transcribeSlice(ctx, sessionID, workDir, i, slice, buf.SampleRate)

		record := SegmentRecord{
			Speaker: turn.Speaker,
			Start:   turn.Start,
			End:     turn.End,
			Text:    text,
			Failed:  failed,
			Color:   SpeakerColor(turn.Speaker),
		}
		if failed {
			record.Text = ErrorMarker
		}
		records = append(records, record)

		agg, ok := speakers[turn.Speaker]
		if !ok {
			agg = &SpeakerAggregate{Speaker: turn.Speaker, Start: turn.Start, End: turn.End}
			speakers[turn.Speaker] = agg
		}
		if turn.Start < agg.Start {
			agg.Start = turn.Start
		}
		if turn.End > agg.End {
			agg.End = turn.End
		}
		agg.TalkTime += turn.Duration()
		agg.TurnCount++
		if !failed && text != "" {
			fragments[turn.Speaker] = append(fragments[turn.Speaker], fragment{start: turn.Start, text: text})
		}

		switch {
		case failed:
			metrics.RecordTurn("error")
		case text == "":
			metrics.RecordTurn("empty_text")
		default:
			metrics.RecordTurn("retained")
		}
	}

	// 每个说话人的文本按开始时间非递减拼接，单空格分隔
	for label, frags := range fragments {
		sort.SliceStable(frags, func(a, b int) bool { return frags[a].start < frags[b].start })
		parts := make([]string, len(frags))
		for i, f := range frags {
			parts[i] = f.text
		}
		speakers[label].Text = strings.Join(parts, " ")
	}

	// repeat flagging over the finished record list; failed records carry
	// the shared marker text and must never flag each other
	texts := make([]string, len(records))
	for i, r := range records {
		if !r.Failed {
			texts[i] = r.Text
		}
	}
	for i, isRepeat := range simhash.FlagRepeats(texts) {
		if isRepeat {
			records[i].Repeat = true
		}
	}

	metrics.RecordStageDuration(StageAggregate, time.Since(aggStart).Seconds())
	logger.LogPipelineStage(p.logger, StageAggregate, "success", sessionID, -1, time.Since(aggStart).Milliseconds(), "")
	return records, speakers
}

// transcribeSlice writes the ephemeral clip, makes one synchronous
// transcription call, and removes the clip before returning regardless of
// outcome. The returned flag reports a non-fatal failure.
func (p *Pipeline) transcribeSlice(ctx context.Context, sessionID, workDir string, turn int, samples []int, rate int) (string, bool) {
	clipPath := filepath.Join(workDir, "clip_"+uuid.NewString()+".wav")
	if err := audio.WriteClip(clipPath, samples, rate); err != nil {
		logger.LogPipelineStage(p.logger, StageTranscribe, "error", sessionID, turn, 0, string(TRANSCRIBE_SLICE_FAILED))
		p.logger.Error("clip write failed",
			"session_id", sessionID, "turn", turn, "error", err)
		return "", true
	}

	transcriber := p.transcribers.GetTranscriber()
	callStart := time.Now()
	result, err := transcriber.Transcribe(ctx, clipPath, &p.cfg.Options)
	os.Remove(clipPath) // 单次使用，调用返回后立即删除
	elapsed := time.Since(callStart)

	if err != nil {
		metrics.RecordAdapterRequest("transcriber", transcriber.Name(), "failed")
		logger.LogPipelineStage(p.logger, StageTranscribe, "error", sessionID, turn, elapsed.Milliseconds(), string(TRANSCRIBE_SLICE_FAILED))
		p.logger.Error("slice transcription failed",
			"session_id", sessionID, "turn", turn,
			"transcriber", transcriber.Name(), "error", err)
		return "", true
	}
	metrics.RecordAdapterRequest("transcriber", transcriber.Name(), "success")
	logger.LogPipelineStage(p.logger, StageTranscribe, "success", sessionID, turn, elapsed.Milliseconds(), "")

	return strings.TrimSpace(norm.NFC.String(result.Text)), false
}

// emit forwards a progress event with a stamped time. No-op without a
// progress sink.
func (p *Pipeline) emit(ev ProgressEvent) {
	if p.progress == nil {
		return
	}
	ev.Timestamp = time.Now()
	p.progress(ev)
}
