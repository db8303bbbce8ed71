// Package export renders a finished pipeline result into the delivery
// formats (plain text, SRT, WebVTT) and the read-only API projections
// (table view, chat view, talk-time summary). All renderings are
// chronological: records sort by start time, stable for equal starts.
package export

import (
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/diascribe/diascribe/cmd/server/internal/pipeline"
)

// Format identifies an export rendering.
type Format string

const (
	FormatText Format = "txt"
	FormatSRT  Format = "srt"
	FormatVTT  Format = "vtt"
)

// ParseFormat validates a format string from the API or CLI.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatText, FormatSRT, FormatVTT:
		return Format(s), nil
	}
	return "", fmt.Errorf("unsupported export format: %q (must be txt, srt or vtt)", s)
}

// ContentType returns the MIME type served for downloads of this format.
func (f Format) ContentType() string {
	switch f {
	case FormatSRT:
		return "application/x-subrip"
	case FormatVTT:
		return "text/vtt; charset=utf-8"
	default:
		return "text/plain; charset=utf-8"
	}
}

// Write renders the result in the given format.
func Write(w io.Writer, result *pipeline.Result, format Format) error {
	switch format {
	case FormatSRT:
		return WriteSRT(w, result)
	case FormatVTT:
		return WriteVTT(w, result)
	case FormatText:
		return WriteText(w, result)
	default:
		return fmt.Errorf("unsupported export format: %q", format)
	}
}

// WriteText renders one line per retained turn:
//
//	[<start 2dp>s → <end 2dp>s] <speaker>: <text>
func WriteText(w io.Writer, result *pipeline.Result) error {
	for _, rec := range sortedRecords(result) {
		if _, err := fmt.Fprintf(w, "[%.2fs → %.2fs] %s: %s\n", rec.Start, rec.End, rec.Speaker, rec.Text); err != nil {
			return err
		}
	}
	return nil
}

// WriteSRT renders numbered SubRip cues with comma millisecond separators.
func WriteSRT(w io.Writer, result *pipeline.Result) error {
	for i, rec := range sortedRecords(result) {
		_, err := fmt.Fprintf(w, "%d\n%s --> %s\n%s: %s\n\n",
			i+1,
			formatTimestampSRT(rec.Start), formatTimestampSRT(rec.End),
			rec.Speaker, rec.Text)
		if err != nil {
			return err
		}
	}
	return nil
}

// WriteVTT renders WebVTT cues with dot millisecond separators.
func WriteVTT(w io.Writer, result *pipeline.Result) error {
	if _, err := io.WriteString(w, "WEBVTT\n\n"); err != nil {
		return err
	}
	for _, rec := range sortedRecords(result) {
		_, err := fmt.Fprintf(w, "%s --> %s\n%s: %s\n\n",
			formatTimestampVTT(rec.Start), formatTimestampVTT(rec.End),
			rec.Speaker, rec.Text)
		if err != nil {
			return err
		}
	}
	return nil
}

// sortedRecords returns the records in chronological order without
// touching the result's own slice.
func sortedRecords(result *pipeline.Result) []pipeline.SegmentRecord {
	recs := append([]pipeline.SegmentRecord(nil), result.Records...)
	sort.SliceStable(recs, func(a, b int) bool { return recs[a].Start < recs[b].Start })
	return recs
}

// formatTimestampSRT formats as HH:MM:SS,mmm (SRT uses comma)
func formatTimestampSRT(seconds float64) string {
	return formatClock(seconds, ',')
}

// formatTimestampVTT formats as HH:MM:SS.mmm (WebVTT uses dot)
func formatTimestampVTT(seconds float64) string {
	return formatClock(seconds, '.')
}

func formatClock(seconds float64, sep byte) string {
	ms := int64(math.Round(seconds * 1000))
	if ms < 0 {
		ms = 0
	}
	h := ms / 3600000
	ms -= h * 3600000
	m := ms / 60000
	ms -= m * 60000
	s := ms / 1000
	ms -= s * 1000
	return fmt.Sprintf("%02d:%02d:%02d%c%03d", h, m, s, sep, ms)
}
