package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
)

// --- Local data structures (no dependency on the server tree) ---

// Record is one retained speaker turn from a stored processing result.
type Record struct {
	Speaker string  `json:"speaker"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
	Failed  bool    `json:"failed,omitempty"`
	Repeat  bool    `json:"repeat,omitempty"`
}

// Result mirrors the result.json a processing run persists alongside the
// session. Only the fields this tool renders are declared.
type Result struct {
	SessionID string   `json:"session_id"`
	Records   []Record `json:"records"`
	Warning   string   `json:"warning,omitempty"`
}

// --- Output formatting functions ---

// writeText writes one line per turn: "[<start>s → <end>s] <speaker>: <text>"
func writeText(w io.Writer, recs []Record) {
	for _, r := range recs {
		fmt.Fprintf(w, "[%.2fs → %.2fs] %s: %s\n", r.Start, r.End, r.Speaker, r.Text)
	}
}

// writeSRT writes numbered SubRip cues
func writeSRT(w io.Writer, recs []Record) {
	for i, r := range recs {
		fmt.Fprintf(w, "%d\n", i+1)
		fmt.Fprintf(w, "%s --> %s\n", formatTimestampSrt(r.Start), formatTimestampSrt(r.End))
		fmt.Fprintf(w, "%s: %s\n\n", r.Speaker, r.Text)
	}
}

// writeVTT writes WebVTT cues
func writeVTT(w io.Writer, recs []Record) {
	fmt.Fprintln(w, "WEBVTT")
	fmt.Fprintln(w)
	for _, r := range recs {
		fmt.Fprintf(w, "%s --> %s\n", formatTimestampVtt(r.Start), formatTimestampVtt(r.End))
		fmt.Fprintf(w, "%s: %s\n\n", r.Speaker, r.Text)
	}
}

// formatTimestampSrt formats as HH:MM:SS,mmm (SRT uses comma)
func formatTimestampSrt(seconds float64) string {
	return formatClock(seconds, ',')
}

// formatTimestampVtt formats as HH:MM:SS.mmm (WebVTT uses dot)
func formatTimestampVtt(seconds float64) string {
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

// Simple tool: render a stored diarized-transcription result as a transcript
// Usage:
//   export-transcript -input <result.json> [-format txt|srt|vtt] [-output <path>]

func main() {
	var inputFile string
	var format string
	var outputFile string
	flag.Usage = func() {
		exe := filepath.Base(os.Args[0])
		fmt.Fprintf(os.Stderr, "Usage: %s -input <result.json> [-format txt|srt|vtt] [-output <path>]\n\n", exe)
		fmt.Fprintln(os.Stderr, "Options:")
		flag.PrintDefaults()
	}
	flag.StringVar(&inputFile, "input", "", "Path to a stored processing result (result.json, required)")
	flag.StringVar(&format, "format", "txt", "Output format: txt|srt|vtt")
	flag.StringVar(&outputFile, "output", "", "Output file path (default: stdout)")
	flag.Parse()

	// Validate required flags
	if inputFile == "" {
		flag.Usage()
		os.Exit(2)
	}

	// Validate format
	if !validFormat(format) {
		fmt.Fprintln(os.Stderr, "invalid -format:", format)
		flag.Usage()
		os.Exit(2)
	}

	result, err := readResult(inputFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read result:", err)
		os.Exit(1)
	}
	if result.Warning != "" {
		fmt.Fprintln(os.Stderr, "warning:", result.Warning)
	}
	if len(result.Records) == 0 {
		fmt.Fprintln(os.Stderr, "no records in result")
	}

	// Subtitle cues must be chronological even when the input file was
	// hand-edited out of order.
	recs := append([]Record(nil), result.Records...)
	sort.SliceStable(recs, func(a, b int) bool { return recs[a].Start < recs[b].Start })

	out := io.Writer(os.Stdout)
	if outputFile != "" {
		f, err := os.Create(outputFile)
		if err != nil {
			fmt.Fprintln(os.Stderr, "create output:", err)
			os.Exit(1)
		}
		defer f.Close()
		out = f
	}

	switch format {
	case "srt":
		writeSRT(out, recs)
	case "vtt":
		writeVTT(out, recs)
	case "txt":
		fallthrough
	default:
		writeText(out, recs)
	}
}

func validFormat(f string) bool {
	switch f {
	case "txt", "srt", "vtt":
		return true
	default:
		return false
	}
}

func readResult(path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var r Result
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
