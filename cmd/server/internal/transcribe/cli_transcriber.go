package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// CLITranscriber implements Transcriber for a local whisper executable
// (e.g., a whisper.cpp build). It is the fallback for environments where
// the HTTP whisper service is not deployed.
type CLITranscriber struct {
	programPath string // Path to the whisper executable
}

// NewCLITranscriber creates a CLITranscriber with startup validation.
//
// Startup validation:
//   - Checks program file existence using os.Stat
//   - Verifies executable permission bits (Unix mode 0111)
//
// Failing fast here prevents runtime surprises mid-pipeline.
func NewCLITranscriber(programPath string) (*CLITranscriber, error) {
	info, err := os.Stat(programPath)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("whisper program not found: %s", programPath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat whisper program: %w", err)
	}

	if info.Mode()&0111 == 0 {
		return nil, fmt.Errorf("whisper program is not executable: %s (mode: %s)", programPath, info.Mode())
	}

	return &CLITranscriber{programPath: programPath}, nil
}

// Transcribe invokes the local whisper CLI on the clip.
//
// CLI contract (whisper.cpp style interface):
//   - Subcommand: transcribe <model> <audio_file>
//   - Options: --format json, --temperature, --language, --prompt
//   - Output: one or more pretty-printed JSON segment objects on stdout
func (c *CLITranscriber) Transcribe(ctx context.Context, clipPath string, options *Options) (*Result, error) {
	// Model names keep the ggml- prefix expected by whisper.cpp builds
	model := "tiny"
	if options != nil && options.Model != "" {
		model = strings.TrimSuffix(options.Model, ".bin")
	}
	if !strings.HasPrefix(model, "ggml-") {
		model = "ggml-" + model
	}

	args := []string{"transcribe", model, clipPath, "--format", "json"}

	temperature := 0.0
	if options != nil && options.Temperature > 0 {
		temperature = options.Temperature
	}
	args = append(args, "--temperature", fmt.Sprintf("%.1f", temperature))

	if options != nil && options.Language != "" {
		args = append(args, "--language", options.Language)
	}
	if options != nil && options.Prompt != "" {
		args = append(args, "--prompt", options.Prompt)
	}

	cmd := exec.CommandContext(ctx, c.programPath, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("CLI execution failed: %w, output: %s", err, string(output))
	}

	// The CLI emits concatenated JSON objects rather than strict JSONL,
	// so stream-decode until EOF.
	result := &Result{Segments: []Segment{}}
	decoder := json.NewDecoder(bytes.NewReader(output))
	for {
		var segment Segment
		if err := decoder.Decode(&segment); err != nil {
			if err.Error() == "EOF" {
				if len(result.Segments) == 0 {
					return nil, fmt.Errorf("no segments found in output")
				}
				break
			}
			return nil, fmt.Errorf("failed to parse JSON segment: %w", err)
		}
		result.Segments = append(result.Segments, segment)
	}

	var texts []string
	for _, seg := range result.Segments {
		texts = append(texts, strings.TrimSpace(seg.Text))
	}
	result.Text = strings.Join(texts, " ")

	return result, nil
}

// HealthCheck verifies the whisper program responds to its version subcommand.
func (c *CLITranscriber) HealthCheck(ctx context.Context) (bool, error) {
	cmd := exec.CommandContext(ctx, c.programPath, "version")
	output, err := cmd.CombinedOutput()
	if err != nil {
		return false, fmt.Errorf("version check failed: %w, output: %s", err, string(output))
	}

	if len(output) > 0 {
		return true, nil
	}

	return false, fmt.Errorf("unexpected empty version output")
}

// Name returns the identifier of this transcriber implementation.
func (c *CLITranscriber) Name() string {
	return "whisper-cli"
}
