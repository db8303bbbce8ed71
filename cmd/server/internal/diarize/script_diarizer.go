package diarize

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"
)

// ScriptDiarizer implements Diarizer by executing a local pyannote Python
// script. The script reads the audio file, runs the pretrained pipeline and
// prints a single JSON object {"segments": [...], "num_speakers": N} on
// stdout. Model weights are fetched with the HuggingFace token, which is
// passed through the environment and never via argv.
type ScriptDiarizer struct {
	pythonBin  string
	scriptPath string
	device     string
	hfToken    string
	timeout    time.Duration
}

// NewScriptDiarizer creates a ScriptDiarizer with startup validation of the
// script path. A missing HF token is a configuration error caught earlier;
// here it would only surface as a model download failure mid-run.
func NewScriptDiarizer(pythonBin, scriptPath, device, hfToken string, timeout time.Duration) (*ScriptDiarizer, error) {
	if _, err := os.Stat(scriptPath); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("diarization script not found: %s", scriptPath)
		}
		return nil, fmt.Errorf("failed to stat diarization script: %w", err)
	}
	if pythonBin == "" {
		pythonBin = "python3"
	}
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &ScriptDiarizer{
		pythonBin:  pythonBin,
		scriptPath: scriptPath,
		device:     device,
		hfToken:    hfToken,
		timeout:    timeout,
	}, nil
}

// Diarize runs the script and parses its stdout.
//
// Script contract:
//   - Args: <script> --input <wav> --device <device>
//   - Env: HUGGINGFACE_TOKEN for model access
//   - Output: JSON object with a "segments" array; pyannote emits warnings
//     around it, so the object is extracted by brace matching when a plain
//     decode fails.
func (s *ScriptDiarizer) Diarize(ctx context.Context, audioPath string) ([]Turn, error) {
	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, s.pythonBin, s.scriptPath, "--input", audioPath, "--device", s.device)
	env := os.Environ()
	if s.hfToken != "" {
		env = append(env, "HUGGINGFACE_TOKEN="+s.hfToken)
	}
	cmd.Env = env

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("diarization script failed: %w, stderr: %s", err, stderr.String())
	}

	var out Response
	raw := stdout.Bytes()
	if err := json.Unmarshal(raw, &out); err != nil {
		// stdout polluted by library warnings; locate the JSON object
		jb, jerr := extractJSONWithSegments(raw)
		if jerr != nil {
			return nil, fmt.Errorf("failed to parse script output: %w", err)
		}
		if err := json.Unmarshal(jb, &out); err != nil {
			return nil, fmt.Errorf("failed to parse extracted JSON: %w", err)
		}
	}

	return out.Segments, nil
}

// HealthCheck verifies the python interpreter and the script are present.
func (s *ScriptDiarizer) HealthCheck(ctx context.Context) (bool, error) {
	if _, err := exec.LookPath(s.pythonBin); err != nil {
		return false, fmt.Errorf("python interpreter not found: %w", err)
	}
	if _, err := os.Stat(s.scriptPath); err != nil {
		return false, fmt.Errorf("diarization script missing: %w", err)
	}
	return true, nil
}

// Name returns the identifier of this diarizer implementation.
func (s *ScriptDiarizer) Name() string {
	return "pyannote-script"
}

// extractJSONWithSegments locates a JSON object containing a "segments" field
// within noisy mixed output (warnings, progress lines, etc.). It prefers the
// last occurrence and matches braces while honoring string escapes.
func extractJSONWithSegments(out []byte) ([]byte, error) {
	key := []byte(`{"segments"`)
	start := bytes.LastIndex(out, key)
	if start < 0 {
		start = bytes.LastIndex(out, []byte("{"))
		if start < 0 {
			return nil, errors.New("no JSON object found")
		}
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(out); i++ {
		c := out[i]
		if inString {
			if escaped {
				escaped = false
				continue
			}
			if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return out[start : i+1], nil
			}
		}
	}
	return nil, errors.New("unterminated JSON object")
}
