package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// HTTPTranscriber implements Transcriber for whisper HTTP services that accept
// multipart/form-data uploads (e.g., the go-whisper container). Clips produced
// by the aggregation loop are rarely longer than a minute, but the client
// timeout is kept generous because transcription time roughly tracks clip
// duration on CPU-only deployments.
type HTTPTranscriber struct {
	apiURL     string       // Base URL of the whisper service (e.g., "http://whisper:80")
	httpClient *http.Client // Reusable HTTP client with configured timeout
}

// NewHTTPTranscriber creates an HTTPTranscriber for the given base URL.
func NewHTTPTranscriber(apiURL string) *HTTPTranscriber {
	return &HTTPTranscriber{
		apiURL: apiURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Minute,
		},
	}
}

// Transcribe sends the clip as a multipart/form-data request to the whisper API.
//
// Implementation details:
//   - Opens the clip from the provided path
//   - Constructs a multipart request with audio, model, response_format,
//     temperature and optional language/prompt fields
//   - Sends POST to {apiURL}/api/whisper/transcribe
//   - Parses the JSON response into a Result
func (h *HTTPTranscriber) Transcribe(ctx context.Context, clipPath string, options *Options) (*Result, error) {
	file, err := os.Open(clipPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio file: %w", err)
	}
	defer file.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	// The whisper API expects the upload under the 'audio' field name
	part, err := writer.CreateFormFile("audio", filepath.Base(clipPath))
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("failed to copy file data: %w", err)
	}

	model := "tiny"
	if options != nil && options.Model != "" {
		model = options.Model
	}
	if err := writer.WriteField("model", model); err != nil {
		return nil, fmt.Errorf("failed to write model field: %w", err)
	}

	// Always request JSON so the response can be parsed
	if err := writer.WriteField("response_format", "json"); err != nil {
		return nil, fmt.Errorf("failed to write response_format field: %w", err)
	}

	if options != nil && options.Language != "" {
		if err := writer.WriteField("language", options.Language); err != nil {
			return nil, fmt.Errorf("failed to write language field: %w", err)
		}
	}

	// Temperature 0.0 reduces hallucinated repetitions on silent clips
	temperature := 0.0
	if options != nil && options.Temperature > 0 {
		temperature = options.Temperature
	}
	if err := writer.WriteField("temperature", fmt.Sprintf("%.1f", temperature)); err != nil {
		return nil, fmt.Errorf("failed to write temperature field: %w", err)
	}

	if options != nil && options.Prompt != "" {
		if err := writer.WriteField("prompt", options.Prompt); err != nil {
			return nil, fmt.Errorf("failed to write prompt field: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	endpoint := fmt.Sprintf("%s/api/whisper/transcribe", h.apiURL)
	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to parse JSON response: %w", err)
	}

	return &result, nil
}

// HealthCheck verifies that the whisper service is operational by querying the
// model listing endpoint. Returns true only on HTTP 200.
func (h *HTTPTranscriber) HealthCheck(ctx context.Context) (bool, error) {
	endpoint := fmt.Sprintf("%s/api/whisper/model", h.apiURL)
	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("health check request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return true, nil
	}

	return false, fmt.Errorf("health check failed: status %d", resp.StatusCode)
}

// Name returns the identifier of this transcriber implementation.
func (h *HTTPTranscriber) Name() string {
	return "whisper-http"
}
