package diarize

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
	"strings"
	"time"
)

// HTTPDiarizer implements Diarizer for a diarization model served over HTTP
// (e.g., a pyannote container). Diarization of a full recording can take
// minutes on CPU, so the client timeout is generous.
type HTTPDiarizer struct {
	apiURL     string
	httpClient *http.Client
}

// NewHTTPDiarizer creates an HTTPDiarizer for the given base URL.
func NewHTTPDiarizer(apiURL string) *HTTPDiarizer {
	return &HTTPDiarizer{
		apiURL: apiURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Minute,
		},
	}
}

// Diarize uploads the audio file as multipart/form-data to {apiURL}/diarize
// and decodes the segment list from the JSON response.
func (h *HTTPDiarizer) Diarize(ctx context.Context, audioPath string) ([]Turn, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	// The diarization API expects the upload under the 'file' field name
	part, err := writer.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	file, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio file: %w", err)
	}
	defer file.Close()
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("failed to copy file data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	endpoint := fmt.Sprintf("%s/diarize", h.apiURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
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
		// Keep only a bounded excerpt of the error body for the log line
		const maxErr = 4096
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, maxErr))
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to parse JSON response: %w", err)
	}

	return out.Segments, nil
}

// HealthCheck verifies the diarization service is reachable. Returns true
// only on HTTP 200 from the health endpoint.
func (h *HTTPDiarizer) HealthCheck(ctx context.Context) (bool, error) {
	endpoint := fmt.Sprintf("%s/health", h.apiURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
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

// Name returns the identifier of this diarizer implementation.
func (h *HTTPDiarizer) Name() string {
	return "pyannote-http"
}
