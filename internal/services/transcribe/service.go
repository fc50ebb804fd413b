// Package transcribe forwards audio to the local whisper backend. The
// backend shares a GPU with image generation, so every call passes
// through the admission guard first.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/mfcastro/aihub/internal/models"
	"github.com/mfcastro/aihub/internal/services/guard"
)

const defaultTimeout = 300 * time.Second

type Service struct {
	baseURL    string
	httpClient *http.Client
	guard      *guard.Guard
}

func NewService(cfg models.BackendConfig, g *guard.Guard) *Service {
	timeout := defaultTimeout
	if cfg.TimeoutMs > 0 {
		timeout = time.Duration(cfg.TimeoutMs) * time.Millisecond
	}
	return &Service{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		guard:      g,
	}
}

type Result struct {
	Text     string  `json:"text"`
	Language string  `json:"language,omitempty"`
	Model    string  `json:"model,omitempty"`
	Duration float64 `json:"duration,omitempty"`
}

// Transcribe sends one audio file to the backend and returns its text.
// Blocks until the guard admits the call or ctx ends.
func (s *Service) Transcribe(ctx context.Context, filename string, audio io.Reader) (*Result, error) {
	if s.baseURL == "" {
		return nil, models.NewProviderError("whisper", "not configured", nil)
	}

	release, err := s.guard.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to build upload: %w", err)
	}
	if _, err := io.Copy(part, audio); err != nil {
		return nil, fmt.Errorf("failed to read audio: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/transcribe", &body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, models.NewProviderError("whisper", "request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, models.NewProviderError("whisper",
			fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail))), nil)
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, models.NewProviderError("whisper", "bad response body", err)
	}
	return &result, nil
}
