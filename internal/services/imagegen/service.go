// Package imagegen forwards prompts to the local stable-diffusion
// backend, behind the same GPU admission guard as transcription.
package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
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

// Request mirrors the SD backend's txt2img body. Size is "WxH", for
// example "512x512"; zero values defer to backend defaults.
type Request struct {
	Prompt         string  `json:"prompt"`
	NegativePrompt string  `json:"negative_prompt,omitempty"`
	Steps          int     `json:"steps,omitempty"`
	Size           string  `json:"size,omitempty"`
	Guidance       float64 `json:"guidance,omitempty"`
	Batch          int     `json:"batch,omitempty"`
}

// Result carries the generated images, base64 encoded.
type Result struct {
	Images []string `json:"images"`
}

// Generate requests a batch of images. Admission does not block:
// generation runs for minutes, so a busy backend rejects immediately
// instead of queueing HTTP requests behind it.
func (s *Service) Generate(ctx context.Context, req Request) (*Result, error) {
	if s.baseURL == "" {
		return nil, models.NewProviderError("imagegen", "not configured", nil)
	}
	if req.Prompt == "" {
		return nil, models.NewValidationError("prompt is required", nil)
	}

	release, ok := s.guard.TryAcquire()
	if !ok {
		return nil, models.NewRateLimitError("image backend busy")
	}
	defer release()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/txt2img", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, models.NewProviderError("imagegen", "request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, models.NewProviderError("imagegen",
			fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail))), nil)
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, models.NewProviderError("imagegen", "bad response body", err)
	}
	return &result, nil
}
