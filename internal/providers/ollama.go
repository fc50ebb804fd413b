package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mfcastro/aihub/internal/models"
	"github.com/mfcastro/aihub/internal/utils"
)

const defaultOllamaTimeout = 120 * time.Second

// OllamaAdapter talks to a local ollama daemon over its NDJSON generate
// API. There is no SDK; responses are one JSON object per line.
type OllamaAdapter struct {
	baseURL    string
	httpClient *http.Client
}

func NewOllamaAdapter(cfg models.ProviderConfig) *OllamaAdapter {
	timeout := defaultOllamaTimeout
	if cfg.TimeoutMs > 0 {
		timeout = time.Duration(cfg.TimeoutMs) * time.Millisecond
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &OllamaAdapter{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (a *OllamaAdapter) Name() string { return "ollama" }

type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaGenerateLine struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// FlattenMessages renders the canonical message list as a single prompt in
// the System:/Human:/Assistant: transcript form the generate API expects.
func FlattenMessages(messages []models.Message) string {
	var b strings.Builder
	for _, m := range messages {
		switch m.Role {
		case models.MessageRoleSystem:
			b.WriteString("System: ")
		case models.MessageRoleAssistant:
			b.WriteString("Assistant: ")
		default:
			b.WriteString("Human: ")
		}
		b.WriteString(m.Content)
		b.WriteString("\n\n")
	}
	b.WriteString("Assistant: ")
	return b.String()
}

func (a *OllamaAdapter) Stream(ctx context.Context, req Request) (FragmentStream, error) {
	prompt := FlattenMessages(req.Messages)

	body, err := json.Marshal(ollamaGenerateRequest{
		Model:  req.Model,
		Prompt: prompt,
		Stream: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode ollama request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build ollama request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, models.NewProviderError("ollama", "request failed", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer func() { _ = resp.Body.Close() }()
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, models.NewProviderError("ollama",
			fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail))), nil)
	}

	return newOllamaStream(resp.Body, prompt), nil
}

func (a *OllamaAdapter) Complete(ctx context.Context, req Request) (string, *TokenUsage, error) {
	stream, err := a.Stream(ctx, req)
	if err != nil {
		return "", nil, err
	}
	defer func() { _ = stream.Close() }()
	return Completion(stream)
}

// ollamaStream iterates NDJSON lines. Malformed lines are skipped rather
// than aborting the turn; the daemon interleaves the occasional log line.
type ollamaStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	prompt  string

	current Fragment
	output  strings.Builder
	done    bool
	err     error
	closed  bool
}

func newOllamaStream(body io.ReadCloser, prompt string) *ollamaStream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &ollamaStream{body: body, scanner: scanner, prompt: prompt}
}

func (s *ollamaStream) Next() bool {
	if s.done || s.err != nil {
		return false
	}

	for s.scanner.Scan() {
		line := bytes.TrimSpace(s.scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var parsed ollamaGenerateLine
		if err := json.Unmarshal(line, &parsed); err != nil {
			continue
		}

		if parsed.Done {
			s.done = true
			// No native token accounting; approximate from text.
			s.current = Fragment{
				Text: parsed.Response,
				Usage: &TokenUsage{
					InputTokens:  utils.ApproximateTokens(s.prompt),
					OutputTokens: utils.ApproximateTokens(s.output.String() + parsed.Response),
				},
			}
			return true
		}

		if parsed.Response == "" {
			continue
		}
		s.output.WriteString(parsed.Response)
		s.current = Fragment{Text: parsed.Response}
		return true
	}

	if err := s.scanner.Err(); err != nil {
		s.err = models.NewProviderError("ollama", "stream read failed", err)
	}
	s.done = true
	return false
}

func (s *ollamaStream) Current() Fragment { return s.current }

func (s *ollamaStream) Err() error { return s.err }

func (s *ollamaStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.body.Close()
}
