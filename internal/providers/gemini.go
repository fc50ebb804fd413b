package providers

import (
	"context"
	"iter"
	"net/http"
	"time"

	"github.com/mfcastro/aihub/internal/models"
	"github.com/mfcastro/aihub/internal/utils/clientcache"

	"google.golang.org/genai"
)

type GeminiAdapter struct {
	cfg   models.ProviderConfig
	cache *clientcache.Cache[*genai.Client]
}

func NewGeminiAdapter(cfg models.ProviderConfig) *GeminiAdapter {
	return &GeminiAdapter{
		cfg:   cfg,
		cache: clientcache.NewCache[*genai.Client](),
	}
}

func (a *GeminiAdapter) Name() string { return "gemini" }

func (a *GeminiAdapter) client(ctx context.Context) (*genai.Client, error) {
	key := clientcache.ConfigKey("gemini", a.cfg.APIKey)
	return a.cache.GetOrCreate(key, func() (*genai.Client, error) {
		cc := &genai.ClientConfig{
			APIKey:  a.cfg.APIKey,
			Backend: genai.BackendGeminiAPI,
		}
		if a.cfg.TimeoutMs > 0 {
			cc.HTTPClient = &http.Client{
				Timeout: time.Duration(a.cfg.TimeoutMs) * time.Millisecond,
			}
		}
		return genai.NewClient(ctx, cc)
	})
}

// contents maps the canonical list onto Gemini roles. System messages
// become the system instruction; assistant turns use the "model" role.
func (a *GeminiAdapter) contents(req Request) ([]*genai.Content, *genai.GenerateContentConfig) {
	config := &genai.GenerateContentConfig{}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}

	var contents []*genai.Content
	for _, m := range req.Messages {
		switch m.Role {
		case models.MessageRoleSystem:
			config.SystemInstruction = genai.NewContentFromText(m.Content, genai.RoleUser)
		case models.MessageRoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	return contents, config
}

func (a *GeminiAdapter) Stream(ctx context.Context, req Request) (FragmentStream, error) {
	client, err := a.client(ctx)
	if err != nil {
		return nil, models.NewProviderError("gemini", "client init failed", err)
	}

	contents, config := a.contents(req)
	seq := client.Models.GenerateContentStream(ctx, req.Model, contents, config)

	next, stop := iter.Pull2(seq)
	return &geminiStream{next: next, stop: stop}, nil
}

func (a *GeminiAdapter) Complete(ctx context.Context, req Request) (string, *TokenUsage, error) {
	client, err := a.client(ctx)
	if err != nil {
		return "", nil, models.NewProviderError("gemini", "client init failed", err)
	}

	contents, config := a.contents(req)
	resp, err := client.Models.GenerateContent(ctx, req.Model, contents, config)
	if err != nil {
		return "", nil, models.NewProviderError("gemini", "completion failed", err)
	}

	var usage *TokenUsage
	if resp.UsageMetadata != nil {
		usage = &TokenUsage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	return resp.Text(), usage, nil
}

// geminiStream wraps the SDK's pull iterator. Usage metadata rides on
// every response; the last seen value wins.
type geminiStream struct {
	next func() (*genai.GenerateContentResponse, error, bool)
	stop func()

	usage   *TokenUsage
	current Fragment
	err     error
	done    bool
}

func (s *geminiStream) Next() bool {
	if s.done || s.err != nil {
		return false
	}

	for {
		resp, err, ok := s.next()
		if !ok {
			s.done = true
			if s.usage != nil {
				s.current = Fragment{Usage: s.usage}
				s.usage = nil
				return true
			}
			return false
		}
		if err != nil {
			s.err = models.NewProviderError("gemini", "stream read failed", err)
			return false
		}

		if resp.UsageMetadata != nil {
			s.usage = &TokenUsage{
				InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
				OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			}
		}

		if text := resp.Text(); text != "" {
			s.current = Fragment{Text: text}
			return true
		}
	}
}

func (s *geminiStream) Current() Fragment { return s.current }

func (s *geminiStream) Err() error { return s.err }

func (s *geminiStream) Close() error {
	s.done = true
	s.stop()
	return nil
}
