package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mfcastro/aihub/internal/models"
	"github.com/mfcastro/aihub/internal/utils/clientcache"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/packages/ssestream"
	"github.com/openai/openai-go/v2/shared"
)

// OpenAIAdapter serves any chat-completions compatible provider. Groq and
// DeepSeek reuse it with their own base URLs; only the name and config
// differ.
type OpenAIAdapter struct {
	name  string
	cfg   models.ProviderConfig
	cache *clientcache.Cache[openai.Client]
}

func NewOpenAIAdapter(name string, cfg models.ProviderConfig) *OpenAIAdapter {
	return &OpenAIAdapter{
		name:  name,
		cfg:   cfg,
		cache: clientcache.NewCache[openai.Client](),
	}
}

func (a *OpenAIAdapter) Name() string { return a.name }

func (a *OpenAIAdapter) client() (openai.Client, error) {
	key := clientcache.ConfigKey(a.name, a.cfg.APIKey, a.cfg.BaseURL)
	return a.cache.GetOrCreate(key, func() (openai.Client, error) {
		if a.cfg.APIKey == "" {
			return openai.Client{}, fmt.Errorf("no API key configured for %s", a.name)
		}

		opts := []option.RequestOption{option.WithAPIKey(a.cfg.APIKey)}
		if a.cfg.BaseURL != "" {
			opts = append(opts, option.WithBaseURL(a.cfg.BaseURL))
		}
		if a.cfg.TimeoutMs > 0 {
			opts = append(opts, option.WithHTTPClient(&http.Client{
				Timeout: time.Duration(a.cfg.TimeoutMs) * time.Millisecond,
			}))
		}
		for k, v := range a.cfg.Headers {
			opts = append(opts, option.WithHeader(k, v))
		}

		return openai.NewClient(opts...), nil
	})
}

func (a *OpenAIAdapter) params(req Request) openai.ChatCompletionNewParams {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case models.MessageRoleSystem:
			messages = append(messages, openai.SystemMessage(m.Content))
		case models.MessageRoleAssistant:
			messages = append(messages, openai.AssistantMessage(m.Content))
		default:
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(req.Model),
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}
	return params
}

func (a *OpenAIAdapter) Stream(ctx context.Context, req Request) (FragmentStream, error) {
	client, err := a.client()
	if err != nil {
		return nil, models.NewProviderError(a.name, "client init failed", err)
	}

	params := a.params(req)
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{
		IncludeUsage: openai.Bool(true),
	}

	stream := client.Chat.Completions.NewStreaming(ctx, params)

	// Surface auth and model errors before committing to an SSE response.
	if !stream.Next() {
		if err := stream.Err(); err != nil && !errors.Is(err, io.EOF) {
			_ = stream.Close()
			return nil, models.NewProviderError(a.name, "stream open failed", err)
		}
		_ = stream.Close()
		return nil, models.NewProviderError(a.name, "empty stream", nil)
	}

	return &openAIStream{name: a.name, stream: stream, pending: true}, nil
}

func (a *OpenAIAdapter) Complete(ctx context.Context, req Request) (string, *TokenUsage, error) {
	client, err := a.client()
	if err != nil {
		return "", nil, models.NewProviderError(a.name, "client init failed", err)
	}

	resp, err := client.Chat.Completions.New(ctx, a.params(req))
	if err != nil {
		return "", nil, models.NewProviderError(a.name, "completion failed", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil, models.NewProviderError(a.name, "no choices in response", nil)
	}

	usage := &TokenUsage{
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
	}
	return resp.Choices[0].Message.Content, usage, nil
}

// openAIStream adapts the SDK chunk stream, replaying the chunk consumed
// during the open-time validation read.
type openAIStream struct {
	name    string
	stream  *ssestream.Stream[openai.ChatCompletionChunk]
	pending bool

	current Fragment
	err     error
}

func (s *openAIStream) Next() bool {
	if s.err != nil {
		return false
	}

	var chunk openai.ChatCompletionChunk
	if s.pending {
		chunk = s.stream.Current()
		s.pending = false
	} else {
		if !s.stream.Next() {
			if err := s.stream.Err(); err != nil && !errors.Is(err, io.EOF) {
				s.err = models.NewProviderError(s.name, "stream read failed", err)
			}
			return false
		}
		chunk = s.stream.Current()
	}

	s.current = Fragment{}
	if len(chunk.Choices) > 0 {
		s.current.Text = chunk.Choices[0].Delta.Content
	}
	if chunk.Usage.TotalTokens > 0 {
		s.current.Usage = &TokenUsage{
			InputTokens:  int(chunk.Usage.PromptTokens),
			OutputTokens: int(chunk.Usage.CompletionTokens),
		}
	}
	return true
}

func (s *openAIStream) Current() Fragment { return s.current }

func (s *openAIStream) Err() error { return s.err }

func (s *openAIStream) Close() error { return s.stream.Close() }
