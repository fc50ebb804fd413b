package providers

import (
	"context"
	"net/http"
	"time"

	"github.com/mfcastro/aihub/internal/models"
	"github.com/mfcastro/aihub/internal/utils/clientcache"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
)

const defaultAnthropicMaxTokens = 4096

type AnthropicAdapter struct {
	cfg   models.ProviderConfig
	cache *clientcache.Cache[anthropic.Client]
}

func NewAnthropicAdapter(cfg models.ProviderConfig) *AnthropicAdapter {
	return &AnthropicAdapter{
		cfg:   cfg,
		cache: clientcache.NewCache[anthropic.Client](),
	}
}

func (a *AnthropicAdapter) Name() string { return "anthropic" }

func (a *AnthropicAdapter) client() (anthropic.Client, error) {
	key := clientcache.ConfigKey("anthropic", a.cfg.APIKey, a.cfg.BaseURL)
	return a.cache.GetOrCreate(key, func() (anthropic.Client, error) {
		opts := []option.RequestOption{option.WithAPIKey(a.cfg.APIKey)}
		if a.cfg.BaseURL != "" {
			opts = append(opts, option.WithBaseURL(a.cfg.BaseURL))
		}
		if a.cfg.TimeoutMs > 0 {
			opts = append(opts, option.WithHTTPClient(&http.Client{
				Timeout: time.Duration(a.cfg.TimeoutMs) * time.Millisecond,
			}))
		}
		return anthropic.NewClient(opts...), nil
	})
}

// params splits the canonical list into the Messages API shape: system
// prompt as a top-level field, alternating user/assistant turns below.
func (a *AnthropicAdapter) params(req Request) anthropic.MessageNewParams {
	var system []anthropic.TextBlockParam
	messages := make([]anthropic.MessageParam, 0, len(req.Messages))

	for _, m := range req.Messages {
		switch m.Role {
		case models.MessageRoleSystem:
			system = append(system, anthropic.TextBlockParam{Text: m.Content})
		case models.MessageRoleAssistant:
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: maxTokens,
		Messages:  messages,
	}
	if len(system) > 0 {
		params.System = system
	}
	return params
}

func (a *AnthropicAdapter) Stream(ctx context.Context, req Request) (FragmentStream, error) {
	client, err := a.client()
	if err != nil {
		return nil, models.NewProviderError("anthropic", "client init failed", err)
	}

	stream := client.Messages.NewStreaming(ctx, a.params(req))

	if !stream.Next() {
		if err := stream.Err(); err != nil {
			_ = stream.Close()
			return nil, models.NewProviderError("anthropic", "stream open failed", err)
		}
		_ = stream.Close()
		return nil, models.NewProviderError("anthropic", "empty stream", nil)
	}

	return &anthropicStream{stream: stream, pending: true}, nil
}

func (a *AnthropicAdapter) Complete(ctx context.Context, req Request) (string, *TokenUsage, error) {
	client, err := a.client()
	if err != nil {
		return "", nil, models.NewProviderError("anthropic", "client init failed", err)
	}

	msg, err := client.Messages.New(ctx, a.params(req))
	if err != nil {
		return "", nil, models.NewProviderError("anthropic", "completion failed", err)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	usage := &TokenUsage{
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
	}
	return text, usage, nil
}

// anthropicStream folds the Messages event protocol into fragments.
// Input tokens arrive on message_start, output tokens on message_delta;
// both are retained and attached to the final reported fragment.
type anthropicStream struct {
	stream  *ssestream.Stream[anthropic.MessageStreamEventUnion]
	pending bool

	inputTokens  int
	outputTokens int

	current Fragment
	err     error
}

func (s *anthropicStream) Next() bool {
	if s.err != nil {
		return false
	}

	for {
		var event anthropic.MessageStreamEventUnion
		if s.pending {
			event = s.stream.Current()
			s.pending = false
		} else {
			if !s.stream.Next() {
				if err := s.stream.Err(); err != nil {
					s.err = models.NewProviderError("anthropic", "stream read failed", err)
				}
				return false
			}
			event = s.stream.Current()
		}

		switch e := event.AsAny().(type) {
		case anthropic.MessageStartEvent:
			s.inputTokens = int(e.Message.Usage.InputTokens)
		case anthropic.ContentBlockDeltaEvent:
			if e.Delta.Type == "text_delta" && e.Delta.Text != "" {
				s.current = Fragment{Text: e.Delta.Text}
				return true
			}
		case anthropic.MessageDeltaEvent:
			s.outputTokens = int(e.Usage.OutputTokens)
		case anthropic.MessageStopEvent:
			s.current = Fragment{Usage: &TokenUsage{
				InputTokens:  s.inputTokens,
				OutputTokens: s.outputTokens,
			}}
			return true
		}
	}
}

func (s *anthropicStream) Current() Fragment { return s.current }

func (s *anthropicStream) Err() error { return s.err }

func (s *anthropicStream) Close() error { return s.stream.Close() }
