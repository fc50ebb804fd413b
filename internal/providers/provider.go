// Package providers holds the backend adapters. Each adapter translates
// the hub's canonical message list into one upstream's native protocol and
// exposes the reply as a FragmentStream.
package providers

import (
	"context"

	"github.com/mfcastro/aihub/internal/models"
)

// TokenUsage carries provider-reported token counts. Nil on a fragment
// means no usage arrived with it.
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
}

// Fragment is one streamed increment of a reply. Usage is usually only
// present on the final fragment, if the provider reports it at all.
type Fragment struct {
	Text  string
	Usage *TokenUsage
}

// FragmentStream iterates a provider reply. Same discipline as the SDK
// stream types: Next advances, Current returns the fragment, Err reports
// why iteration stopped (nil for normal completion), Close is idempotent.
type FragmentStream interface {
	Next() bool
	Current() Fragment
	Err() error
	Close() error
}

// Request is the canonical dispatch payload handed to an adapter. Messages
// already include the trailing context window and any system prompt.
type Request struct {
	Model     string
	Messages  []models.Message
	MaxTokens int
}

// Adapter is one chat backend.
type Adapter interface {
	Name() string

	// Stream dispatches a request and returns the reply stream. Errors
	// before the first fragment (auth, connectivity, bad model) return
	// here; mid-stream errors surface through FragmentStream.Err.
	Stream(ctx context.Context, req Request) (FragmentStream, error)

	// Complete dispatches a request and blocks for the full reply.
	Complete(ctx context.Context, req Request) (string, *TokenUsage, error)
}

// Completion collects a FragmentStream into a full reply. The caller still
// owns closing the stream.
func Completion(stream FragmentStream) (string, *TokenUsage, error) {
	var text string
	var usage *TokenUsage
	for stream.Next() {
		frag := stream.Current()
		text += frag.Text
		if frag.Usage != nil {
			usage = frag.Usage
		}
	}
	if err := stream.Err(); err != nil {
		return text, usage, err
	}
	return text, usage, nil
}
