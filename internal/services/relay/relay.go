// Package relay runs a chat turn end to end: resolve the model, check
// access and budget, dispatch to the provider, forward the stream, then
// settle the books. Accounting is unconditional once dispatch happens:
// every attempt charges its actual cost and writes exactly one usage row,
// whether the stream finished, failed, or the client walked away.
package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mfcastro/aihub/internal/models"
	"github.com/mfcastro/aihub/internal/providers"
	"github.com/mfcastro/aihub/internal/services/ledger"
	"github.com/mfcastro/aihub/internal/services/sessions"
	"github.com/mfcastro/aihub/internal/utils"

	fiberlog "github.com/gofiber/fiber/v2/log"
)

// Registry resolves models to providers and prices token counts.
type Registry interface {
	Resolve(modelID string) (models.CatalogEntry, bool)
	CostFor(modelID string, tokens int) float64
}

// Ledger checks and charges user budgets.
type Ledger interface {
	HasBudget(ctx context.Context, userID uint, estimatedCost float64) (bool, *models.User, error)
	Charge(ctx context.Context, userID uint, cost float64) error
}

// Recorder appends usage rows.
type Recorder interface {
	Record(ctx context.Context, params models.RecordUsageParams) error
}

// Sessions persists conversations.
type Sessions interface {
	GetOrCreate(ctx context.Context, userID, sessionID uint, firstMessage, model string) (*models.ChatSession, error)
	Window(ctx context.Context, sessionID uint) ([]models.Message, error)
	AppendMessage(ctx context.Context, sessionID uint, msg models.ChatMessage) error
}

type Service struct {
	adapters map[string]providers.Adapter
	registry Registry
	ledger   Ledger
	recorder Recorder
	sessions Sessions
}

func NewService(
	adapters map[string]providers.Adapter,
	registry Registry,
	ledgerSvc Ledger,
	recorder Recorder,
	sessions Sessions,
) *Service {
	return &Service{
		adapters: adapters,
		registry: registry,
		ledger:   ledgerSvc,
		recorder: recorder,
		sessions: sessions,
	}
}

// Turn is a prepared dispatch: access and budget already checked, session
// loaded, context window assembled. Nothing has been sent upstream yet.
type Turn struct {
	svc       *Service
	requestID string

	user    *models.User
	session *models.ChatSession
	adapter providers.Adapter
	entry   models.CatalogEntry

	messages  []models.Message
	userInput string
	maxTokens int
}

// Prepare validates a turn up to the point of dispatch. Failures here are
// client errors and leave no trace in the ledger or the usage log.
func (s *Service) Prepare(ctx context.Context, requestID string, user *models.User, req models.TurnRequest) (*Turn, error) {
	if req.Message == "" {
		return nil, models.NewValidationError("message is required", nil)
	}

	modelID := req.Model
	if modelID == "" {
		modelID = user.DefaultModel
	}
	if modelID == "" {
		return nil, models.NewValidationError("no model requested and no default model set", nil)
	}

	entry, ok := s.registry.Resolve(modelID)
	if !ok {
		return nil, models.NewNotFoundError(fmt.Sprintf("model %q", modelID))
	}

	if !user.CanUseProvider(entry.Provider) {
		fiberlog.Warnf("[%s] user %d denied access to provider %s", requestID, user.ID, entry.Provider)
		return nil, models.NewAccessDeniedError(entry.Provider)
	}

	adapter, ok := s.adapters[entry.Provider]
	if !ok {
		return nil, models.NewProviderError(entry.Provider, "not configured", nil)
	}

	estimate := s.registry.CostFor(modelID, ledger.EstimateTokens)
	ok, current, err := s.ledger.HasBudget(ctx, user.ID, estimate)
	if err != nil {
		return nil, models.NewInternalError("budget check failed", err)
	}
	if !ok {
		fiberlog.Warnf("[%s] user %d over budget: %.4f/%.2f", requestID, user.ID, current.CurrentUsage, current.MonthlyBudget)
		return nil, models.NewBudgetExceededError(current.CurrentUsage, current.MonthlyBudget)
	}

	session, err := s.sessions.GetOrCreate(ctx, user.ID, req.SessionID, req.Message, modelID)
	if err != nil {
		if errors.Is(err, sessions.ErrNotFound) {
			return nil, models.NewNotFoundError("session")
		}
		return nil, err
	}

	// The window is read before the new message is stored, so the
	// in-flight turn never rides along twice.
	window, err := s.sessions.Window(ctx, session.ID)
	if err != nil {
		return nil, err
	}

	var messages []models.Message
	if user.GuardrailsEnabled && user.SystemPrompt != "" {
		messages = append(messages, models.Message{Role: models.MessageRoleSystem, Content: user.SystemPrompt})
	}
	messages = append(messages, window...)
	messages = append(messages, models.Message{Role: models.MessageRoleUser, Content: req.Message})

	maxTokens := req.MaxTokens
	if user.MaxTokensPerRequest > 0 && (maxTokens <= 0 || maxTokens > user.MaxTokensPerRequest) {
		maxTokens = user.MaxTokensPerRequest
	}

	return &Turn{
		svc:       s,
		requestID: requestID,
		user:      user,
		session:   session,
		adapter:   adapter,
		entry:     entry,
		messages:  messages,
		userInput: req.Message,
		maxTokens: maxTokens,
	}, nil
}

// SessionID reports the session the turn will run under.
func (t *Turn) SessionID() uint { return t.session.ID }

// Model reports the resolved model id.
func (t *Turn) Model() string { return t.entry.ID }

// EmitFunc delivers one event to the client. A returned error means the
// client is gone; the turn stops forwarding but still settles accounting.
type EmitFunc func(models.StreamEvent) error

// Run streams the turn. The user message is stored first, then fragments
// are forwarded as they arrive. However the stream ends, the partial or
// full reply is priced, charged, and logged before Run returns.
func (t *Turn) Run(ctx context.Context, emit EmitFunc) error {
	s := t.svc

	if err := emit(models.StreamEvent{
		Type:      models.StreamEventSessionInfo,
		SessionID: t.session.ID,
		Model:     t.entry.ID,
	}); err != nil {
		return nil
	}

	if err := s.sessions.AppendMessage(ctx, t.session.ID, models.ChatMessage{
		Role:    models.MessageRoleUser,
		Content: t.userInput,
		Tokens:  utils.ApproximateTokens(t.userInput),
	}); err != nil {
		_ = emit(models.StreamEvent{Type: models.StreamEventError, Error: "failed to store message"})
		return err
	}

	started := time.Now()
	stream, err := t.adapter.Stream(ctx, providers.Request{
		Model:     t.entry.ID,
		Messages:  t.messages,
		MaxTokens: t.maxTokens,
	})
	if err != nil {
		// Dispatch was attempted: this failure is an accountable event.
		t.settle(ctx, "", nil, started, err)
		_ = emit(models.StreamEvent{Type: models.StreamEventError, Error: models.SanitizeError(err).Message})
		return err
	}
	defer func() { _ = stream.Close() }()

	buf := utils.GetBuffer()
	defer utils.PutBuffer(buf)

	var usage *providers.TokenUsage
	clientGone := false

	for stream.Next() {
		frag := stream.Current()
		if frag.Usage != nil {
			usage = frag.Usage
		}
		if frag.Text == "" {
			continue
		}
		_, _ = buf.WriteString(frag.Text)

		if clientGone {
			continue
		}
		if err := emit(models.StreamEvent{Type: models.StreamEventContent, Content: frag.Text}); err != nil {
			// Keep draining so token usage still arrives, but stop writing.
			fiberlog.Debugf("[%s] client disconnected mid-stream", t.requestID)
			clientGone = true
		}
	}

	streamErr := stream.Err()
	text := buf.String()

	tokens, cost := t.settle(ctx, text, usage, started, streamErr)

	if streamErr != nil {
		if !clientGone {
			_ = emit(models.StreamEvent{Type: models.StreamEventError, Error: models.SanitizeError(streamErr).Message})
		}
		return streamErr
	}

	if err := s.sessions.AppendMessage(ctx, t.session.ID, models.ChatMessage{
		Role:    models.MessageRoleAssistant,
		Content: text,
		Model:   t.entry.ID,
		Tokens:  tokens,
		Cost:    cost,
	}); err != nil {
		fiberlog.Errorf("[%s] failed to store assistant message: %v", t.requestID, err)
	}

	if !clientGone {
		_ = emit(models.StreamEvent{
			Type:      models.StreamEventComplete,
			SessionID: t.session.ID,
			Model:     t.entry.ID,
			Tokens:    tokens,
			Cost:      cost,
		})
	}
	return nil
}

// Complete runs the turn without streaming.
func (t *Turn) Complete(ctx context.Context) (*models.TurnResponse, error) {
	s := t.svc

	if err := s.sessions.AppendMessage(ctx, t.session.ID, models.ChatMessage{
		Role:    models.MessageRoleUser,
		Content: t.userInput,
		Tokens:  utils.ApproximateTokens(t.userInput),
	}); err != nil {
		return nil, err
	}

	started := time.Now()
	text, usage, err := t.adapter.Complete(ctx, providers.Request{
		Model:     t.entry.ID,
		Messages:  t.messages,
		MaxTokens: t.maxTokens,
	})

	tokens, cost := t.settle(ctx, text, usage, started, err)
	if err != nil {
		return nil, err
	}

	if err := s.sessions.AppendMessage(ctx, t.session.ID, models.ChatMessage{
		Role:    models.MessageRoleAssistant,
		Content: text,
		Model:   t.entry.ID,
		Tokens:  tokens,
		Cost:    cost,
	}); err != nil {
		fiberlog.Errorf("[%s] failed to store assistant message: %v", t.requestID, err)
	}

	return &models.TurnResponse{
		SessionID: t.session.ID,
		Content:   text,
		Model:     t.entry.ID,
		Tokens:    tokens,
		Cost:      cost,
	}, nil
}

// settle prices what actually streamed, charges it, and writes the single
// usage row for this attempt. Runs exactly once per dispatch.
func (t *Turn) settle(ctx context.Context, text string, usage *providers.TokenUsage, started time.Time, attemptErr error) (tokens int, cost float64) {
	s := t.svc

	var inputTokens, outputTokens int
	if usage != nil {
		inputTokens = usage.InputTokens
		outputTokens = usage.OutputTokens
	} else {
		// Provider reported nothing; approximate so partial output is
		// still billed.
		for _, m := range t.messages {
			inputTokens += utils.ApproximateTokens(m.Content)
		}
		outputTokens = utils.ApproximateTokens(text)
	}

	tokens = inputTokens + outputTokens
	cost = s.registry.CostFor(t.entry.ID, tokens)

	// Accounting runs on a fresh context so a canceled request cannot
	// skip the charge.
	settleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := s.ledger.Charge(settleCtx, t.user.ID, cost); err != nil {
		fiberlog.Errorf("[%s] failed to charge user %d: %v", t.requestID, t.user.ID, err)
	}

	status := models.UsageStatusSuccess
	errMsg := ""
	if attemptErr != nil {
		status = models.UsageStatusError
		if errors.Is(attemptErr, context.DeadlineExceeded) {
			status = models.UsageStatusTimeout
		}
		errMsg = models.SanitizeError(attemptErr).Message
	}

	sessionID := t.session.ID
	if err := s.recorder.Record(settleCtx, models.RecordUsageParams{
		UserID:         t.user.ID,
		SessionID:      &sessionID,
		Provider:       t.entry.Provider,
		Model:          t.entry.ID,
		InputTokens:    inputTokens,
		OutputTokens:   outputTokens,
		Cost:           cost,
		ResponseTimeMs: int(time.Since(started).Milliseconds()),
		Status:         status,
		ErrorMessage:   errMsg,
	}); err != nil {
		fiberlog.Errorf("[%s] failed to record usage: %v", t.requestID, err)
	}

	return tokens, cost
}
