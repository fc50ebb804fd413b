package relay

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mfcastro/aihub/internal/models"
	"github.com/mfcastro/aihub/internal/providers"
	"github.com/mfcastro/aihub/internal/services/ledger"
	"github.com/mfcastro/aihub/internal/utils"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"golang.org/x/sync/errgroup"
)

// Compare runs one prompt against several models side by side. Each model
// is fully isolated: its own access check, budget check, dispatch, charge,
// and usage row. One model failing or being off-limits never blocks the
// others; it just carries an error marker in its slot.
func (s *Service) Compare(ctx context.Context, requestID string, user *models.User, req models.CompareRequest) (*models.CompareResponse, error) {
	if req.Message == "" {
		return nil, models.NewValidationError("message is required", nil)
	}
	if len(req.Models) < 2 {
		return nil, models.NewValidationError("at least two models are required", nil)
	}

	type slot struct {
		key    string
		result models.CompareResult
	}
	slots := make([]slot, len(req.Models))

	g, gctx := errgroup.WithContext(ctx)
	for i, spec := range req.Models {
		g.Go(func() error {
			key, result := s.compareOne(gctx, requestID, user, spec, req.Message)
			slots[i] = slot{key: key, result: result}
			return nil
		})
	}
	_ = g.Wait()

	results := make(map[string]models.CompareResult, len(slots))
	for _, sl := range slots {
		results[sl.key] = sl.result
	}
	return &models.CompareResponse{Results: results}, nil
}

func (s *Service) compareOne(ctx context.Context, requestID string, user *models.User, spec, message string) (string, models.CompareResult) {
	wantProvider, modelID, err := utils.ParseModelSpec(spec)
	if err != nil {
		return spec, models.CompareResult{Model: spec, Error: err.Error()}
	}
	wantProvider = strings.ToLower(wantProvider)

	entry, ok := s.registry.Resolve(modelID)
	if !ok {
		return spec, models.CompareResult{Model: modelID, Error: "unknown model"}
	}
	// A requested provider must match the catalog; a mismatch would run
	// and bill the turn against a provider the caller never asked for.
	if wantProvider != "" && wantProvider != entry.Provider {
		key := utils.ModelKey(wantProvider, modelID)
		return key, models.CompareResult{
			Model: modelID,
			Error: fmt.Sprintf("model %s is not served by provider %s", modelID, wantProvider),
		}
	}
	key := utils.ModelKey(entry.Provider, entry.ID)
	result := models.CompareResult{Model: entry.ID, DisplayName: entry.DisplayName}

	if !user.CanUseProvider(entry.Provider) {
		result.Error = models.NewAccessDeniedError(entry.Provider).Message
		return key, result
	}

	adapter, ok := s.adapters[entry.Provider]
	if !ok {
		result.Error = "provider not configured"
		return key, result
	}

	estimate := s.registry.CostFor(entry.ID, ledger.EstimateTokens)
	ok, current, err := s.ledger.HasBudget(ctx, user.ID, estimate)
	if err != nil {
		result.Error = "budget check failed"
		return key, result
	}
	if !ok {
		result.Error = models.NewBudgetExceededError(current.CurrentUsage, current.MonthlyBudget).Message
		return key, result
	}

	started := time.Now()
	text, usage, err := adapter.Complete(ctx, providers.Request{
		Model:     entry.ID,
		Messages:  []models.Message{{Role: models.MessageRoleUser, Content: message}},
		MaxTokens: user.MaxTokensPerRequest,
	})
	elapsed := int(time.Since(started).Milliseconds())

	var inputTokens, outputTokens int
	if usage != nil {
		inputTokens, outputTokens = usage.InputTokens, usage.OutputTokens
	} else {
		inputTokens = utils.ApproximateTokens(message)
		outputTokens = utils.ApproximateTokens(text)
	}
	tokens := inputTokens + outputTokens
	cost := s.registry.CostFor(entry.ID, tokens)

	settleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if chargeErr := s.ledger.Charge(settleCtx, user.ID, cost); chargeErr != nil {
		fiberlog.Errorf("[%s] compare charge failed for user %d: %v", requestID, user.ID, chargeErr)
	}

	status := models.UsageStatusSuccess
	errMsg := ""
	if err != nil {
		status = models.UsageStatusError
		errMsg = models.SanitizeError(err).Message
	}
	if recErr := s.recorder.Record(settleCtx, models.RecordUsageParams{
		UserID:         user.ID,
		Provider:       entry.Provider,
		Model:          entry.ID,
		InputTokens:    inputTokens,
		OutputTokens:   outputTokens,
		Cost:           cost,
		ResponseTimeMs: elapsed,
		Status:         status,
		ErrorMessage:   errMsg,
	}); recErr != nil {
		fiberlog.Errorf("[%s] compare usage record failed: %v", requestID, recErr)
	}

	if err != nil {
		result.Error = models.SanitizeError(err).Message
		return key, result
	}

	result.Content = text
	result.Tokens = tokens
	result.Cost = cost
	result.ResponseTimeMs = elapsed
	return key, result
}
