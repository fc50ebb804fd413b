// Package ledger enforces per-user spending caps. Budget checks happen
// before dispatch with a conservative estimate; actual cost is charged
// after the stream ends, even when it ended early.
package ledger

import (
	"context"
	"fmt"

	"github.com/mfcastro/aihub/internal/models"
	"gorm.io/gorm"
)

// EstimateTokens is the flat pre-dispatch token estimate. Deliberately
// coarse: it only has to keep a user near the cap from starting another
// expensive turn.
const EstimateTokens = 1000

type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// HasBudget reports whether a user can afford an estimated cost on top of
// current usage. Zero-budget users fail every check with a nonzero
// estimate.
func (s *Service) HasBudget(ctx context.Context, userID uint, estimatedCost float64) (bool, *models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		return false, nil, fmt.Errorf("failed to load user %d: %w", userID, err)
	}

	if user.CurrentUsage+estimatedCost > user.MonthlyBudget {
		return false, &user, nil
	}

	return true, &user, nil
}

// Charge adds actual cost to the user's usage counter. The increment runs
// in SQL so concurrent turns never lose an update.
func (s *Service) Charge(ctx context.Context, userID uint, cost float64) error {
	if cost <= 0 {
		return nil
	}

	result := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Update("current_usage", gorm.Expr("current_usage + ?", cost))

	if result.Error != nil {
		return fmt.Errorf("failed to charge user %d: %w", userID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("failed to charge user %d: no such user", userID)
	}

	return nil
}

// ResetPeriod zeroes one user's usage counter.
func (s *Service) ResetPeriod(ctx context.Context, userID uint) error {
	result := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Update("current_usage", 0)

	if result.Error != nil {
		return fmt.Errorf("failed to reset usage for user %d: %w", userID, result.Error)
	}

	return nil
}

// ResetAllPeriods zeroes every active user's usage counter. Called by the
// monthly rollover scheduler.
func (s *Service) ResetAllPeriods(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("is_active = ?", true).
		Update("current_usage", 0)

	if result.Error != nil {
		return 0, fmt.Errorf("failed to reset usage periods: %w", result.Error)
	}

	return result.RowsAffected, nil
}

// SetBudget updates a user's monthly cap, clamped to the role ceiling.
func (s *Service) SetBudget(ctx context.Context, userID uint, budget float64) error {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		return fmt.Errorf("failed to load user %d: %w", userID, err)
	}

	if ceiling := models.MaxBudgetForRole(user.Role); budget > ceiling {
		budget = ceiling
	}

	if err := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Update("monthly_budget", budget).Error; err != nil {
		return fmt.Errorf("failed to set budget for user %d: %w", userID, err)
	}

	return nil
}
