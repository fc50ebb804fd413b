// Package usagelog records one row per dispatch attempt and serves the
// rollup queries behind the stats endpoints. Rows are append-only; nothing
// in the hub updates or deletes them.
package usagelog

import (
	"context"
	"fmt"
	"time"

	"github.com/mfcastro/aihub/internal/models"
	"gorm.io/gorm"
)

type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Record appends a usage row. Exactly one call per attempt, whatever the
// outcome.
func (s *Service) Record(ctx context.Context, params models.RecordUsageParams) error {
	status := params.Status
	if status == "" {
		status = models.UsageStatusSuccess
	}

	log := models.UsageLog{
		UserID:         params.UserID,
		SessionID:      params.SessionID,
		Provider:       params.Provider,
		Model:          params.Model,
		InputTokens:    params.InputTokens,
		OutputTokens:   params.OutputTokens,
		TotalTokens:    params.InputTokens + params.OutputTokens,
		Cost:           params.Cost,
		ResponseTimeMs: params.ResponseTimeMs,
		Status:         status,
		ErrorMessage:   params.ErrorMessage,
	}

	if err := s.db.WithContext(ctx).Create(&log).Error; err != nil {
		return fmt.Errorf("failed to record usage: %w", err)
	}

	return nil
}

// GetRecent returns a user's newest usage rows.
func (s *Service) GetRecent(ctx context.Context, userID uint, limit int) ([]models.UsageLog, error) {
	var logs []models.UsageLog

	query := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := query.Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("failed to get recent usage: %w", err)
	}

	return logs, nil
}

// Stats aggregates a user's usage over an optional time window.
func (s *Service) Stats(ctx context.Context, userID uint, startTime, endTime time.Time) (*models.UsageStats, error) {
	var stats models.UsageStats

	query := s.db.WithContext(ctx).
		Model(&models.UsageLog{}).
		Where("user_id = ?", userID)
	if !startTime.IsZero() {
		query = query.Where("created_at >= ?", startTime)
	}
	if !endTime.IsZero() {
		query = query.Where("created_at <= ?", endTime)
	}

	if err := query.
		Select(`
			COUNT(*) as total_requests,
			COALESCE(SUM(total_tokens), 0) as total_tokens,
			COALESCE(SUM(cost), 0) as total_cost,
			COALESCE(SUM(CASE WHEN status = 'success' THEN 1 ELSE 0 END), 0) as success_count,
			COALESCE(SUM(CASE WHEN status != 'success' THEN 1 ELSE 0 END), 0) as error_count,
			COALESCE(AVG(response_time_ms), 0) as avg_response_ms
		`).
		Scan(&stats).Error; err != nil {
		return nil, fmt.Errorf("failed to get usage stats: %w", err)
	}

	return &stats, nil
}

// ByProvider rolls usage up per provider and model.
func (s *Service) ByProvider(ctx context.Context, userID uint, startTime, endTime time.Time) ([]models.ProviderStats, error) {
	query := s.db.WithContext(ctx).
		Model(&models.UsageLog{}).
		Where("user_id = ?", userID)
	if !startTime.IsZero() {
		query = query.Where("created_at >= ?", startTime)
	}
	if !endTime.IsZero() {
		query = query.Where("created_at <= ?", endTime)
	}

	var results []models.ProviderStats
	if err := query.
		Select(`
			provider,
			model,
			COUNT(*) as total_requests,
			COALESCE(SUM(total_tokens), 0) as total_tokens,
			COALESCE(SUM(cost), 0) as total_cost
		`).
		Group("provider").
		Group("model").
		Order("total_cost DESC").
		Scan(&results).Error; err != nil {
		return nil, fmt.Errorf("failed to get usage by provider: %w", err)
	}

	return results, nil
}

// ByUser rolls usage up per user across the whole hub, for the admin
// overview. Costliest users first.
func (s *Service) ByUser(ctx context.Context, startTime, endTime time.Time) ([]models.UserStats, error) {
	query := s.db.WithContext(ctx).
		Model(&models.UsageLog{}).
		Joins("JOIN users ON users.id = usage_logs.user_id")
	if !startTime.IsZero() {
		query = query.Where("usage_logs.created_at >= ?", startTime)
	}
	if !endTime.IsZero() {
		query = query.Where("usage_logs.created_at <= ?", endTime)
	}

	var results []models.UserStats
	if err := query.
		Select(`
			usage_logs.user_id,
			users.username,
			COUNT(*) as total_requests,
			COALESCE(SUM(usage_logs.total_tokens), 0) as total_tokens,
			COALESCE(SUM(usage_logs.cost), 0) as total_cost
		`).
		Group("usage_logs.user_id").
		Group("users.username").
		Order("total_cost DESC").
		Scan(&results).Error; err != nil {
		return nil, fmt.Errorf("failed to get usage by user: %w", err)
	}

	return results, nil
}

// ByDay rolls a user's usage up per calendar day for the trailing window.
func (s *Service) ByDay(ctx context.Context, userID uint, days int) ([]models.PeriodStats, error) {
	if days <= 0 {
		days = 30
	}
	since := time.Now().AddDate(0, 0, -days)

	var results []models.PeriodStats
	if err := s.db.WithContext(ctx).
		Model(&models.UsageLog{}).
		Where("user_id = ? AND created_at >= ?", userID, since).
		Select(`
			DATE(created_at) as period,
			COUNT(*) as total_requests,
			COALESCE(SUM(total_tokens), 0) as total_tokens,
			COALESCE(SUM(cost), 0) as total_cost
		`).
		Group("DATE(created_at)").
		Order("period ASC").
		Scan(&results).Error; err != nil {
		return nil, fmt.Errorf("failed to get usage by day: %w", err)
	}

	return results, nil
}
