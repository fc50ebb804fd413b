package models

import (
	"time"
)

const (
	UsageStatusSuccess = "success"
	UsageStatusError   = "error"
	UsageStatusTimeout = "timeout"
)

// UsageLog is append-only. One row per dispatch attempt, success or not.
type UsageLog struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	UserID         uint      `gorm:"index;not null" json:"user_id"`
	SessionID      *uint     `gorm:"index" json:"session_id,omitempty"`
	Provider       string    `gorm:"size:50;index;not null" json:"provider"`
	Model          string    `gorm:"size:100;index;not null" json:"model"`
	InputTokens    int       `gorm:"default:0" json:"input_tokens"`
	OutputTokens   int       `gorm:"default:0" json:"output_tokens"`
	TotalTokens    int       `gorm:"default:0" json:"total_tokens"`
	Cost           float64   `gorm:"type:decimal(10,6);default:0" json:"cost"`
	ResponseTimeMs int       `gorm:"default:0" json:"response_time_ms"`
	Status         string    `gorm:"size:20;index;default:'success'" json:"status"`
	ErrorMessage   string    `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt      time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (UsageLog) TableName() string {
	return "usage_logs"
}

type RecordUsageParams struct {
	UserID         uint
	SessionID      *uint
	Provider       string
	Model          string
	InputTokens    int
	OutputTokens   int
	Cost           float64
	ResponseTimeMs int
	Status         string
	ErrorMessage   string
}

type UsageStats struct {
	TotalRequests int64   `json:"total_requests"`
	TotalTokens   int64   `json:"total_tokens"`
	TotalCost     float64 `json:"total_cost"`
	SuccessCount  int64   `json:"success_count"`
	ErrorCount    int64   `json:"error_count"`
	AvgResponseMs float64 `json:"avg_response_ms"`
}

type PeriodStats struct {
	Period        string  `json:"period"`
	TotalRequests int64   `json:"total_requests"`
	TotalTokens   int64   `json:"total_tokens"`
	TotalCost     float64 `json:"total_cost"`
}

// UserStats is one user's rollup line in the admin overview.
type UserStats struct {
	UserID        uint    `json:"user_id"`
	Username      string  `json:"username"`
	TotalRequests int64   `json:"total_requests"`
	TotalTokens   int64   `json:"total_tokens"`
	TotalCost     float64 `json:"total_cost"`
}

type ProviderStats struct {
	Provider      string  `json:"provider"`
	Model         string  `json:"model"`
	TotalRequests int64   `json:"total_requests"`
	TotalTokens   int64   `json:"total_tokens"`
	TotalCost     float64 `json:"total_cost"`
}
