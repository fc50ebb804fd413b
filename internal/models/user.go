package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

type UserRole string

const (
	RoleAdmin    UserRole = "admin"
	RolePremium  UserRole = "premium"
	RoleStandard UserRole = "standard"
	RoleBasic    UserRole = "basic"
)

// MaxBudgetForRole returns the monthly spend ceiling a role may be
// configured with. Admin assignments above the ceiling are clamped.
func MaxBudgetForRole(role UserRole) float64 {
	switch role {
	case RoleAdmin:
		return 1000.0
	case RolePremium:
		return 100.0
	case RoleStandard:
		return 20.0
	default:
		return 0.0
	}
}

// ProviderList is a JSON-serialized list column. A corrupted value scans
// as an error rather than an empty (deny-all) list.
type ProviderList []string

func (p ProviderList) Value() (driver.Value, error) {
	if p == nil {
		return "[]", nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal provider list: %w", err)
	}
	return string(b), nil
}

func (p *ProviderList) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*p = ProviderList{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported provider list column type %T", src)
	}
	if len(data) == 0 {
		*p = ProviderList{}
		return nil
	}
	if err := json.Unmarshal(data, p); err != nil {
		return fmt.Errorf("corrupted provider list column: %w", err)
	}
	return nil
}

type User struct {
	ID                  uint         `gorm:"primaryKey" json:"id"`
	Username            string       `gorm:"uniqueIndex;not null;size:80" json:"username"`
	Email               string       `gorm:"uniqueIndex;not null;size:255" json:"email"`
	PasswordHash        string       `gorm:"not null;size:128" json:"-"`
	Role                UserRole     `gorm:"size:20;default:'basic';index" json:"role"`
	MonthlyBudget       float64      `gorm:"type:decimal(10,2);default:0" json:"monthly_budget"`
	CurrentUsage        float64      `gorm:"type:decimal(10,4);default:0" json:"current_usage"`
	AllowedProviders    ProviderList `gorm:"type:text" json:"allowed_providers"`
	DefaultModel        string       `gorm:"size:100" json:"default_model,omitempty"`
	MaxTokensPerRequest int          `gorm:"default:4096" json:"max_tokens_per_request"`
	EnableStreaming     bool         `gorm:"default:true" json:"enable_streaming"`
	SystemPrompt        string       `gorm:"type:text" json:"system_prompt,omitempty"`
	GuardrailsEnabled   bool         `gorm:"default:false" json:"guardrails_enabled"`
	IsActive            bool         `gorm:"default:true;index" json:"is_active"`
	LastLoginAt         *time.Time   `json:"last_login_at,omitempty"`
	CreatedAt           time.Time    `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time    `gorm:"autoUpdateTime" json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// CanUseProvider reports whether the user may dispatch to a provider.
// The literal entry "all" grants every provider.
func (u *User) CanUseProvider(provider string) bool {
	for _, p := range u.AllowedProviders {
		if p == "all" || p == provider {
			return true
		}
	}
	return false
}

// BudgetRemaining never goes below zero in the client-facing view.
func (u *User) BudgetRemaining() float64 {
	remaining := u.MonthlyBudget - u.CurrentUsage
	if remaining < 0 {
		return 0
	}
	return remaining
}

type UserCreateRequest struct {
	Username         string   `json:"username" validate:"required,min=3,max=80"`
	Email            string   `json:"email" validate:"required,email"`
	Password         string   `json:"password" validate:"required,min=8"`
	Role             UserRole `json:"role,omitempty"`
	MonthlyBudget    *float64 `json:"monthly_budget,omitempty"`
	AllowedProviders []string `json:"allowed_providers,omitempty"`
}

type UserUpdateRequest struct {
	Role             *UserRole `json:"role,omitempty"`
	MonthlyBudget    *float64  `json:"monthly_budget,omitempty"`
	AllowedProviders []string  `json:"allowed_providers,omitempty"`
	IsActive         *bool     `json:"is_active,omitempty"`
}

type PreferencesUpdateRequest struct {
	DefaultModel        *string `json:"default_model,omitempty"`
	MaxTokensPerRequest *int    `json:"max_tokens_per_request,omitempty"`
	EnableStreaming     *bool   `json:"enable_streaming,omitempty"`
	SystemPrompt        *string `json:"system_prompt,omitempty"`
	GuardrailsEnabled   *bool   `json:"guardrails_enabled,omitempty"`
}
