// Package users manages accounts: admin CRUD, role defaults, and
// per-user preference updates.
package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/mfcastro/aihub/internal/models"
	"github.com/mfcastro/aihub/internal/services/auth"

	"gorm.io/gorm"
)

type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// defaultProvidersForRole is the provider set a new account starts with.
// Admins and premium users get everything; standard users get the hosted
// cheap tier plus local; basic users stay local-only.
func defaultProvidersForRole(role models.UserRole) models.ProviderList {
	switch role {
	case models.RoleAdmin, models.RolePremium:
		return models.ProviderList{"all"}
	case models.RoleStandard:
		return models.ProviderList{"ollama", "openai", "groq"}
	default:
		return models.ProviderList{"ollama"}
	}
}

// Create registers a user. Role defaults to basic; omitted budget and
// provider list fall back to role defaults, and explicit budgets are
// clamped to the role ceiling.
func (s *Service) Create(ctx context.Context, req models.UserCreateRequest) (*models.User, error) {
	if req.Username == "" || req.Email == "" {
		return nil, models.NewValidationError("username and email are required", nil)
	}
	if len(req.Password) < 8 {
		return nil, models.NewValidationError("password must be at least 8 characters", nil)
	}

	role := req.Role
	if role == "" {
		role = models.RoleBasic
	}

	budget := models.MaxBudgetForRole(role)
	if req.MonthlyBudget != nil {
		budget = *req.MonthlyBudget
		if ceiling := models.MaxBudgetForRole(role); budget > ceiling {
			budget = ceiling
		}
	}

	providerList := defaultProvidersForRole(role)
	if len(req.AllowedProviders) > 0 {
		providerList = models.ProviderList(req.AllowedProviders)
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, models.NewInternalError("password hash failed", err)
	}

	user := &models.User{
		Username:         req.Username,
		Email:            req.Email,
		PasswordHash:     hash,
		Role:             role,
		MonthlyBudget:    budget,
		AllowedProviders: providerList,
		IsActive:         true,
	}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, models.NewValidationError("username or email already taken", nil)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return user, nil
}

// Get loads one user by id.
func (s *Service) Get(ctx context.Context, userID uint) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).First(&user, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.NewNotFoundError("user")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user %d: %w", userID, err)
	}
	return &user, nil
}

// List returns all users, newest first.
func (s *Service) List(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// Update applies an admin update. Budget changes are clamped against the
// effective role, including a role changed in the same request.
func (s *Service) Update(ctx context.Context, userID uint, req models.UserUpdateRequest) (*models.User, error) {
	user, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	role := user.Role
	if req.Role != nil {
		role = *req.Role
		updates["role"] = role
		// A downgrade without an accompanying budget must not leave the
		// stored budget above the new role's ceiling.
		if req.MonthlyBudget == nil {
			if ceiling := models.MaxBudgetForRole(role); user.MonthlyBudget > ceiling {
				updates["monthly_budget"] = ceiling
			}
		}
	}
	if req.MonthlyBudget != nil {
		budget := *req.MonthlyBudget
		if ceiling := models.MaxBudgetForRole(role); budget > ceiling {
			budget = ceiling
		}
		updates["monthly_budget"] = budget
	}
	if req.AllowedProviders != nil {
		updates["allowed_providers"] = models.ProviderList(req.AllowedProviders)
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}

	if len(updates) == 0 {
		return user, nil
	}

	if err := s.db.WithContext(ctx).Model(user).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update user %d: %w", userID, err)
	}
	return s.Get(ctx, userID)
}

// UpdatePreferences applies a user's own settings.
func (s *Service) UpdatePreferences(ctx context.Context, userID uint, req models.PreferencesUpdateRequest) (*models.User, error) {
	updates := map[string]any{}
	if req.DefaultModel != nil {
		updates["default_model"] = *req.DefaultModel
	}
	if req.MaxTokensPerRequest != nil {
		if *req.MaxTokensPerRequest < 100 || *req.MaxTokensPerRequest > 4000 {
			return nil, models.NewValidationError("max_tokens_per_request must be between 100 and 4000", nil)
		}
		updates["max_tokens_per_request"] = *req.MaxTokensPerRequest
	}
	if req.EnableStreaming != nil {
		updates["enable_streaming"] = *req.EnableStreaming
	}
	if req.SystemPrompt != nil {
		if len(*req.SystemPrompt) > 1000 {
			return nil, models.NewValidationError("system_prompt must be at most 1000 characters", nil)
		}
		updates["system_prompt"] = *req.SystemPrompt
	}
	if req.GuardrailsEnabled != nil {
		updates["guardrails_enabled"] = *req.GuardrailsEnabled
	}

	if len(updates) > 0 {
		result := s.db.WithContext(ctx).
			Model(&models.User{}).
			Where("id = ?", userID).
			Updates(updates)
		if result.Error != nil {
			return nil, fmt.Errorf("failed to update preferences for user %d: %w", userID, result.Error)
		}
		if result.RowsAffected == 0 {
			return nil, models.NewNotFoundError("user")
		}
	}

	return s.Get(ctx, userID)
}
