package users

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/mfcastro/aihub/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestCreateDefaults(t *testing.T) {
	svc := NewService(testDB(t))
	ctx := context.Background()

	user, err := svc.Create(ctx, models.UserCreateRequest{
		Username: "alice", Email: "alice@example.com", Password: "hunter2222",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if user.Role != models.RoleBasic {
		t.Errorf("role = %q, want basic", user.Role)
	}
	if user.MonthlyBudget != 0 {
		t.Errorf("budget = %v, want 0 for basic", user.MonthlyBudget)
	}
	if len(user.AllowedProviders) != 1 || user.AllowedProviders[0] != "ollama" {
		t.Errorf("providers = %v, want [ollama]", user.AllowedProviders)
	}
	if user.PasswordHash == "hunter2222" || user.PasswordHash == "" {
		t.Error("password stored unhashed")
	}
}

func TestCreateClampsBudget(t *testing.T) {
	svc := NewService(testDB(t))
	budget := 9999.0

	user, err := svc.Create(context.Background(), models.UserCreateRequest{
		Username: "bob", Email: "bob@example.com", Password: "hunter2222",
		Role: models.RolePremium, MonthlyBudget: &budget,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if user.MonthlyBudget != 100 {
		t.Errorf("budget = %v, want clamped to 100 for premium", user.MonthlyBudget)
	}
}

func TestCreateValidation(t *testing.T) {
	svc := NewService(testDB(t))
	ctx := context.Background()

	_, err := svc.Create(ctx, models.UserCreateRequest{Username: "x", Email: "x@example.com", Password: "short"})
	var appErr *models.AppError
	if !errors.As(err, &appErr) || appErr.Type != models.ErrorTypeValidation {
		t.Errorf("short password error = %v, want validation", err)
	}

	if _, err := svc.Create(ctx, models.UserCreateRequest{Username: "ok", Email: "ok@example.com", Password: "hunter2222"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	_, err = svc.Create(ctx, models.UserCreateRequest{Username: "ok", Email: "other@example.com", Password: "hunter2222"})
	if err == nil {
		t.Error("duplicate username accepted")
	}
}

func TestUpdateRoleAndBudget(t *testing.T) {
	svc := NewService(testDB(t))
	ctx := context.Background()

	user, err := svc.Create(ctx, models.UserCreateRequest{
		Username: "carol", Email: "carol@example.com", Password: "hunter2222",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	role := models.RoleStandard
	budget := 50.0
	updated, err := svc.Update(ctx, user.ID, models.UserUpdateRequest{Role: &role, MonthlyBudget: &budget})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Role != models.RoleStandard {
		t.Errorf("role = %q, want standard", updated.Role)
	}
	// 50 exceeds the standard ceiling of 20.
	if updated.MonthlyBudget != 20 {
		t.Errorf("budget = %v, want clamped to 20", updated.MonthlyBudget)
	}
}

func TestUpdateRoleDowngradeReclampsBudget(t *testing.T) {
	svc := NewService(testDB(t))
	ctx := context.Background()

	budget := 80.0
	user, err := svc.Create(ctx, models.UserCreateRequest{
		Username: "erin", Email: "erin@example.com", Password: "hunter2222",
		Role: models.RolePremium, MonthlyBudget: &budget,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if user.MonthlyBudget != 80 {
		t.Fatalf("budget = %v, want 80", user.MonthlyBudget)
	}

	// Downgrade with no budget in the request: the stored 80 sits above
	// the standard ceiling and must come down with the role.
	standard := models.RoleStandard
	updated, err := svc.Update(ctx, user.ID, models.UserUpdateRequest{Role: &standard})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Role != models.RoleStandard {
		t.Errorf("role = %q, want standard", updated.Role)
	}
	if updated.MonthlyBudget != 20 {
		t.Errorf("budget = %v, want re-clamped to 20", updated.MonthlyBudget)
	}
}

func TestUpdatePreferences(t *testing.T) {
	svc := NewService(testDB(t))
	ctx := context.Background()

	user, err := svc.Create(ctx, models.UserCreateRequest{
		Username: "dave", Email: "dave@example.com", Password: "hunter2222",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	model := "llama3"
	guardrails := true
	prompt := "stay on topic"
	updated, err := svc.UpdatePreferences(ctx, user.ID, models.PreferencesUpdateRequest{
		DefaultModel: &model, GuardrailsEnabled: &guardrails, SystemPrompt: &prompt,
	})
	if err != nil {
		t.Fatalf("UpdatePreferences: %v", err)
	}
	if updated.DefaultModel != "llama3" || !updated.GuardrailsEnabled || updated.SystemPrompt != "stay on topic" {
		t.Errorf("preferences = %+v", updated)
	}

	ceiling := 2048
	updated, err = svc.UpdatePreferences(ctx, user.ID, models.PreferencesUpdateRequest{MaxTokensPerRequest: &ceiling})
	if err != nil {
		t.Fatalf("UpdatePreferences: %v", err)
	}
	if updated.MaxTokensPerRequest != 2048 {
		t.Errorf("max tokens = %d, want 2048", updated.MaxTokensPerRequest)
	}

	bad := -5
	if _, err := svc.UpdatePreferences(ctx, user.ID, models.PreferencesUpdateRequest{MaxTokensPerRequest: &bad}); err == nil {
		t.Error("negative max tokens accepted")
	}
	tooHigh := 9000
	if _, err := svc.UpdatePreferences(ctx, user.ID, models.PreferencesUpdateRequest{MaxTokensPerRequest: &tooHigh}); err == nil {
		t.Error("out-of-range max tokens accepted")
	}

	if _, err := svc.UpdatePreferences(ctx, 9999, models.PreferencesUpdateRequest{DefaultModel: &model}); err == nil {
		t.Error("preferences update for missing user accepted")
	}
}
