package ledger

import (
	"context"
	"math"
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
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedUser(t *testing.T, db *gorm.DB, budget, usage float64) *models.User {
	t.Helper()
	user := &models.User{
		Username:      "alice",
		Email:         "alice@example.com",
		PasswordHash:  "x",
		Role:          models.RoleStandard,
		MonthlyBudget: budget,
		CurrentUsage:  usage,
		IsActive:      true,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func TestHasBudget(t *testing.T) {
	db := testDB(t)
	svc := NewService(db)
	ctx := context.Background()

	user := seedUser(t, db, 20.00, 19.99)

	// 19.99 + 0.05 exceeds 20.00: rejected before any dispatch.
	ok, got, err := svc.HasBudget(ctx, user.ID, 0.05)
	if err != nil {
		t.Fatalf("HasBudget: %v", err)
	}
	if ok {
		t.Error("expected budget check to fail at 19.99/20.00 with 0.05 estimate")
	}
	if got.CurrentUsage != 19.99 {
		t.Errorf("returned usage = %v, want 19.99", got.CurrentUsage)
	}

	ok, _, err = svc.HasBudget(ctx, user.ID, 0.01)
	if err != nil {
		t.Fatalf("HasBudget: %v", err)
	}
	if !ok {
		t.Error("expected budget check to pass when estimate fits")
	}
}

func TestHasBudgetZeroCap(t *testing.T) {
	db := testDB(t)
	svc := NewService(db)

	user := seedUser(t, db, 0, 0)
	ok, _, err := svc.HasBudget(context.Background(), user.ID, 0.001)
	if err != nil {
		t.Fatalf("HasBudget: %v", err)
	}
	if ok {
		t.Error("zero-budget user should fail any nonzero estimate")
	}
}

func TestCharge(t *testing.T) {
	db := testDB(t)
	svc := NewService(db)
	ctx := context.Background()

	user := seedUser(t, db, 20.00, 1.50)

	if err := svc.Charge(ctx, user.ID, 0.25); err != nil {
		t.Fatalf("Charge: %v", err)
	}

	var got models.User
	if err := db.First(&got, user.ID).Error; err != nil {
		t.Fatalf("reload user: %v", err)
	}
	if math.Abs(got.CurrentUsage-1.75) > 1e-9 {
		t.Errorf("usage = %v, want 1.75", got.CurrentUsage)
	}

	// Zero cost is a no-op, not an error.
	if err := svc.Charge(ctx, user.ID, 0); err != nil {
		t.Errorf("Charge(0): %v", err)
	}

	if err := svc.Charge(ctx, 9999, 0.10); err == nil {
		t.Error("expected error charging missing user")
	}
}

func TestResetAllPeriods(t *testing.T) {
	db := testDB(t)
	svc := NewService(db)
	ctx := context.Background()

	active := seedUser(t, db, 20, 5.00)
	inactive := &models.User{
		Username: "bob", Email: "bob@example.com", PasswordHash: "x",
		MonthlyBudget: 20, CurrentUsage: 3.00, IsActive: false,
	}
	if err := db.Create(inactive).Error; err != nil {
		t.Fatalf("seed inactive: %v", err)
	}
	// The column default would override a zero-valued bool on insert.
	if err := db.Model(inactive).Update("is_active", false).Error; err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	n, err := svc.ResetAllPeriods(ctx)
	if err != nil {
		t.Fatalf("ResetAllPeriods: %v", err)
	}
	if n != 1 {
		t.Errorf("reset count = %d, want 1", n)
	}

	var got models.User
	if err := db.First(&got, active.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.CurrentUsage != 0 {
		t.Errorf("active usage = %v, want 0", got.CurrentUsage)
	}
	var got2 models.User
	if err := db.First(&got2, inactive.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got2.CurrentUsage != 3.00 {
		t.Errorf("inactive usage = %v, want untouched 3.00", got2.CurrentUsage)
	}
}

func TestSetBudgetClampsToRoleCeiling(t *testing.T) {
	db := testDB(t)
	svc := NewService(db)
	ctx := context.Background()

	user := seedUser(t, db, 10, 0)

	if err := svc.SetBudget(ctx, user.ID, 500); err != nil {
		t.Fatalf("SetBudget: %v", err)
	}

	var got models.User
	if err := db.First(&got, user.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.MonthlyBudget != 20 {
		t.Errorf("budget = %v, want clamped to 20 for standard role", got.MonthlyBudget)
	}
}
