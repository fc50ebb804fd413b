package usagelog

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

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
	if err := db.AutoMigrate(&models.UsageLog{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestRecordAndStats(t *testing.T) {
	db := testDB(t)
	svc := NewService(db)
	ctx := context.Background()

	attempts := []models.RecordUsageParams{
		{UserID: 1, Provider: "openai", Model: "gpt-4o", InputTokens: 100, OutputTokens: 50, Cost: 0.00075, ResponseTimeMs: 800},
		{UserID: 1, Provider: "ollama", Model: "llama3", InputTokens: 20, OutputTokens: 30, Cost: 0, ResponseTimeMs: 200},
		{UserID: 1, Provider: "openai", Model: "gpt-4o", Status: models.UsageStatusError, ErrorMessage: "upstream closed", ResponseTimeMs: 100},
		{UserID: 2, Provider: "openai", Model: "gpt-4o", InputTokens: 10, OutputTokens: 10, Cost: 0.0001},
	}
	for _, p := range attempts {
		if err := svc.Record(ctx, p); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	stats, err := svc.Stats(ctx, 1, time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalRequests != 3 {
		t.Errorf("total_requests = %d, want 3", stats.TotalRequests)
	}
	if stats.TotalTokens != 200 {
		t.Errorf("total_tokens = %d, want 200", stats.TotalTokens)
	}
	if stats.SuccessCount != 2 || stats.ErrorCount != 1 {
		t.Errorf("success/error = %d/%d, want 2/1", stats.SuccessCount, stats.ErrorCount)
	}
	if math.Abs(stats.TotalCost-0.00075) > 1e-9 {
		t.Errorf("total_cost = %v, want 0.00075", stats.TotalCost)
	}
}

func TestRecordDefaultsStatus(t *testing.T) {
	db := testDB(t)
	svc := NewService(db)

	if err := svc.Record(context.Background(), models.RecordUsageParams{UserID: 1, Provider: "ollama", Model: "llama3"}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	var log models.UsageLog
	if err := db.First(&log).Error; err != nil {
		t.Fatalf("load: %v", err)
	}
	if log.Status != models.UsageStatusSuccess {
		t.Errorf("status = %q, want success", log.Status)
	}
}

func TestGetRecent(t *testing.T) {
	db := testDB(t)
	svc := NewService(db)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := svc.Record(ctx, models.RecordUsageParams{UserID: 1, Provider: "ollama", Model: "llama3"}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	logs, err := svc.GetRecent(ctx, 1, 3)
	if err != nil {
		t.Fatalf("GetRecent: %v", err)
	}
	if len(logs) != 3 {
		t.Errorf("len = %d, want 3", len(logs))
	}
}

func TestByProvider(t *testing.T) {
	db := testDB(t)
	svc := NewService(db)
	ctx := context.Background()

	params := []models.RecordUsageParams{
		{UserID: 1, Provider: "openai", Model: "gpt-4o", InputTokens: 100, OutputTokens: 100, Cost: 0.001},
		{UserID: 1, Provider: "openai", Model: "gpt-4o", InputTokens: 50, OutputTokens: 50, Cost: 0.0005},
		{UserID: 1, Provider: "ollama", Model: "llama3", InputTokens: 10, OutputTokens: 10},
	}
	for _, p := range params {
		if err := svc.Record(ctx, p); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	rows, err := svc.ByProvider(ctx, 1, time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("ByProvider: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("len = %d, want 2", len(rows))
	}
	// Sorted by cost descending, openai first.
	if rows[0].Provider != "openai" || rows[0].TotalRequests != 2 || rows[0].TotalTokens != 300 {
		t.Errorf("openai rollup = %+v", rows[0])
	}
}

func TestByUser(t *testing.T) {
	db := testDB(t)
	if err := db.AutoMigrate(&models.User{}); err != nil {
		t.Fatalf("migrate users: %v", err)
	}
	for _, u := range []models.User{
		{Username: "alice", Email: "alice@example.com", PasswordHash: "x"},
		{Username: "bob", Email: "bob@example.com", PasswordHash: "x"},
	} {
		if err := db.Create(&u).Error; err != nil {
			t.Fatalf("seed user: %v", err)
		}
	}

	svc := NewService(db)
	ctx := context.Background()

	params := []models.RecordUsageParams{
		{UserID: 1, Provider: "openai", Model: "gpt-4o", InputTokens: 100, OutputTokens: 100, Cost: 0.002},
		{UserID: 2, Provider: "openai", Model: "gpt-4o", InputTokens: 500, OutputTokens: 500, Cost: 0.01},
		{UserID: 2, Provider: "ollama", Model: "llama3", InputTokens: 10, OutputTokens: 10},
	}
	for _, p := range params {
		if err := svc.Record(ctx, p); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	rows, err := svc.ByUser(ctx, time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("ByUser: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("len = %d, want 2", len(rows))
	}
	// Costliest user first.
	if rows[0].Username != "bob" || rows[0].TotalRequests != 2 || rows[0].TotalTokens != 1020 {
		t.Errorf("bob rollup = %+v", rows[0])
	}
	if rows[1].Username != "alice" || rows[1].TotalRequests != 1 {
		t.Errorf("alice rollup = %+v", rows[1])
	}
}
