package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"
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
	if err := db.AutoMigrate(&models.ChatSession{}, &models.ChatMessage{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestGetOrCreateTruncatesTitle(t *testing.T) {
	db := testDB(t)
	svc := NewService(db)
	ctx := context.Background()

	long := strings.Repeat("a", 80)
	session, err := svc.GetOrCreate(ctx, 1, 0, long, "llama3")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if len(session.Title) != 50 {
		t.Errorf("title length = %d, want 50", len(session.Title))
	}

	short, err := svc.GetOrCreate(ctx, 1, 0, "hello", "llama3")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if short.Title != "hello" {
		t.Errorf("title = %q, want hello", short.Title)
	}
}

func TestGetOrCreateExisting(t *testing.T) {
	db := testDB(t)
	svc := NewService(db)
	ctx := context.Background()

	created, err := svc.GetOrCreate(ctx, 1, 0, "first", "llama3")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := svc.GetOrCreate(ctx, 1, created.ID, "ignored", "llama3")
	if err != nil {
		t.Fatalf("get existing: %v", err)
	}
	if got.ID != created.ID || got.Title != "first" {
		t.Errorf("got session %d %q, want %d %q", got.ID, got.Title, created.ID, "first")
	}

	// Another user's session id is invisible.
	if _, err := svc.GetOrCreate(ctx, 2, created.ID, "x", "llama3"); !errors.Is(err, ErrNotFound) {
		t.Errorf("cross-user get = %v, want ErrNotFound", err)
	}
}

func TestAppendMessageUpdatesTotals(t *testing.T) {
	db := testDB(t)
	svc := NewService(db)
	ctx := context.Background()

	session, err := svc.GetOrCreate(ctx, 1, 0, "hi", "llama3")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	msgs := []models.ChatMessage{
		{Role: models.MessageRoleUser, Content: "hi", Tokens: 1},
		{Role: models.MessageRoleAssistant, Content: "hello there", Model: "llama3", Tokens: 2, Cost: 0.001},
	}
	for _, m := range msgs {
		if err := svc.AppendMessage(ctx, session.ID, m); err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}

	got, err := svc.GetWithMessages(ctx, 1, session.ID)
	if err != nil {
		t.Fatalf("GetWithMessages: %v", err)
	}
	if len(got.Messages) != 2 {
		t.Fatalf("message count = %d, want 2", len(got.Messages))
	}
	if got.TotalTokens != 3 {
		t.Errorf("total_tokens = %d, want 3", got.TotalTokens)
	}
	if got.Messages[0].Role != models.MessageRoleUser {
		t.Errorf("messages out of order: first role = %q", got.Messages[0].Role)
	}
}

func TestWindow(t *testing.T) {
	db := testDB(t)
	svc := NewService(db)
	ctx := context.Background()

	session, err := svc.GetOrCreate(ctx, 1, 0, "hi", "llama3")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	for i := 0; i < ContextWindow+5; i++ {
		msg := models.ChatMessage{Role: models.MessageRoleUser, Content: fmt.Sprintf("msg-%d", i)}
		if err := svc.AppendMessage(ctx, session.ID, msg); err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}

	window, err := svc.Window(ctx, session.ID)
	if err != nil {
		t.Fatalf("Window: %v", err)
	}
	if len(window) != ContextWindow {
		t.Fatalf("window length = %d, want %d", len(window), ContextWindow)
	}
	if window[0].Content != "msg-5" {
		t.Errorf("window starts at %q, want msg-5", window[0].Content)
	}
	if window[len(window)-1].Content != fmt.Sprintf("msg-%d", ContextWindow+4) {
		t.Errorf("window ends at %q", window[len(window)-1].Content)
	}
}

func TestDeactivate(t *testing.T) {
	db := testDB(t)
	svc := NewService(db)
	ctx := context.Background()

	session, err := svc.GetOrCreate(ctx, 1, 0, "hi", "llama3")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := svc.Deactivate(ctx, 1, session.ID); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	if _, err := svc.Get(ctx, 1, session.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("deactivated session still loads: %v", err)
	}

	// Row itself survives the soft delete.
	var raw models.ChatSession
	if err := db.First(&raw, session.ID).Error; err != nil {
		t.Fatalf("raw load: %v", err)
	}
	if raw.IsActive {
		t.Error("is_active = true after deactivate")
	}

	if err := svc.Deactivate(ctx, 1, session.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second deactivate = %v, want ErrNotFound", err)
	}
}

func TestListAndExport(t *testing.T) {
	db := testDB(t)
	svc := NewService(db)
	ctx := context.Background()

	session, err := svc.GetOrCreate(ctx, 1, 0, "exportable", "llama3")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.AppendMessage(ctx, session.ID, models.ChatMessage{Role: models.MessageRoleUser, Content: "hi", Tokens: 3, Cost: 0.01}); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	if err := svc.AppendMessage(ctx, session.ID, models.ChatMessage{Role: models.MessageRoleAssistant, Content: "hello there", Tokens: 5, Cost: 0.02}); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	summaries, err := svc.List(ctx, 1)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(summaries) != 1 || summaries[0].MessageCount != 2 {
		t.Errorf("summaries = %+v, want one with message_count 2", summaries)
	}

	export, err := svc.Export(ctx, 1, session.ID, "alice")
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if export.ExportID == "" {
		t.Error("export id is empty")
	}

	// Re-parsing the export must reproduce the message sequence, the
	// session totals, and the exporting user.
	raw, err := json.Marshal(export)
	if err != nil {
		t.Fatalf("marshal export: %v", err)
	}
	var parsed models.SessionExport
	if err := json.Unmarshal(raw, &parsed); err != nil {
		t.Fatalf("unmarshal export: %v", err)
	}
	if len(parsed.Messages) != 2 || parsed.Messages[0].Content != "hi" || parsed.Messages[1].Content != "hello there" {
		t.Errorf("export messages = %+v", parsed.Messages)
	}
	if parsed.TotalTokens != 8 {
		t.Errorf("total_tokens = %d, want 8", parsed.TotalTokens)
	}
	if math.Abs(parsed.TotalCost-0.03) > 1e-9 {
		t.Errorf("total_cost = %v, want 0.03", parsed.TotalCost)
	}
	if parsed.ExportedBy != "alice" {
		t.Errorf("exported_by = %q, want alice", parsed.ExportedBy)
	}
}
