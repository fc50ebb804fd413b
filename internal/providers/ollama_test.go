package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mfcastro/aihub/internal/models"
)

func ollamaServer(t *testing.T, lines []string, wantModel string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("path = %q, want /api/generate", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		var req struct {
			Model  string `json:"model"`
			Prompt string `json:"prompt"`
			Stream bool   `json:"stream"`
		}
		if err := json.Unmarshal(body, &req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if req.Model != wantModel {
			t.Errorf("model = %q, want %q", req.Model, wantModel)
		}
		if !req.Stream {
			t.Error("stream = false, want true")
		}

		w.Header().Set("Content-Type", "application/x-ndjson")
		flusher := w.(http.Flusher)
		for _, line := range lines {
			fmt.Fprintln(w, line)
			flusher.Flush()
		}
	}))
}

func TestOllamaStream(t *testing.T) {
	lines := []string{
		`{"response":"Hi","done":false}`,
		`{"response":" there","done":false}`,
		`{"done":true}`,
	}
	srv := ollamaServer(t, lines, "llama3")
	defer srv.Close()

	adapter := NewOllamaAdapter(models.ProviderConfig{BaseURL: srv.URL})
	stream, err := adapter.Stream(context.Background(), Request{
		Model:    "llama3",
		Messages: []models.Message{{Role: models.MessageRoleUser, Content: "hello"}},
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer func() { _ = stream.Close() }()

	var got []string
	var usage *TokenUsage
	for stream.Next() {
		frag := stream.Current()
		if frag.Text != "" {
			got = append(got, frag.Text)
		}
		if frag.Usage != nil {
			usage = frag.Usage
		}
	}
	if err := stream.Err(); err != nil {
		t.Fatalf("stream error: %v", err)
	}

	if strings.Join(got, "") != "Hi there" {
		t.Errorf("fragments = %q, want \"Hi there\"", strings.Join(got, ""))
	}
	if usage == nil {
		t.Fatal("expected approximated usage on final fragment")
	}
	if usage.OutputTokens != 2 {
		t.Errorf("output tokens = %d, want 2", usage.OutputTokens)
	}
}

func TestOllamaStreamSkipsMalformedLines(t *testing.T) {
	lines := []string{
		`{"response":"ok","done":false}`,
		`not json at all`,
		`{"truncated":`,
		`{"response":" fine","done":false}`,
		`{"done":true}`,
	}
	srv := ollamaServer(t, lines, "llama3")
	defer srv.Close()

	adapter := NewOllamaAdapter(models.ProviderConfig{BaseURL: srv.URL})
	text, _, err := adapter.Complete(context.Background(), Request{
		Model:    "llama3",
		Messages: []models.Message{{Role: models.MessageRoleUser, Content: "hello"}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if text != "ok fine" {
		t.Errorf("text = %q, want \"ok fine\"", text)
	}
}

func TestOllamaStreamErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	adapter := NewOllamaAdapter(models.ProviderConfig{BaseURL: srv.URL})
	_, err := adapter.Stream(context.Background(), Request{Model: "missing"})
	if err == nil {
		t.Fatal("expected error for non-200 response")
	}
	appErr, ok := err.(*models.AppError)
	if !ok {
		t.Fatalf("error type = %T, want *models.AppError", err)
	}
	if appErr.Type != models.ErrorTypeProvider {
		t.Errorf("error type = %q, want provider", appErr.Type)
	}
}

func TestFlattenMessages(t *testing.T) {
	msgs := []models.Message{
		{Role: models.MessageRoleSystem, Content: "be brief"},
		{Role: models.MessageRoleUser, Content: "hi"},
		{Role: models.MessageRoleAssistant, Content: "hello"},
		{Role: models.MessageRoleUser, Content: "bye"},
	}
	got := FlattenMessages(msgs)
	want := "System: be brief\n\nHuman: hi\n\nAssistant: hello\n\nHuman: bye\n\nAssistant: "
	if got != want {
		t.Errorf("FlattenMessages = %q, want %q", got, want)
	}
}
