package imagegen

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mfcastro/aihub/internal/models"
	"github.com/mfcastro/aihub/internal/services/guard"
)

func TestGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/txt2img" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if req.Prompt != "a lighthouse" {
			t.Errorf("prompt = %q", req.Prompt)
		}
		if req.Size != "512x512" {
			t.Errorf("size = %q", req.Size)
		}
		fmt.Fprint(w, `{"images":["aW1n"]}`)
	}))
	defer srv.Close()

	svc := NewService(models.BackendConfig{BaseURL: srv.URL}, guard.New(1, 0))
	result, err := svc.Generate(context.Background(), Request{Prompt: "a lighthouse", Size: "512x512"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(result.Images) != 1 || result.Images[0] != "aW1n" {
		t.Errorf("result = %+v", result)
	}
}

func TestGenerateRejectsWhenBusy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"images":["x"]}`)
	}))
	defer srv.Close()

	g := guard.New(1, 0)
	release, err := g.Acquire(context.Background())
	if err != nil {
		t.Fatalf("hold guard: %v", err)
	}
	defer release()

	svc := NewService(models.BackendConfig{BaseURL: srv.URL}, g)
	_, err = svc.Generate(context.Background(), Request{Prompt: "x"})
	if err == nil {
		t.Fatal("expected busy rejection")
	}
	appErr, ok := err.(*models.AppError)
	if !ok || appErr.Type != models.ErrorTypeRateLimit {
		t.Errorf("error = %v, want rate_limit", err)
	}
}

func TestGenerateValidation(t *testing.T) {
	svc := NewService(models.BackendConfig{BaseURL: "http://localhost:1"}, guard.New(1, 0))
	if _, err := svc.Generate(context.Background(), Request{}); err == nil {
		t.Fatal("expected validation error for empty prompt")
	}
}
