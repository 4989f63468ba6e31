package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGeminiContentsMapsRoles(t *testing.T) {
	contents := geminiContents([]Turn{
		{Role: RoleUser, Text: "gere sql"},
		{Role: RoleModel, Text: "SELECT 1"},
	}, "explique")
	if len(contents) != 3 {
		t.Fatalf("len(contents) = %d", len(contents))
	}
	wantRoles := []string{"user", "model", "user"}
	for i, role := range wantRoles {
		if contents[i].Role != role {
			t.Fatalf("contents[%d].Role = %q, want %q", i, contents[i].Role, role)
		}
	}
	if contents[2].Parts[0].Text != "explique" {
		t.Fatalf("last part = %q", contents[2].Parts[0].Text)
	}
}

func TestNewGeminiClientRequiresKey(t *testing.T) {
	if _, err := NewGeminiClient(context.Background(), GeminiConfig{}); err == nil {
		t.Fatal("expected error for missing api key")
	}
}

func TestGeminiClientGenerate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "gemini-test:generateContent") {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"SELECT 1"}]}}]}`))
	}))
	defer server.Close()

	client, err := NewGeminiClient(context.Background(), GeminiConfig{
		APIKey:  "secret",
		Model:   "gemini-test",
		BaseURL: server.URL,
	})
	if err != nil {
		t.Fatalf("NewGeminiClient() error = %v", err)
	}
	reply, err := client.Generate(context.Background(), nil, "gere sql")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if reply != "SELECT 1" {
		t.Fatalf("Generate() = %q", reply)
	}
}
