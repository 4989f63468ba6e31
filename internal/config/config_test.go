package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoadDefaultsForDevProfile(t *testing.T) {
	lookup := mapLookup(map[string]string{})
	cfg, err := Load("cashplan-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileDev {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileDev)
	}
	if cfg.HTTP.Address != ":8080" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if cfg.Observability.LogLevel != slog.LevelDebug {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if cfg.Auth.Required {
		t.Fatal("Auth.Required should default to false in dev")
	}
	if cfg.Store.MaxOpenConns != 20 {
		t.Fatalf("Store.MaxOpenConns = %d", cfg.Store.MaxOpenConns)
	}
	if cfg.AI.Enabled {
		t.Fatal("AI.Enabled should default to false")
	}
	if cfg.AI.Provider != ProviderGemini {
		t.Fatalf("AI.Provider = %q", cfg.AI.Provider)
	}
	if !cfg.Assistant.ScopeCheck {
		t.Fatal("Assistant.ScopeCheck should default to true")
	}
	if cfg.Assistant.ExposeStoreErrors {
		t.Fatal("Assistant.ExposeStoreErrors should default to false")
	}
	if cfg.Assistant.MaxRows != 200 {
		t.Fatalf("Assistant.MaxRows = %d", cfg.Assistant.MaxRows)
	}
	if cfg.Assistant.Currency != "R$" {
		t.Fatalf("Assistant.Currency = %q", cfg.Assistant.Currency)
	}
}

func TestLoadProdProfileDefaults(t *testing.T) {
	lookup := mapLookup(map[string]string{"CASHPLAN_PROFILE": "prod"})
	cfg, err := Load("cashplan-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileProd {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileProd)
	}
	if !cfg.Auth.Required {
		t.Fatal("Auth.Required should default to true in prod")
	}
	if !cfg.Auth.StoreKeys {
		t.Fatal("Auth.StoreKeys should default to true in prod")
	}
	if cfg.Observability.LogLevel != slog.LevelInfo {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	lookup := mapLookup(map[string]string{
		"CASHPLAN_PROFILE":                       "test",
		"CASHPLAN_HTTP_ADDR":                     ":9999",
		"CASHPLAN_HTTP_READ_TIMEOUT":             "2s",
		"CASHPLAN_HTTP_WRITE_TIMEOUT":            "3s",
		"CASHPLAN_LOG_LEVEL":                     "error",
		"CASHPLAN_AUTH_REQUIRED":                 "true",
		"CASHPLAN_AUTH_STATIC_KEYS":              "k1:7:Ana",
		"CASHPLAN_STORE_DSN":                     "postgres://example",
		"CASHPLAN_STORE_MAX_OPEN_CONNS":          "42",
		"CASHPLAN_STORE_MAX_IDLE_CONNS":          "17",
		"CASHPLAN_SERVICE_NAME":                  "cashplan-custom",
		"CASHPLAN_AI_ENABLED":                    "true",
		"CASHPLAN_AI_PROVIDER":                   "OpenAI",
		"CASHPLAN_AI_BASE_URL":                   "https://api.example.com",
		"CASHPLAN_AI_API_KEY":                    "secret-key",
		"CASHPLAN_AI_MODEL":                      "gpt-5.2",
		"CASHPLAN_AI_TEMPERATURE":                "0.3",
		"CASHPLAN_AI_TIMEOUT":                    "21s",
		"CASHPLAN_ASSISTANT_SCOPE_CHECK":         "false",
		"CASHPLAN_ASSISTANT_EXPOSE_STORE_ERRORS": "true",
		"CASHPLAN_ASSISTANT_MAX_ROWS":            "50",
		"CASHPLAN_ASSISTANT_QUERY_TIMEOUT":       "1500ms",
		"CASHPLAN_ASSISTANT_CURRENCY":            "US$",
	})
	cfg, err := Load("cashplan-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Service.Name != "cashplan-custom" {
		t.Fatalf("Service.Name = %q", cfg.Service.Name)
	}
	if cfg.HTTP.Address != ":9999" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if cfg.HTTP.ReadTimeout != 2*time.Second {
		t.Fatalf("HTTP.ReadTimeout = %s", cfg.HTTP.ReadTimeout)
	}
	if cfg.HTTP.WriteTimeout != 3*time.Second {
		t.Fatalf("HTTP.WriteTimeout = %s", cfg.HTTP.WriteTimeout)
	}
	if cfg.Observability.LogLevel != slog.LevelError {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if !cfg.Auth.Required {
		t.Fatal("Auth.Required = false, want true")
	}
	if cfg.Auth.StaticKeys != "k1:7:Ana" {
		t.Fatalf("StaticKeys = %q", cfg.Auth.StaticKeys)
	}
	if cfg.Store.DSN != "postgres://example" {
		t.Fatalf("Store.DSN = %q", cfg.Store.DSN)
	}
	if cfg.Store.MaxOpenConns != 42 {
		t.Fatalf("Store.MaxOpenConns = %d", cfg.Store.MaxOpenConns)
	}
	if cfg.Store.MaxIdleConns != 17 {
		t.Fatalf("Store.MaxIdleConns = %d", cfg.Store.MaxIdleConns)
	}
	if !cfg.AI.Enabled {
		t.Fatal("AI.Enabled = false, want true")
	}
	if cfg.AI.Provider != ProviderOpenAI {
		t.Fatalf("AI.Provider = %q", cfg.AI.Provider)
	}
	if cfg.AI.BaseURL != "https://api.example.com" {
		t.Fatalf("AI.BaseURL = %q", cfg.AI.BaseURL)
	}
	if cfg.AI.APIKey != "secret-key" {
		t.Fatalf("AI.APIKey = %q", cfg.AI.APIKey)
	}
	if cfg.AI.Model != "gpt-5.2" {
		t.Fatalf("AI.Model = %q", cfg.AI.Model)
	}
	if cfg.AI.Temperature != 0.3 {
		t.Fatalf("AI.Temperature = %f", cfg.AI.Temperature)
	}
	if cfg.AI.Timeout != 21*time.Second {
		t.Fatalf("AI.Timeout = %s", cfg.AI.Timeout)
	}
	if cfg.Assistant.ScopeCheck {
		t.Fatal("Assistant.ScopeCheck = true, want false")
	}
	if !cfg.Assistant.ExposeStoreErrors {
		t.Fatal("Assistant.ExposeStoreErrors = false, want true")
	}
	if cfg.Assistant.MaxRows != 50 {
		t.Fatalf("Assistant.MaxRows = %d", cfg.Assistant.MaxRows)
	}
	if cfg.Assistant.QueryTimeout != 1500*time.Millisecond {
		t.Fatalf("Assistant.QueryTimeout = %s", cfg.Assistant.QueryTimeout)
	}
	if cfg.Assistant.Currency != "US$" {
		t.Fatalf("Assistant.Currency = %q", cfg.Assistant.Currency)
	}
}

func TestLoadErrorsOnInvalidValues(t *testing.T) {
	tests := []map[string]string{
		{"CASHPLAN_PROFILE": "oops"},
		{"CASHPLAN_HTTP_READ_TIMEOUT": "NaN"},
		{"CASHPLAN_STORE_MAX_OPEN_CONNS": "oops"},
		{"CASHPLAN_AI_TEMPERATURE": "bad"},
		{"CASHPLAN_AI_PROVIDER": "anthropic"},
		{"CASHPLAN_ASSISTANT_MAX_ROWS": "0"},
		{"CASHPLAN_ASSISTANT_SCOPE_CHECK": "maybe"},
		{"CASHPLAN_AUTH_REQUIRED": "not-bool"},
		{"CASHPLAN_LOG_LEVEL": "verbose"},
	}
	for _, env := range tests {
		_, err := Load("cashplan-api", mapLookup(env))
		if err == nil {
			t.Fatalf("Load() expected error for env %#v", env)
		}
	}
}

func mapLookup(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}
