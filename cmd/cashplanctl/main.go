package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cashplan/cashplan/internal/cli/cashplanctl"
)

func main() {
	timeout := parseDurationWithDefault(strings.TrimSpace(os.Getenv("CASHPLAN_CLI_TIMEOUT")), 30*time.Second)
	options := cashplanctl.Options{
		BaseURL: envOr("CASHPLAN_API_URL", "http://localhost:8080"),
		APIKey:  strings.TrimSpace(os.Getenv("CASHPLAN_API_KEY")),
		UserID:  parseUserID(strings.TrimSpace(os.Getenv("CASHPLAN_USER_ID"))),
		Timeout: timeout,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
	}

	code := cashplanctl.Run(context.Background(), os.Args[1:], options)
	os.Exit(code)
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func parseUserID(raw string) int64 {
	if raw == "" {
		return 0
	}
	parsed, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || parsed <= 0 {
		_, _ = fmt.Fprintf(os.Stderr, "invalid CASHPLAN_USER_ID %q; ignoring\n", raw)
		return 0
	}
	return parsed
}

func parseDurationWithDefault(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid CASHPLAN_CLI_TIMEOUT %q; using %s\n", raw, fallback)
		return fallback
	}
	return parsed
}
