package cashplanctl

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

type Options struct {
	BaseURL    string
	APIKey     string
	UserID     int64
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

type chatReply struct {
	Response     string `json:"response"`
	SQLQuery     string `json:"sql_query"`
	Error        bool   `json:"error"`
	Intent       string `json:"intent"`
	InvocationID string `json:"invocation_id"`
}

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	fs := flag.NewFlagSet("cashplanctl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	baseURL := fs.String("base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "Cash Plan API base URL")
	apiKey := fs.String("api-key", defaults.APIKey, "API key for authenticated requests")
	userID := fs.Int64("user-id", defaults.UserID, "X-User-ID header (used when auth is disabled)")
	timeout := fs.Duration("timeout", durationOr(defaults.Timeout, 30*time.Second), "HTTP timeout (e.g. 30s)")
	raw := fs.Bool("raw", false, "print the full JSON response of chat")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(stderr)
		return 2
	}

	client := defaults.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: *timeout}
	}

	command := strings.TrimSpace(fs.Arg(0))
	method := ""
	path := ""
	var body []byte
	switch command {
	case "health":
		method, path = http.MethodGet, "/v1/health"
	case "ready":
		method, path = http.MethodGet, "/v1/ready"
	case "schema":
		method, path = http.MethodGet, "/v1/assistant/schema"
	case "chat":
		prompt := strings.TrimSpace(strings.Join(fs.Args()[1:], " "))
		if prompt == "" {
			_, _ = fmt.Fprintln(stderr, "chat requires a prompt")
			return 2
		}
		encoded, err := json.Marshal(map[string]string{"prompt": prompt})
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "encode prompt: %v\n", err)
			return 1
		}
		method, path, body = http.MethodPost, "/v1/assistant/chat", encoded
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n", command)
		writeUsage(stderr)
		return 2
	}

	endpoint := strings.TrimRight(*baseURL, "/") + path
	code, responseBody, err := doRequest(ctx, client, method, endpoint, body, *apiKey, *userID)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "request failed: %v\n", err)
		return 1
	}

	if code >= 400 {
		_, _ = fmt.Fprintf(stderr, "http %d: %s\n", code, strings.TrimSpace(string(responseBody)))
		return 1
	}

	if command == "chat" && !*raw {
		return printChat(stdout, stderr, responseBody)
	}
	if command == "schema" && !*raw {
		var payload struct {
			Schema string `json:"schema"`
		}
		if err := json.Unmarshal(responseBody, &payload); err == nil && payload.Schema != "" {
			_, _ = fmt.Fprintln(stdout, payload.Schema)
			return 0
		}
	}

	if pretty, ok := prettyJSON(responseBody); ok {
		_, _ = fmt.Fprintln(stdout, pretty)
		return 0
	}
	if len(responseBody) > 0 {
		_, _ = fmt.Fprintln(stdout, string(responseBody))
	}
	return 0
}

// printChat writes the assistant reply and exits non-zero when the pipeline
// flagged the answer as an error.
func printChat(stdout, stderr io.Writer, raw []byte) int {
	var reply chatReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		_, _ = fmt.Fprintf(stderr, "decode chat response: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(stdout, reply.Response)
	if reply.SQLQuery != "" {
		_, _ = fmt.Fprintf(stdout, "\nsql: %s\n", reply.SQLQuery)
	}
	if reply.Error {
		return 1
	}
	return 0
}

func doRequest(ctx context.Context, client *http.Client, method, url string, body []byte, apiKey string, userID int64) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if strings.TrimSpace(apiKey) != "" {
		req.Header.Set("X-API-Key", strings.TrimSpace(apiKey))
	}
	if userID > 0 {
		req.Header.Set("X-User-ID", strconv.FormatInt(userID, 10))
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, responseBody, nil
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func writeUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: cashplanctl [flags] <command> [args]")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	_, _ = fmt.Fprintln(w, "  health           GET /v1/health")
	_, _ = fmt.Fprintln(w, "  ready            GET /v1/ready")
	_, _ = fmt.Fprintln(w, "  schema           GET /v1/assistant/schema")
	_, _ = fmt.Fprintln(w, "  chat <text...>   POST /v1/assistant/chat")
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
