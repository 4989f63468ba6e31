package deployments

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"testing"
)

func TestGrafanaDashboardJSONIsValid(t *testing.T) {
	root := repoRoot(t)
	path := filepath.Join(root, "deployments", "observability", "grafana", "cashplan_assistant_dashboard.json")

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read dashboard file: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(content, &decoded); err != nil {
		t.Fatalf("dashboard JSON parse error: %v", err)
	}

	title, _ := decoded["title"].(string)
	if strings.TrimSpace(title) == "" {
		t.Fatal("dashboard title is required")
	}
	panels, ok := decoded["panels"].([]any)
	if !ok || len(panels) == 0 {
		t.Fatal("dashboard must include at least one panel")
	}
}

func TestPrometheusRulesContainExpectedAlerts(t *testing.T) {
	root := repoRoot(t)
	path := filepath.Join(root, "deployments", "observability", "prometheus", "cashplan_rules.yaml")

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read rules file: %v", err)
	}
	text := string(content)

	requiredAlerts := []string{
		"CashPlanHTTPErrorRateHigh",
		"CashPlanChatLatencyP95High",
		"CashPlanLLMFailuresHigh",
		"CashPlanSQLRejectionsSpike",
		"CashPlanPanicsDetected",
	}
	for _, alertName := range requiredAlerts {
		if !strings.Contains(text, "alert: "+alertName) {
			t.Fatalf("rules missing alert %q", alertName)
		}
	}

	requiredMetrics := []string{
		"cashplan:slo_http_error_rate_5m",
		"cashplan:slo_chat_latency_seconds_p95",
		"cashplan:slo_llm_failure_ratio_15m",
		"cashplan:slo_sql_rejections_15m",
		"cashplan:slo_http_panics_15m",
	}
	for _, metricName := range requiredMetrics {
		matched, err := regexp.MatchString(regexp.QuoteMeta(metricName), text)
		if err != nil {
			t.Fatalf("regexp error for metric %q: %v", metricName, err)
		}
		if !matched {
			t.Fatalf("rules missing metric reference %q", metricName)
		}
	}
}

func TestPrometheusScrapeExampleContainsMetricsPathAndRules(t *testing.T) {
	root := repoRoot(t)
	path := filepath.Join(root, "deployments", "observability", "prometheus", "prometheus-scrape.example.yaml")

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read scrape example: %v", err)
	}
	text := string(content)

	for _, token := range []string{
		"metrics_path: /v1/metrics",
		"cashplan_rules.yaml",
		"cashplan_recording_rules.yaml",
		"job_name: cashplan-api",
	} {
		if !strings.Contains(text, token) {
			t.Fatalf("scrape example missing %q", token)
		}
	}
}

// Recording rules may only reference series the API actually exports.
func TestRecordingRulesReferenceExportedMetrics(t *testing.T) {
	root := repoRoot(t)
	path := filepath.Join(root, "deployments", "observability", "prometheus", "cashplan_recording_rules.yaml")

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read recording rules file: %v", err)
	}
	text := string(content)

	exported := map[string]bool{
		"cashplan_http_requests_total":              true,
		"cashplan_http_request_duration_seconds":    true,
		"cashplan_http_panics_total":                true,
		"cashplan_assistant_requests_total":         true,
		"cashplan_assistant_sql_rejections_total":   true,
		"cashplan_assistant_entities_created_total": true,
		"cashplan_llm_request_duration_seconds":     true,
		"cashplan_assistant_query_rows":             true,
	}
	series := regexp.MustCompile(`cashplan_[a-z_]+`).FindAllString(text, -1)
	if len(series) == 0 {
		t.Fatal("recording rules reference no series")
	}
	for _, name := range series {
		base := strings.TrimSuffix(strings.TrimSuffix(name, "_bucket"), "_count")
		if !exported[base] {
			t.Fatalf("recording rules reference unknown series %q", name)
		}
	}
}

func repoRoot(t *testing.T) string {
	t.Helper()
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	return filepath.Clean(filepath.Join(filepath.Dir(filename), ".."))
}
