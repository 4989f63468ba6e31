package sqlguard

import (
	"regexp"
	"strings"
)

// Verdict is the outcome of validating generated SQL text. SQL holds the
// cleaned text in its original casing and is only meaningful when OK is true.
type Verdict struct {
	Raw    string
	SQL    string
	OK     bool
	Reason string
}

var deniedKeywords = []string{
	"DROP",
	"DELETE",
	"TRUNCATE",
	"ALTER",
	"CREATE",
	"GRANT",
	"REVOKE",
	"EXEC",
	"EXECUTE",
	"UPDATE",
}

var deniedMarkers = []string{";--", "XP_"}

var (
	deniedKeywordPatterns = compileKeywordPatterns(deniedKeywords)
	fencePattern          = regexp.MustCompile("(?i)```(sql)?")
	leadingSelectPattern  = regexp.MustCompile(`^SELECT\b`)
)

func compileKeywordPatterns(keywords []string) []*regexp.Regexp {
	patterns := make([]*regexp.Regexp, 0, len(keywords))
	for _, keyword := range keywords {
		patterns = append(patterns, regexp.MustCompile(`\b`+keyword+`\b`))
	}
	return patterns
}

// Validate cleans model output and applies the read-only text rules. It is
// idempotent: validating an accepted verdict's SQL yields the same SQL.
func Validate(raw string) Verdict {
	verdict := Verdict{Raw: raw}

	if strings.Contains(strings.ToUpper(raw), ";--") {
		verdict.Reason = "forbidden marker: ;--"
		return verdict
	}

	cleaned := Clean(raw)
	if cleaned == "" {
		verdict.Reason = "empty query"
		return verdict
	}

	upper := strings.ToUpper(cleaned)
	for i, pattern := range deniedKeywordPatterns {
		if pattern.MatchString(upper) {
			verdict.Reason = "forbidden keyword: " + deniedKeywords[i]
			return verdict
		}
	}
	for _, marker := range deniedMarkers {
		if strings.Contains(upper, marker) {
			verdict.Reason = "forbidden marker: " + marker
			return verdict
		}
	}
	if !leadingSelectPattern.MatchString(upper) {
		verdict.Reason = "only SELECT statements are allowed"
		return verdict
	}

	verdict.SQL = cleaned
	verdict.OK = true
	return verdict
}

// Clean removes code fences and single-line comments and trims whitespace.
func Clean(raw string) string {
	text := raw
	for fencePattern.MatchString(text) {
		text = fencePattern.ReplaceAllString(text, "")
	}
	lines := strings.Split(text, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimRight(stripLineComment(line), " \t\r")
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

// stripLineComment cuts the line at the first "--" outside a quoted literal.
func stripLineComment(line string) string {
	var quote byte
	for i := 0; i < len(line); i++ {
		ch := line[i]
		switch {
		case quote != 0:
			if ch == quote {
				quote = 0
			}
		case ch == '\'' || ch == '"':
			quote = ch
		case ch == '-' && i+1 < len(line) && line[i+1] == '-':
			return line[:i]
		}
	}
	return line
}
