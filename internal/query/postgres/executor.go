package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/cashplan/cashplan/internal/query"
)

type Executor struct {
	db             *sql.DB
	defaultTimeout time.Duration
}

func NewExecutor(db *sql.DB, defaultTimeout time.Duration) *Executor {
	return &Executor{db: db, defaultTimeout: defaultTimeout}
}

// Execute runs already validated SQL inside a read-only transaction that is
// always rolled back. The SQL is sent unchanged; rows past MaxRows are not read.
func (e *Executor) Execute(ctx context.Context, request query.Request) (query.Result, error) {
	sqlText := stripTrailingSemicolons(request.SQL)
	if sqlText == "" {
		return query.Result{}, query.ErrEmptySQL
	}

	start := time.Now()
	tx, err := e.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return query.Result{}, fmt.Errorf("begin read-only tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	timeout := request.Timeout
	if timeout <= 0 {
		timeout = e.defaultTimeout
	}
	if timeout > 0 {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL statement_timeout = %d", timeout.Milliseconds())); err != nil {
			return query.Result{}, fmt.Errorf("set statement timeout: %w", err)
		}
	}

	rows, err := tx.QueryContext(ctx, sqlText)
	if err != nil {
		return query.Result{}, fmt.Errorf("execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return query.Result{}, fmt.Errorf("query columns: %w", err)
	}

	columns = uniqueColumns(columns)
	result := query.Result{Columns: columns, Rows: make([]map[string]any, 0)}
	for rows.Next() {
		if request.MaxRows > 0 && len(result.Rows) == request.MaxRows {
			result.Truncated = true
			break
		}
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return query.Result{}, fmt.Errorf("scan row: %w", err)
		}
		result.Rows = append(result.Rows, rowMap(columns, values))
	}
	if err := rows.Err(); err != nil {
		return query.Result{}, fmt.Errorf("iterate rows: %w", err)
	}

	result.Duration = time.Since(start)
	return result, nil
}

func rowMap(columns []string, values []any) map[string]any {
	row := make(map[string]any, len(columns))
	for i, column := range columns {
		switch typed := values[i].(type) {
		case []byte:
			row[column] = string(typed)
		default:
			row[column] = typed
		}
	}
	return row
}

// uniqueColumns suffixes repeated result column names ("name", "name_2") so
// that no value is lost when rows become maps.
func uniqueColumns(columns []string) []string {
	out := make([]string, len(columns))
	seen := make(map[string]struct{}, len(columns))
	for i, column := range columns {
		name := column
		for n := 2; ; n++ {
			if _, taken := seen[name]; !taken {
				break
			}
			name = fmt.Sprintf("%s_%d", column, n)
		}
		seen[name] = struct{}{}
		out[i] = name
	}
	return out
}

func stripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}
