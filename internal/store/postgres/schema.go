package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/cashplan/cashplan/internal/store"
)

type schemaColumn struct {
	table    string
	column   string
	dataType string
}

// DescribeSchema renders the user-owned tables as
// "Table <name>: col1 (type1), col2 (type2)" lines for prompt context.
func (r *Repository) DescribeSchema(ctx context.Context) (string, error) {
	rows, err := r.db.QueryContext(ctx, describeSchemaQuery())
	if err != nil {
		return "", fmt.Errorf("describe schema: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns := make([]schemaColumn, 0, 64)
	for rows.Next() {
		var column schemaColumn
		if err := rows.Scan(&column.table, &column.column, &column.dataType); err != nil {
			return "", fmt.Errorf("scan schema row: %w", err)
		}
		columns = append(columns, column)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("iterate schema rows: %w", err)
	}
	if len(columns) == 0 {
		return "", fmt.Errorf("describe schema: no tables found")
	}
	return renderSchema(columns), nil
}

func describeSchemaQuery() string {
	quoted := make([]string, 0, len(store.OwnedTables))
	for _, table := range store.OwnedTables {
		quoted = append(quoted, "'"+table+"'")
	}
	return `
SELECT table_name, column_name, data_type
FROM information_schema.columns
WHERE table_schema = current_schema() AND table_name IN (` + strings.Join(quoted, ", ") + `)
ORDER BY table_name ASC, ordinal_position ASC`
}

func renderSchema(columns []schemaColumn) string {
	var (
		lines   []string
		current string
		parts   []string
	)
	flush := func() {
		if current == "" {
			return
		}
		lines = append(lines, fmt.Sprintf("Table %s: %s", current, strings.Join(parts, ", ")))
	}
	for _, column := range columns {
		if column.table != current {
			flush()
			current = column.table
			parts = parts[:0]
		}
		parts = append(parts, fmt.Sprintf("%s (%s)", column.column, column.dataType))
	}
	flush()
	return strings.Join(lines, "\n")
}
