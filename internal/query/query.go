package query

import (
	"context"
	"errors"
	"time"
)

var ErrEmptySQL = errors.New("query: sql is required")

type Request struct {
	SQL     string
	MaxRows int
	Timeout time.Duration
}

// Result carries rows as column name to value mappings. Columns keeps the
// order the store reported.
type Result struct {
	Columns   []string
	Rows      []map[string]any
	Truncated bool
	Duration  time.Duration
}

type Executor interface {
	Execute(ctx context.Context, request Request) (Result, error)
}
