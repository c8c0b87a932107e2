package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jmoiron/sqlx"
)

// Source hands out the sandbox connection. Implementations refuse when the
// sandbox is not ready.
type Source interface {
	DB() (*sqlx.DB, error)
}

// Policy decides what a batch does after a statement fails.
type Policy int

const (
	// Abort rolls back and stops at the first failing statement.
	Abort Policy = iota
	// Continue records the failure and moves on to the next statement.
	Continue
)

func (p Policy) String() string {
	if p == Continue {
		return "continue"
	}
	return "abort"
}

// StatementError carries the failing SQL text and the engine's message.
type StatementError struct {
	Index   int    `json:"index"`
	SQL     string `json:"sql"`
	Message string `json:"message"`
	err     error
}

func (e *StatementError) Error() string {
	return fmt.Sprintf("statement %d failed: %s: %s", e.Index, e.Message, abbreviate(e.SQL, 200))
}

func (e *StatementError) Unwrap() error {
	return e.err
}

func newStatementError(index int, sql string, err error) *StatementError {
	return &StatementError{Index: index, SQL: sql, Message: err.Error(), err: err}
}

// BatchReport summarises one ExecuteBatch call.
type BatchReport struct {
	Attempted int               `json:"attempted"`
	Succeeded int               `json:"succeeded"`
	Skipped   int               `json:"skipped"`
	Failures  []*StatementError `json:"failures,omitempty"`
}

// QueryResult holds the rows of a single query. NoData is set for statements
// that produce no result set.
type QueryResult struct {
	Columns []string `json:"columns,omitempty"`
	Rows    [][]any  `json:"rows,omitempty"`
	NoData  bool     `json:"no_data,omitempty"`
}

func (r *QueryResult) RowCount() int {
	if r == nil {
		return 0
	}
	return len(r.Rows)
}

type Executor struct {
	src    Source
	logger *slog.Logger
}

func NewExecutor(src Source, logger *slog.Logger) *Executor {
	return &Executor{src: src, logger: logger}
}

// ExecuteBatch runs statements in order inside one transaction and commits
// once at the end. Blank statements are skipped. Under Abort the first
// failure rolls back and is returned as *StatementError.
func (e *Executor) ExecuteBatch(ctx context.Context, statements []string, policy Policy) (*BatchReport, error) {
	db, err := e.src.DB()
	if err != nil {
		return nil, err
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin batch: %w", err)
	}

	report := &BatchReport{}
	for i, stmt := range statements {
		if strings.TrimSpace(stmt) == "" {
			report.Skipped++
			continue
		}

		report.Attempted++
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			serr := newStatementError(i, stmt, err)
			if policy == Abort {
				if rbErr := tx.Rollback(); rbErr != nil {
					e.logger.Warn("rollback failed", "error", rbErr)
				}
				return report, serr
			}
			e.logger.Warn("statement failed, continuing", "index", i, "error", err)
			report.Failures = append(report.Failures, serr)
			continue
		}
		report.Succeeded++
	}

	if err := tx.Commit(); err != nil {
		return report, fmt.Errorf("commit batch: %w", err)
	}

	e.logger.Info("batch executed",
		"policy", policy.String(),
		"attempted", report.Attempted,
		"succeeded", report.Succeeded,
		"failed", len(report.Failures))
	return report, nil
}

// ExecuteSingle runs one query and returns its rows.
func (e *Executor) ExecuteSingle(ctx context.Context, query string) (*QueryResult, error) {
	db, err := e.src.DB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryxContext(ctx, query)
	if err != nil {
		return nil, newStatementError(0, query, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, newStatementError(0, query, err)
	}
	if len(cols) == 0 {
		return &QueryResult{NoData: true}, nil
	}

	result := &QueryResult{Columns: cols, Rows: [][]any{}}
	for rows.Next() {
		vals, err := rows.SliceScan()
		if err != nil {
			return nil, newStatementError(0, query, err)
		}
		for i, v := range vals {
			// The text protocol returns most values as raw bytes.
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		result.Rows = append(result.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, newStatementError(0, query, err)
	}
	return result, nil
}

func abbreviate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
