package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// collectorTag marks statements issued by the collector so they never match
// their own history lookups.
const collectorTag = "/* querybench:collector */"

// picosPerSecond converts performance_schema timer units.
const picosPerSecond = 1e12

// StatementRow is one row of performance_schema.events_statements_history.
type StatementRow struct {
	SQLText             *string `db:"SQL_TEXT"`
	TimerStart          *uint64 `db:"TIMER_START"`
	TimerWait           *uint64 `db:"TIMER_WAIT"`
	LockTime            *uint64 `db:"LOCK_TIME"`
	CPUTime             *uint64 `db:"CPU_TIME"`
	RowsSent            *int64  `db:"ROWS_SENT"`
	RowsExamined        *int64  `db:"ROWS_EXAMINED"`
	NoIndexUsed         *int64  `db:"NO_INDEX_USED"`
	NoGoodIndexUsed     *int64  `db:"NO_GOOD_INDEX_USED"`
	MaxControlledMemory *int64  `db:"MAX_CONTROLLED_MEMORY"`
	MaxTotalMemory      *int64  `db:"MAX_TOTAL_MEMORY"`
}

// Metrics are the normalized counters of one statement. Nil means the
// engine did not report the value.
type Metrics struct {
	ExecutionTimeSeconds *float64 `json:"execution_time_seconds"`
	TimerStart           *uint64  `json:"timer_start"`
	CPUTime              *float64 `json:"cpu_time"`
	LockTime             *float64 `json:"lock_time"`
	RowsSent             *int64   `json:"rows_sent"`
	RowsExamined         *int64   `json:"rows_examined"`
	MaxMemory            *int64   `json:"max_memory"`
	MaxControlledMemory  *int64   `json:"max_controlled_memory"`
	NoIndexUsed          *bool    `json:"no_index_used"`
	NoGoodIndexUsed      *bool    `json:"no_good_index_used"`
}

// ZeroMetrics is used when no instrumentation row exists.
func ZeroMetrics() Metrics {
	return Metrics{
		ExecutionTimeSeconds: ptr(0.0),
		TimerStart:           ptr(uint64(0)),
		CPUTime:              ptr(0.0),
		LockTime:             ptr(0.0),
		RowsSent:             ptr(int64(0)),
		RowsExamined:         ptr(int64(0)),
		MaxMemory:            ptr(int64(0)),
		MaxControlledMemory:  ptr(int64(0)),
		NoIndexUsed:          ptr(false),
		NoGoodIndexUsed:      ptr(false),
	}
}

func ptr[T any](v T) *T {
	return &v
}

func seconds(picos *uint64) *float64 {
	if picos == nil {
		return nil
	}
	return ptr(float64(*picos) / picosPerSecond)
}

func flag(v *int64) *bool {
	if v == nil {
		return nil
	}
	return ptr(*v != 0)
}

// Normalize converts a raw row. Null fields stay nil; a nil row yields
// ZeroMetrics.
func Normalize(row *StatementRow) Metrics {
	if row == nil {
		return ZeroMetrics()
	}
	return Metrics{
		ExecutionTimeSeconds: seconds(row.TimerWait),
		TimerStart:           row.TimerStart,
		CPUTime:              seconds(row.CPUTime),
		LockTime:             seconds(row.LockTime),
		RowsSent:             row.RowsSent,
		RowsExamined:         row.RowsExamined,
		MaxMemory:            row.MaxTotalMemory,
		MaxControlledMemory:  row.MaxControlledMemory,
		NoIndexUsed:          flag(row.NoIndexUsed),
		NoGoodIndexUsed:      flag(row.NoGoodIndexUsed),
	}
}

// Predicate filters statement-history rows.
type Predicate struct {
	clause string
	args   []any
}

// IsSelect matches statements whose text starts with SELECT.
func IsSelect() Predicate {
	return Predicate{clause: "UPPER(TRIM(SQL_TEXT)) LIKE 'SELECT%'"}
}

// After matches statements that started after the given timer value.
func After(timerStart uint64) Predicate {
	return Predicate{clause: "TIMER_START > ?", args: []any{timerStart}}
}

// All matches rows satisfying every predicate.
func All(preds ...Predicate) Predicate {
	var out Predicate
	var clauses []string
	for _, p := range preds {
		if p.clause == "" {
			continue
		}
		clauses = append(clauses, "("+p.clause+")")
		out.args = append(out.args, p.args...)
	}
	out.clause = strings.Join(clauses, " AND ")
	return out
}

func historyQuery(caps Capabilities, p Predicate) (string, []any) {
	cols := []string{
		"SQL_TEXT", "TIMER_START", "TIMER_WAIT", "LOCK_TIME",
		"ROWS_SENT", "ROWS_EXAMINED", "NO_INDEX_USED", "NO_GOOD_INDEX_USED",
	}
	if caps.CPUTime {
		cols = append(cols, "CPU_TIME")
	} else {
		cols = append(cols, "NULL AS CPU_TIME")
	}
	if caps.Memory {
		cols = append(cols, "MAX_CONTROLLED_MEMORY", "MAX_TOTAL_MEMORY")
	} else {
		cols = append(cols, "NULL AS MAX_CONTROLLED_MEMORY", "NULL AS MAX_TOTAL_MEMORY")
	}

	where := "SQL_TEXT IS NOT NULL AND SQL_TEXT NOT LIKE '%querybench:collector%'"
	if p.clause != "" {
		where += " AND " + p.clause
	}

	q := collectorTag + " SELECT " + strings.Join(cols, ", ") +
		" FROM performance_schema.events_statements_history" +
		" WHERE " + where +
		" ORDER BY TIMER_START DESC LIMIT 1"
	return q, p.args
}

// Snapshot is the metrics of one executed query and the text the engine
// recorded for it.
type Snapshot struct {
	Metrics Metrics `json:"metrics"`
	SQL     string  `json:"sql"`
}

// Collector reads statement instrumentation from a sandbox. It keeps a cursor
// so consecutive snapshots never report the same statement twice.
type Collector struct {
	src    Source
	settle time.Duration
	sleep  func(context.Context, time.Duration) error
	logger *slog.Logger

	caps   *Capabilities
	cursor *uint64
}

func NewCollector(src Source, settle time.Duration, logger *slog.Logger) *Collector {
	return &Collector{
		src:    src,
		settle: settle,
		sleep:  settleWait,
		logger: logger,
	}
}

func settleWait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (c *Collector) capabilities(ctx context.Context) Capabilities {
	if c.caps != nil {
		return *c.caps
	}
	db, err := c.src.DB()
	if err != nil {
		return Capabilities{}
	}
	caps, err := DetectCapabilities(ctx, db)
	if err != nil {
		c.logger.Warn("server version unknown, optional metrics disabled", "error", err)
	} else {
		c.logger.Debug("server capabilities", "version", caps.Version.String(),
			"cpu_time", caps.CPUTime, "memory", caps.Memory)
	}
	c.caps = &caps
	return caps
}

// LatestStatement returns the most recent history row matching p, or nil
// when there is none.
func (c *Collector) LatestStatement(ctx context.Context, p Predicate) (*StatementRow, error) {
	caps := c.capabilities(ctx)
	db, err := c.src.DB()
	if err != nil {
		return nil, err
	}

	q, args := historyQuery(caps, p)
	var row StatementRow
	if err := db.GetContext(ctx, &row, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading statement history: %w", err)
	}
	return &row, nil
}

// Snapshot waits for the history to settle, then reads the latest SELECT
// issued after the previous snapshot. query is reported when the engine
// recorded no text.
func (c *Collector) Snapshot(ctx context.Context, query string) (*Snapshot, error) {
	if c.settle > 0 {
		if err := c.sleep(ctx, c.settle); err != nil {
			return nil, fmt.Errorf("waiting for statement history: %w", err)
		}
	}

	pred := IsSelect()
	if c.cursor != nil {
		pred = All(pred, After(*c.cursor))
	}

	row, err := c.LatestStatement(ctx, pred)
	if err != nil {
		return nil, err
	}
	if row == nil {
		c.logger.Warn("no statement history row, reporting zero metrics")
		return &Snapshot{Metrics: ZeroMetrics(), SQL: query}, nil
	}

	if row.TimerStart != nil {
		c.cursor = row.TimerStart
	}
	snap := &Snapshot{Metrics: Normalize(row), SQL: query}
	if row.SQLText != nil && *row.SQLText != "" {
		snap.SQL = *row.SQLText
	}
	return snap, nil
}
