package benchmark

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/p-arndt/querybench/internal/cache"
	"github.com/p-arndt/querybench/internal/engine"
	"github.com/p-arndt/querybench/internal/generation"
	"github.com/p-arndt/querybench/internal/sandbox"
)

var (
	ErrInvalidModel = errors.New("invalid model")
	ErrEmptyQuery   = errors.New("query is required")
	ErrNoDatabase   = errors.New("no database id given and no default configured")
)

type Options struct {
	DefaultDBID  string
	DefaultModel string
	WebhookURL   string
	PopulateRows int
	Settle       time.Duration // wait before reading statement history
}

type Request struct {
	DBID     string
	Query    string
	Model    string
	UseCache bool
}

// Result is the comparison of one baseline query and its optimized variant.
type Result struct {
	RunID            string              `json:"run_id"`
	Analyze          json.RawMessage     `json:"analyze"`
	OptimizedQueries []string            `json:"optimized_queries"`
	QueryResult      *engine.QueryResult `json:"query_result"`
	OptimizedResult  *engine.QueryResult `json:"optimized_result"`
	ResultsMatch     bool                `json:"results_match"`
	OriginalQuery    string              `json:"original_query"`
	OptimizedQuery   string              `json:"optimized_query"`
	OriginalMetrics  engine.Metrics      `json:"original_metrics"`
	OptimizedMetrics engine.Metrics      `json:"optimized_metrics"`
	AppliedIndexes   []string            `json:"applied_indexes"`
	Population       *engine.BatchReport `json:"population,omitempty"`
}

// AnalysisPayload is sent to the webhook and to the analysis endpoint.
type AnalysisPayload struct {
	OriginalMetrics  engine.Metrics `json:"original_metrics"`
	OptimizedMetrics engine.Metrics `json:"optimized_metrics"`
	OriginalQuery    string         `json:"original_query"`
	OptimizedQuery   string         `json:"optimized_query"`
	AppliedIndexes   []string       `json:"applied_indexes"`
}

type ErrorEnvelope struct {
	Error string `json:"error"`
}

// Outcome holds exactly one of Result or Error.
type Outcome struct {
	Result *Result
	Error  *ErrorEnvelope
}

// Orchestrator runs one benchmark per call, each in its own sandbox.
// It holds no per-run state and is safe for concurrent use.
type Orchestrator struct {
	opts        Options
	schemas     SchemaSource
	gen         Generator
	cache       ArtifactCache
	provisioner Provisioner
	newRunner   func(src engine.Source) Runner
	logger      *slog.Logger
}

func New(opts Options, schemas SchemaSource, gen Generator, c ArtifactCache, prov Provisioner, logger *slog.Logger) *Orchestrator {
	if opts.DefaultModel == "" {
		opts.DefaultModel = "hermes"
	}
	if opts.PopulateRows <= 0 {
		opts.PopulateRows = 50
	}
	o := &Orchestrator{
		opts:        opts,
		schemas:     schemas,
		gen:         gen,
		cache:       c,
		provisioner: prov,
		logger:      logger,
	}
	o.newRunner = func(src engine.Source) Runner {
		return &engineRunner{
			Executor:  engine.NewExecutor(src, logger),
			Collector: engine.NewCollector(src, opts.Settle, logger),
		}
	}
	return o
}

type engineRunner struct {
	*engine.Executor
	*engine.Collector
}

// Orchestrate never returns an error: every failure is reported in the
// outcome's envelope, and the sandbox is always torn down.
func (o *Orchestrator) Orchestrate(ctx context.Context, req Request) Outcome {
	runID := uuid.NewString()
	logger := o.logger.With("run_id", runID)
	start := time.Now()

	res, err := o.run(ctx, runID, req, logger)
	if err != nil {
		logger.Error("benchmark failed", "error", err, "duration_ms", time.Since(start).Milliseconds())
		return Outcome{Error: &ErrorEnvelope{Error: err.Error()}}
	}
	logger.Info("benchmark complete", "duration_ms", time.Since(start).Milliseconds(),
		"results_match", res.ResultsMatch)
	return Outcome{Result: res}
}

func (o *Orchestrator) run(ctx context.Context, runID string, req Request, logger *slog.Logger) (res *Result, err error) {
	model := req.Model
	if model == "" {
		model = o.opts.DefaultModel
	}
	if !generation.ValidModel(model) {
		return nil, fmt.Errorf("%w: %q (expected one of %s)", ErrInvalidModel, model, strings.Join(generation.Models, ", "))
	}
	if strings.TrimSpace(req.Query) == "" {
		return nil, ErrEmptyQuery
	}
	dbID := req.DBID
	if dbID == "" {
		dbID = o.opts.DefaultDBID
	}
	if dbID == "" {
		return nil, ErrNoDatabase
	}

	db, err := o.schemas.Get(ctx, dbID)
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}
	structure := db.Render()

	queries, err := o.gen.Generate(ctx, model, structure, req.Query)
	if err != nil {
		return nil, fmt.Errorf("generate optimizations: %w", err)
	}
	if len(queries) == 0 {
		return nil, errors.New("generate optimizations: no statements returned")
	}
	optimizations, optimized := queries[:len(queries)-1], queries[len(queries)-1]
	logger.Info("optimizations generated", "db_id", dbID, "model", model, "statements", len(optimizations))

	inst := o.provisioner.NewInstance(runID)
	defer o.provisioner.Terminate(ctx, inst)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("benchmark panicked", "panic", r)
			res, err = nil, fmt.Errorf("benchmark panicked: %v", r)
		}
	}()

	if err := o.provisioner.Start(ctx, inst); err != nil {
		return nil, err
	}
	runner := o.newRunner(inst)

	fingerprint := cache.Fingerprint(structure)
	ddl, err := o.cache.GetOrGenerate(ctx, o.cache.Key(cache.NamespaceSchema, dbID, fingerprint),
		func(ctx context.Context) ([]string, error) {
			return o.gen.CreateDatabase(ctx, model, structure)
		}, !req.UseCache)
	if err != nil {
		return nil, fmt.Errorf("generate schema: %w", err)
	}
	if _, err := runner.ExecuteBatch(ctx, ddl, engine.Abort); err != nil {
		return nil, fmt.Errorf("create schema: %w", err)
	}

	population, err := o.cache.GetOrGenerate(ctx, o.cache.Key(cache.NamespacePopulate, dbID, fingerprint),
		func(ctx context.Context) ([]string, error) {
			return o.gen.Populate(ctx, model, db.CreateTables(), o.opts.PopulateRows)
		}, !req.UseCache)
	if err != nil {
		return nil, fmt.Errorf("generate population: %w", err)
	}
	report, err := runner.ExecuteBatch(ctx, population, engine.Continue)
	if err != nil {
		return nil, fmt.Errorf("populate schema: %w", err)
	}
	if len(report.Failures) > 0 {
		logger.Warn("population statements failed", "failed", len(report.Failures), "succeeded", report.Succeeded)
	}

	baseline, baseSnap, err := measure(ctx, runner, req.Query)
	if err != nil {
		return nil, fmt.Errorf("baseline: %w", err)
	}

	if len(optimizations) > 0 {
		applied, err := runner.ExecuteBatch(ctx, optimizations, engine.Continue)
		if err != nil {
			return nil, fmt.Errorf("apply optimizations: %w", err)
		}
		for _, f := range applied.Failures {
			logger.Warn("optimization failed", "index", f.Index, "error", f.Message)
		}
	}

	optimizedResult, optSnap, err := measure(ctx, runner, optimized)
	if err != nil {
		return nil, fmt.Errorf("optimized query: %w", err)
	}

	payload := AnalysisPayload{
		OriginalMetrics:  baseSnap.Metrics,
		OptimizedMetrics: optSnap.Metrics,
		OriginalQuery:    baseSnap.SQL,
		OptimizedQuery:   optSnap.SQL,
		AppliedIndexes:   queries,
	}

	if o.opts.WebhookURL != "" {
		if err := o.gen.PostWebhook(ctx, o.opts.WebhookURL, payload); err != nil {
			logger.Warn("webhook delivery failed", "error", err)
		}
	}

	analysis, err := o.gen.Analyze(ctx, model, payload)
	if err != nil {
		return nil, fmt.Errorf("analyze results: %w", err)
	}

	return &Result{
		RunID:            runID,
		Analyze:          analysis,
		OptimizedQueries: queries,
		QueryResult:      baseline,
		OptimizedResult:  optimizedResult,
		ResultsMatch:     resultsMatch(baseline, optimizedResult),
		OriginalQuery:    payload.OriginalQuery,
		OptimizedQuery:   payload.OptimizedQuery,
		OriginalMetrics:  payload.OriginalMetrics,
		OptimizedMetrics: payload.OptimizedMetrics,
		AppliedIndexes:   queries,
		Population:       report,
	}, nil
}

func measure(ctx context.Context, r Runner, query string) (*engine.QueryResult, *engine.Snapshot, error) {
	result, err := r.ExecuteSingle(ctx, query)
	if err != nil {
		return nil, nil, err
	}
	snap, err := r.Snapshot(ctx, query)
	if err != nil {
		return nil, nil, fmt.Errorf("collect metrics: %w", err)
	}
	return result, snap, nil
}

// resultsMatch compares row counts; the optimized query may legitimately
// reorder rows or columns.
func resultsMatch(a, b *engine.QueryResult) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.NoData == b.NoData && a.RowCount() == b.RowCount()
}

var _ engine.Source = (*sandbox.Instance)(nil)
