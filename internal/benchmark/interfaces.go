package benchmark

import (
	"context"
	"encoding/json"

	"github.com/p-arndt/querybench/internal/cache"
	"github.com/p-arndt/querybench/internal/engine"
	"github.com/p-arndt/querybench/internal/sandbox"
	"github.com/p-arndt/querybench/internal/schema"
)

type SchemaSource interface {
	Get(ctx context.Context, dbID string) (*schema.Database, error)
}

type Generator interface {
	Generate(ctx context.Context, model, structure, query string) ([]string, error)
	CreateDatabase(ctx context.Context, model, structure string) ([]string, error)
	Populate(ctx context.Context, model string, creationCommands []string, rows int) ([]string, error)
	Analyze(ctx context.Context, model string, payload any) (json.RawMessage, error)
	PostWebhook(ctx context.Context, target string, payload any) error
}

type ArtifactCache interface {
	Key(namespace, dbID, fingerprint string) string
	GetOrGenerate(ctx context.Context, key string, gen cache.Generator, bypass bool) ([]string, error)
}

type Provisioner interface {
	NewInstance(runID string) *sandbox.Instance
	Start(ctx context.Context, inst *sandbox.Instance) error
	Terminate(ctx context.Context, inst *sandbox.Instance)
}

// Runner executes statements against one ready sandbox and reads their
// metrics.
type Runner interface {
	ExecuteBatch(ctx context.Context, statements []string, policy engine.Policy) (*engine.BatchReport, error)
	ExecuteSingle(ctx context.Context, query string) (*engine.QueryResult, error)
	Snapshot(ctx context.Context, query string) (*engine.Snapshot, error)
}
