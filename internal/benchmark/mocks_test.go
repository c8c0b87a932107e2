package benchmark

import (
	"context"
	"encoding/json"

	"github.com/stretchr/testify/mock"

	"github.com/p-arndt/querybench/internal/engine"
	"github.com/p-arndt/querybench/internal/sandbox"
	"github.com/p-arndt/querybench/internal/schema"
)

type MockSchemaSource struct {
	mock.Mock
}

func (m *MockSchemaSource) Get(ctx context.Context, dbID string) (*schema.Database, error) {
	args := m.Called(ctx, dbID)
	if db := args.Get(0); db != nil {
		return db.(*schema.Database), args.Error(1)
	}
	return nil, args.Error(1)
}

type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) Generate(ctx context.Context, model, structure, query string) ([]string, error) {
	args := m.Called(ctx, model, structure, query)
	if v := args.Get(0); v != nil {
		return v.([]string), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockGenerator) CreateDatabase(ctx context.Context, model, structure string) ([]string, error) {
	args := m.Called(ctx, model, structure)
	if v := args.Get(0); v != nil {
		return v.([]string), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockGenerator) Populate(ctx context.Context, model string, creationCommands []string, rows int) ([]string, error) {
	args := m.Called(ctx, model, creationCommands, rows)
	if v := args.Get(0); v != nil {
		return v.([]string), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockGenerator) Analyze(ctx context.Context, model string, payload any) (json.RawMessage, error) {
	args := m.Called(ctx, model, payload)
	if v := args.Get(0); v != nil {
		return v.(json.RawMessage), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockGenerator) PostWebhook(ctx context.Context, target string, payload any) error {
	args := m.Called(ctx, target, payload)
	return args.Error(0)
}

type MockProvisioner struct {
	mock.Mock
}

func (m *MockProvisioner) NewInstance(runID string) *sandbox.Instance {
	m.Called(runID)
	return &sandbox.Instance{RunID: runID, Name: "querybench-" + runID}
}

func (m *MockProvisioner) Start(ctx context.Context, inst *sandbox.Instance) error {
	args := m.Called(ctx, inst)
	return args.Error(0)
}

func (m *MockProvisioner) Terminate(ctx context.Context, inst *sandbox.Instance) {
	m.Called(ctx, inst)
}

type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) ExecuteBatch(ctx context.Context, statements []string, policy engine.Policy) (*engine.BatchReport, error) {
	args := m.Called(ctx, statements, policy)
	if v := args.Get(0); v != nil {
		return v.(*engine.BatchReport), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRunner) ExecuteSingle(ctx context.Context, query string) (*engine.QueryResult, error) {
	args := m.Called(ctx, query)
	if v := args.Get(0); v != nil {
		return v.(*engine.QueryResult), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRunner) Snapshot(ctx context.Context, query string) (*engine.Snapshot, error) {
	args := m.Called(ctx, query)
	if v := args.Get(0); v != nil {
		return v.(*engine.Snapshot), args.Error(1)
	}
	return nil, args.Error(1)
}
