package api

import (
	"context"

	"github.com/p-arndt/querybench/internal/benchmark"
	"github.com/stretchr/testify/mock"
)

type MockOptimizer struct {
	mock.Mock
}

func (m *MockOptimizer) Orchestrate(ctx context.Context, req benchmark.Request) benchmark.Outcome {
	args := m.Called(ctx, req)
	return args.Get(0).(benchmark.Outcome)
}

type MockPinger struct {
	mock.Mock
}

func (m *MockPinger) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
