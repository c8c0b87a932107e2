package api

import (
	"context"

	"github.com/p-arndt/querybench/internal/benchmark"
)

// Optimizer runs one benchmark per request.
type Optimizer interface {
	Orchestrate(ctx context.Context, req benchmark.Request) benchmark.Outcome
}

// Pinger is a dependency checked by the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}
