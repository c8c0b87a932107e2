package testutil

import (
	"testing"
	"time"

	"github.com/p-arndt/querybench/internal/config"
	"github.com/p-arndt/querybench/internal/store"
)

// TestConfig returns a Config with sensible test defaults.
func TestConfig() *config.Config {
	return &config.Config{
		Listen:      "127.0.0.1:0",
		DBPath:      ":memory:",
		DefaultDBID: "65f1c0ffee0123456789abcd",
		Sandbox: config.SandboxConfig{
			Image:              "mysql:8.0",
			RootPassword:       "test-root",
			Database:           "testdb",
			MemLimit:           "512m",
			ProbeAttempts:      3,
			ProbeIntervalMs:    1,
			ProbeDialTimeoutMs: 100,
			PortRetries:        2,
			LogTail:            10,
			StopTimeoutSeconds: 1,
		},
		Generation: config.GenerationConfig{
			TimeoutSeconds: 5,
			DefaultModel:   "hermes",
			PopulateRows:   50,
		},
		Cache: config.CacheConfig{Enabled: true},
	}
}

func TestReservation(runID string) *store.Reservation {
	now := time.Now().UTC()
	return &store.Reservation{
		RunID:        runID,
		InstanceName: "querybench-" + runID,
		Status:       store.ReservationReserved,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// NewTestStore creates an in-memory SQLite store for testing.
func NewTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.New(":memory:", 0)
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}
