//go:build integration

package sandbox

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-arndt/querybench/internal/docker"
	"github.com/p-arndt/querybench/internal/engine"
	"github.com/p-arndt/querybench/internal/store"
)

// Requires a reachable Docker daemon and the mysql:8.0 image.
func TestSandboxLifecycle(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	dc, err := docker.New()
	require.NoError(t, err)
	defer dc.Close()
	if err := dc.Ping(ctx); err != nil {
		t.Skipf("docker not available: %v", err)
	}

	st, err := store.New(":memory:", 0)
	require.NoError(t, err)
	defer st.Close()

	cfg := testSandboxConfig()
	cfg.WarmupMs = 5000
	cfg.ProbeAttempts = 30
	cfg.ProbeIntervalMs = 2000
	cfg.ProbeDialTimeoutMs = 3000
	cfg.StopTimeoutSeconds = 5

	p := NewProvisioner(cfg, dc, st, testLogger())
	inst := p.NewInstance(uuid.New().String()[:12])
	defer p.Terminate(context.Background(), inst)

	require.NoError(t, p.Start(ctx, inst))
	require.Equal(t, StateReady, inst.State())

	ex := engine.NewExecutor(inst, testLogger())
	report, err := ex.ExecuteBatch(ctx, []string{
		"CREATE TABLE t(id INT)",
		"INSERT INTO t VALUES (1)",
		"SELECT * FROM t",
	}, engine.Abort)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Succeeded)

	res, err := ex.ExecuteSingle(ctx, "SELECT * FROM t")
	require.NoError(t, err)
	assert.Equal(t, 1, res.RowCount())

	col := engine.NewCollector(inst, 500*time.Millisecond, testLogger())
	snap, err := col.Snapshot(ctx, "SELECT * FROM t")
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM t", snap.SQL)
	require.NotNil(t, snap.Metrics.RowsSent)
	assert.Equal(t, int64(1), *snap.Metrics.RowsSent)

	p.Terminate(ctx, inst)
	assert.Equal(t, StateTerminated, inst.State())

	r, err := st.GetReservation(inst.RunID)
	require.NoError(t, err)
	assert.Equal(t, store.ReservationReleased, r.Status)
}
