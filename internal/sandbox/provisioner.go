package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/p-arndt/querybench/internal/config"
	"github.com/p-arndt/querybench/internal/docker"
	"github.com/p-arndt/querybench/internal/store"
)

const rootUser = "root"

// Provisioner creates and destroys sandbox instances.
type Provisioner struct {
	cfg        config.SandboxConfig
	runtime    ContainerRuntime
	store      ReservationStore
	probe      *Probe
	strategies []Strategy
	pickPort   func() (int, error)
	sleep      func(ctx context.Context, d time.Duration) error
	logger     *slog.Logger
}

func NewProvisioner(cfg config.SandboxConfig, rt ContainerRuntime, st ReservationStore, logger *slog.Logger) *Provisioner {
	dial := time.Duration(cfg.ProbeDialTimeoutMs) * time.Millisecond
	p := &Provisioner{
		cfg:        cfg,
		runtime:    rt,
		store:      st,
		strategies: DefaultStrategies,
		pickPort:   freePort,
		sleep:      sleepCtx,
		logger:     logger,
	}
	p.probe = NewProbe(
		MySQLOpener(rootUser, cfg.RootPassword, cfg.Database, dial),
		time.Duration(cfg.ProbeIntervalMs)*time.Millisecond,
		logger,
	)
	if cfg.ProbeBackoffMs > 0 {
		p.probe.SetBackoff(time.Duration(cfg.ProbeBackoffMs) * time.Millisecond)
	}
	p.probe.diagnose = p.dumpDiagnostics
	return p
}

// freePort asks the OS for an unused TCP port on localhost.
func freePort() (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	if err != nil {
		return 0, err
	}
	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// NewInstance returns an instance in the Created state for runID.
func (p *Provisioner) NewInstance(runID string) *Instance {
	return &Instance{
		RunID:        runID,
		Name:         "querybench-" + runID,
		RootPassword: p.cfg.RootPassword,
		Database:     p.cfg.Database,
		state:        StateCreated,
	}
}

// Start launches the engine container and blocks until it answers queries.
// On failure the instance is left Failed; Terminate still has to be called.
func (p *Provisioner) Start(ctx context.Context, inst *Instance) error {
	if st := inst.State(); st != StateCreated {
		return fmt.Errorf("%w: instance %s is %s", ErrProvisioning, inst.Name, st)
	}

	if err := p.reserve(ctx, inst); err != nil {
		return p.fail(inst, err)
	}

	containerID, hostPort, err := p.launch(ctx, inst)
	if err != nil {
		return p.fail(inst, err)
	}
	inst.setLaunched(containerID, hostPort)
	p.logger.Info("sandbox launched", "run_id", inst.RunID, "instance", inst.Name,
		"container_id", shortID(containerID), "host_port", hostPort)

	if err := p.store.AttachContainer(inst.RunID, containerID, hostPort); err != nil {
		p.logger.Warn("reservation update failed", "run_id", inst.RunID, "error", err)
	}

	// MySQL initialises its data directory before listening.
	if err := p.sleep(ctx, time.Duration(p.cfg.WarmupMs)*time.Millisecond); err != nil {
		return p.fail(inst, err)
	}

	candidates := p.candidates(ctx, containerID, hostPort)
	ep, db, err := p.probe.FindReadyEndpoint(ctx, inst, candidates, p.cfg.ProbeAttempts)
	if err != nil {
		return p.fail(inst, err)
	}

	inst.setReady(ep, candidates, db)
	p.logger.Info("sandbox ready", "run_id", inst.RunID, "instance", inst.Name, "endpoint", ep.Addr())
	return nil
}

func (p *Provisioner) fail(inst *Instance, err error) error {
	inst.setState(StateFailed)
	p.logger.Error("sandbox start failed", "run_id", inst.RunID, "instance", inst.Name, "error", err)
	return fmt.Errorf("%w: %w", ErrProvisioning, err)
}

// reserve records the run in the reservation table. A container left over
// from an earlier attempt with the same run id is removed first.
func (p *Provisioner) reserve(ctx context.Context, inst *Instance) error {
	existing, err := p.store.GetReservation(inst.RunID)
	if err != nil {
		return fmt.Errorf("lookup reservation: %w", err)
	}
	if existing != nil {
		if existing.ContainerID != "" {
			p.logger.Warn("removing container from previous reservation",
				"run_id", inst.RunID, "container_id", shortID(existing.ContainerID))
			if err := p.runtime.RemoveContainer(ctx, existing.ContainerID); err != nil {
				return fmt.Errorf("remove previous container: %w", err)
			}
		}
		inst.reserved = true
		return nil
	}

	err = p.store.CreateReservation(&store.Reservation{
		RunID:        inst.RunID,
		InstanceName: inst.Name,
	})
	if err != nil {
		return fmt.Errorf("create reservation: %w", err)
	}
	inst.reserved = true
	return nil
}

// launch creates the container, picking a new host port whenever the daemon
// reports the previous one as taken.
func (p *Provisioner) launch(ctx context.Context, inst *Instance) (string, int, error) {
	attempts := p.cfg.PortRetries + 1
	var lastErr error
	for try := 1; try <= attempts; try++ {
		port, err := p.pickPort()
		if err != nil {
			return "", 0, fmt.Errorf("pick host port: %w", err)
		}

		id, err := p.runtime.CreateEngine(ctx, docker.EngineOpts{
			RunID:        inst.RunID,
			Name:         inst.Name,
			Image:        p.cfg.Image,
			RootPassword: inst.RootPassword,
			Database:     inst.Database,
			HostPort:     port,
			MemLimit:     p.cfg.MemLimit,
		})
		if err == nil {
			return id, port, nil
		}
		if !errors.Is(err, docker.ErrPortConflict) {
			return "", 0, fmt.Errorf("launch engine: %w", err)
		}
		lastErr = err
		p.logger.Warn("host port taken, retrying", "run_id", inst.RunID, "port", port, "try", try)
	}
	return "", 0, fmt.Errorf("launch engine after %d ports: %w", attempts, lastErr)
}

func (p *Provisioner) candidates(ctx context.Context, containerID string, hostPort int) []Endpoint {
	info, err := p.runtime.Inspect(ctx, containerID)
	if err != nil {
		p.logger.Warn("inspect failed, probing mapped port only", "container_id", shortID(containerID), "error", err)
		info = &docker.NetworkInfo{}
	}
	if info.HostPort == 0 {
		info.HostPort = hostPort
	}
	return Candidates(info, p.strategies)
}

func (p *Provisioner) dumpDiagnostics(ctx context.Context, inst *Instance) {
	id := inst.ContainerID()
	if id == "" {
		return
	}

	logs, err := p.runtime.Logs(ctx, id, p.cfg.LogTail)
	if err != nil {
		logs = "unavailable: " + err.Error()
	}

	running, status, ports := false, "unknown", "unknown"
	if info, err := p.runtime.Inspect(ctx, id); err == nil {
		running, status, ports = info.Running, info.Status, info.Ports
	}

	p.logger.Error("sandbox unreachable",
		"run_id", inst.RunID,
		"instance", inst.Name,
		"container_id", shortID(id),
		"running", running,
		"status", status,
		"ports", ports,
		"logs", logs,
	)
}

// Terminate releases everything the instance holds. It is safe to call more
// than once and on instances that never started. Cleanup failures are logged.
func (p *Provisioner) Terminate(ctx context.Context, inst *Instance) {
	if inst == nil {
		return
	}

	inst.mu.Lock()
	if inst.state == StateTerminated {
		inst.mu.Unlock()
		return
	}
	db := inst.db
	containerID := inst.containerID
	reserved := inst.reserved
	inst.db = nil
	inst.state = StateTerminated
	inst.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("panic during sandbox teardown", "run_id", inst.RunID, "panic", r)
		}
	}()

	if db != nil {
		if err := db.Close(); err != nil {
			p.logger.Warn("closing sandbox connection", "run_id", inst.RunID, "error", err)
		}
	}

	// Teardown must finish even when the run's context was cancelled.
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx),
		time.Duration(p.cfg.StopTimeoutSeconds+30)*time.Second)
	defer cancel()

	if containerID != "" {
		if err := p.runtime.StopContainer(cctx, containerID, p.cfg.StopTimeoutSeconds); err != nil {
			p.logger.Warn("stopping sandbox", "run_id", inst.RunID, "container_id", shortID(containerID), "error", err)
		}
		if err := p.runtime.RemoveContainer(cctx, containerID); err != nil {
			// The reservation stays active so the reaper retries this container.
			p.logger.Warn("removing sandbox, leaving reservation for the reaper",
				"run_id", inst.RunID, "container_id", shortID(containerID), "error", err)
			reserved = false
		}
	}

	if reserved {
		if err := p.store.ReleaseReservation(inst.RunID); err != nil {
			p.logger.Warn("releasing reservation", "run_id", inst.RunID, "error", err)
		}
	}

	p.logger.Info("sandbox terminated", "run_id", inst.RunID, "instance", inst.Name)
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
