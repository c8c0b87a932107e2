package reaper

import (
	"context"
	"log/slog"
	"time"

	"github.com/p-arndt/querybench/internal/store"
)

// Reaper removes sandboxes leaked by runs that crashed before teardown.
type Reaper struct {
	store    ReaperStore
	docker   ReaperDocker
	interval time.Duration
	maxAge   time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

func New(st ReaperStore, dk ReaperDocker, interval, maxAge time.Duration, logger *slog.Logger) *Reaper {
	return &Reaper{
		store:    st,
		docker:   dk,
		interval: interval,
		maxAge:   maxAge,
		now:      time.Now,
		logger:   logger,
	}
}

// Run reaps on every tick until ctx is done. Reconcile must have returned
// before it starts.
func (r *Reaper) Run(ctx context.Context) {
	r.logger.Info("reaper started", "interval", r.interval, "max_age", r.maxAge)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reaper stopped")
			return
		case <-ticker.C:
			r.reapStale(ctx)
		}
	}
}

// reapStale tears down reservations older than maxAge and managed
// containers of the same age that no reservation owns.
func (r *Reaper) reapStale(ctx context.Context) {
	cutoff := r.now().Add(-r.maxAge)

	stale, err := r.store.ListStaleReservations(cutoff)
	if err != nil {
		r.logger.Error("reaper: list stale reservations", "error", err)
		return
	}
	for _, res := range stale {
		r.logger.Info("reaping stale sandbox", "run_id", res.RunID, "created_at", res.CreatedAt)
		r.release(ctx, res)
	}

	removed := r.removeOrphans(ctx, func(created time.Time) bool { return !created.After(cutoff) })

	if len(stale)+removed > 0 {
		r.logger.Info("reaper: reaped sandboxes", "reservations", len(stale), "orphans", removed)
	}
}

// Reconcile must be called before the first benchmark run is accepted:
// every unreleased reservation and every managed container then belongs to
// a dead process.
func (r *Reaper) Reconcile(ctx context.Context) {
	r.logger.Info("reconciliation starting")

	active, err := r.store.ListActiveReservations()
	if err != nil {
		r.logger.Error("reconcile: list active reservations", "error", err)
		return
	}
	for _, res := range active {
		r.logger.Warn("reconcile: releasing leaked sandbox", "run_id", res.RunID, "status", res.Status)
		r.release(ctx, res)
	}

	removed := r.removeOrphans(ctx, func(time.Time) bool { return true })

	r.logger.Info("reconciliation complete", "reservations", len(active), "orphans", removed)
}

func (r *Reaper) release(ctx context.Context, res *store.Reservation) {
	if res.ContainerID != "" {
		if err := r.docker.RemoveContainer(ctx, res.ContainerID); err != nil {
			r.logger.Error("reaper: remove container", "run_id", res.RunID, "container", res.ContainerID, "error", err)
			return
		}
	}
	if err := r.store.ReleaseReservation(res.RunID); err != nil {
		r.logger.Error("reaper: release reservation", "run_id", res.RunID, "error", err)
	}
}

// removeOrphans removes managed containers without an active reservation
// whose creation time passes eligible. It returns the number removed.
func (r *Reaper) removeOrphans(ctx context.Context, eligible func(created time.Time) bool) int {
	containers, err := r.docker.ListManaged(ctx)
	if err != nil {
		r.logger.Error("reaper: list containers", "error", err)
		return 0
	}
	if len(containers) == 0 {
		return 0
	}

	active, err := r.store.ListActiveReservations()
	if err != nil {
		r.logger.Error("reaper: list active reservations", "error", err)
		return 0
	}
	owned := make(map[string]bool, len(active))
	for _, res := range active {
		owned[res.RunID] = true
	}

	removed := 0
	for _, c := range containers {
		if owned[c.RunID] || !eligible(time.Unix(c.Created, 0)) {
			continue
		}
		r.logger.Warn("reaper: removing orphaned container", "run_id", c.RunID, "name", c.Name)
		if err := r.docker.RemoveContainer(ctx, c.ContainerID); err != nil {
			r.logger.Error("reaper: remove orphan", "container", c.ContainerID, "error", err)
			continue
		}
		removed++
	}
	return removed
}
