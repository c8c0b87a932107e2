package reaper

import (
	"context"
	"time"

	"github.com/p-arndt/querybench/internal/docker"
	"github.com/p-arndt/querybench/internal/store"
)

// ReaperStore abstracts store operations needed by the reaper.
type ReaperStore interface {
	ListStaleReservations(cutoff time.Time) ([]*store.Reservation, error)
	ListActiveReservations() ([]*store.Reservation, error)
	ReleaseReservation(runID string) error
}

// ReaperDocker abstracts docker operations needed by the reaper.
type ReaperDocker interface {
	RemoveContainer(ctx context.Context, containerID string) error
	ListManaged(ctx context.Context) ([]docker.ContainerInfo, error)
}
