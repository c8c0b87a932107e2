package sandbox

import (
	"context"

	"github.com/p-arndt/querybench/internal/docker"
	"github.com/p-arndt/querybench/internal/store"
)

type ContainerRuntime interface {
	CreateEngine(ctx context.Context, opts docker.EngineOpts) (string, error)
	Inspect(ctx context.Context, containerID string) (*docker.NetworkInfo, error)
	Logs(ctx context.Context, containerID string, tail int) (string, error)
	StopContainer(ctx context.Context, containerID string, timeoutSeconds int) error
	RemoveContainer(ctx context.Context, containerID string) error
}

type ReservationStore interface {
	CreateReservation(r *store.Reservation) error
	GetReservation(runID string) (*store.Reservation, error)
	AttachContainer(runID, containerID string, hostPort int) error
	ReleaseReservation(runID string) error
}
