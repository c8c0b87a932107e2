package sandbox

import (
	"context"

	"github.com/p-arndt/querybench/internal/docker"
	"github.com/p-arndt/querybench/internal/store"
	"github.com/stretchr/testify/mock"
)

type MockContainerRuntime struct {
	mock.Mock
}

func (m *MockContainerRuntime) CreateEngine(ctx context.Context, opts docker.EngineOpts) (string, error) {
	args := m.Called(ctx, opts)
	return args.String(0), args.Error(1)
}

func (m *MockContainerRuntime) Inspect(ctx context.Context, containerID string) (*docker.NetworkInfo, error) {
	args := m.Called(ctx, containerID)
	if info := args.Get(0); info != nil {
		return info.(*docker.NetworkInfo), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockContainerRuntime) Logs(ctx context.Context, containerID string, tail int) (string, error) {
	args := m.Called(ctx, containerID, tail)
	return args.String(0), args.Error(1)
}

func (m *MockContainerRuntime) StopContainer(ctx context.Context, containerID string, timeoutSeconds int) error {
	args := m.Called(ctx, containerID, timeoutSeconds)
	return args.Error(0)
}

func (m *MockContainerRuntime) RemoveContainer(ctx context.Context, containerID string) error {
	args := m.Called(ctx, containerID)
	return args.Error(0)
}

type MockReservationStore struct {
	mock.Mock
}

func (m *MockReservationStore) CreateReservation(r *store.Reservation) error {
	args := m.Called(r)
	return args.Error(0)
}

func (m *MockReservationStore) GetReservation(runID string) (*store.Reservation, error) {
	args := m.Called(runID)
	if r := args.Get(0); r != nil {
		return r.(*store.Reservation), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockReservationStore) AttachContainer(runID, containerID string, hostPort int) error {
	args := m.Called(runID, containerID, hostPort)
	return args.Error(0)
}

func (m *MockReservationStore) ReleaseReservation(runID string) error {
	args := m.Called(runID)
	return args.Error(0)
}
