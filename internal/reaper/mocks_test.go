package reaper

import (
	"context"
	"time"

	"github.com/p-arndt/querybench/internal/docker"
	"github.com/p-arndt/querybench/internal/store"
	"github.com/stretchr/testify/mock"
)

// MockReaperStore mocks the ReaperStore interface.
type MockReaperStore struct {
	mock.Mock
}

func (m *MockReaperStore) ListStaleReservations(cutoff time.Time) ([]*store.Reservation, error) {
	args := m.Called(cutoff)
	if res := args.Get(0); res != nil {
		return res.([]*store.Reservation), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockReaperStore) ListActiveReservations() ([]*store.Reservation, error) {
	args := m.Called()
	if res := args.Get(0); res != nil {
		return res.([]*store.Reservation), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockReaperStore) ReleaseReservation(runID string) error {
	args := m.Called(runID)
	return args.Error(0)
}

// MockReaperDocker mocks the ReaperDocker interface.
type MockReaperDocker struct {
	mock.Mock
}

func (m *MockReaperDocker) RemoveContainer(ctx context.Context, containerID string) error {
	args := m.Called(ctx, containerID)
	return args.Error(0)
}

func (m *MockReaperDocker) ListManaged(ctx context.Context) ([]docker.ContainerInfo, error) {
	args := m.Called(ctx)
	if containers := args.Get(0); containers != nil {
		return containers.([]docker.ContainerInfo), args.Error(1)
	}
	return nil, args.Error(1)
}
