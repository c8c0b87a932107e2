package cache

import (
	"github.com/stretchr/testify/mock"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) GetCacheEntry(key string) (string, bool, error) {
	args := m.Called(key)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *MockStore) PutCacheEntry(key, value string) error {
	args := m.Called(key, value)
	return args.Error(0)
}
