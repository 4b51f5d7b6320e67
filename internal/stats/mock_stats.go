package stats

import "github.com/stretchr/testify/mock"

var _ StatsProvider = (*MockStatsUpdater)(nil)

type MockStatsUpdater struct {
	mock.Mock
}

// NewPermissiveMockStatsUpdater accepts any counter update, for tests that
// only assert on a subset of calls.
func NewPermissiveMockStatsUpdater() *MockStatsUpdater {
	m := new(MockStatsUpdater)
	m.On("RegisterMetric", mock.Anything).Return().Maybe()
	m.On("Incr", mock.Anything).Return().Maybe()
	m.On("Decr", mock.Anything).Return().Maybe()
	return m
}

func (m *MockStatsUpdater) Incr(name string) {
	m.Called(name)
}
func (m *MockStatsUpdater) Decr(name string) {
	m.Called(name)
}
func (m *MockStatsUpdater) RegisterMetric(name string) {
	m.Called(name)
}
func (m *MockStatsUpdater) Run() {
	m.Called()
}
