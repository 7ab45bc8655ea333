package testutil

import (
	"context"
	"time"

	"github.com/poyrazK/accessgate/internal/core/domain"
	"github.com/stretchr/testify/mock"
)

// MockAccessService implements ports.AccessService for handler and CLI tests.
type MockAccessService struct {
	mock.Mock
}

func (m *MockAccessService) Subscribe(ctx context.Context, onChange func([]domain.AccessRecord)) (func(), error) {
	args := m.Called(onChange)
	unsub, _ := args.Get(0).(func())
	return unsub, args.Error(1)
}

func (m *MockAccessService) Approve(ctx context.Context, subjectID string, adminID string) error {
	return m.Called(subjectID, adminID).Error(0)
}

func (m *MockAccessService) Deny(ctx context.Context, subjectID string, adminID string) error {
	return m.Called(subjectID, adminID).Error(0)
}

func (m *MockAccessService) Revoke(ctx context.Context, subjectID string, adminID string) error {
	return m.Called(subjectID, adminID).Error(0)
}

func (m *MockAccessService) Remove(ctx context.Context, subjectID string, adminID string) error {
	return m.Called(subjectID, adminID).Error(0)
}

func (m *MockAccessService) ComputeStats(records []domain.AccessRecord, now time.Time) domain.Stats {
	args := m.Called(records, now)
	return args.Get(0).(domain.Stats)
}

func (m *MockAccessService) Get(ctx context.Context, subjectID string) (*domain.AccessRecord, error) {
	args := m.Called(subjectID)
	rec, _ := args.Get(0).(*domain.AccessRecord)
	return rec, args.Error(1)
}

func (m *MockAccessService) List(ctx context.Context, category domain.Category) ([]domain.AccessRecord, error) {
	args := m.Called(category)
	recs, _ := args.Get(0).([]domain.AccessRecord)
	return recs, args.Error(1)
}

func (m *MockAccessService) Stats(ctx context.Context) (domain.Stats, error) {
	args := m.Called()
	return args.Get(0).(domain.Stats), args.Error(1)
}

func (m *MockAccessService) RequestAccess(ctx context.Context, subjectID string, notes string) (*domain.AccessRecord, error) {
	args := m.Called(subjectID, notes)
	rec, _ := args.Get(0).(*domain.AccessRecord)
	return rec, args.Error(1)
}

func (m *MockAccessService) GrantPaid(ctx context.Context, subjectID string, purchasedAt time.Time, duration time.Duration) (*domain.AccessRecord, error) {
	args := m.Called(subjectID, purchasedAt, duration)
	rec, _ := args.Get(0).(*domain.AccessRecord)
	return rec, args.Error(1)
}

func (m *MockAccessService) ListAuditLogs(ctx context.Context, subjectID string) ([]domain.AuditLog, error) {
	args := m.Called(subjectID)
	logs, _ := args.Get(0).([]domain.AuditLog)
	return logs, args.Error(1)
}

func (m *MockAccessService) HealthCheck(ctx context.Context) map[string]error {
	args := m.Called()
	res, _ := args.Get(0).(map[string]error)
	return res
}
