package testutil

import (
	"context"

	"github.com/poyrazK/accessgate/internal/core/domain"
	"github.com/stretchr/testify/mock"
)

// MockRepo implements ports.AccessRepository for testing.
type MockRepo struct {
	mock.Mock
}

func (m *MockRepo) GetRecord(ctx context.Context, subjectID string) (*domain.AccessRecord, error) {
	args := m.Called(subjectID)
	rec, _ := args.Get(0).(*domain.AccessRecord)
	return rec, args.Error(1)
}

func (m *MockRepo) ListRecords(ctx context.Context) ([]domain.AccessRecord, error) {
	args := m.Called()
	recs, _ := args.Get(0).([]domain.AccessRecord)
	return recs, args.Error(1)
}

func (m *MockRepo) CreateRecord(ctx context.Context, record *domain.AccessRecord) error {
	args := m.Called(record)
	return args.Error(0)
}

func (m *MockRepo) UpdateRecord(ctx context.Context, record *domain.AccessRecord, expectedVersion int64) error {
	args := m.Called(record, expectedVersion)
	return args.Error(0)
}

func (m *MockRepo) DeleteRecord(ctx context.Context, subjectID string) error {
	args := m.Called(subjectID)
	return args.Error(0)
}

func (m *MockRepo) SaveAuditLog(ctx context.Context, log *domain.AuditLog) error {
	args := m.Called(log)
	return args.Error(0)
}

func (m *MockRepo) GetAuditLogs(ctx context.Context, subjectID string) ([]domain.AuditLog, error) {
	args := m.Called(subjectID)
	logs, _ := args.Get(0).([]domain.AuditLog)
	return logs, args.Error(1)
}

func (m *MockRepo) Ping(ctx context.Context) error {
	args := m.Called()
	return args.Error(0)
}
