package repository

import (
	"context"
	"sync"

	"github.com/poyrazK/accessgate/internal/core/domain"
	"github.com/poyrazK/accessgate/internal/core/engine"
)

// MemoryRepository implements ports.AccessRepository in process memory.
// Used for development runs and service tests.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[string]domain.AccessRecord
	logs    []domain.AuditLog
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[string]domain.AccessRecord)}
}

func (m *MemoryRepository) GetRecord(_ context.Context, subjectID string) (*domain.AccessRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[subjectID]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}
	c := cloneRecord(rec)
	return &c, nil
}

func (m *MemoryRepository) ListRecords(_ context.Context) ([]domain.AccessRecord, error) {
	m.mu.RLock()
	out := make([]domain.AccessRecord, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, cloneRecord(rec))
	}
	m.mu.RUnlock()

	engine.SortByRequestedDesc(out)
	return out, nil
}

func (m *MemoryRepository) CreateRecord(_ context.Context, record *domain.AccessRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.records[record.SubjectID]; exists {
		return domain.ErrAlreadyExists
	}
	m.records[record.SubjectID] = cloneRecord(*record)
	return nil
}

func (m *MemoryRepository) UpdateRecord(_ context.Context, record *domain.AccessRecord, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.records[record.SubjectID]
	if !ok {
		return domain.ErrRecordNotFound
	}
	if current.Version != expectedVersion {
		return domain.ErrConcurrentModification
	}
	m.records[record.SubjectID] = cloneRecord(*record)
	return nil
}

func (m *MemoryRepository) DeleteRecord(_ context.Context, subjectID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[subjectID]; !ok {
		return domain.ErrRecordNotFound
	}
	delete(m.records, subjectID)
	return nil
}

func (m *MemoryRepository) SaveAuditLog(_ context.Context, log *domain.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, *log)
	return nil
}

// GetAuditLogs returns entries for subjectID, newest first.
func (m *MemoryRepository) GetAuditLogs(_ context.Context, subjectID string) ([]domain.AuditLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.AuditLog
	for i := len(m.logs) - 1; i >= 0; i-- {
		if m.logs[i].SubjectID == subjectID {
			out = append(out, m.logs[i])
		}
	}
	return out, nil
}

func (m *MemoryRepository) Ping(_ context.Context) error { return nil }

// Put stores a record as-is, bypassing create/update checks. Seeds fixtures
// and simulates writes by external processes.
func (m *MemoryRepository) Put(record domain.AccessRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[record.SubjectID] = cloneRecord(record)
}

func cloneRecord(r domain.AccessRecord) domain.AccessRecord {
	c := r
	c.ApprovedAt = cloneTime(r.ApprovedAt)
	c.DeniedAt = cloneTime(r.DeniedAt)
	c.RevokedAt = cloneTime(r.RevokedAt)
	c.ExpiryDate = cloneTime(r.ExpiryDate)
	c.PurchasedAt = cloneTime(r.PurchasedAt)
	c.ApprovedBy = cloneString(r.ApprovedBy)
	c.DeniedBy = cloneString(r.DeniedBy)
	c.RevokedBy = cloneString(r.RevokedBy)
	return c
}
