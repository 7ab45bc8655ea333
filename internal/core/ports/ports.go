package ports

import (
	"context"
	"time"

	"github.com/poyrazK/accessgate/internal/core/domain"
)

// AccessRepository is the Entitlement Store, keyed by subject id.
type AccessRepository interface {
	GetRecord(ctx context.Context, subjectID string) (*domain.AccessRecord, error)
	// ListRecords returns every record ordered by requestedAt descending.
	ListRecords(ctx context.Context) ([]domain.AccessRecord, error)
	CreateRecord(ctx context.Context, record *domain.AccessRecord) error
	// UpdateRecord writes record only if the stored version still equals expectedVersion.
	UpdateRecord(ctx context.Context, record *domain.AccessRecord, expectedVersion int64) error
	DeleteRecord(ctx context.Context, subjectID string) error
	SaveAuditLog(ctx context.Context, log *domain.AuditLog) error
	GetAuditLogs(ctx context.Context, subjectID string) ([]domain.AuditLog, error)
	Ping(ctx context.Context) error
}

// ChangeNotifier fans out "the record set changed" events, possibly across processes.
type ChangeNotifier interface {
	Publish(ctx context.Context, subjectID string) error
	// Subscribe delivers subject ids of changed records until cancel is called.
	Subscribe(ctx context.Context) (events <-chan string, cancel func(), err error)
	Ping(ctx context.Context) error
}

// Clock supplies the current time; services take one so tests can pin it.
type Clock func() time.Time

type AccessService interface {
	Subscribe(ctx context.Context, onChange func([]domain.AccessRecord)) (unsubscribe func(), err error)
	Approve(ctx context.Context, subjectID string, adminID string) error
	Deny(ctx context.Context, subjectID string, adminID string) error
	Revoke(ctx context.Context, subjectID string, adminID string) error
	Remove(ctx context.Context, subjectID string, adminID string) error
	ComputeStats(records []domain.AccessRecord, now time.Time) domain.Stats
	Get(ctx context.Context, subjectID string) (*domain.AccessRecord, error)
	List(ctx context.Context, category domain.Category) ([]domain.AccessRecord, error)
	Stats(ctx context.Context) (domain.Stats, error)
	RequestAccess(ctx context.Context, subjectID string, notes string) (*domain.AccessRecord, error)
	GrantPaid(ctx context.Context, subjectID string, purchasedAt time.Time, duration time.Duration) (*domain.AccessRecord, error)
	ListAuditLogs(ctx context.Context, subjectID string) ([]domain.AuditLog, error)
	HealthCheck(ctx context.Context) map[string]error
}
