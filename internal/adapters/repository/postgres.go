package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"log"
	"time"

	"github.com/poyrazK/accessgate/internal/core/domain"
	"github.com/poyrazK/accessgate/internal/infrastructure/metrics"
)

//go:embed schema.sql
var schemaSQL string

const recordColumns = `subject_id, access_type, approved, status, requested_at, approved_at, denied_at, revoked_at,
	approved_by, denied_by, revoked_by, expiry_date, purchased_at, notes, version`

// PostgresRepository implements ports.AccessRepository using PostgreSQL.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates and returns a new PostgresRepository instance.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Migrate applies the embedded schema. Statements are idempotent.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, schemaSQL)
	return err
}

func observe(op string) func() {
	start := time.Now()
	return func() {
		metrics.StoreOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (domain.AccessRecord, error) {
	var rec domain.AccessRecord
	var approvedAt, deniedAt, revokedAt, expiry, purchased sql.NullTime
	var approvedBy, deniedBy, revokedBy sql.NullString
	err := row.Scan(&rec.SubjectID, &rec.AccessType, &rec.Approved, &rec.Status, &rec.RequestedAt,
		&approvedAt, &deniedAt, &revokedAt, &approvedBy, &deniedBy, &revokedBy,
		&expiry, &purchased, &rec.Notes, &rec.Version)
	if err != nil {
		return rec, err
	}
	rec.ApprovedAt = nullTimePtr(approvedAt)
	rec.DeniedAt = nullTimePtr(deniedAt)
	rec.RevokedAt = nullTimePtr(revokedAt)
	rec.ExpiryDate = nullTimePtr(expiry)
	rec.PurchasedAt = nullTimePtr(purchased)
	rec.ApprovedBy = nullStringPtr(approvedBy)
	rec.DeniedBy = nullStringPtr(deniedBy)
	rec.RevokedBy = nullStringPtr(revokedBy)
	return rec, nil
}

func (r *PostgresRepository) GetRecord(ctx context.Context, subjectID string) (*domain.AccessRecord, error) {
	defer observe("get")()

	query := `SELECT ` + recordColumns + ` FROM access_records WHERE subject_id = $1`
	rec, errRow := scanRecord(r.db.QueryRowContext(ctx, query, subjectID))
	if errors.Is(errRow, sql.ErrNoRows) {
		return nil, domain.ErrRecordNotFound
	}
	if errRow != nil {
		return nil, errRow
	}
	return &rec, nil
}

func (r *PostgresRepository) ListRecords(ctx context.Context) ([]domain.AccessRecord, error) {
	defer observe("list")()

	query := `SELECT ` + recordColumns + ` FROM access_records ORDER BY requested_at DESC, subject_id ASC`
	rows, errQuery := r.db.QueryContext(ctx, query)
	if errQuery != nil {
		return nil, errQuery
	}
	defer func() { if errClose := rows.Close(); errClose != nil { log.Printf("failed to close rows: %v", errClose) } }()

	var records []domain.AccessRecord
	for rows.Next() {
		rec, errScan := scanRecord(rows)
		if errScan != nil {
			return nil, errScan
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *PostgresRepository) CreateRecord(ctx context.Context, rec *domain.AccessRecord) error {
	defer observe("create")()

	query := `INSERT INTO access_records (` + recordColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
			  ON CONFLICT (subject_id) DO NOTHING`
	res, err := r.db.ExecContext(ctx, query, rec.SubjectID, string(rec.AccessType), rec.Approved, string(rec.Status), rec.RequestedAt,
		rec.ApprovedAt, rec.DeniedAt, rec.RevokedAt, rec.ApprovedBy, rec.DeniedBy, rec.RevokedBy,
		rec.ExpiryDate, rec.PurchasedAt, rec.Notes, rec.Version)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrAlreadyExists
	}
	return nil
}

// UpdateRecord is a compare-and-swap on version. access_type and requested_at
// are never rewritten.
func (r *PostgresRepository) UpdateRecord(ctx context.Context, rec *domain.AccessRecord, expectedVersion int64) error {
	defer observe("update")()

	query := `UPDATE access_records SET approved = $2, status = $3, approved_at = $4, denied_at = $5, revoked_at = $6,
			  approved_by = $7, denied_by = $8, revoked_by = $9, expiry_date = $10, purchased_at = $11, notes = $12, version = $13
			  WHERE subject_id = $1 AND version = $14`
	res, err := r.db.ExecContext(ctx, query, rec.SubjectID, rec.Approved, string(rec.Status),
		rec.ApprovedAt, rec.DeniedAt, rec.RevokedAt, rec.ApprovedBy, rec.DeniedBy, rec.RevokedBy,
		rec.ExpiryDate, rec.PurchasedAt, rec.Notes, rec.Version, expectedVersion)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var exists bool
	errRow := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM access_records WHERE subject_id = $1)`, rec.SubjectID).Scan(&exists)
	if errRow != nil {
		return errRow
	}
	if !exists {
		return domain.ErrRecordNotFound
	}
	return domain.ErrConcurrentModification
}

func (r *PostgresRepository) DeleteRecord(ctx context.Context, subjectID string) error {
	defer observe("delete")()

	res, err := r.db.ExecContext(ctx, `DELETE FROM access_records WHERE subject_id = $1`, subjectID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrRecordNotFound
	}
	return nil
}

func (r *PostgresRepository) SaveAuditLog(ctx context.Context, log *domain.AuditLog) error {
	query := `INSERT INTO access_audit_logs (id, subject_id, action, actor, from_status, to_status, created_at) 
			  VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.db.ExecContext(ctx, query, log.ID, log.SubjectID, log.Action, log.Actor, string(log.FromStatus), string(log.ToStatus), log.CreatedAt)
	return err
}

func (r *PostgresRepository) GetAuditLogs(ctx context.Context, subjectID string) ([]domain.AuditLog, error) {
	query := `SELECT id, subject_id, action, actor, from_status, to_status, created_at FROM access_audit_logs WHERE subject_id = $1 ORDER BY created_at DESC`
	rows, errQuery := r.db.QueryContext(ctx, query, subjectID)
	if errQuery != nil {
		return nil, errQuery
	}
	defer func() { if errClose := rows.Close(); errClose != nil { log.Printf("failed to close rows: %v", errClose) } }()

	var logs []domain.AuditLog
	for rows.Next() {
		var l domain.AuditLog
		if errScan := rows.Scan(&l.ID, &l.SubjectID, &l.Action, &l.Actor, &l.FromStatus, &l.ToStatus, &l.CreatedAt); errScan != nil {
			return nil, errScan
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
