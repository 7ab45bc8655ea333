package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/poyrazK/accessgate/internal/core/domain"
)

var recordCols = []string{"subject_id", "access_type", "approved", "status", "requested_at", "approved_at", "denied_at", "revoked_at",
	"approved_by", "denied_by", "revoked_by", "expiry_date", "purchased_at", "notes", "version"}

func TestPostgresRepository_Unit(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %s", err)
	}
	defer db.Close()

	repo := NewPostgresRepository(db)
	ctx := context.Background()
	now := time.Now()

	// 1. Test GetRecord
	t.Run("GetRecord", func(t *testing.T) {
		expiry := now.Add(24 * time.Hour)
		rows := sqlmock.NewRows(recordCols).
			AddRow("b@x.com", "paid", true, "active", now, now, nil, nil, nil, nil, nil, expiry, now, "", 3)

		mock.ExpectQuery(`SELECT (.+) FROM access_records WHERE subject_id = \$1`).
			WithArgs("b@x.com").
			WillReturnRows(rows)

		rec, err := repo.GetRecord(ctx, "b@x.com")
		if err != nil {
			t.Fatalf("GetRecord failed: %v", err)
		}
		if rec.AccessType != domain.AccessPaid || rec.Status != domain.StatusActive || !rec.Approved {
			t.Errorf("Unexpected record: %+v", rec)
		}
		if rec.ExpiryDate == nil || !rec.ExpiryDate.Equal(expiry) {
			t.Errorf("Expected expiry %v, got %v", expiry, rec.ExpiryDate)
		}
		if rec.ApprovedBy != nil {
			t.Errorf("Expected no approvedBy for paid grant, got %v", *rec.ApprovedBy)
		}
		if rec.Version != 3 {
			t.Errorf("Expected version 3, got %d", rec.Version)
		}
	})

	// 2. Test GetRecord missing
	t.Run("GetRecordMissing", func(t *testing.T) {
		mock.ExpectQuery(`SELECT (.+) FROM access_records WHERE subject_id = \$1`).
			WithArgs("nobody@x.com").
			WillReturnRows(sqlmock.NewRows(recordCols))

		_, err := repo.GetRecord(ctx, "nobody@x.com")
		if !errors.Is(err, domain.ErrRecordNotFound) {
			t.Errorf("Expected ErrRecordNotFound, got %v", err)
		}
	})

	// 3. Test ListRecords
	t.Run("ListRecords", func(t *testing.T) {
		rows := sqlmock.NewRows(recordCols).
			AddRow("a@x.com", "manual_approval", false, "pending", now, nil, nil, nil, nil, nil, nil, nil, nil, "please", 1).
			AddRow("c@x.com", "manual_approval", false, "denied", now.Add(-time.Hour), nil, now, nil, nil, "admin2", nil, nil, nil, "", 2)

		mock.ExpectQuery(`SELECT (.+) FROM access_records ORDER BY requested_at DESC`).
			WillReturnRows(rows)

		recs, err := repo.ListRecords(ctx)
		if err != nil {
			t.Fatalf("ListRecords failed: %v", err)
		}
		if len(recs) != 2 {
			t.Fatalf("Expected 2 records, got %d", len(recs))
		}
		if recs[0].Notes != "please" {
			t.Errorf("Expected notes to be scanned, got %q", recs[0].Notes)
		}
		if recs[1].DeniedBy == nil || *recs[1].DeniedBy != "admin2" {
			t.Errorf("Expected deniedBy admin2, got %v", recs[1].DeniedBy)
		}
	})

	// 4. Test CreateRecord
	t.Run("CreateRecord", func(t *testing.T) {
		rec := &domain.AccessRecord{SubjectID: "new@x.com", AccessType: domain.AccessManual, Status: domain.StatusPending, RequestedAt: now, Version: 1}
		mock.ExpectExec(`INSERT INTO access_records (.+) ON CONFLICT \(subject_id\) DO NOTHING`).
			WithArgs(rec.SubjectID, "manual_approval", false, "pending", sqlmock.AnyArg(),
				sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
				sqlmock.AnyArg(), sqlmock.AnyArg(), "", int64(1)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		if err := repo.CreateRecord(ctx, rec); err != nil {
			t.Errorf("CreateRecord failed: %v", err)
		}

		mock.ExpectExec(`INSERT INTO access_records`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		if err := repo.CreateRecord(ctx, rec); !errors.Is(err, domain.ErrAlreadyExists) {
			t.Errorf("Expected ErrAlreadyExists, got %v", err)
		}
	})

	// 5. Test UpdateRecord compare-and-swap
	t.Run("UpdateRecord", func(t *testing.T) {
		admin := "admin1"
		rec := &domain.AccessRecord{SubjectID: "a@x.com", AccessType: domain.AccessManual, Status: domain.StatusActive, Approved: true, ApprovedAt: &now, ApprovedBy: &admin, Version: 2}

		mock.ExpectExec(`UPDATE access_records SET (.+) WHERE subject_id = \$1 AND version = \$14`).
			WithArgs("a@x.com", true, "active", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
				sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), "", int64(2), int64(1)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		if err := repo.UpdateRecord(ctx, rec, 1); err != nil {
			t.Errorf("UpdateRecord failed: %v", err)
		}
	})

	// 6. Test UpdateRecord stale version
	t.Run("UpdateRecordConflict", func(t *testing.T) {
		rec := &domain.AccessRecord{SubjectID: "a@x.com", Status: domain.StatusRevoked, Version: 2}
		mock.ExpectExec(`UPDATE access_records`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT EXISTS`).
			WithArgs("a@x.com").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		if err := repo.UpdateRecord(ctx, rec, 1); !errors.Is(err, domain.ErrConcurrentModification) {
			t.Errorf("Expected ErrConcurrentModification, got %v", err)
		}
	})

	// 7. Test UpdateRecord on deleted record
	t.Run("UpdateRecordMissing", func(t *testing.T) {
		rec := &domain.AccessRecord{SubjectID: "gone@x.com", Status: domain.StatusRevoked, Version: 2}
		mock.ExpectExec(`UPDATE access_records`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT EXISTS`).
			WithArgs("gone@x.com").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		if err := repo.UpdateRecord(ctx, rec, 1); !errors.Is(err, domain.ErrRecordNotFound) {
			t.Errorf("Expected ErrRecordNotFound, got %v", err)
		}
	})

	// 8. Test DeleteRecord
	t.Run("DeleteRecord", func(t *testing.T) {
		mock.ExpectExec(`DELETE FROM access_records WHERE subject_id = \$1`).
			WithArgs("a@x.com").
			WillReturnResult(sqlmock.NewResult(0, 1))

		if err := repo.DeleteRecord(ctx, "a@x.com"); err != nil {
			t.Errorf("DeleteRecord failed: %v", err)
		}

		mock.ExpectExec(`DELETE FROM access_records WHERE subject_id = \$1`).
			WithArgs("a@x.com").
			WillReturnResult(sqlmock.NewResult(0, 0))

		if err := repo.DeleteRecord(ctx, "a@x.com"); !errors.Is(err, domain.ErrRecordNotFound) {
			t.Errorf("Expected ErrRecordNotFound, got %v", err)
		}
	})

	// 9. Test Audit Logs
	t.Run("AuditLogs", func(t *testing.T) {
		mock.ExpectExec(`INSERT INTO access_audit_logs`).
			WithArgs("l1", "a@x.com", domain.ActionApprove, "admin1", "pending", "active", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))

		err := repo.SaveAuditLog(ctx, &domain.AuditLog{ID: "l1", SubjectID: "a@x.com", Action: domain.ActionApprove, Actor: "admin1",
			FromStatus: domain.StatusPending, ToStatus: domain.StatusActive, CreatedAt: now})
		if err != nil {
			t.Errorf("SaveAuditLog failed: %v", err)
		}

		mock.ExpectQuery(`SELECT (.+) FROM access_audit_logs WHERE subject_id = \$1`).
			WithArgs("a@x.com").
			WillReturnRows(sqlmock.NewRows([]string{"id", "subject_id", "action", "actor", "from_status", "to_status", "created_at"}).
				AddRow("l1", "a@x.com", "APPROVE", "admin1", "pending", "active", now))

		logs, err := repo.GetAuditLogs(ctx, "a@x.com")
		if err != nil || len(logs) != 1 {
			t.Fatalf("GetAuditLogs failed: %v", err)
		}
		if logs[0].ToStatus != domain.StatusActive {
			t.Errorf("Expected to_status active, got %s", logs[0].ToStatus)
		}
	})

	// 10. Test Migrate
	t.Run("Migrate", func(t *testing.T) {
		mock.ExpectExec(`CREATE TABLE IF NOT EXISTS access_records`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		if err := repo.Migrate(ctx); err != nil {
			t.Errorf("Migrate failed: %v", err)
		}
	})

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestPostgresRepository_QueryErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %s", err)
	}
	defer db.Close()

	repo := NewPostgresRepository(db)
	ctx := context.Background()
	boom := errors.New("connection reset")

	mock.ExpectQuery(`SELECT (.+) FROM access_records ORDER BY`).WillReturnError(boom)
	if _, err := repo.ListRecords(ctx); !errors.Is(err, boom) {
		t.Errorf("Expected driver error from ListRecords, got %v", err)
	}

	mock.ExpectQuery(`SELECT (.+) FROM access_records WHERE subject_id`).WillReturnError(boom)
	if _, err := repo.GetRecord(ctx, "a@x.com"); !errors.Is(err, boom) {
		t.Errorf("Expected driver error from GetRecord, got %v", err)
	}

	mock.ExpectExec(`DELETE FROM access_records`).WillReturnError(boom)
	if err := repo.DeleteRecord(ctx, "a@x.com"); !errors.Is(err, boom) {
		t.Errorf("Expected driver error from DeleteRecord, got %v", err)
	}
}
