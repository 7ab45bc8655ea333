package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/poyrazK/accessgate/internal/core/domain"
)

var (
	t0  = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	now = t0.Add(30 * 24 * time.Hour)
)

func pending(id string) domain.AccessRecord {
	return domain.AccessRecord{SubjectID: id, AccessType: domain.AccessManual, Status: domain.StatusPending, RequestedAt: t0}
}

func paid(id string, expiry time.Time) domain.AccessRecord {
	purchased := t0
	return domain.AccessRecord{
		SubjectID:   id,
		AccessType:  domain.AccessPaid,
		Status:      domain.StatusActive,
		Approved:    true,
		RequestedAt: t0,
		PurchasedAt: &purchased,
		ExpiryDate:  &expiry,
	}
}

func withStatus(r domain.AccessRecord, s domain.Status) domain.AccessRecord {
	r.Status = s
	r.Approved = s == domain.StatusActive
	return r
}

func TestClassify(t *testing.T) {
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)
	tests := []struct {
		name string
		rec  domain.AccessRecord
		want domain.DisplayStatus
	}{
		{"paid unexpired", paid("a@x.com", future), domain.DisplayActivePaid},
		{"paid expired still active", paid("b@x.com", past), domain.DisplayExpired},
		{"paid expiring exactly now", paid("b@x.com", now), domain.DisplayExpired},
		{"paid revoked past expiry", withStatus(paid("c@x.com", past), domain.StatusRevoked), domain.DisplayExpired},
		{"paid revoked before expiry", withStatus(paid("c@x.com", future), domain.StatusRevoked), domain.DisplayDenied},
		{"manual approved", withStatus(pending("d@x.com"), domain.StatusActive), domain.DisplayManuallyApproved},
		{"manual denied", withStatus(pending("e@x.com"), domain.StatusDenied), domain.DisplayDenied},
		{"manual revoked", withStatus(pending("e@x.com"), domain.StatusRevoked), domain.DisplayDenied},
		{"manual pending", pending("f@x.com"), domain.DisplayPendingApproval},
		{"paid pending without expiry", domain.AccessRecord{SubjectID: "g@x.com", AccessType: domain.AccessPaid, Status: domain.StatusPending}, domain.DisplayUnknown},
		{"unknown type", domain.AccessRecord{SubjectID: "h@x.com", AccessType: "trial", Status: domain.StatusActive, Approved: true}, domain.DisplayUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.rec, now); got != tt.want {
				t.Errorf("Classify() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestIsCurrentlyEntitled(t *testing.T) {
	if !IsCurrentlyEntitled(paid("a@x.com", now.Add(time.Minute)), now) {
		t.Errorf("expected unexpired paid record to be entitled")
	}
	if IsCurrentlyEntitled(paid("a@x.com", now.Add(-time.Minute)), now) {
		t.Errorf("expected expired paid record to not be entitled")
	}
	if !IsCurrentlyEntitled(withStatus(pending("b@x.com"), domain.StatusActive), now) {
		t.Errorf("expected manually approved record to be entitled")
	}
	if IsCurrentlyEntitled(pending("c@x.com"), now) {
		t.Errorf("expected pending record to not be entitled")
	}
}

func TestApplyApprove_FromPending(t *testing.T) {
	rec := pending("a@x.com")
	t1 := t0.Add(time.Hour)

	got, err := ApplyApprove(rec, "admin1", t1)
	if err != nil {
		t.Fatalf("ApplyApprove failed: %v", err)
	}
	if got.Status != domain.StatusActive || !got.Approved {
		t.Errorf("expected active/approved, got %s/%t", got.Status, got.Approved)
	}
	if got.ApprovedAt == nil || !got.ApprovedAt.Equal(t1) {
		t.Errorf("expected approvedAt %v, got %v", t1, got.ApprovedAt)
	}
	if got.ApprovedBy == nil || *got.ApprovedBy != "admin1" {
		t.Errorf("expected approvedBy admin1, got %v", got.ApprovedBy)
	}
	if got.Version != rec.Version+1 {
		t.Errorf("expected version bump, got %d", got.Version)
	}
	if Classify(got, t1) != domain.DisplayManuallyApproved {
		t.Errorf("expected ManuallyApproved, got %s", Classify(got, t1))
	}
	if rec.Status != domain.StatusPending {
		t.Errorf("input record was mutated")
	}
}

func TestTransitions_RejectIllegalSource(t *testing.T) {
	base := pending("a@x.com")
	type apply func(domain.AccessRecord, string, time.Time) (domain.AccessRecord, error)
	tests := []struct {
		name    string
		fn      apply
		illegal []domain.Status
	}{
		{"approve", ApplyApprove, []domain.Status{domain.StatusActive, domain.StatusDenied, domain.StatusRevoked}},
		{"deny", ApplyDeny, []domain.Status{domain.StatusActive, domain.StatusDenied, domain.StatusRevoked}},
		{"revoke", ApplyRevoke, []domain.Status{domain.StatusPending, domain.StatusDenied, domain.StatusRevoked}},
	}

	for _, tt := range tests {
		for _, s := range tt.illegal {
			t.Run(tt.name+"/"+string(s), func(t *testing.T) {
				rec := withStatus(base, s)
				got, err := tt.fn(rec, "admin", now)
				if !errors.Is(err, domain.ErrInvalidTransition) {
					t.Fatalf("expected ErrInvalidTransition, got %v", err)
				}
				if got != rec {
					t.Errorf("expected record unchanged, got %+v", got)
				}
			})
		}
	}
}

func TestTransitions_KeepApprovedInSync(t *testing.T) {
	rec := pending("a@x.com")
	steps := []func(domain.AccessRecord) (domain.AccessRecord, error){
		func(r domain.AccessRecord) (domain.AccessRecord, error) { return ApplyApprove(r, "a", now) },
		func(r domain.AccessRecord) (domain.AccessRecord, error) { return ApplyRevoke(r, "a", now) },
	}
	for _, step := range steps {
		var err error
		rec, err = step(rec)
		if err != nil {
			t.Fatalf("step failed: %v", err)
		}
		if rec.Approved != (rec.Status == domain.StatusActive) {
			t.Errorf("approved=%t disagrees with status %s", rec.Approved, rec.Status)
		}
		if err := Validate(rec); err != nil {
			t.Errorf("Validate: %v", err)
		}
	}

	denied, err := ApplyDeny(pending("b@x.com"), "a", now)
	if err != nil {
		t.Fatalf("ApplyDeny failed: %v", err)
	}
	if denied.Approved || denied.Status != domain.StatusDenied || denied.DeniedBy == nil || *denied.DeniedBy != "a" {
		t.Errorf("unexpected denied record: %+v", denied)
	}
}

func TestApplyApprove_TwiceFails(t *testing.T) {
	rec := pending("a@x.com")
	rec, err := ApplyApprove(rec, "admin1", now)
	if err != nil {
		t.Fatalf("first approve failed: %v", err)
	}
	if _, err := ApplyApprove(rec, "admin1", now); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition on second approve, got %v", err)
	}
}

func TestDenyThenApprove(t *testing.T) {
	rec, err := ApplyDeny(pending("c@x.com"), "admin2", now)
	if err != nil {
		t.Fatalf("deny failed: %v", err)
	}
	if _, err := ApplyApprove(rec, "admin2", now); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestApproveThenRevoke(t *testing.T) {
	t1 := t0.Add(time.Hour)
	t2 := t1.Add(time.Hour)
	rec, err := ApplyApprove(pending("a@x.com"), "admin1", t1)
	if err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	rec, err = ApplyRevoke(rec, "admin2", t2)
	if err != nil {
		t.Fatalf("revoke failed: %v", err)
	}
	if rec.Status != domain.StatusRevoked || rec.Approved {
		t.Errorf("expected revoked/false, got %s/%t", rec.Status, rec.Approved)
	}
	if rec.ApprovedAt == nil || rec.RevokedAt == nil || !rec.ApprovedAt.Before(*rec.RevokedAt) {
		t.Errorf("expected approvedAt < revokedAt, got %v / %v", rec.ApprovedAt, rec.RevokedAt)
	}
	if rec.RevokedBy == nil || *rec.RevokedBy != "admin2" {
		t.Errorf("expected revokedBy admin2, got %v", rec.RevokedBy)
	}
}

func TestFilterByCategory(t *testing.T) {
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)
	records := []domain.AccessRecord{
		paid("paid-live@x.com", future),
		paid("paid-expired@x.com", past),
		withStatus(paid("paid-revoked@x.com", future), domain.StatusRevoked),
		withStatus(pending("manual-ok@x.com"), domain.StatusActive),
		pending("manual-wait@x.com"),
		withStatus(pending("manual-no@x.com"), domain.StatusDenied),
		withStatus(pending("manual-gone@x.com"), domain.StatusRevoked),
	}

	tests := []struct {
		cat  domain.Category
		want []string
	}{
		{domain.CategoryAll, []string{"paid-live@x.com", "paid-expired@x.com", "paid-revoked@x.com", "manual-ok@x.com", "manual-wait@x.com", "manual-no@x.com", "manual-gone@x.com"}},
		{domain.CategoryPending, []string{"manual-wait@x.com"}},
		{domain.CategoryApproved, []string{"paid-live@x.com", "paid-expired@x.com", "manual-ok@x.com"}},
		{domain.CategoryPaid, []string{"paid-live@x.com", "paid-expired@x.com"}},
		{domain.CategoryExpired, []string{"paid-expired@x.com"}},
		{domain.CategoryDenied, []string{"paid-revoked@x.com", "manual-no@x.com", "manual-gone@x.com"}},
		{"bogus", nil},
	}

	for _, tt := range tests {
		t.Run(string(tt.cat), func(t *testing.T) {
			got := FilterByCategory(records, tt.cat, now)
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d records, got %d: %+v", len(tt.want), len(got), got)
			}
			for i, r := range got {
				if r.SubjectID != tt.want[i] {
					t.Errorf("record %d: expected %s, got %s", i, tt.want[i], r.SubjectID)
				}
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		rec     domain.AccessRecord
		wantErr bool
	}{
		{"pending", pending("a@x.com"), false},
		{"empty id", domain.AccessRecord{AccessType: domain.AccessManual, Status: domain.StatusPending}, true},
		{"bad type", domain.AccessRecord{SubjectID: "a@x.com", AccessType: "free", Status: domain.StatusPending}, true},
		{"bad status", domain.AccessRecord{SubjectID: "a@x.com", AccessType: domain.AccessManual, Status: "expired"}, true},
		{"approved mismatch", domain.AccessRecord{SubjectID: "a@x.com", AccessType: domain.AccessManual, Status: domain.StatusPending, Approved: true}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.rec)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, domain.ErrMalformedRecord) {
				t.Errorf("expected ErrMalformedRecord, got %v", err)
			}
		})
	}
}

func TestSortByRequestedDesc(t *testing.T) {
	a := pending("a@x.com")
	b := pending("b@x.com")
	c := pending("c@x.com")
	c.RequestedAt = t0.Add(time.Hour)
	records := []domain.AccessRecord{b, a, c}

	SortByRequestedDesc(records)

	want := []string{"c@x.com", "a@x.com", "b@x.com"}
	for i, r := range records {
		if r.SubjectID != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], r.SubjectID)
		}
	}
}

func TestSummarize(t *testing.T) {
	future := now.Add(time.Hour)
	records := []domain.AccessRecord{
		paid("p1@x.com", future),
		paid("p2@x.com", future),
		paid("p3@x.com", now.Add(-time.Hour)),
		pending("m1@x.com"),
		withStatus(pending("m2@x.com"), domain.StatusDenied),
	}

	stats := Summarize(records, now, 999)

	if stats.Total != 5 {
		t.Errorf("expected total 5, got %d", stats.Total)
	}
	if stats.ActivePaidCount != 2 {
		t.Errorf("expected activePaidCount 2, got %d", stats.ActivePaidCount)
	}
	if stats.PendingCount != 1 {
		t.Errorf("expected pendingCount 1, got %d", stats.PendingCount)
	}
	if stats.EstimatedMonthlyRevenue != 1998 {
		t.Errorf("expected revenue 1998, got %d", stats.EstimatedMonthlyRevenue)
	}
}
