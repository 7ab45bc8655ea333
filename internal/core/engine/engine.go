// Package engine holds the pure entitlement decision logic: classification,
// filtering and the administrative state transitions. Nothing here performs I/O;
// every function works on in-memory snapshots and an explicit clock reading.
package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/poyrazK/accessgate/internal/core/domain"
)

// Classify returns the display status of r at now. First matching rule wins.
func Classify(r domain.AccessRecord, now time.Time) domain.DisplayStatus {
	switch {
	case r.AccessType == domain.AccessPaid && r.Approved && r.ExpiryDate != nil && r.ExpiryDate.After(now):
		return domain.DisplayActivePaid
	case r.AccessType == domain.AccessPaid && r.ExpiryDate != nil && !r.ExpiryDate.After(now):
		return domain.DisplayExpired
	case r.AccessType == domain.AccessManual && r.Approved:
		return domain.DisplayManuallyApproved
	case r.Status == domain.StatusDenied || r.Status == domain.StatusRevoked:
		return domain.DisplayDenied
	case r.AccessType == domain.AccessManual && !r.Approved:
		return domain.DisplayPendingApproval
	default:
		return domain.DisplayUnknown
	}
}

// IsCurrentlyEntitled reports whether the subject has access right now.
func IsCurrentlyEntitled(r domain.AccessRecord, now time.Time) bool {
	switch Classify(r, now) {
	case domain.DisplayActivePaid, domain.DisplayManuallyApproved:
		return true
	default:
		return false
	}
}

// Matches reports whether r belongs to category c at now.
func Matches(r domain.AccessRecord, c domain.Category, now time.Time) bool {
	switch c {
	case domain.CategoryAll:
		return true
	case domain.CategoryPending:
		return r.AccessType == domain.AccessManual && !r.Approved && !isTerminalDenial(r.Status)
	case domain.CategoryApproved:
		// Historical fact: includes paid grants that have since expired.
		return r.Approved && r.Status == domain.StatusActive
	case domain.CategoryPaid:
		return r.AccessType == domain.AccessPaid && r.Approved
	case domain.CategoryExpired:
		return r.AccessType == domain.AccessPaid && r.ExpiryDate != nil && r.ExpiryDate.Before(now)
	case domain.CategoryDenied:
		return isTerminalDenial(r.Status)
	default:
		return false
	}
}

// FilterByCategory returns the records of category c, preserving input order.
func FilterByCategory(records []domain.AccessRecord, c domain.Category, now time.Time) []domain.AccessRecord {
	out := make([]domain.AccessRecord, 0, len(records))
	for _, r := range records {
		if Matches(r, c, now) {
			out = append(out, r)
		}
	}
	return out
}

func isTerminalDenial(s domain.Status) bool {
	return s == domain.StatusDenied || s == domain.StatusRevoked
}

// ApplyApprove moves a pending record to active.
func ApplyApprove(r domain.AccessRecord, adminID string, now time.Time) (domain.AccessRecord, error) {
	if r.Status != domain.StatusPending {
		return r, invalid("approve", r.Status)
	}
	next := r
	next.Approved = true
	next.Status = domain.StatusActive
	next.ApprovedAt = timePtr(now)
	next.ApprovedBy = strPtr(adminID)
	next.Version++
	return next, nil
}

// ApplyDeny moves a pending record to denied.
func ApplyDeny(r domain.AccessRecord, adminID string, now time.Time) (domain.AccessRecord, error) {
	if r.Status != domain.StatusPending {
		return r, invalid("deny", r.Status)
	}
	next := r
	next.Approved = false
	next.Status = domain.StatusDenied
	next.DeniedAt = timePtr(now)
	next.DeniedBy = strPtr(adminID)
	next.Version++
	return next, nil
}

// ApplyRevoke moves an active record of either access type to revoked.
func ApplyRevoke(r domain.AccessRecord, adminID string, now time.Time) (domain.AccessRecord, error) {
	if r.Status != domain.StatusActive {
		return r, invalid("revoke", r.Status)
	}
	next := r
	next.Approved = false
	next.Status = domain.StatusRevoked
	next.RevokedAt = timePtr(now)
	next.RevokedBy = strPtr(adminID)
	next.Version++
	return next, nil
}

func invalid(action string, from domain.Status) error {
	return fmt.Errorf("%w: cannot %s a record in status %q", domain.ErrInvalidTransition, action, from)
}

// Validate checks the structural invariants of a stored record.
func Validate(r domain.AccessRecord) error {
	if r.SubjectID == "" {
		return fmt.Errorf("%w: empty subject id", domain.ErrMalformedRecord)
	}
	switch r.AccessType {
	case domain.AccessManual, domain.AccessPaid:
	default:
		return fmt.Errorf("%w: %s has unknown access type %q", domain.ErrMalformedRecord, r.SubjectID, r.AccessType)
	}
	switch r.Status {
	case domain.StatusPending, domain.StatusActive, domain.StatusDenied, domain.StatusRevoked:
	default:
		return fmt.Errorf("%w: %s has unknown status %q", domain.ErrMalformedRecord, r.SubjectID, r.Status)
	}
	if r.Approved != (r.Status == domain.StatusActive) {
		return fmt.Errorf("%w: %s approved=%t disagrees with status %q", domain.ErrMalformedRecord, r.SubjectID, r.Approved, r.Status)
	}
	return nil
}

// SortByRequestedDesc orders records newest request first, subject id breaking ties.
func SortByRequestedDesc(records []domain.AccessRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].RequestedAt.Equal(records[j].RequestedAt) {
			return records[i].RequestedAt.After(records[j].RequestedAt)
		}
		return records[i].SubjectID < records[j].SubjectID
	})
}

// Summarize computes dashboard statistics. Revenue counts only subjects
// currently entitled through a paid grant.
func Summarize(records []domain.AccessRecord, now time.Time, unitPrice int64) domain.Stats {
	stats := domain.Stats{Total: len(records)}
	for _, r := range records {
		if Matches(r, domain.CategoryPending, now) {
			stats.PendingCount++
		}
		if Classify(r, now) == domain.DisplayActivePaid {
			stats.ActivePaidCount++
		}
	}
	stats.EstimatedMonthlyRevenue = int64(stats.ActivePaidCount) * unitPrice
	return stats
}

func timePtr(t time.Time) *time.Time { return &t }
func strPtr(s string) *string        { return &s }
