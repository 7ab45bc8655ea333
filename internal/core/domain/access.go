// Package domain contains the core entities and error kinds for accessgate.
package domain

import (
	"time"
)

// AccessType selects which access path a record follows. It never changes after creation.
type AccessType string

const (
	// AccessManual requires an administrator to grant access. Never expires.
	AccessManual AccessType = "manual_approval"
	// AccessPaid is granted by the billing integration and carries an expiry date.
	AccessPaid AccessType = "paid"
)

// Status is the stored lifecycle state of a record.
type Status string

const (
	StatusPending Status = "pending"
	StatusActive  Status = "active"
	StatusDenied  Status = "denied"
	StatusRevoked Status = "revoked"
)

// DisplayStatus is the point-in-time classification of a record.
type DisplayStatus string

const (
	DisplayActivePaid       DisplayStatus = "ActivePaid"
	DisplayExpired          DisplayStatus = "Expired"
	DisplayManuallyApproved DisplayStatus = "ManuallyApproved"
	DisplayDenied           DisplayStatus = "Denied"
	DisplayPendingApproval  DisplayStatus = "PendingApproval"
	DisplayUnknown          DisplayStatus = "Unknown"
)

// Category names a filter tab of the administrative view.
type Category string

const (
	CategoryAll      Category = "all"
	CategoryPending  Category = "pending"
	CategoryApproved Category = "approved"
	CategoryPaid     Category = "paid"
	CategoryExpired  Category = "expired"
	CategoryDenied   Category = "denied"
)

// AccessRecord is the persisted entitlement of one subject.
type AccessRecord struct {
	SubjectID   string     `json:"subjectId"` // primary key, normalised email
	AccessType  AccessType `json:"accessType"`
	Approved    bool       `json:"approved"` // true iff Status == StatusActive
	Status      Status     `json:"status"`
	RequestedAt time.Time  `json:"requestedAt"`
	ApprovedAt  *time.Time `json:"approvedAt,omitempty"`
	DeniedAt    *time.Time `json:"deniedAt,omitempty"`
	RevokedAt   *time.Time `json:"revokedAt,omitempty"`
	ApprovedBy  *string    `json:"approvedBy,omitempty"`
	DeniedBy    *string    `json:"deniedBy,omitempty"`
	RevokedBy   *string    `json:"revokedBy,omitempty"`
	ExpiryDate  *time.Time `json:"expiryDate,omitempty"` // paid only
	PurchasedAt *time.Time `json:"purchasedAt,omitempty"`
	Notes       string     `json:"notes,omitempty"`
	Version     int64      `json:"version"`
}

// Stats summarises a snapshot of records for the dashboard header.
type Stats struct {
	Total                   int   `json:"total"`
	PendingCount            int   `json:"pendingCount"`
	ActivePaidCount         int   `json:"activePaidCount"`
	EstimatedMonthlyRevenue int64 `json:"estimatedMonthlyRevenue"` // minor currency units
}

// MaxGrantDays bounds the length of a single paid grant (100 years).
const MaxGrantDays = 36500
