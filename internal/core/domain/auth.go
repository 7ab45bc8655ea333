package domain

type Role string

const (
	RoleAdmin   Role = "admin"   // Approve, deny, revoke and remove records
	RoleReader  Role = "reader"  // GET-only access to the directory
	RoleBilling Role = "billing" // Billing integration, creates paid grants
)

// Principal is the authenticated caller as supplied by the identity provider.
type Principal struct {
	ID   string `json:"id"` // e.g. admin email, recorded as approvedBy/deniedBy/revokedBy
	Role Role   `json:"role"`
}
