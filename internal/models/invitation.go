package models

import "time"

// Invitation statuses. Expiry is never persisted; it is derived from
// ExpiresAt whenever a pending invitation is read.
const (
	InvitationPending   = "pending"
	InvitationAccepted  = "accepted"
	InvitationCancelled = "cancelled"
)

// Invitation binds an email address to a role behind a single-use token.
type Invitation struct {
	BaseModel

	Email       string `gorm:"not null;index" json:"email"`
	RoleID      string `gorm:"type:uuid;not null;index" json:"role_id"`
	InvitedBy   string `gorm:"type:uuid;not null" json:"invited_by"`
	TokenDigest string `gorm:"not null;uniqueIndex" json:"-"`
	Status      string `gorm:"not null;default:pending;index" json:"status"`

	ExpiresAt   time.Time  `gorm:"not null;index" json:"expires_at"`
	AcceptedAt  *time.Time `json:"accepted_at,omitempty"`
	AcceptedBy  *string    `gorm:"type:uuid" json:"accepted_by,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	CancelledBy *string    `gorm:"type:uuid" json:"cancelled_by,omitempty"`

	Role *Role `gorm:"foreignKey:RoleID;constraint:OnDelete:RESTRICT" json:"role,omitempty"`
}

// Expired is the single expiry predicate shared by every call site: a pending
// invitation is expired strictly after its deadline passes.
func (i *Invitation) Expired(now time.Time) bool {
	return i.Status == InvitationPending && now.After(i.ExpiresAt)
}
