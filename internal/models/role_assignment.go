package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RoleAssignment is one ledger entry: who assigned which role to whom, when.
// Rows are append-only and block deletion of the role they reference.
type RoleAssignment struct {
	ID         string    `gorm:"primaryKey;type:uuid" json:"id"`
	UserID     string    `gorm:"type:uuid;not null;index" json:"user_id"`
	RoleID     string    `gorm:"type:uuid;not null;index" json:"role_id"`
	AssignedBy string    `gorm:"type:uuid;not null" json:"assigned_by"`
	AssignedAt time.Time `gorm:"not null;index" json:"assigned_at"`

	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Role *Role `gorm:"foreignKey:RoleID;constraint:OnDelete:RESTRICT" json:"role,omitempty"`
}

// BeforeCreate ensures a UUID is present before persisting.
func (a *RoleAssignment) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
