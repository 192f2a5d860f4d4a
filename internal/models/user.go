package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// User carries the account fields this control plane owns. Profile content,
// analytics and the rest of the platform live elsewhere.
type User struct {
	ID       string `gorm:"primaryKey;type:uuid" json:"id"`
	Username string `gorm:"uniqueIndex;not null" json:"username"`
	Email    string `gorm:"uniqueIndex;not null" json:"email"`
	Password string `gorm:"not null" json:"-"`

	DisplayName string `json:"display_name"`

	// CurrentRole names the most recently assigned role. EffectivePermissions
	// is a snapshot of that role's permission set taken at assignment time,
	// not a live reference.
	CurrentRole          string                      `gorm:"index" json:"current_role"`
	EffectivePermissions datatypes.JSONSlice[string] `json:"effective_permissions"`

	IsActive bool `gorm:"default:true" json:"is_active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate ensures a UUID is present before persisting.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// HasPermission reports whether the snapshot grants the named capability.
func (u *User) HasPermission(name string) bool {
	for _, perm := range u.EffectivePermissions {
		if perm == name {
			return true
		}
	}
	return false
}
