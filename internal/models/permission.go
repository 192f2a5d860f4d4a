package models

// Permission is a named capability registered by the catalog during bootstrap.
// Rows are never mutated once a role references them.
type Permission struct {
	Name        string `gorm:"primaryKey" json:"name"`
	DisplayName string `gorm:"not null" json:"display_name"`
	Description string `json:"description"`
	Category    string `gorm:"not null;index" json:"category"`

	Roles []Role `gorm:"many2many:role_permissions;" json:"roles,omitempty"`
}
