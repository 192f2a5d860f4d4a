package models

// Role is a named bundle of permissions assignable to users. System roles are
// seeded at migration time and can never be updated or deleted.
type Role struct {
	BaseModel

	Name        string `gorm:"uniqueIndex;not null" json:"name"`
	DisplayName string `gorm:"not null" json:"display_name"`
	Description string `json:"description"`
	IsSystem    bool   `gorm:"default:false" json:"is_system"`

	Permissions []Permission `gorm:"many2many:role_permissions;" json:"permissions,omitempty"`
}

// PermissionNames flattens the role's permission set into names.
func (r *Role) PermissionNames() []string {
	if len(r.Permissions) == 0 {
		return nil
	}
	names := make([]string, 0, len(r.Permissions))
	for _, perm := range r.Permissions {
		names = append(names, perm.Name)
	}
	return names
}
