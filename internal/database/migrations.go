package database

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/castellan-dev/castellan/internal/models"
	"github.com/castellan-dev/castellan/internal/permissions"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Permission{},
		&models.Role{},
		&models.User{},
		&models.RoleAssignment{},
		&models.Invitation{},
	)
}

// systemRole describes a seeded role and its canonical permission set.
type systemRole struct {
	ID          string
	Name        string
	DisplayName string
	Description string
	Permissions []string
}

func systemRoles() []systemRole {
	all := make([]string, 0)
	for _, def := range permissions.All() {
		all = append(all, def.Name)
	}

	return []systemRole{
		{
			ID:          "admin",
			Name:        "admin",
			DisplayName: "Administrator",
			Description: "Full system access",
			Permissions: all,
		},
		{
			ID:          "editor",
			Name:        "editor",
			DisplayName: "Editor",
			Description: "Edit and publish hosted profiles",
			Permissions: []string{"profile.view", "profile.edit", "profile.publish", "user.view"},
		},
		{
			ID:          "viewer",
			Name:        "viewer",
			DisplayName: "Viewer",
			Description: "Read-only access to profiles",
			Permissions: []string{"profile.view", "user.view"},
		},
	}
}

// AutoMigrateAndSeed convenience helper used during application start-up.
func AutoMigrateAndSeed(ctx context.Context, db *gorm.DB) error {
	if db == nil {
		return errors.New("nil database handle")
	}

	if err := AutoMigrate(db); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	if err := permissions.Sync(ctx, db); err != nil {
		return fmt.Errorf("sync permission catalog: %w", err)
	}

	if err := SeedData(db); err != nil {
		return fmt.Errorf("seed data: %w", err)
	}

	return nil
}

// SeedData populates the immutable system roles and their permission sets.
// Seeding is idempotent: system role permission sets are reset to their
// canonical definitions on every start.
func SeedData(db *gorm.DB) error {
	for _, seed := range systemRoles() {
		role := models.Role{
			BaseModel:   models.BaseModel{ID: seed.ID},
			Name:        seed.Name,
			DisplayName: seed.DisplayName,
			Description: seed.Description,
			IsSystem:    true,
		}

		if err := db.Where(models.Role{BaseModel: models.BaseModel{ID: seed.ID}}).
			Attrs(role).
			FirstOrCreate(&role).Error; err != nil {
			return fmt.Errorf("seed role %s: %w", seed.ID, err)
		}

		if len(seed.Permissions) == 0 {
			continue
		}

		var perms []models.Permission
		if err := db.Where("name IN ?", seed.Permissions).Find(&perms).Error; err != nil {
			return fmt.Errorf("load permissions for role %s: %w", seed.ID, err)
		}
		if len(perms) != len(seed.Permissions) {
			return fmt.Errorf("role %s references unsynced permissions: expected %d, found %d",
				seed.ID, len(seed.Permissions), len(perms))
		}

		if err := db.Model(&role).Association("Permissions").Replace(perms); err != nil {
			return fmt.Errorf("attach permissions to role %s: %w", seed.ID, err)
		}
	}

	return nil
}
