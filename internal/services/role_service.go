package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"gorm.io/gorm"

	"github.com/castellan-dev/castellan/internal/models"
	"github.com/castellan-dev/castellan/internal/permissions"
	apperrors "github.com/castellan-dev/castellan/pkg/errors"
)

var (
	// ErrRoleNotFound indicates the requested role does not exist.
	ErrRoleNotFound = apperrors.New("ROLE_NOT_FOUND", "Role not found", http.StatusNotFound)
	// ErrRoleExists signals a role name collision.
	ErrRoleExists = apperrors.New("ROLE_EXISTS", "Role name already exists", http.StatusConflict)
	// ErrSystemRoleImmutable prevents destructive operations on system roles.
	ErrSystemRoleImmutable = apperrors.New("ROLE_IMMUTABLE", "System roles cannot be modified", http.StatusBadRequest)
)

// newRoleInUse reports how many ledger rows block the deletion.
func newRoleInUse(count int64) *apperrors.AppError {
	return apperrors.New(
		"ROLE_IN_USE",
		fmt.Sprintf("Role is referenced by %d assignment(s) and cannot be deleted", count),
		http.StatusConflict,
	).WithDetails(map[string]any{"assignments": count})
}

func newUnknownPermission(name string) *apperrors.AppError {
	return apperrors.New(
		"PERMISSION_UNKNOWN",
		fmt.Sprintf("Unknown permission %q", name),
		http.StatusBadRequest,
	)
}

// RoleService manages the role store and exposes the permission catalog.
type RoleService struct {
	db *gorm.DB
}

// NewRoleService constructs a RoleService using the provided database handle.
func NewRoleService(db *gorm.DB) (*RoleService, error) {
	if db == nil {
		return nil, errors.New("role service: db is required")
	}
	return &RoleService{db: db}, nil
}

// CreateRoleInput describes the payload accepted by CreateRole.
type CreateRoleInput struct {
	Name        string
	DisplayName string
	Description string
	Permissions []string
}

// UpdateRoleInput enumerates mutable role attributes. Nil fields are left untouched.
type UpdateRoleInput struct {
	DisplayName *string
	Description *string
	Permissions *[]string
}

// CreateRole registers a new custom role. Roles created through the API are
// never system roles.
func (s *RoleService) CreateRole(ctx context.Context, input CreateRoleInput) (*models.Role, error) {
	ctx = ensureContext(ctx)

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.NewBadRequest("role name is required")
	}

	permissionNames := normaliseNames(input.Permissions)
	if err := permissions.Validate(permissionNames); err != nil {
		return nil, unknownPermissionError(err)
	}

	role := &models.Role{
		Name:        name,
		DisplayName: strings.TrimSpace(input.DisplayName),
		Description: strings.TrimSpace(input.Description),
		IsSystem:    false,
	}
	if role.DisplayName == "" {
		role.DisplayName = name
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(role).Error; err != nil {
			return err
		}
		return replaceRolePermissions(tx, role, permissionNames)
	})
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrRoleExists
		}
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, fmt.Errorf("role service: create role: %w", err)
	}

	return s.GetRole(ctx, role.ID)
}

// UpdateRole modifies a custom role. System roles are immutable.
func (s *RoleService) UpdateRole(ctx context.Context, roleID string, input UpdateRoleInput) (*models.Role, error) {
	ctx = ensureContext(ctx)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var role models.Role
		if err := tx.First(&role, "id = ?", roleID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRoleNotFound
			}
			return fmt.Errorf("role service: load role: %w", err)
		}

		if role.IsSystem {
			return ErrSystemRoleImmutable
		}

		updates := map[string]any{}
		if input.DisplayName != nil {
			updates["display_name"] = strings.TrimSpace(*input.DisplayName)
		}
		if input.Description != nil {
			updates["description"] = strings.TrimSpace(*input.Description)
		}
		if len(updates) > 0 {
			if err := tx.Model(&role).Updates(updates).Error; err != nil {
				return fmt.Errorf("role service: update role: %w", err)
			}
		}

		if input.Permissions != nil {
			names := normaliseNames(*input.Permissions)
			if err := permissions.Validate(names); err != nil {
				return unknownPermissionError(err)
			}
			if err := replaceRolePermissions(tx, &role, names); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, err
	}

	return s.GetRole(ctx, roleID)
}

// DeleteRole removes a custom role when no ledger entry references it.
func (s *RoleService) DeleteRole(ctx context.Context, roleID string) error {
	ctx = ensureContext(ctx)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var role models.Role
		if err := tx.First(&role, "id = ?", roleID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRoleNotFound
			}
			return fmt.Errorf("role service: load role: %w", err)
		}

		if role.IsSystem {
			return ErrSystemRoleImmutable
		}

		count, err := countAssignmentsByRole(tx, role.ID)
		if err != nil {
			return fmt.Errorf("role service: count assignments: %w", err)
		}
		if count > 0 {
			return newRoleInUse(count)
		}

		if err := tx.Model(&role).Association("Permissions").Clear(); err != nil {
			return fmt.Errorf("role service: clear role permissions: %w", err)
		}
		if err := tx.Delete(&role).Error; err != nil {
			return fmt.Errorf("role service: delete role: %w", err)
		}

		return nil
	})
}

// GetRole loads a role by identifier including its permission set.
func (s *RoleService) GetRole(ctx context.Context, roleID string) (*models.Role, error) {
	ctx = ensureContext(ctx)

	var role models.Role
	err := s.db.WithContext(ctx).Preload("Permissions").First(&role, "id = ?", roleID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRoleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("role service: get role: %w", err)
	}
	return &role, nil
}

// GetRoleByName loads a role by its unique name.
func (s *RoleService) GetRoleByName(ctx context.Context, name string) (*models.Role, error) {
	ctx = ensureContext(ctx)

	var role models.Role
	err := s.db.WithContext(ctx).Preload("Permissions").First(&role, "name = ?", strings.TrimSpace(name)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRoleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("role service: get role by name: %w", err)
	}
	return &role, nil
}

// ListRoles returns all roles ordered by creation date.
func (s *RoleService) ListRoles(ctx context.Context) ([]models.Role, error) {
	ctx = ensureContext(ctx)

	var roles []models.Role
	if err := s.db.WithContext(ctx).Preload("Permissions").Order("created_at ASC").Find(&roles).Error; err != nil {
		return nil, fmt.Errorf("role service: list roles: %w", err)
	}
	return roles, nil
}

// ListPermissions returns catalog permissions, optionally filtered by category.
func (s *RoleService) ListPermissions(ctx context.Context, category string) ([]models.Permission, error) {
	ctx = ensureContext(ctx)

	query := s.db.WithContext(ctx).Model(&models.Permission{}).Order("name ASC")
	if category = strings.TrimSpace(category); category != "" {
		query = query.Where("category = ?", category)
	}

	var perms []models.Permission
	if err := query.Find(&perms).Error; err != nil {
		return nil, fmt.Errorf("role service: list permissions: %w", err)
	}
	return perms, nil
}

func replaceRolePermissions(tx *gorm.DB, role *models.Role, names []string) error {
	if len(names) == 0 {
		return tx.Model(role).Association("Permissions").Clear()
	}

	var perms []models.Permission
	if err := tx.Where("name IN ?", names).Find(&perms).Error; err != nil {
		return fmt.Errorf("role service: load permissions: %w", err)
	}
	if len(perms) != len(names) {
		return fmt.Errorf("role service: some permissions are missing in database")
	}

	if err := tx.Model(role).Association("Permissions").Replace(perms); err != nil {
		return fmt.Errorf("role service: replace permissions: %w", err)
	}
	return nil
}

func unknownPermissionError(err error) error {
	if errors.Is(err, permissions.ErrUnknownPermission) {
		msg := err.Error()
		if idx := strings.LastIndex(msg, ": "); idx >= 0 {
			return newUnknownPermission(msg[idx+2:])
		}
	}
	return apperrors.NewBadRequest(err.Error())
}
