package services

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/castellan-dev/castellan/internal/models"
)

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func normaliseNames(values []string) []string {
	if len(values) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(values))
	var out []string
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if _, exists := seen[value]; exists {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}

// countAssignmentsByRole reports how many ledger rows reference the role. It
// takes the caller's handle so the referential check can run inside the same
// transaction that deletes the role.
func countAssignmentsByRole(tx *gorm.DB, roleID string) (int64, error) {
	var count int64
	err := tx.Model(&models.RoleAssignment{}).
		Where("role_id = ?", strings.TrimSpace(roleID)).
		Count(&count).Error
	return count, err
}

// appendAssignment writes one ledger row inside the caller's transaction so
// the append commits or rolls back with the rest of the operation.
func appendAssignment(tx *gorm.DB, userID, roleID, assignedBy string, at time.Time) error {
	entry := models.RoleAssignment{
		UserID:     userID,
		RoleID:     roleID,
		AssignedBy: assignedBy,
		AssignedAt: at,
	}
	return tx.Create(&entry).Error
}
