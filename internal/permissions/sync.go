package permissions

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/castellan-dev/castellan/internal/models"
)

// Sync persists the registered catalog to the backing database so roles can
// reference permission rows relationally.
func Sync(ctx context.Context, db *gorm.DB) error {
	if db == nil {
		return errors.New("permission: db is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	defs := All()
	if len(defs) == 0 {
		return nil
	}

	tx := db.WithContext(ctx)
	for _, def := range defs {
		record := models.Permission{
			Name:        def.Name,
			DisplayName: def.DisplayName,
			Description: def.Description,
			Category:    def.Category,
		}

		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"display_name", "description", "category"}),
		}).Create(&record).Error; err != nil {
			return fmt.Errorf("permission: sync %s: %w", def.Name, err)
		}
	}

	return nil
}
