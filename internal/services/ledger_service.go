package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/castellan-dev/castellan/internal/models"
)

// LedgerFilters encapsulates optional filters when querying the assignment ledger.
type LedgerFilters struct {
	UserID string
	RoleID string
	Since  *time.Time
	Until  *time.Time
}

// LedgerListOptions controls pagination and filtering for ledger queries.
type LedgerListOptions struct {
	Page     int
	PageSize int
	Filters  LedgerFilters
}

// LedgerService reads the append-only role assignment history. Writes happen
// inside the provisioning and assignment transactions; nothing ever updates
// or deletes a ledger row.
type LedgerService struct {
	db *gorm.DB
}

// NewLedgerService constructs a LedgerService using the provided database handle.
func NewLedgerService(db *gorm.DB) (*LedgerService, error) {
	if db == nil {
		return nil, errors.New("ledger service: db is required")
	}
	return &LedgerService{db: db}, nil
}

// List returns paginated ledger entries ordered by assignment time descending.
func (s *LedgerService) List(ctx context.Context, opts LedgerListOptions) ([]models.RoleAssignment, int64, error) {
	ctx = ensureContext(ctx)

	page := opts.Page
	if page <= 0 {
		page = 1
	}
	perPage := opts.PageSize
	if perPage <= 0 || perPage > 200 {
		perPage = 50
	}

	query := s.db.WithContext(ctx).Model(&models.RoleAssignment{})
	if id := strings.TrimSpace(opts.Filters.UserID); id != "" {
		query = query.Where("user_id = ?", id)
	}
	if id := strings.TrimSpace(opts.Filters.RoleID); id != "" {
		query = query.Where("role_id = ?", id)
	}
	if opts.Filters.Since != nil {
		query = query.Where("assigned_at >= ?", *opts.Filters.Since)
	}
	if opts.Filters.Until != nil {
		query = query.Where("assigned_at <= ?", *opts.Filters.Until)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("ledger service: count entries: %w", err)
	}

	var entries []models.RoleAssignment
	err := query.Preload("Role").
		Order("assigned_at DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&entries).Error
	if err != nil {
		return nil, 0, fmt.Errorf("ledger service: list entries: %w", err)
	}

	return entries, total, nil
}

// CountByRole reports how many ledger rows reference the role. A non-zero
// count blocks role deletion.
func (s *LedgerService) CountByRole(ctx context.Context, roleID string) (int64, error) {
	ctx = ensureContext(ctx)

	count, err := countAssignmentsByRole(s.db.WithContext(ctx), roleID)
	if err != nil {
		return 0, fmt.Errorf("ledger service: count by role: %w", err)
	}
	return count, nil
}
