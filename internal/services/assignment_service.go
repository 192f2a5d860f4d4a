package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/castellan-dev/castellan/internal/models"
	apperrors "github.com/castellan-dev/castellan/pkg/errors"
	"github.com/castellan-dev/castellan/pkg/logger"
	"github.com/castellan-dev/castellan/pkg/mail"
	"github.com/castellan-dev/castellan/pkg/metrics"
)

// ErrUserNotFound indicates the requested user does not exist.
var ErrUserNotFound = apperrors.New("USER_NOT_FOUND", "User not found", http.StatusNotFound)

// AssignmentOption customises AssignmentService behaviour.
type AssignmentOption func(*AssignmentService)

// WithAssignmentClock injects a custom clock primarily for testing.
func WithAssignmentClock(clock func() time.Time) AssignmentOption {
	return func(s *AssignmentService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// AssignmentService applies direct (non-invitation) role changes. Every change
// updates the user's denormalised role fields and appends a ledger row in the
// same transaction.
type AssignmentService struct {
	db     *gorm.DB
	mailer mail.Mailer
	now    func() time.Time
	log    *zap.Logger
}

// NewAssignmentService constructs an AssignmentService.
func NewAssignmentService(db *gorm.DB, mailer mail.Mailer, opts ...AssignmentOption) (*AssignmentService, error) {
	if db == nil {
		return nil, errors.New("assignment service: db is required")
	}

	service := &AssignmentService{
		db:     db,
		mailer: mailer,
		now:    time.Now,
		log:    logger.WithModule("assignments"),
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// AssignRoleInput describes a single direct assignment.
type AssignRoleInput struct {
	UserID     string
	RoleID     string
	AssignedBy string
	Notify     bool
}

// BulkAssignResult reports per-user outcomes of a bulk assignment. Partial
// success is the contract: one user's failure never aborts the batch.
type BulkAssignResult struct {
	Succeeded []string          `json:"succeeded"`
	Failed    map[string]string `json:"failed"`
}

// Assign updates the user's current role and effective permission snapshot and
// appends the ledger row transactionally. The optional notification goes out
// only after the transaction commits; a mail failure never rolls back the
// assignment.
func (s *AssignmentService) Assign(ctx context.Context, input AssignRoleInput) error {
	ctx = ensureContext(ctx)

	var (
		user models.User
		role models.Role
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&user, "id = ?", strings.TrimSpace(input.UserID)).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return fmt.Errorf("assignment service: load user: %w", err)
		}

		if err := tx.Preload("Permissions").First(&role, "id = ?", strings.TrimSpace(input.RoleID)).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRoleNotFound
			}
			return fmt.Errorf("assignment service: load role: %w", err)
		}

		now := s.now()
		updates := map[string]any{
			"current_role":          role.Name,
			"effective_permissions": datatypes.NewJSONSlice(role.PermissionNames()),
		}
		if err := tx.Model(&user).Updates(updates).Error; err != nil {
			return fmt.Errorf("assignment service: update user role: %w", err)
		}

		return appendAssignment(tx, user.ID, role.ID, strings.TrimSpace(input.AssignedBy), now)
	})
	if err != nil {
		return err
	}

	metrics.RoleAssignments.WithLabelValues("direct").Inc()

	if input.Notify {
		s.notify(ctx, &user, &role)
	}

	return nil
}

// BulkAssign applies Assign independently per user and reports per-id outcomes.
func (s *AssignmentService) BulkAssign(ctx context.Context, userIDs []string, roleID, assignedBy string) (*BulkAssignResult, error) {
	ctx = ensureContext(ctx)

	result := &BulkAssignResult{
		Succeeded: make([]string, 0, len(userIDs)),
		Failed:    make(map[string]string),
	}

	for _, userID := range normaliseNames(userIDs) {
		err := s.Assign(ctx, AssignRoleInput{
			UserID:     userID,
			RoleID:     roleID,
			AssignedBy: assignedBy,
		})
		if err != nil {
			result.Failed[userID] = failureCode(err)
			continue
		}
		result.Succeeded = append(result.Succeeded, userID)
	}

	metrics.RoleAssignments.WithLabelValues("bulk").Add(float64(len(result.Succeeded)))
	return result, nil
}

func (s *AssignmentService) notify(ctx context.Context, user *models.User, role *models.Role) {
	if s.mailer == nil {
		return
	}

	message := mail.Message{
		To:      []string{user.Email},
		Subject: "Your role has changed",
		Body: fmt.Sprintf(
			"Hello %s,\n\nYour role has been changed to %s.\n",
			user.Username, role.DisplayName,
		),
	}
	if err := s.mailer.Send(ctx, message); err != nil && !errors.Is(err, mail.ErrSMTPDisabled) {
		s.log.Warn("role change notification failed",
			zap.String("user_id", user.ID),
			zap.String("role_id", role.ID),
			zap.Error(err),
		)
	}
}

// failureCode maps an error to the stable machine-readable code reported in
// bulk results.
func failureCode(err error) string {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return apperrors.ErrInternalServer.Code
}
