package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/castellan-dev/castellan/internal/models"
	"github.com/castellan-dev/castellan/pkg/crypto"
	apperrors "github.com/castellan-dev/castellan/pkg/errors"
	"github.com/castellan-dev/castellan/pkg/metrics"
)

var (
	// ErrUsernameTaken signals a username collision during provisioning.
	ErrUsernameTaken = apperrors.New("USERNAME_TAKEN", "Username is already taken", http.StatusConflict)
	// ErrUserExists signals the invitation email gained an account since issuance.
	ErrUserExists = apperrors.New("USER_EXISTS", "An account already exists for this email address", http.StatusConflict)
)

// ProvisioningOption customises ProvisioningService behaviour.
type ProvisioningOption func(*ProvisioningService)

// WithProvisioningClock injects a custom clock primarily for testing.
func WithProvisioningClock(clock func() time.Time) ProvisioningOption {
	return func(s *ProvisioningService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// ProvisioningService turns a valid invitation into an account, a role
// assignment and a consumed invitation in one atomic step.
type ProvisioningService struct {
	db          *gorm.DB
	invitations *InvitationService
	now         func() time.Time
}

// NewProvisioningService constructs a ProvisioningService.
func NewProvisioningService(db *gorm.DB, invitations *InvitationService, opts ...ProvisioningOption) (*ProvisioningService, error) {
	if db == nil {
		return nil, errors.New("provisioning service: db is required")
	}
	if invitations == nil {
		return nil, errors.New("provisioning service: invitation service is required")
	}

	service := &ProvisioningService{
		db:          db,
		invitations: invitations,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// AcceptInvitationInput describes the credentials supplied by the invitee.
type AcceptInvitationInput struct {
	Token       string
	Username    string
	Password    string
	DisplayName string
}

// AcceptInvitation validates the token and atomically creates the user,
// snapshots the role's permissions, appends the ledger row and marks the
// invitation accepted. Either every effect commits or none do; a concurrent
// redemption of the same token loses on the conditional status update and
// observes ErrInvitationConsumed.
func (s *ProvisioningService) AcceptInvitation(ctx context.Context, input AcceptInvitationInput) (*models.User, error) {
	ctx = ensureContext(ctx)

	username := strings.TrimSpace(input.Username)
	if username == "" {
		return nil, apperrors.NewBadRequest("username is required")
	}
	if strings.TrimSpace(input.Password) == "" {
		return nil, apperrors.NewBadRequest("password is required")
	}

	invitation, err := s.invitations.ValidateForRedemption(ctx, input.Token)
	if err != nil {
		return nil, err
	}
	if invitation.Role == nil {
		return nil, fmt.Errorf("provisioning service: invitation %s has no role loaded", invitation.ID)
	}

	hashed, err := crypto.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("provisioning service: hash password: %w", err)
	}

	now := s.now()
	user := &models.User{
		ID:                   uuid.NewString(),
		Username:             username,
		Email:                invitation.Email,
		Password:             hashed,
		DisplayName:          strings.TrimSpace(input.DisplayName),
		CurrentRole:          invitation.Role.Name,
		EffectivePermissions: datatypes.NewJSONSlice(invitation.Role.PermissionNames()),
		IsActive:             true,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The conditional status update claims the token before anything else
		// happens: zero rows affected means another redemption won, and every
		// loser observes the consumed invitation rather than a uniqueness
		// failure on the account insert.
		result := tx.Model(&models.Invitation{}).
			Where("id = ? AND status = ?", invitation.ID, models.InvitationPending).
			Updates(map[string]any{
				"status":      models.InvitationAccepted,
				"accepted_at": now,
				"accepted_by": user.ID,
			})
		if result.Error != nil {
			return fmt.Errorf("provisioning service: mark accepted: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrInvitationConsumed
		}

		// Uniqueness is enforced by the storage layer, not a prior SELECT, so
		// two invitees racing for the same username cannot both win.
		if err := tx.Create(user).Error; err != nil {
			return err
		}

		// assigned_by records the original inviter, not the new user.
		return appendAssignment(tx, user.ID, invitation.RoleID, invitation.InvitedBy, now)
	})
	if err != nil {
		if errors.Is(err, ErrInvitationConsumed) {
			metrics.InvitationsRedeemed.WithLabelValues("consumed").Inc()
			return nil, ErrInvitationConsumed
		}
		if uniqueViolationOn(err, "username") {
			return nil, ErrUsernameTaken
		}
		if isUniqueConstraintError(err) {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("provisioning service: accept invitation: %w", err)
	}

	metrics.InvitationsRedeemed.WithLabelValues("accepted").Inc()
	metrics.RoleAssignments.WithLabelValues("invite").Inc()

	return user, nil
}
