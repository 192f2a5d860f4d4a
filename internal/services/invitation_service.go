package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/castellan-dev/castellan/internal/models"
	"github.com/castellan-dev/castellan/pkg/crypto"
	apperrors "github.com/castellan-dev/castellan/pkg/errors"
	"github.com/castellan-dev/castellan/pkg/mail"
	"github.com/castellan-dev/castellan/pkg/metrics"
)

const (
	defaultInvitationExpiry = 7 * 24 * time.Hour
	defaultTokenBytes       = 32 // 256 bits of entropy
)

var (
	// ErrInvitationNotFound indicates no invitation matches the provided token or id.
	ErrInvitationNotFound = apperrors.New("INVITE_NOT_FOUND", "Invitation not found", http.StatusNotFound)
	// ErrInvitationConsumed signals the invitation already reached a terminal state.
	ErrInvitationConsumed = apperrors.New("INVITE_CONSUMED", "Invitation has already been used or cancelled", http.StatusConflict)
	// ErrInvitationExpired signals the redemption window has closed.
	ErrInvitationExpired = apperrors.New("INVITE_EXPIRED", "Invitation has expired", http.StatusGone)
	// ErrInvitationInvalidState rejects transitions that the state machine does not allow.
	ErrInvitationInvalidState = apperrors.New("INVITE_INVALID_STATE", "Invitation is not in a state that allows this operation", http.StatusConflict)
)

// InvitationOption customises InvitationService behaviour.
type InvitationOption func(*InvitationService)

// WithInvitationBaseURL configures the base URL used to build invitation links.
func WithInvitationBaseURL(url string) InvitationOption {
	return func(s *InvitationService) {
		s.baseURL = strings.TrimRight(url, "/")
	}
}

// WithInvitationExpiry overrides the invitation lifetime.
func WithInvitationExpiry(d time.Duration) InvitationOption {
	return func(s *InvitationService) {
		if d > 0 {
			s.expiry = d
		}
	}
}

// WithInvitationTokenSize adjusts the random token length in bytes.
func WithInvitationTokenSize(size int) InvitationOption {
	return func(s *InvitationService) {
		if size > 0 {
			s.tokenLength = size
		}
	}
}

// WithInvitationClock injects a custom clock primarily for testing.
func WithInvitationClock(clock func() time.Time) InvitationOption {
	return func(s *InvitationService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// InvitationService owns the invitation entity and its token lifecycle.
type InvitationService struct {
	db          *gorm.DB
	mailer      mail.Mailer
	baseURL     string
	expiry      time.Duration
	tokenLength int
	now         func() time.Time
}

// NewInvitationService constructs an InvitationService with the provided dependencies.
func NewInvitationService(db *gorm.DB, mailer mail.Mailer, opts ...InvitationOption) (*InvitationService, error) {
	if db == nil {
		return nil, errors.New("invitation service: db is required")
	}

	service := &InvitationService{
		db:          db,
		mailer:      mailer,
		expiry:      defaultInvitationExpiry,
		tokenLength: defaultTokenBytes,
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

// IssueInvitationInput describes the payload accepted by Issue.
type IssueInvitationInput struct {
	Email     string
	RoleID    string
	InvitedBy string
}

// InvitationView is the public-safe projection served to the invitation
// landing page. It never exposes the role's permission list.
type InvitationView struct {
	Email       string    `json:"email"`
	RoleName    string    `json:"role_name"`
	InviterName string    `json:"inviter_name,omitempty"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Issue creates a pending invitation and dispatches the token by email.
// Delivery is treated as part of the logical operation: when the mailer fails
// the invitation is cancelled rather than left as an unredeemable pending row.
func (s *InvitationService) Issue(ctx context.Context, input IssueInvitationInput) (*models.Invitation, string, error) {
	ctx = ensureContext(ctx)

	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" {
		return nil, "", apperrors.NewBadRequest("email is required")
	}
	invitedBy := strings.TrimSpace(input.InvitedBy)
	if invitedBy == "" {
		return nil, "", apperrors.NewBadRequest("inviter is required")
	}

	var role models.Role
	if err := s.db.WithContext(ctx).First(&role, "id = ?", strings.TrimSpace(input.RoleID)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", ErrRoleNotFound
		}
		return nil, "", fmt.Errorf("invitation service: load role: %w", err)
	}

	var existing int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("email = ?", email).
		Count(&existing).Error; err != nil {
		return nil, "", fmt.Errorf("invitation service: check email: %w", err)
	}
	if existing > 0 {
		metrics.InvitationsIssued.WithLabelValues("failure").Inc()
		return nil, "", ErrUserExists
	}

	rawToken, err := crypto.GenerateToken(s.tokenLength)
	if err != nil {
		return nil, "", fmt.Errorf("invitation service: generate token: %w", err)
	}

	now := s.now()
	invitation := models.Invitation{
		Email:       email,
		RoleID:      role.ID,
		InvitedBy:   invitedBy,
		TokenDigest: crypto.TokenDigest(rawToken),
		Status:      models.InvitationPending,
		ExpiresAt:   now.Add(s.expiry),
	}

	if err := s.db.WithContext(ctx).Create(&invitation).Error; err != nil {
		metrics.InvitationsIssued.WithLabelValues("failure").Inc()
		return nil, "", fmt.Errorf("invitation service: create invitation: %w", err)
	}
	invitation.Role = &role

	if err := s.deliver(ctx, &invitation, role.DisplayName, rawToken); err != nil {
		// Leave no dangling pending row the invitee can never redeem.
		cancelErr := s.forceCancel(ctx, invitation.ID)
		metrics.InvitationsIssued.WithLabelValues("failure").Inc()
		return nil, "", multierr.Append(
			fmt.Errorf("invitation service: send email: %w", err),
			cancelErr,
		)
	}

	metrics.InvitationsIssued.WithLabelValues("success").Inc()
	return &invitation, rawToken, nil
}

// Lookup returns the public projection for a token. Expired invitations are
// returned as pending so the caller can render the expiry itself.
func (s *InvitationService) Lookup(ctx context.Context, token string) (*InvitationView, error) {
	invitation, err := s.findByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	view := &InvitationView{
		Email:     invitation.Email,
		Status:    invitation.Status,
		CreatedAt: invitation.CreatedAt,
		ExpiresAt: invitation.ExpiresAt,
	}
	if invitation.Role != nil {
		view.RoleName = invitation.Role.DisplayName
	}

	var inviter models.User
	err = s.db.WithContext(ensureContext(ctx)).
		Select("display_name", "username").
		First(&inviter, "id = ?", invitation.InvitedBy).Error
	if err == nil {
		view.InviterName = inviter.DisplayName
		if view.InviterName == "" {
			view.InviterName = inviter.Username
		}
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("invitation service: load inviter: %w", err)
	}

	return view, nil
}

// ValidateForRedemption is the single authoritative gate in front of the
// accepted transition. The provisioner propagates its errors unchanged.
func (s *InvitationService) ValidateForRedemption(ctx context.Context, token string) (*models.Invitation, error) {
	invitation, err := s.findByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	switch invitation.Status {
	case models.InvitationAccepted, models.InvitationCancelled:
		metrics.InvitationsRedeemed.WithLabelValues("consumed").Inc()
		return nil, ErrInvitationConsumed
	}

	if invitation.Expired(s.now()) {
		metrics.InvitationsRedeemed.WithLabelValues("expired").Inc()
		return nil, ErrInvitationExpired
	}

	return invitation, nil
}

// Cancel revokes a pending invitation. Cancelling an already-cancelled
// invitation is a no-op success so duplicate admin requests stay harmless.
func (s *InvitationService) Cancel(ctx context.Context, invitationID, cancelledBy string) error {
	ctx = ensureContext(ctx)

	var invitation models.Invitation
	if err := s.db.WithContext(ctx).First(&invitation, "id = ?", strings.TrimSpace(invitationID)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInvitationNotFound
		}
		return fmt.Errorf("invitation service: load invitation: %w", err)
	}

	switch invitation.Status {
	case models.InvitationCancelled:
		return nil
	case models.InvitationAccepted:
		return ErrInvitationInvalidState
	}

	now := s.now()
	updates := map[string]any{"status": models.InvitationCancelled, "cancelled_at": now}
	if actor := strings.TrimSpace(cancelledBy); actor != "" {
		updates["cancelled_by"] = actor
	}
	result := s.db.WithContext(ctx).Model(&models.Invitation{}).
		Where("id = ? AND status = ?", invitation.ID, models.InvitationPending).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("invitation service: cancel invitation: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		// Lost a race against acceptance or another cancel; re-read to decide.
		if err := s.db.WithContext(ctx).First(&invitation, "id = ?", invitation.ID).Error; err != nil {
			return fmt.Errorf("invitation service: reload invitation: %w", err)
		}
		if invitation.Status == models.InvitationCancelled {
			return nil
		}
		return ErrInvitationInvalidState
	}

	metrics.InvitationsCancelled.Inc()
	return nil
}

// Resend rotates the token of a still-pending invitation, extends its expiry
// and dispatches a fresh email.
func (s *InvitationService) Resend(ctx context.Context, invitationID string) (*models.Invitation, string, error) {
	ctx = ensureContext(ctx)

	var invitation models.Invitation
	err := s.db.WithContext(ctx).Preload("Role").First(&invitation, "id = ?", strings.TrimSpace(invitationID)).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", ErrInvitationNotFound
		}
		return nil, "", fmt.Errorf("invitation service: load invitation: %w", err)
	}

	if invitation.Status != models.InvitationPending {
		return nil, "", ErrInvitationInvalidState
	}

	rawToken, err := crypto.GenerateToken(s.tokenLength)
	if err != nil {
		return nil, "", fmt.Errorf("invitation service: generate token: %w", err)
	}

	now := s.now()
	expiresAt := now.Add(s.expiry)
	result := s.db.WithContext(ctx).Model(&models.Invitation{}).
		Where("id = ? AND status = ?", invitation.ID, models.InvitationPending).
		Updates(map[string]any{
			"token_digest": crypto.TokenDigest(rawToken),
			"expires_at":   expiresAt,
		})
	if result.Error != nil {
		return nil, "", fmt.Errorf("invitation service: rotate token: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, "", ErrInvitationInvalidState
	}

	invitation.TokenDigest = crypto.TokenDigest(rawToken)
	invitation.ExpiresAt = expiresAt

	roleName := ""
	if invitation.Role != nil {
		roleName = invitation.Role.DisplayName
	}
	if err := s.deliver(ctx, &invitation, roleName, rawToken); err != nil {
		return nil, "", fmt.Errorf("invitation service: send email: %w", err)
	}

	return &invitation, rawToken, nil
}

// List returns invitations filtered by derived status and optional email search.
func (s *InvitationService) List(ctx context.Context, status, search string) ([]models.Invitation, error) {
	ctx = ensureContext(ctx)

	query := s.db.WithContext(ctx).Model(&models.Invitation{}).Preload("Role").Order("created_at DESC")

	now := s.now()
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "", "all":
	// The boundary matches Invitation.Expired: a row is pending up to and
	// including its deadline, expired strictly after it.
	case models.InvitationPending:
		query = query.Where("status = ? AND expires_at >= ?", models.InvitationPending, now)
	case "expired":
		query = query.Where("status = ? AND expires_at < ?", models.InvitationPending, now)
	case models.InvitationAccepted:
		query = query.Where("status = ?", models.InvitationAccepted)
	case models.InvitationCancelled:
		query = query.Where("status = ?", models.InvitationCancelled)
	default:
		return nil, apperrors.NewBadRequest(fmt.Sprintf("unknown invitation status filter %q", status))
	}

	if search = strings.TrimSpace(search); search != "" {
		query = query.Where("email LIKE ?", "%"+strings.ToLower(search)+"%")
	}

	var invitations []models.Invitation
	if err := query.Find(&invitations).Error; err != nil {
		return nil, fmt.Errorf("invitation service: list invitations: %w", err)
	}
	return invitations, nil
}

func (s *InvitationService) findByToken(ctx context.Context, token string) (*models.Invitation, error) {
	ctx = ensureContext(ctx)

	token = strings.TrimSpace(token)
	if token == "" {
		return nil, apperrors.NewBadRequest("token is required")
	}

	var invitation models.Invitation
	err := s.db.WithContext(ctx).
		Preload("Role.Permissions").
		Where("token_digest = ?", crypto.TokenDigest(token)).
		First(&invitation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvitationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("invitation service: find invitation: %w", err)
	}
	return &invitation, nil
}

// forceCancel transitions an invitation to cancelled regardless of expiry,
// used when issuance fails after the row was committed.
func (s *InvitationService) forceCancel(ctx context.Context, invitationID string) error {
	now := s.now()
	err := s.db.WithContext(ensureContext(ctx)).Model(&models.Invitation{}).
		Where("id = ? AND status = ?", invitationID, models.InvitationPending).
		Updates(map[string]any{"status": models.InvitationCancelled, "cancelled_at": now}).Error
	if err != nil {
		return fmt.Errorf("invitation service: cancel after delivery failure: %w", err)
	}
	return nil
}

func (s *InvitationService) deliver(ctx context.Context, invitation *models.Invitation, roleName, rawToken string) error {
	if s.mailer == nil {
		return nil
	}

	message := mail.Message{
		To:      []string{invitation.Email},
		Subject: "You're invited",
		Body:    s.invitationBody(roleName, s.invitationLink(rawToken), invitation.ExpiresAt),
	}
	if err := s.mailer.Send(ctx, message); err != nil && !errors.Is(err, mail.ErrSMTPDisabled) {
		return err
	}
	return nil
}

func (s *InvitationService) invitationLink(token string) string {
	if s.baseURL == "" {
		return token
	}
	return fmt.Sprintf("%s?token=%s", s.baseURL, token)
}

func (s *InvitationService) invitationBody(roleName, link string, expiresAt time.Time) string {
	if roleName == "" {
		roleName = "a role"
	}
	return fmt.Sprintf(
		"Hello,\n\nYou have been invited to join as %s. Use the following link to accept your invitation before %s:\n%s\n\nIf you did not expect this email, you can ignore it.\n",
		roleName, expiresAt.Format(time.RFC1123), link,
	)
}
