package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/castellan-dev/castellan/internal/middleware"
	"github.com/castellan-dev/castellan/internal/models"
	"github.com/castellan-dev/castellan/internal/services"
	appErrors "github.com/castellan-dev/castellan/pkg/errors"
	"github.com/castellan-dev/castellan/pkg/response"
)

// InvitationHandler exposes the invitation lifecycle: the authenticated admin
// surface and the public token endpoints used by invitees.
type InvitationHandler struct {
	invitations *services.InvitationService
	provisioner *services.ProvisioningService
}

// NewInvitationHandler constructs an InvitationHandler.
func NewInvitationHandler(invitations *services.InvitationService, provisioner *services.ProvisioningService) *InvitationHandler {
	return &InvitationHandler{invitations: invitations, provisioner: provisioner}
}

type createInvitationRequest struct {
	Email  string `json:"email" validate:"required,email"`
	RoleID string `json:"role_id" validate:"required"`
}

type acceptInvitationRequest struct {
	Token       string `json:"token" validate:"required"`
	Username    string `json:"username" validate:"required,min=3,max=64"`
	Password    string `json:"password" validate:"required,min=8"`
	DisplayName string `json:"display_name" validate:"omitempty,max=128"`
}

type invitationDTO struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	RoleID      string     `json:"role_id"`
	RoleName    string     `json:"role_name,omitempty"`
	InvitedBy   string     `json:"invited_by"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   time.Time  `json:"expires_at"`
	AcceptedAt  *time.Time `json:"accepted_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	CancelledBy *string    `json:"cancelled_by,omitempty"`
}

func toInvitationDTO(invitation *models.Invitation, now time.Time) invitationDTO {
	dto := invitationDTO{
		ID:          invitation.ID,
		Email:       invitation.Email,
		RoleID:      invitation.RoleID,
		InvitedBy:   invitation.InvitedBy,
		Status:      invitation.Status,
		CreatedAt:   invitation.CreatedAt,
		ExpiresAt:   invitation.ExpiresAt,
		AcceptedAt:  invitation.AcceptedAt,
		CancelledAt: invitation.CancelledAt,
		CancelledBy: invitation.CancelledBy,
	}
	if invitation.Role != nil {
		dto.RoleName = invitation.Role.DisplayName
	}
	if invitation.Expired(now) {
		dto.Status = "expired"
	}
	return dto
}

// POST /api/invitations
func (h *InvitationHandler) Create(c *gin.Context) {
	adminID := c.GetString(middleware.CtxUserIDKey)
	if adminID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req createInvitationRequest
	if !bindAndValidate(c, &req) {
		return
	}

	invitation, token, err := h.invitations.Issue(requestContext(c), services.IssueInvitationInput{
		Email:     req.Email,
		RoleID:    req.RoleID,
		InvitedBy: adminID,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	// The raw token appears once in this response and is never retrievable again.
	response.Success(c, http.StatusCreated, gin.H{
		"invitation": toInvitationDTO(invitation, time.Now()),
		"token":      token,
	})
}

// GET /api/invitations
func (h *InvitationHandler) List(c *gin.Context) {
	invitations, err := h.invitations.List(requestContext(c), c.Query("status"), c.Query("search"))
	if err != nil {
		response.Error(c, err)
		return
	}

	now := time.Now()
	dtos := make([]invitationDTO, 0, len(invitations))
	for i := range invitations {
		dtos = append(dtos, toInvitationDTO(&invitations[i], now))
	}
	response.Success(c, http.StatusOK, gin.H{"invitations": dtos})
}

// DELETE /api/invitations/:id
func (h *InvitationHandler) Cancel(c *gin.Context) {
	adminID := c.GetString(middleware.CtxUserIDKey)
	if err := h.invitations.Cancel(requestContext(c), c.Param("id"), adminID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"cancelled": true})
}

// POST /api/invitations/:id/resend
func (h *InvitationHandler) Resend(c *gin.Context) {
	invitation, token, err := h.invitations.Resend(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{
		"invitation": toInvitationDTO(invitation, time.Now()),
		"token":      token,
	})
}

// GET /api/invite?token=...
//
// Public landing page lookup. Serves only the invitee-safe projection.
func (h *InvitationHandler) Lookup(c *gin.Context) {
	view, err := h.invitations.Lookup(requestContext(c), c.Query("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"invitation": view})
}

// POST /api/invite/accept
//
// Public redemption endpoint: provisions the account and consumes the token.
func (h *InvitationHandler) Accept(c *gin.Context) {
	var req acceptInvitationRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.provisioner.AcceptInvitation(requestContext(c), services.AcceptInvitationInput{
		Token:       req.Token,
		Username:    req.Username,
		Password:    req.Password,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"user": user})
}
