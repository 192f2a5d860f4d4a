package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/castellan-dev/castellan/internal/middleware"
	"github.com/castellan-dev/castellan/internal/models"
	"github.com/castellan-dev/castellan/internal/services"
	appErrors "github.com/castellan-dev/castellan/pkg/errors"
	"github.com/castellan-dev/castellan/pkg/response"
)

// UserHandler exposes account listing and direct role assignment.
type UserHandler struct {
	db          *gorm.DB
	assignments *services.AssignmentService
}

// NewUserHandler constructs a UserHandler.
func NewUserHandler(db *gorm.DB, assignments *services.AssignmentService) *UserHandler {
	return &UserHandler{db: db, assignments: assignments}
}

type assignRoleRequest struct {
	RoleID string `json:"role_id" validate:"required"`
	Notify bool   `json:"notify"`
}

type bulkAssignRequest struct {
	UserIDs []string `json:"user_ids" validate:"required,min=1,dive,min=1"`
	RoleID  string   `json:"role_id" validate:"required"`
}

// GET /api/users
func (h *UserHandler) List(c *gin.Context) {
	query := h.db.WithContext(requestContext(c)).Model(&models.User{}).Order("username ASC")

	if search := strings.TrimSpace(c.Query("search")); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		query = query.Where("username LIKE ? OR email LIKE ?", like, like)
	}
	if role := strings.TrimSpace(c.Query("role")); role != "" {
		query = query.Where("current_role = ?", role)
	}

	var users []models.User
	if err := query.Find(&users).Error; err != nil {
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}
	response.Success(c, http.StatusOK, gin.H{"users": users})
}

// GET /api/users/:id
func (h *UserHandler) Get(c *gin.Context) {
	var user models.User
	err := h.db.WithContext(requestContext(c)).First(&user, "id = ?", c.Param("id")).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.Error(c, services.ErrUserNotFound)
			return
		}
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}
	response.Success(c, http.StatusOK, gin.H{"user": user})
}

// PUT /api/users/:id/role
func (h *UserHandler) AssignRole(c *gin.Context) {
	var req assignRoleRequest
	if !bindAndValidate(c, &req) {
		return
	}

	err := h.assignments.Assign(requestContext(c), services.AssignRoleInput{
		UserID:     c.Param("id"),
		RoleID:     req.RoleID,
		AssignedBy: c.GetString(middleware.CtxUserIDKey),
		Notify:     req.Notify,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"assigned": true})
}

// POST /api/users/bulk/role
func (h *UserHandler) BulkAssignRole(c *gin.Context) {
	var req bulkAssignRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.assignments.BulkAssign(
		requestContext(c),
		req.UserIDs,
		req.RoleID,
		c.GetString(middleware.CtxUserIDKey),
	)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}
