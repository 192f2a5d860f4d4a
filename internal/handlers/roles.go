package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/castellan-dev/castellan/internal/services"
	"github.com/castellan-dev/castellan/pkg/response"
)

// RoleHandler exposes role catalog management endpoints.
type RoleHandler struct {
	roles *services.RoleService
}

// NewRoleHandler constructs a RoleHandler.
func NewRoleHandler(roles *services.RoleService) *RoleHandler {
	return &RoleHandler{roles: roles}
}

type createRoleRequest struct {
	Name        string   `json:"name" validate:"required,min=2,max=64"`
	DisplayName string   `json:"display_name" validate:"omitempty,max=128"`
	Description string   `json:"description" validate:"omitempty,max=512"`
	Permissions []string `json:"permissions" validate:"omitempty,dive,min=1"`
}

type updateRoleRequest struct {
	DisplayName *string   `json:"display_name" validate:"omitempty,max=128"`
	Description *string   `json:"description" validate:"omitempty,max=512"`
	Permissions *[]string `json:"permissions" validate:"omitempty,dive,min=1"`
}

// GET /api/roles
func (h *RoleHandler) List(c *gin.Context) {
	roles, err := h.roles.ListRoles(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"roles": roles})
}

// GET /api/roles/:id
func (h *RoleHandler) Get(c *gin.Context) {
	role, err := h.roles.GetRole(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"role": role})
}

// POST /api/roles
func (h *RoleHandler) Create(c *gin.Context) {
	var req createRoleRequest
	if !bindAndValidate(c, &req) {
		return
	}

	role, err := h.roles.CreateRole(requestContext(c), services.CreateRoleInput{
		Name:        req.Name,
		DisplayName: req.DisplayName,
		Description: req.Description,
		Permissions: req.Permissions,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"role": role})
}

// PATCH /api/roles/:id
func (h *RoleHandler) Update(c *gin.Context) {
	var req updateRoleRequest
	if !bindAndValidate(c, &req) {
		return
	}

	role, err := h.roles.UpdateRole(requestContext(c), c.Param("id"), services.UpdateRoleInput{
		DisplayName: req.DisplayName,
		Description: req.Description,
		Permissions: req.Permissions,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"role": role})
}

// DELETE /api/roles/:id
func (h *RoleHandler) Delete(c *gin.Context) {
	if err := h.roles.DeleteRole(requestContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// GET /api/permissions
func (h *RoleHandler) ListPermissions(c *gin.Context) {
	perms, err := h.roles.ListPermissions(requestContext(c), c.Query("category"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"permissions": perms})
}
