package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/castellan-dev/castellan/internal/models"
	"github.com/castellan-dev/castellan/pkg/crypto"
	appErrors "github.com/castellan-dev/castellan/pkg/errors"
	"github.com/castellan-dev/castellan/pkg/response"
)

// ErrAlreadyInitialized rejects bootstrap once any account exists.
var ErrAlreadyInitialized = appErrors.New("ALREADY_INITIALIZED", "System already initialized", http.StatusConflict)

// SetupHandler provisions the very first administrator. Every later account
// enters through an invitation; this endpoint only works on an empty system.
type SetupHandler struct {
	db *gorm.DB
}

// NewSetupHandler constructs a SetupHandler.
func NewSetupHandler(db *gorm.DB) *SetupHandler {
	return &SetupHandler{db: db}
}

type initializeRequest struct {
	Username    string `json:"username" validate:"required,min=3,max=64"`
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8"`
	DisplayName string `json:"display_name" validate:"omitempty,max=128"`
}

// GET /api/setup/status
func (h *SetupHandler) Status(c *gin.Context) {
	var count int64
	if err := h.db.WithContext(requestContext(c)).Model(&models.User{}).Count(&count).Error; err != nil {
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}
	response.Success(c, http.StatusOK, gin.H{"initialized": count > 0})
}

// POST /api/setup/initialize
func (h *SetupHandler) Initialize(c *gin.Context) {
	var req initializeRequest
	if !bindAndValidate(c, &req) {
		return
	}

	hashed, err := crypto.HashPassword(req.Password)
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}

	var user *models.User
	err = h.db.WithContext(requestContext(c)).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.User{}).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrAlreadyInitialized
		}

		var admin models.Role
		if err := tx.Preload("Permissions").First(&admin, "name = ?", "admin").Error; err != nil {
			return err
		}

		user = &models.User{
			Username:             req.Username,
			Email:                req.Email,
			Password:             hashed,
			DisplayName:          req.DisplayName,
			CurrentRole:          admin.Name,
			EffectivePermissions: datatypes.NewJSONSlice(admin.PermissionNames()),
			IsActive:             true,
		}
		if err := tx.Create(user).Error; err != nil {
			return err
		}

		// The first administrator has no inviter; the ledger credits the
		// account itself.
		entry := models.RoleAssignment{
			UserID:     user.ID,
			RoleID:     admin.ID,
			AssignedBy: user.ID,
			AssignedAt: user.CreatedAt,
		}
		return tx.Create(&entry).Error
	})
	if err != nil {
		var appErr *appErrors.AppError
		if errors.As(err, &appErr) {
			response.Error(c, appErr)
			return
		}
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"user": user})
}
