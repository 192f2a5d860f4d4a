package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/castellan-dev/castellan/internal/models"
	appErrors "github.com/castellan-dev/castellan/pkg/errors"
	"github.com/castellan-dev/castellan/pkg/metrics"
	"github.com/castellan-dev/castellan/pkg/response"
)

// Context keys populated by Principal.
const (
	CtxUserIDKey = "user_id"
	CtxUserKey   = "user"
)

// AdminIDHeader names the header carrying the acting administrator's user id.
// Authentication itself happens upstream; this service trusts the header the
// gateway sets after verifying the session.
const AdminIDHeader = "X-Admin-ID"

// Principal resolves the acting user from the admin header and stores it on
// the request context. Unknown or deactivated accounts are rejected.
func Principal(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(AdminIDHeader))
		if userID == "" {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		var user models.User
		err := db.WithContext(c.Request.Context()).First(&user, "id = ?", userID).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				response.Error(c, appErrors.ErrUnauthorized)
			} else {
				response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
			}
			c.Abort()
			return
		}
		if !user.IsActive {
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}

		c.Set(CtxUserIDKey, user.ID)
		c.Set(CtxUserKey, &user)
		c.Next()
	}
}

// RequirePermission checks the acting user's permission snapshot for the named
// capability. It must run after Principal.
func RequirePermission(permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		v, ok := c.Get(CtxUserKey)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		user, _ := v.(*models.User)
		if user == nil || !user.HasPermission(permission) {
			metrics.PermissionChecks.WithLabelValues(permission, "denied").Inc()
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}
		metrics.PermissionChecks.WithLabelValues(permission, "allowed").Inc()
		c.Next()
	}
}
