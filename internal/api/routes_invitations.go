package api

import (
	"github.com/gin-gonic/gin"

	"github.com/castellan-dev/castellan/internal/handlers"
	"github.com/castellan-dev/castellan/internal/middleware"
)

func registerInvitationRoutes(admin *gin.RouterGroup, handler *handlers.InvitationHandler) {
	invitations := admin.Group("/invitations")
	invitations.Use(middleware.RequirePermission("user.invite"))
	{
		invitations.GET("", handler.List)
		invitations.POST("", handler.Create)
		invitations.DELETE("/:id", handler.Cancel)
		invitations.POST("/:id/resend", handler.Resend)
	}
}
