package api

import (
	"github.com/gin-gonic/gin"

	"github.com/castellan-dev/castellan/internal/handlers"
	"github.com/castellan-dev/castellan/internal/middleware"
)

func registerUserRoutes(admin *gin.RouterGroup, handler *handlers.UserHandler) {
	users := admin.Group("/users")
	{
		users.GET("", middleware.RequirePermission("user.view"), handler.List)
		users.GET("/:id", middleware.RequirePermission("user.view"), handler.Get)
		users.PUT("/:id/role", middleware.RequirePermission("user.assign_role"), handler.AssignRole)
		users.POST("/bulk/role", middleware.RequirePermission("user.assign_role"), handler.BulkAssignRole)
	}
}
