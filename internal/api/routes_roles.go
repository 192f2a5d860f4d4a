package api

import (
	"github.com/gin-gonic/gin"

	"github.com/castellan-dev/castellan/internal/handlers"
	"github.com/castellan-dev/castellan/internal/middleware"
)

func registerRoleRoutes(admin *gin.RouterGroup, handler *handlers.RoleHandler) {
	admin.GET("/permissions", middleware.RequirePermission("user.view"), handler.ListPermissions)

	roles := admin.Group("/roles")
	{
		roles.GET("", middleware.RequirePermission("user.view"), handler.List)
		roles.GET("/:id", middleware.RequirePermission("user.view"), handler.Get)
		roles.POST("", middleware.RequirePermission("role.manage"), handler.Create)
		roles.PATCH("/:id", middleware.RequirePermission("role.manage"), handler.Update)
		roles.DELETE("/:id", middleware.RequirePermission("role.manage"), handler.Delete)
	}
}
