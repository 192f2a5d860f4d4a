package api

import (
	"github.com/gin-gonic/gin"

	"github.com/castellan-dev/castellan/internal/handlers"
	"github.com/castellan-dev/castellan/internal/middleware"
)

func registerLedgerRoutes(admin *gin.RouterGroup, handler *handlers.LedgerHandler) {
	admin.GET("/ledger", middleware.RequirePermission("ledger.view"), handler.List)
}
