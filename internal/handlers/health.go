package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/castellan-dev/castellan/pkg/response"
)

// Health reports readiness, including database connectivity when a handle is provided.
func Health(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := gin.H{"status": "ok"}

		if db != nil {
			sqlDB, err := db.DB()
			if err == nil {
				err = sqlDB.PingContext(requestContext(c))
			}
			if err != nil {
				status["status"] = "degraded"
				status["database"] = "unreachable"
				response.Success(c, http.StatusServiceUnavailable, status)
				return
			}
			status["database"] = "ok"
		}

		response.Success(c, http.StatusOK, status)
	}
}
