package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/castellan-dev/castellan/internal/models"
)

var middlewareDBCounter atomic.Int64

func openMiddlewareTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:middleware_test_%d?mode=memory&cache=shared", middlewareDBCounter.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}))
	return db
}

func newPrincipalRouter(db *gorm.DB, permission string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	group := r.Group("/api")
	group.Use(Principal(db))
	group.GET("/guarded", RequirePermission(permission), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": c.GetString(CtxUserIDKey)})
	})
	return r
}

func TestPrincipalRejectsMissingHeader(t *testing.T) {
	db := openMiddlewareTestDB(t)
	router := newPrincipalRouter(db, "user.view")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/guarded", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPrincipalRejectsUnknownUser(t *testing.T) {
	db := openMiddlewareTestDB(t)
	router := newPrincipalRouter(db, "user.view")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/guarded", nil)
	req.Header.Set(AdminIDHeader, "nobody")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPrincipalRejectsDeactivatedUser(t *testing.T) {
	db := openMiddlewareTestDB(t)
	user := &models.User{
		Username: "ghost",
		Email:    "ghost@example.com",
		Password: "hashed",
		IsActive: false,
	}
	require.NoError(t, db.Create(user).Error)

	router := newPrincipalRouter(db, "user.view")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/guarded", nil)
	req.Header.Set(AdminIDHeader, user.ID)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestRequirePermissionChecksSnapshot(t *testing.T) {
	db := openMiddlewareTestDB(t)
	user := &models.User{
		Username:             "admin",
		Email:                "admin@example.com",
		Password:             "hashed",
		EffectivePermissions: datatypes.NewJSONSlice([]string{"user.view"}),
		IsActive:             true,
	}
	require.NoError(t, db.Create(user).Error)

	allowed := newPrincipalRouter(db, "user.view")
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/guarded", nil)
	req.Header.Set(AdminIDHeader, user.ID)
	allowed.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	denied := newPrincipalRouter(db, "role.manage")
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/guarded", nil)
	req.Header.Set(AdminIDHeader, user.ID)
	denied.ServeHTTP(w, req)
	require.Equal(t, http.StatusForbidden, w.Code)
}
