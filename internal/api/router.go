package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/castellan-dev/castellan/internal/app"
	"github.com/castellan-dev/castellan/internal/handlers"
	"github.com/castellan-dev/castellan/internal/middleware"
	"github.com/castellan-dev/castellan/internal/services"
	"github.com/castellan-dev/castellan/pkg/mail"
)

// NewRouter builds the Gin engine, wires middleware and registers all routes.
func NewRouter(db *gorm.DB, cfg *app.Config, mailer mail.Mailer) (*gin.Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}

	roleSvc, err := services.NewRoleService(db)
	if err != nil {
		return nil, err
	}
	invitationSvc, err := services.NewInvitationService(db, mailer,
		services.WithInvitationBaseURL(inviteBaseURL(cfg)),
		services.WithInvitationExpiry(cfg.Invitations.Expiry),
		services.WithInvitationTokenSize(cfg.Invitations.TokenLength),
	)
	if err != nil {
		return nil, err
	}
	provisioningSvc, err := services.NewProvisioningService(db, invitationSvc)
	if err != nil {
		return nil, err
	}
	assignmentSvc, err := services.NewAssignmentService(db, mailer)
	if err != nil {
		return nil, err
	}
	ledgerSvc, err := services.NewLedgerService(db)
	if err != nil {
		return nil, err
	}

	r := gin.New()
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.NoRoute(middleware.NotFoundHandler)

	if cfg.Monitoring.Health.Enabled {
		r.GET("/api/health", handlers.Health(db))
	}
	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := cfg.Monitoring.Prometheus.Endpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	invitationHandler := handlers.NewInvitationHandler(invitationSvc, provisioningSvc)

	setupHandler := handlers.NewSetupHandler(db)

	// Public endpoints: first-run bootstrap plus invitee token lookup and redemption.
	public := r.Group("/api")
	{
		public.GET("/setup/status", setupHandler.Status)
		public.POST("/setup/initialize", setupHandler.Initialize)
		public.GET("/invite", invitationHandler.Lookup)
		public.POST("/invite/accept", invitationHandler.Accept)
	}

	// Administrative endpoints require a resolved principal.
	admin := r.Group("/api")
	admin.Use(middleware.Principal(db))

	registerRoleRoutes(admin, handlers.NewRoleHandler(roleSvc))
	registerInvitationRoutes(admin, invitationHandler)
	registerUserRoutes(admin, handlers.NewUserHandler(db, assignmentSvc))
	registerLedgerRoutes(admin, handlers.NewLedgerHandler(ledgerSvc))

	return r, nil
}

func inviteBaseURL(cfg *app.Config) string {
	if cfg.Server.BaseURL == "" {
		return ""
	}
	return cfg.Server.BaseURL + "/invite"
}
