package v1

import (
	"github.com/gin-gonic/gin"

	"go_hostpanel/api/v1/governance"
	"go_hostpanel/api/v1/middleware"
	"go_hostpanel/api/v1/migrations"
	"go_hostpanel/api/v1/services"
	"go_hostpanel/internal/auth"
	core "go_hostpanel/internal/governance"
	"go_hostpanel/internal/httpx"
)

// RoleAdmin may terminate services
const RoleAdmin = "admin"

// Deps are the components the API is built on
type Deps struct {
	Signer       *auth.Signer
	Registry     *core.Registry
	Dispatcher   *core.Dispatcher
	Orchestrator services.Orchestrator
	Services     services.Reader
	Migrations   migrations.Runner
}

// SetupRouter sets up the API v1 routes
func SetupRouter(r *gin.Engine, d Deps) {
	v1 := r.Group("/api/v1")
	v1.GET("/ping", pingHandler)

	protected := v1.Group("")
	protected.Use(middleware.AuthRequired(d.Signer))
	protected.GET("/me", meHandler)

	gov := governance.NewHandler(d.Dispatcher, d.Registry)
	govGroup := protected.Group("/governance")
	{
		govGroup.GET("/actions", gov.Actions)
		govGroup.POST("/prepare", gov.Prepare)
		govGroup.POST("/confirm", gov.Confirm)
		govGroup.POST("/:id/cancel", gov.Cancel)
		govGroup.GET("/:id", gov.Get)
	}

	svc := services.NewHandler(d.Orchestrator, d.Services)
	svcGroup := protected.Group("/services")
	{
		svcGroup.GET("", svc.List)
		svcGroup.POST("", svc.Create)
		svcGroup.GET("/:id", svc.Get)
		svcGroup.GET("/:id/logs", svc.Logs)
		svcGroup.POST("/:id/terminate/prepare", middleware.RequireRole(RoleAdmin), svc.TerminatePrepare)
		svcGroup.POST("/:id/terminate/confirm", middleware.RequireRole(RoleAdmin), svc.TerminateConfirm)
	}

	mig := migrations.NewHandler(d.Migrations)
	migGroup := protected.Group("/migrations")
	{
		migGroup.POST("", mig.Create)
		migGroup.GET("/:id", mig.Get)
		migGroup.POST("/:id/plan", mig.Plan)
		migGroup.POST("/:id/run-next", mig.RunNext)
		migGroup.POST("/:id/steps/:stepId/retry", mig.Retry)
	}
}

func pingHandler(c *gin.Context) {
	httpx.OK(c, gin.H{"pong": true})
}

func meHandler(c *gin.Context) {
	httpx.OK(c, middleware.Actor(c, ""))
}
