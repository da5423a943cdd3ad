package httptransport

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	sloggin "github.com/samber/slog-gin"

	"github.com/relaypub/scheduler/internal/transport/http/handler"
	"github.com/relaypub/scheduler/internal/transport/http/middleware"
)

// NewRouter wires the operator-facing surface: a Basic-Auth-gated
// schedule submission endpoint, a JWT-gated endpoint for forwarded
// service-to-service calls, and unauthenticated health checks.
func NewRouter(logger *slog.Logger, scheduleHandler *handler.ScheduleHandler, healthHandler *handler.HealthHandler, apiUsername, apiPassword string, jwtKey []byte) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(sloggin.New(logger))
	r.Use(middleware.Metrics())

	r.GET("/healthz", healthHandler.Liveness)
	r.GET("/readyz", healthHandler.Readiness)

	tasks := r.Group("/tasks", middleware.BasicAuth(apiUsername, apiPassword))
	tasks.POST("", scheduleHandler.Submit)

	internal := r.Group("/internal/tasks", middleware.Auth(jwtKey))
	internal.POST("", scheduleHandler.Submit)

	return r
}
