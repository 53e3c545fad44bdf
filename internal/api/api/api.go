package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/ginext"

	"eventsphere/cmd/middleware"
	"eventsphere/internal/auth"
	"eventsphere/internal/metrics"
	"eventsphere/internal/service"
)

type Routers struct {
	Events        *service.EventService
	Registrations *service.RegistrationService
	Verifier      auth.Verifier
	Log           *zerolog.Logger
	GinMode       string
}

func NewRouters(r *Routers) *ginext.Engine {
	mode := r.GinMode
	if mode == "" {
		mode = "release"
	}
	app := ginext.New(mode)

	app.Use(gin.Recovery())
	app.Use(middleware.LoggingMiddleware(r.Log))
	app.Use(cors.New(cors.Config{
		AllowAllOrigins:  true,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Content-Type", "Authorization", "X-Requested-With"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	app.GET("/", r.health)
	app.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})))

	v1 := app.Group("/v1")
	v1.GET("/events", r.listEvents)
	v1.GET("/events/:id", r.getEvent)

	authed := v1.Group("", middleware.Auth(r.Verifier))
	authed.POST("/events", middleware.RequireRole(auth.RoleOrganizer), r.createEvent)
	authed.PUT("/events/:id", middleware.RequireRole(auth.RoleOrganizer), r.updateEvent)
	authed.DELETE("/events/:id", middleware.RequireRole(auth.RoleAdmin), r.deleteEvent)

	authed.POST("/events/:id/register", r.register)
	authed.GET("/events/:id/participants", middleware.RequireRole(auth.RoleOrganizer, auth.RoleAdmin), r.participants)
	authed.GET("/me/events", r.myEvents)

	admin := authed.Group("/admin", middleware.RequireRole(auth.RoleAdmin))
	admin.GET("/stats", r.stats)
	admin.POST("/reconcile", r.reconcile)

	return app
}
