package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/ginext"

	"festpass/cmd/middleware"
	"festpass/internal/auth"
	"festpass/internal/model"
	"festpass/internal/ratelimit"
	"festpass/internal/service"
)

type Routers struct {
	Service *service.Service
	Auth    *auth.Authenticator
	Limiter *ratelimit.Limiter
	// Gatherer backs GET /metrics; nil leaves the route out.
	Gatherer       prometheus.Gatherer
	AllowedOrigins []string
	Log            *zerolog.Logger
	Mode           string
}

func NewRouters(r *Routers) *ginext.Engine {
	mode := r.Mode
	if mode == "" {
		mode = "release"
	}
	app := ginext.New(mode)

	app.Use(middleware.LoggingMiddleware())
	app.Use(middleware.SecurityHeaders())
	app.Use(corsMiddleware(r.AllowedOrigins))

	h := &handlers{svc: r.Service, auth: r.Auth, log: r.Log}
	if h.log == nil {
		nop := zerolog.Nop()
		h.log = &nop
	}

	app.GET("/healthz", h.Health)
	if r.Gatherer != nil {
		app.GET("/metrics", gin.WrapH(promhttp.HandlerFor(r.Gatherer, promhttp.HandlerOpts{})))
	}

	apiGroup := app.Group("/v1")

	apiGroup.GET("/events", h.ListEvents)
	apiGroup.POST("/payment/create-order", r.Limiter.Guard(ratelimit.EndpointCreateOrder), h.CreateOrder)
	apiGroup.POST("/payment/verify", r.Limiter.Guard(ratelimit.EndpointVerifyPayment), h.VerifyPayment)
	apiGroup.GET("/registration/:ticketId", h.GetRegistration)

	apiGroup.POST("/admin/login", h.Login)

	tokens := r.Auth.Tokens()
	staff := apiGroup.Group("/admin", tokens.RequireStaff(model.RoleAdmin, model.RoleStaff))
	staff.POST("/check-in/:id", h.CheckIn)
	staff.POST("/check-in/ticket/:ticketId", h.CheckInByTicket)
	staff.POST("/registrations/:id/pass", h.RegeneratePass)

	admin := apiGroup.Group("/admin", tokens.RequireStaff(model.RoleAdmin))
	admin.GET("/registrations", h.ListRegistrations)
	admin.GET("/stats", h.Stats)

	return app
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	if len(origins) == 0 {
		return cors.Default()
	}
	cfg := cors.DefaultConfig()
	cfg.AllowOrigins = origins
	cfg.AddAllowHeaders("Authorization")
	return cors.New(cfg)
}
