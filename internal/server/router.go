// Package server assembles the HTTP router.
package server

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/metric"

	healthhandler "rdx-auth/internal/health/handler"
	identityhandler "rdx-auth/internal/identity/handler"
	"rdx-auth/internal/server/middleware"
	userhandler "rdx-auth/internal/user/handler"
)

// Deps carries everything the router mounts.
type Deps struct {
	Users  *userhandler.Handler
	Auth   *identityhandler.Handler
	Health *healthhandler.Handler

	// Meter enables per-route request metrics when set.
	Meter metric.Meter
	// CORSOrigin restricts browser callers; empty allows any origin.
	CORSOrigin string
	// DevRoutes mounts the /dev group (plain verification codes).
	DevRoutes bool
}

// NewRouter builds the gin engine with middleware and all route groups.
func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RecordClientIP())
	r.Use(middleware.CORS(d.CORSOrigin))
	if d.Meter != nil {
		r.Use(middleware.Telemetry(d.Meter, map[string]bool{"/healthz": true}))
	}

	d.Health.Register(r)
	d.Users.Register(r.Group("/api/v1"))
	d.Auth.Register(r.Group("/auth"))
	if d.DevRoutes {
		d.Users.RegisterDev(r.Group("/dev"))
	}
	return r
}
