package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"transit/internal/auth"
	"transit/internal/logger"
	"transit/internal/metrics"
	"transit/internal/roster"
)

// RouterOptions holds the pieces of the router that depend on deployment.
type RouterOptions struct {
	// LoginLimit guards both login endpoints when set.
	LoginLimit gin.HandlerFunc
	// AccessLog enables gin's request logger.
	AccessLog bool
}

// NewRouter wires every route onto a fresh gin engine.
func NewRouter(h *Handler, opts RouterOptions) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if opts.AccessLog {
		r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
			SkipPaths: []string{"/healthz", "/metrics"},
		}))
	}
	r.Use(requestContext())
	r.Use(metrics.GinMiddleware())
	r.Use(corsMiddleware())
	r.Use(securityHeaders())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", h.Health)

	login := []gin.HandlerFunc{}
	if opts.LoginLimit != nil {
		login = append(login, opts.LoginLimit)
	}
	r.POST("/v1/auth/login", append(login, h.Login)...)
	r.POST("/v1/auth/driver/login", append(login, h.DriverLogin)...)

	v1 := r.Group("/v1", auth.SessionAuth(h.JWTSigningKey, h.JWTIssuer))
	v1.GET("/session", h.Session)
	v1.GET("/qr/me", h.MyQR)
	v1.GET("/qr/bus/:bus_id", h.BusQR)

	riders := v1.Group("", auth.RequireRole(roster.RoleStudent, roster.RoleStaff))
	riders.POST("/scans", h.SelfScan)
	riders.GET("/scans/today", h.MyScans)

	drivers := v1.Group("/driver", auth.RequireRole(roster.RoleDriver))
	drivers.POST("/scans", h.DriverScan)
	drivers.GET("/manifest", h.DriverManifest)

	admin := v1.Group("/admin", auth.RequireRole(roster.RoleAdmin))
	admin.GET("/manifest/:bus_id", h.AdminManifest)
	admin.GET("/roster/:role", h.ListRoster)
	admin.POST("/import", h.Import)
	admin.GET("/attendance/export", h.ExportAttendance)

	return r
}

// requestContext tags each request with an id and a logger carrying it.
func requestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Header("X-Request-ID", id)
		l := logger.With("request_id", id)
		c.Request = c.Request.WithContext(logger.ContextWithLogger(c.Request.Context(), l))
		c.Next()
	}
}

// CORS middleware for browser requests
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Request-ID")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		// Only add HSTS in production
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
