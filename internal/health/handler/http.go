// Package handler exposes the health check endpoint.
package handler

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const pingTimeout = 2 * time.Second

// Handler answers liveness/readiness probes.
type Handler struct {
	db *sql.DB
}

// NewHandler returns a Handler over the given database handle. db may be nil;
// the check then reports ok without a dependency probe.
func NewHandler(db *sql.DB) *Handler {
	return &Handler{db: db}
}

// Register mounts the health route on the engine.
func (h *Handler) Register(r *gin.Engine) {
	r.GET("/healthz", h.check)
}

func (h *Handler) check(c *gin.Context) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), pingTimeout)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": "unreachable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
