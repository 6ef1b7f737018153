// Package http exposes the worker's operational surface: liveness,
// readiness and run counters. It serves no business traffic.
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"paperco.app/intake/internal/worker"
)

// Pinger covers the dependencies readiness checks against. Both the pgx
// pool and the redis client satisfy it through small adapters in cmd.
type Pinger func(ctx context.Context) error

type Deps struct {
	DB      Pinger
	Redis   Pinger
	Metrics *worker.Metrics
}

func SetupRoutes(router *gin.Engine, deps Deps) {
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		checks := gin.H{}
		ready := true
		for name, ping := range map[string]Pinger{"db": deps.DB, "redis": deps.Redis} {
			if ping == nil {
				continue
			}
			if err := ping(ctx); err != nil {
				checks[name] = err.Error()
				ready = false
			} else {
				checks[name] = "ok"
			}
		}

		status := http.StatusOK
		if !ready {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"ready": ready, "checks": checks})
	})

	router.GET("/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, deps.Metrics.Snapshot())
	})
}
