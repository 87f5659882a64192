package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joshu-sajeev/previewq/internal/app"
	"github.com/joshu-sajeev/previewq/internal/logger"
	"github.com/joshu-sajeev/previewq/internal/metrics"
	"github.com/joshu-sajeev/previewq/internal/queue"
	"github.com/joshu-sajeev/previewq/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

const requestTimeout = 2 * time.Minute

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx)
	if err != nil {
		logger.Default().Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer a.Close()
	log := logger.Default()

	r := gin.New()
	r.Use(
		gin.Recovery(),
		middleware.RequestID(),
		metrics.GinMiddleware(),
		middleware.TimeoutMiddleware(requestTimeout),
		middleware.ErrorHandler(),
	)

	r.GET("/health", healthHandler(a.DB))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	queue.NewQueueHandler(a.Manager, a.Config.PIDFile).RegisterRoutes(r)

	srv := &http.Server{
		Addr:              a.Config.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown failed", "error", err)
	}
}

func healthHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
