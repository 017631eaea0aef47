// Package api serves the conversation and message endpoints of the CRM.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/zulandar/concierge/internal/events"
	"github.com/zulandar/concierge/internal/logger"
	"github.com/zulandar/concierge/internal/messaging"
)

// shutdownTimeout bounds graceful shutdown.
const shutdownTimeout = 10 * time.Second

// StartOpts holds configuration for the API server.
type StartOpts struct {
	Service        *messaging.Service
	DB             *gorm.DB // pinged by /healthz
	Hub            *events.Hub
	Port           int
	AllowedOrigins []string
	Logger         *logger.Logger
	Out            io.Writer
}

// NewRouter builds the gin engine with middleware and routes.
func NewRouter(opts StartOpts) (*gin.Engine, error) {
	if opts.Service == nil {
		return nil, fmt.Errorf("api: service is required")
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}

	router := gin.New()
	router.Use(requestID(), recovery(log), requestLogger(log), corsMiddleware(opts.AllowedOrigins))
	router.NoRoute(func(c *gin.Context) {
		respondError(c, http.StatusNotFound, codeNotFound, "route not found")
	})

	h := &handlers{svc: opts.Service, db: opts.DB, hub: opts.Hub, log: log}
	registerRoutes(router, h)
	return router, nil
}

// Start launches the API server. It blocks until ctx is cancelled, then
// shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Port <= 0 {
		opts.Port = 8080
	}
	gin.SetMode(gin.ReleaseMode)
	router, err := NewRouter(opts)
	if err != nil {
		return err
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown on context cancellation.
	go func() {
		<-ctx.Done()
		if opts.Hub != nil {
			opts.Hub.Close()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("api shutdown", "error", err)
		}
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Concierge API listening on http://localhost:%d\n", opts.Port)
	}
	log.Info("api listening", "port", opts.Port)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api: %w", err)
	}
	return nil
}
