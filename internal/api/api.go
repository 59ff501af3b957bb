// Package api exposes the instance registry over HTTP.
//
// Routes live under /sipp/instances. Every asynchronous instance operation
// is awaited up to the configured wait so callers get the outcome in the
// response.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/randomizedcoder/go-sipp-swarm/internal/instance"
	"github.com/randomizedcoder/go-sipp-swarm/internal/sched"
	"github.com/randomizedcoder/go-sipp-swarm/internal/supervisor"
)

// DefaultWait bounds how long a request waits for an operation.
const DefaultWait = 15 * time.Second

// Config configures the HTTP facade.
type Config struct {
	Registry *instance.Registry
	Logger   *slog.Logger

	// Wait bounds each awaited operation. Defaults to DefaultWait.
	Wait time.Duration

	// OnRemove is called after an instance is removed.
	OnRemove func(name string)
}

// Handler serves the REST routes.
type Handler struct {
	registry *instance.Registry
	logger   *slog.Logger
	wait     time.Duration
	onRemove func(string)
	engine   *gin.Engine
}

// New builds the router.
func New(cfg Config) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Wait <= 0 {
		cfg.Wait = DefaultWait
	}

	h := &Handler{
		registry: cfg.Registry,
		logger:   cfg.Logger,
		wait:     cfg.Wait,
		onRemove: cfg.OnRemove,
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), h.logRequests())

	g := engine.Group("/sipp/instances")
	g.GET("", h.list)
	g.POST("", h.create)

	one := g.Group("/:id", h.lookup)
	one.GET("", h.get)
	one.DELETE("", h.remove)
	one.POST("/start", h.start)
	one.POST("/stop", h.stop)
	one.GET("/rate", h.getRate)
	one.PUT("/rate", h.setRate)
	one.POST("/rate/increase10", h.increase10)
	one.POST("/rate/decrease10", h.decrease10)
	one.POST("/pause", h.pause)
	one.GET("/stats", h.stats)
	one.DELETE("/files", h.cleanUp)

	h.engine = engine
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.engine.ServeHTTP(w, r)
}

// logRequests logs every request once it completes.
func (h *Handler) logRequests() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()

		level := slog.LevelDebug
		if err := ctx.Errors.Last(); err != nil || ctx.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		h.logger.Log(ctx.Request.Context(), level, "api_request",
			"method", ctx.Request.Method,
			"path", ctx.FullPath(),
			"status", ctx.Writer.Status(),
			"latency", time.Since(start),
			"client_ip", ctx.ClientIP(),
		)
	}
}

// errorResponse is the body of every failed request.
type errorResponse struct {
	Error string `json:"error"`
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, instance.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, instance.ErrInvalidSpec),
		errors.Is(err, supervisor.ErrInvalidRate):
		return http.StatusBadRequest
	case errors.Is(err, instance.ErrNotStarted),
		errors.Is(err, instance.ErrNeverStarted),
		errors.Is(err, instance.ErrStillRunning),
		errors.Is(err, instance.ErrActive),
		errors.Is(err, instance.ErrDuplicateID),
		errors.Is(err, supervisor.ErrNotRunning):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(ctx *gin.Context, err error) {
	_ = ctx.Error(err)
	ctx.AbortWithStatusJSON(statusFor(err), errorResponse{Error: err.Error()})
}

// await waits for f bounded by the request context and the configured wait.
func (h *Handler) await(ctx *gin.Context, f *sched.Future[*instance.Instance]) (*instance.Instance, error) {
	waitCtx, cancel := context.WithTimeout(ctx.Request.Context(), h.wait)
	defer cancel()
	return f.Wait(waitCtx)
}
