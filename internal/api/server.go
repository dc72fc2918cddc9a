package api

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	apimw "github.com/sportarr/sportarr/internal/api/middleware"
	"github.com/sportarr/sportarr/internal/autosearch"
	"github.com/sportarr/sportarr/internal/config"
	"github.com/sportarr/sportarr/internal/customformat"
	"github.com/sportarr/sportarr/internal/downloader"
	"github.com/sportarr/sportarr/internal/history"
	"github.com/sportarr/sportarr/internal/importer"
	"github.com/sportarr/sportarr/internal/indexer"
	"github.com/sportarr/sportarr/internal/indexer/search"
	"github.com/sportarr/sportarr/internal/library"
	"github.com/sportarr/sportarr/internal/notification"
	"github.com/sportarr/sportarr/internal/quality"
	"github.com/sportarr/sportarr/internal/scheduler"
)

// Version is stamped at build time.
var Version = "dev"

// Deps carries the services the API exposes.
type Deps struct {
	Config        *config.Config
	Library       *library.Service
	Profiles      *quality.Service
	Formats       *customformat.Service
	Indexers      *indexer.Service
	Search        *search.Aggregator
	AutoSearch    *autosearch.Service
	Downloader    *downloader.Service
	History       *history.Service
	Importer      *importer.Service
	Notifications *notification.Service
	Scheduler     *scheduler.Scheduler
}

// Server handles HTTP requests for the Sportarr API.
type Server struct {
	echo   *echo.Echo
	deps   Deps
	logger zerolog.Logger
}

func NewServer(deps Deps, logger zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:   e,
		deps:   deps,
		logger: logger.With().Str("component", "api").Logger(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestID())
	s.echo.Use(apimw.SecurityHeaders())
	s.echo.Use(middleware.BodyLimit("2M"))

	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogMethod:   true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Err(v.Error).
					Msg("request error")
			} else {
				s.logger.Info().
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Msg("request")
			}
			return nil
		},
	}))

	s.echo.Use(middleware.GzipWithConfig(middleware.GzipConfig{Level: 5}))
}

func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)

	api := s.echo.Group("/api/v1")
	api.GET("/system/status", s.systemStatus)
	api.GET("/system/tasks", s.listTasks)
	api.POST("/system/tasks/:id/run", s.runTask)

	s.setupEventRoutes(api)
	s.setupSearchRoutes(api)
	s.setupQueueRoutes(api)
	s.setupSettingsRoutes(api)
}

// Start begins serving on addr and blocks until shutdown.
func (s *Server) Start(addr string) error {
	s.logger.Info().Str("addr", addr).Msg("Starting API server")
	if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Handler exposes the underlying http.Handler, used by tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) systemStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"appName": "Sportarr",
		"version": Version,
	})
}

func (s *Server) listTasks(c echo.Context) error {
	return c.JSON(http.StatusOK, s.deps.Scheduler.List())
}

func (s *Server) runTask(c echo.Context) error {
	if err := s.deps.Scheduler.RunNow(c.Param("id")); err != nil {
		return c.JSON(http.StatusBadRequest, errBody(err))
	}
	return c.JSON(http.StatusAccepted, map[string]string{"message": "task started"})
}

func errBody(err error) map[string]string {
	return map[string]string{"error": err.Error()}
}
