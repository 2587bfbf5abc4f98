// Package server exposes document translation over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"

	"github.com/minios-linux/jsonloc/backend"
	"github.com/minios-linux/jsonloc/config"
	"github.com/minios-linux/jsonloc/langdetect"
	"github.com/minios-linux/jsonloc/ratelimit"
	"github.com/minios-linux/jsonloc/translate"
)

const defaultMaxBodyBytes = 8 << 20

// Options configures a Server.
type Options struct {
	Addr string
	// Settings selects the provider and default limits for every request.
	Settings config.Settings

	// Backend overrides the backend built from Settings.
	Backend backend.Backend
	// Detector guesses the source language when a request omits it.
	Detector *langdetect.Detector
	Registry *prometheus.Registry
	Logger   logrus.FieldLogger
	Tracer   trace.Tracer

	MaxBodyBytes    int64
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Server serves the translation API. One rate governor is shared by all
// requests so provider limits hold across clients. Each request gets its own
// translation cache.
type Server struct {
	opts    Options
	log     logrus.FieldLogger
	backend backend.Backend
	gov     *ratelimit.Governor
	metrics *translate.Metrics
	schemas schemaSet
	echo    *echo.Echo
}

// New builds a Server and its routes.
func New(opts Options) (*Server, error) {
	if strings.TrimSpace(opts.Addr) == "" {
		opts.Addr = ":8080"
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 30 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Minute
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}
	if opts.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		opts.Logger = l
	}

	gov, err := ratelimit.New(opts.Settings.Limits)
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}

	b := opts.Backend
	if b == nil {
		cfg := opts.Settings.BackendConfig()
		cfg.Pauser = gov
		cfg.Logger = opts.Logger
		if b, err = backend.New(cfg); err != nil {
			return nil, fmt.Errorf("server: %w", err)
		}
	}

	s := &Server{
		opts:    opts,
		log:     opts.Logger,
		backend: b,
		gov:     gov,
		metrics: translate.NewMetrics(opts.Registry),
	}
	translate.RegisterGovernorMetrics(opts.Registry, b.Info().ID, gov)
	if err := s.schemas.load(); err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}
	s.echo = s.routes()
	return s, nil
}

func (s *Server) routes() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.httpErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.BodyLimit(fmt.Sprintf("%dB", s.opts.MaxBodyBytes)))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			entry := s.log.WithFields(logrus.Fields{
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency":    v.Latency,
				"remote_ip":  v.RemoteIP,
				"request_id": v.RequestID,
			})
			if v.Error != nil {
				entry.WithError(v.Error).Error("http request failed")
				return nil
			}
			entry.Info("http request")
			return nil
		},
	}))

	e.GET("/healthz", s.handleHealth)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.opts.Registry, promhttp.HandlerOpts{})))

	api := e.Group("/v1")
	api.GET("/providers", s.handleProviders)
	api.POST("/extract", s.handleExtract)
	api.POST("/translate", s.handleTranslate)
	return e
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.echo }

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:         s.opts.Addr,
		Handler:      s.echo,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if err := s.echo.Shutdown(shutdownCtx); err != nil {
			s.log.WithError(err).Error("server shutdown failed")
		}
	}()

	s.log.WithFields(logrus.Fields{
		"addr":     s.opts.Addr,
		"provider": s.backend.Info().ID,
	}).Info("jsonloc server started")

	if err := s.echo.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start server: %w", err)
	}
	s.log.Info("jsonloc server stopped")
	return nil
}

func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := "Internal server error"
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		if m, ok := he.Message.(string); ok && strings.TrimSpace(m) != "" {
			message = m
		} else if text := http.StatusText(status); text != "" {
			message = text
		}
	}

	if status >= 500 {
		s.log.WithError(err).Error("request failed")
		_ = internalError(c, message)
		return
	}
	_ = fail(c, status, message)
}
