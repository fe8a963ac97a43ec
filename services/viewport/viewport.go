// Copyright (C) 2026 Kodiak Visual Systems (eng@kodiakviz.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package viewport assembles the render queue, the renderer backend,
// and the HTTP surface into one runnable service.
package viewport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"gopkg.in/yaml.v3"

	"github.com/kodiakviz/kodiakview/services/viewport/handlers"
	"github.com/kodiakviz/kodiakview/services/viewport/middleware"
	"github.com/kodiakviz/kodiakview/services/viewport/observability"
	"github.com/kodiakviz/kodiakview/services/viewport/queue"
	"github.com/kodiakviz/kodiakview/services/viewport/renderer"
	"github.com/kodiakviz/kodiakview/services/viewport/routes"
)

const serviceName = "viewport-service"

// =============================================================================
// Configuration
// =============================================================================

// Config holds everything needed to run the service. The zero value is
// not runnable; use DefaultConfig as the base.
type Config struct {
	// Port the HTTP server listens on.
	Port int `yaml:"port"`

	// Backend picks the renderer: "preview" (in-process shading) or
	// "remote" (HTTP sidecar).
	Backend string `yaml:"backend"`

	// RemoteURL is the sidecar base URL. Required when Backend is
	// "remote".
	RemoteURL string `yaml:"remote_url"`

	// RemoteTimeout bounds a single sidecar pass. Zero means the
	// renderer's default.
	RemoteTimeout time.Duration `yaml:"remote_timeout"`

	// LadderPath points at a YAML quality ladder. Empty means the
	// built-in ladder. When set, the file is watched and hot reloaded.
	LadderPath string `yaml:"ladder_path"`

	// PreviewPassDelay simulates per-pass render cost in the preview
	// backend. Useful for demos; leave zero in tests.
	PreviewPassDelay time.Duration `yaml:"preview_pass_delay"`

	// FrameInterval is the WebSocket frame poll cadence. Zero means
	// handlers.DefaultFrameInterval.
	FrameInterval time.Duration `yaml:"frame_interval"`

	// RateLimit bounds per-client camera update rates.
	RateLimit middleware.RateLimitConfig `yaml:"-"`

	// OTLPEndpoint is the trace collector address. Empty disables
	// tracing entirely.
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

// UnmarshalYAML accepts durations in Go notation ("50ms", "1.5s")
// rather than raw nanosecond integers.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	type rawConfig struct {
		Port             int    `yaml:"port"`
		Backend          string `yaml:"backend"`
		RemoteURL        string `yaml:"remote_url"`
		RemoteTimeout    string `yaml:"remote_timeout"`
		LadderPath       string `yaml:"ladder_path"`
		PreviewPassDelay string `yaml:"preview_pass_delay"`
		FrameInterval    string `yaml:"frame_interval"`
		OTLPEndpoint     string `yaml:"otlp_endpoint"`
	}
	var raw rawConfig
	if err := value.Decode(&raw); err != nil {
		return err
	}

	if raw.Port != 0 {
		c.Port = raw.Port
	}
	if raw.Backend != "" {
		c.Backend = raw.Backend
	}
	if raw.RemoteURL != "" {
		c.RemoteURL = raw.RemoteURL
	}
	if raw.LadderPath != "" {
		c.LadderPath = raw.LadderPath
	}
	if raw.OTLPEndpoint != "" {
		c.OTLPEndpoint = raw.OTLPEndpoint
	}

	for _, d := range []struct {
		src string
		dst *time.Duration
	}{
		{raw.RemoteTimeout, &c.RemoteTimeout},
		{raw.PreviewPassDelay, &c.PreviewPassDelay},
		{raw.FrameInterval, &c.FrameInterval},
	} {
		if d.src == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.src)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", d.src, err)
		}
		*d.dst = parsed
	}
	return nil
}

// DefaultConfig returns the configuration the service ships with.
func DefaultConfig() Config {
	return Config{
		Port:          12400,
		Backend:       "preview",
		FrameInterval: handlers.DefaultFrameInterval,
		RateLimit:     middleware.DefaultRateLimitConfig(),
	}
}

// =============================================================================
// Service
// =============================================================================

// ladderRenderer is what every backend must provide: passes plus hot
// ladder swaps.
type ladderRenderer interface {
	renderer.PassRenderer
	renderer.LadderSetter
}

// Service is a fully wired viewport service. Build with New, run with
// Run.
type Service struct {
	cfg     Config
	queue   *queue.RenderQueue
	backend ladderRenderer
	metrics *observability.QueueMetrics
	limiter *middleware.RateLimiter
	router  *gin.Engine
}

// New wires the service together. The render worker starts immediately;
// the HTTP listener starts in Run.
func New(cfg Config) (*Service, error) {
	ladder := renderer.DefaultLadder()
	if cfg.LadderPath != "" {
		var err error
		ladder, err = renderer.LoadLadder(cfg.LadderPath)
		if err != nil {
			return nil, fmt.Errorf("loading quality ladder: %w", err)
		}
	}

	var backend ladderRenderer
	switch cfg.Backend {
	case "", "preview":
		backend = renderer.NewPreview(ladder, cfg.PreviewPassDelay)
	case "remote":
		if cfg.RemoteURL == "" {
			return nil, errors.New("remote backend requires remote_url")
		}
		backend = renderer.NewRemote(cfg.RemoteURL, ladder, cfg.RemoteTimeout)
	default:
		return nil, fmt.Errorf("unknown renderer backend %q", cfg.Backend)
	}

	metrics := observability.InitMetrics()

	q, err := queue.New(queue.Options{Renderer: backend, Metrics: metrics})
	if err != nil {
		return nil, fmt.Errorf("starting render queue: %w", err)
	}

	handlers.RegisterValidators()

	limiter := middleware.NewRateLimiter(cfg.RateLimit)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	routes.SetupRoutes(router, q, metrics, limiter, cfg.FrameInterval)

	return &Service{
		cfg:     cfg,
		queue:   q,
		backend: backend,
		metrics: metrics,
		limiter: limiter,
		router:  router,
	}, nil
}

// Router exposes the assembled engine for in-process testing.
func (s *Service) Router() *gin.Engine { return s.router }

// Queue exposes the render queue for in-process embedding.
func (s *Service) Queue() *queue.RenderQueue { return s.queue }

// Run serves until ctx is cancelled, then drains: the HTTP server gets
// a shutdown grace period and the render worker is stopped after the
// last request completes.
func (s *Service) Run(ctx context.Context) error {
	cleanup, err := initTracer(ctx, s.cfg.OTLPEndpoint)
	if err != nil {
		// The service is useful without a collector; log and go on.
		slog.Warn("tracing disabled", "error", err)
	} else if cleanup != nil {
		defer cleanup(context.Background())
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.cfg.Port),
		Handler: s.router,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("viewport service listening", "port", s.cfg.Port, "backend", s.cfg.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if s.cfg.LadderPath != "" {
		g.Go(func() error {
			return renderer.WatchLadder(gctx, s.cfg.LadderPath, s.backend)
		})
	}

	g.Go(func() error {
		s.limiter.SweepLoop(gctx)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http shutdown failed", "error", err)
		}
		s.queue.Close()
		return nil
	})

	return g.Wait()
}

// =============================================================================
// Tracing
// =============================================================================

// initTracer stands up the OTLP gRPC exporter and installs the global
// tracer provider. An empty endpoint means tracing is off; the returned
// cleanup is nil in that case.
func initTracer(ctx context.Context, endpoint string) (func(context.Context), error) {
	if endpoint == "" {
		return nil, nil
	}

	conn, err := grpc.NewClient(endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String(serviceName)))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}
