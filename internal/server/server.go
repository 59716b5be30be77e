// Package server is the composition root: it builds the HTTP handler and the
// background workers from configuration and runs them as one unit.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/matiasleandrokruk/agencyhub/internal/api"
	apmiddleware "github.com/matiasleandrokruk/agencyhub/internal/api/middleware"
	"github.com/matiasleandrokruk/agencyhub/internal/domain/billing"
	"github.com/matiasleandrokruk/agencyhub/internal/domain/funnel"
	"github.com/matiasleandrokruk/agencyhub/internal/domain/notification"
	"github.com/matiasleandrokruk/agencyhub/internal/infra/config"
	"github.com/matiasleandrokruk/agencyhub/internal/infra/eventbus"
	"github.com/matiasleandrokruk/agencyhub/internal/infra/mailer"
	"github.com/matiasleandrokruk/agencyhub/internal/infra/metrics"
	"github.com/matiasleandrokruk/agencyhub/internal/infra/realtime"
	"github.com/matiasleandrokruk/agencyhub/internal/infra/scheduler"
)

// Scheduled job names.
const (
	JobFlushVisits        = "flush-visits"
	JobSweepSubscriptions = "sweep-subscriptions"
	JobCleanupLimiters    = "cleanup-limiters"
)

// limiterIdle is how long a rate-limit key may stay unused before it is evicted.
const limiterIdle = 10 * time.Minute

// Config holds HTTP server and worker configuration.
type Config struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	VisitFlushSchedule        string
	SubscriptionSweepSchedule string
	LimiterCleanupSchedule    string

	RateLimitRPS   float64
	RateLimitBurst int

	// App carries payment, mail and link settings.
	App config.Config
}

// DefaultConfig returns default HTTP server configuration.
func DefaultConfig() Config {
	return Config{
		Host:                      "0.0.0.0",
		Port:                      8080,
		ReadTimeout:               15 * time.Second,
		WriteTimeout:              15 * time.Second,
		IdleTimeout:               60 * time.Second,
		ShutdownTimeout:           10 * time.Second,
		VisitFlushSchedule:        "@every 10s",
		SubscriptionSweepSchedule: "@every 1h",
		LimiterCleanupSchedule:    "@every 5m",
		RateLimitRPS:              5,
		RateLimitBurst:            10,
	}
}

// FromAppConfig overlays the environment-driven settings on DefaultConfig.
func FromAppConfig(c config.Config) Config {
	cfg := DefaultConfig()
	cfg.Host = c.HTTPHost
	cfg.Port = c.HTTPPort
	if c.VisitFlushSchedule != "" {
		cfg.VisitFlushSchedule = c.VisitFlushSchedule
	}
	if c.SubscriptionSweepSchedule != "" {
		cfg.SubscriptionSweepSchedule = c.SubscriptionSweepSchedule
	}
	if c.RateLimitRPS > 0 {
		cfg.RateLimitRPS = float64(c.RateLimitRPS)
	}
	if c.RateLimitBurst > 0 {
		cfg.RateLimitBurst = c.RateLimitBurst
	}
	cfg.App = c
	return cfg
}

// Server owns the HTTP server and every background worker. The database is
// owned by the caller.
type Server struct {
	config Config
	db     *sql.DB
	logger *zap.Logger
	http   *http.Server

	bus       *eventbus.Bus
	recorder  *notification.Recorder
	hub       *realtime.Hub
	scheduler *scheduler.Scheduler
	visits    *funnel.VisitCounter
	billing   *billing.Service
	limiters  []*apmiddleware.RateLimiter
}

// NewServer wires the services, router and workers. It fails only when a
// schedule spec does not parse.
func NewServer(db *sql.DB, cfg Config, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	bus := eventbus.New(eventbus.WithDropHook(func(topic string) {
		metrics.RecordNotification("dropped")
		logger.Warn("event dropped on full subscriber buffer", zap.String("topic", topic))
	}))
	notifier := notification.NewBusNotifier(bus)

	gateway := billing.NewRazorpayGateway(cfg.App.RazorpayBaseURL, cfg.App.RazorpayKeyID, cfg.App.RazorpayKeySecret)
	billingSvc := billing.NewService(db, billing.DefaultCatalog(), gateway, notifier,
		logger.Named("billing"), cfg.App.RazorpayWebhookSecret)

	s := &Server{
		config:    cfg,
		db:        db,
		logger:    logger,
		bus:       bus,
		recorder:  notification.NewRecorder(notification.NewService(db), bus, logger.Named("notifications")),
		hub:       realtime.NewHub(bus, notification.TopicStored, logger.Named("realtime")),
		scheduler: scheduler.New(logger.Named("scheduler")),
		visits:    funnel.NewVisitCounter(db),
		billing:   billingSvc,
	}

	authLimiter := apmiddleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, logger)
	webhookLimiter := apmiddleware.NewRateLimiter(cfg.RateLimitRPS*4, cfg.RateLimitBurst*4, logger)
	s.limiters = []*apmiddleware.RateLimiter{authLimiter, webhookLimiter}

	if err := s.addJobs(); err != nil {
		return nil, err
	}

	router := api.NewRouter(api.Deps{
		DB:             db,
		Logger:         logger,
		Bus:            bus,
		Mailer:         mailer.FromConfig(cfg.App, logger.Named("mailer")),
		Billing:        billingSvc,
		Visits:         s.visits,
		Hub:            s.hub,
		AuthLimiter:    authLimiter,
		WebhookLimiter: webhookLimiter,
		AppBaseURL:     cfg.App.AppBaseURL,
	})

	s.http = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s, nil
}

func (s *Server) addJobs() error {
	if err := s.scheduler.Add(JobFlushVisits, s.config.VisitFlushSchedule, s.visits.Flush); err != nil {
		return err
	}
	if err := s.scheduler.Add(JobSweepSubscriptions, s.config.SubscriptionSweepSchedule, func(ctx context.Context) error {
		n, err := s.billing.SweepExpired(ctx)
		if n > 0 {
			s.logger.Info("expired subscriptions deactivated", zap.Int("count", n))
		}
		return err
	}); err != nil {
		return err
	}
	return s.scheduler.Add(JobCleanupLimiters, s.config.LimiterCleanupSchedule, func(context.Context) error {
		for _, rl := range s.limiters {
			rl.Cleanup(limiterIdle)
		}
		return nil
	})
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Run listens on the configured address and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.http.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the HTTP server and the workers on ln. When ctx is cancelled, or
// any of them fails, the HTTP server is shut down gracefully and buffered funnel
// visits are flushed before Serve returns.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return s.recorder.Run(gctx) })
	g.Go(func() error { return s.hub.Run(gctx) })
	g.Go(func() error { return s.scheduler.Run(gctx) })
	g.Go(func() error {
		s.logger.Info("http server listening", zap.String("addr", ln.Addr().String()))
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return s.shutdown()
	})

	return g.Wait()
}

func (s *Server) shutdown() error {
	s.logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := s.http.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := s.visits.Flush(ctx); err != nil {
		errs = append(errs, fmt.Errorf("flush visits: %w", err))
	}
	if len(errs) == 0 {
		s.logger.Info("server shutdown complete")
	}
	return errors.Join(errs...)
}
