package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"Mailwright/internal/api"
	"Mailwright/internal/config"
	"Mailwright/internal/consumer"
	"Mailwright/internal/db"
	"Mailwright/internal/email"
	"Mailwright/internal/metrics"
	"Mailwright/internal/placeholder"
	"Mailwright/internal/queue"
	"Mailwright/internal/render"
)

func main() {

	// ------------------------------------------------
	// Config
	// ------------------------------------------------
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	// ------------------------------------------------
	// Logger
	// ------------------------------------------------
	logger, err := newLogger(cfg)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// ------------------------------------------------
	// Root Context + Shutdown
	// ------------------------------------------------
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
		cancel()
	}()

	// ------------------------------------------------
	// Database
	// ------------------------------------------------
	store, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer store.Close()

	if cfg.AutoMigrate {
		if err := store.Migrate(ctx); err != nil {
			logger.Fatal("database migration failed", zap.Error(err))
		}
		logger.Info("database schema up to date")
	}

	// ------------------------------------------------
	// Metrics
	// ------------------------------------------------
	metrics.Init()

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())

	metricsServer := &http.Server{
		Addr:    ":" + cfg.MetricsPort,
		Handler: metricsMux,
	}

	go func() {
		logger.Info("metrics server started", zap.String("port", cfg.MetricsPort))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("metrics server error", zap.Error(err))
		}
	}()

	// ------------------------------------------------
	// Queue
	// ------------------------------------------------
	conn := queue.NewConn(cfg.RedisURL, logger)
	if err := conn.Open(ctx); err != nil {
		logger.Fatal("queue connection failed", zap.Error(err))
	}
	defer conn.Close()

	jobs, err := conn.Queue(cfg.QueuePrefix, cfg.QueueName, consumerName(cfg), cfg.PollTimeout)
	if err != nil {
		logger.Fatal("queue open failed", zap.Error(err))
	}

	// The lease makes the processing list ours alone before Recover touches it.
	lease, err := jobs.Lease(ctx, cfg.LeaseTTL)
	if err != nil {
		logger.Fatal("consumer lease failed", zap.String("consumer", consumerName(cfg)), zap.Error(err))
	}
	defer func() {
		if err := lease.Release(context.Background()); err != nil {
			logger.Warn("consumer lease release failed", zap.Error(err))
		}
	}()

	// Deliveries left in our processing list by a previous run go back first.
	if n, err := jobs.Recover(ctx); err != nil {
		logger.Fatal("queue recovery failed", zap.Error(err))
	} else if n > 0 {
		logger.Warn("requeued unacknowledged deliveries", zap.Int("count", n))
	}

	// ------------------------------------------------
	// Email Sender
	// ------------------------------------------------
	sender := email.NewSender(email.Options{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		User:     cfg.SMTPUser,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		SSL:      cfg.SMTPSSL,
	}, logger)

	// ------------------------------------------------
	// Templates
	// ------------------------------------------------
	renderer := render.New(cfg.PlaceholderPrefix, cfg.PlaceholderSuffix, render.Defaults{
		AppName:     cfg.AppName,
		SupportMail: cfg.SupportMail,
		Signature:   cfg.Signature,
	})
	resolver := placeholder.NewResolver(store, cfg.TemplateCacheTTL, logger)

	pipeline := &consumer.Pipeline{
		Resolver:  resolver,
		Renderer:  renderer,
		Ledger:    store,
		Transport: sender,
		From:      cfg.SMTPFrom,
		Log:       logger,
	}

	// ------------------------------------------------
	// Rate Limiter
	// ------------------------------------------------
	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimit)

	// ------------------------------------------------
	// Consumer
	// ------------------------------------------------
	var wg sync.WaitGroup

	c := consumer.New(jobs, pipeline, limiter, logger)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := c.Run(ctx); err != nil {
			logger.Error("consumer stopped with error", zap.Error(err))
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		watchDepth(ctx, jobs, logger)
	}()

	// Losing the lease means another process may own our processing list.
	go func() {
		if err := lease.Keep(ctx, logger); err != nil {
			logger.Error("consumer lease lost, shutting down", zap.Error(err))
			cancel()
		}
	}()

	// ------------------------------------------------
	// HTTP API Server
	// ------------------------------------------------
	apiHandler := &api.Handler{
		Store: store,
		Cache: resolver,
		Jobs:  jobs,
		Resender: &consumer.Resender{
			Store:     store,
			Transport: sender,
			Log:       logger,
		},
		Log:        logger,
		MaxCSVRows: cfg.MaxCSVRows,
		Checks: map[string]func(context.Context) error{
			"postgres": store.Ping,
			"redis":    conn.Ping,
		},
	}

	apiServer := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           apiHandler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("api server started", zap.String("port", cfg.APIPort))
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("api server error", zap.Error(err))
		}
	}()

	// ------------------------------------------------
	// Wait for shutdown
	// ------------------------------------------------
	<-ctx.Done()

	logger.Info("shutting down services...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	// Stop accepting new jobs
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("api shutdown failed", zap.Error(err))
	}

	// Wait for the in-flight delivery to settle
	wg.Wait()

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics shutdown failed", zap.Error(err))
	}

	logger.Info("application shutdown complete")
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Development() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// consumerName names this process's processing list. Without CONSUMER_NAME
// the hostname is used, which is stable for a pod or a container; the
// process ID is left out so a restart recovers its predecessor's deliveries.
func consumerName(cfg *config.Config) string {
	if cfg.ConsumerName != "" {
		return cfg.ConsumerName
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "default"
}

func watchDepth(ctx context.Context, q *queue.Queue, logger *zap.Logger) {
	t := time.NewTicker(15 * time.Second)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := q.Depth(ctx)
			if err != nil {
				if ctx.Err() == nil {
					logger.Warn("queue depth check failed", zap.Error(err))
				}
				continue
			}
			metrics.QueueDepth.WithLabelValues(q.Name()).Set(float64(n))
		}
	}
}
