package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/gartstein/interviews/internal/interviews/auth"
	"github.com/gartstein/interviews/internal/interviews/captcha"
	"github.com/gartstein/interviews/internal/interviews/config"
	"github.com/gartstein/interviews/internal/interviews/controller"
	"github.com/gartstein/interviews/internal/interviews/db"
	"github.com/gartstein/interviews/internal/interviews/events"
	"github.com/gartstein/interviews/internal/interviews/handlers"
	"github.com/gartstein/interviews/internal/interviews/metrics"
)

const connectTimeout = 30 * time.Second

func NewServeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and gRPC servers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.setup()
			if err != nil {
				return err
			}
			defer syncLogger(logger)
			return serve(cmd.Context(), cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	repo, err := db.ConnectWithRetry(ctx, cfg.Database(), connectTimeout)
	if err != nil {
		logger.Error("Failed to initialize database", zap.Error(err))
		return err
	}
	defer func() {
		if err := repo.Close(); err != nil {
			logger.Warn("Failed to close database", zap.Error(err))
		}
	}()

	var producer controller.EventProducer = events.Discard{}
	if cfg.Kafka.Enabled {
		p, err := events.NewProducer(cfg.Kafka.Brokers, logger, cfg.Kafka.Topic)
		if err != nil {
			logger.Error("Failed to initialize Kafka producer", zap.Error(err))
			return err
		}
		defer p.Close()
		producer = p
	}

	m := metrics.NewMetrics()
	registry := controller.NewRegistry(repo, producer, logger, m,
		controller.WithRemoteTimeout(cfg.Sync.RemoteTimeout),
	)
	defer registry.Close()

	verifier := captcha.NewVerifier(cfg.CaptchaConfig(), nil, logger)
	if !verifier.Enabled() {
		logger.Warn("Bot verification disabled: no captcha secret configured")
	}
	provider := auth.NewProvider(repo, verifier, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, logger)
	unsubscribe := provider.OnAuthStateChange(registry.HandleAuthChange)
	defer unsubscribe()

	interceptor := auth.NewAuthInterceptor(provider, handlers.ProtectedMethods...)
	server := handlers.NewServer(cfg.Server.GRPCPort, cfg.Server.HTTPPort, logger,
		grpc.UnaryInterceptor(interceptor.Unary()),
	)
	server.RegisterGRPCHandler(handlers.NewInterviewHandler(registry, logger))

	proxies, err := cfg.RateLimit.Proxies()
	if err != nil {
		return err
	}
	limiter := handlers.NewIPRateLimiter(cfg.RateLimit.AuthRPS, cfg.RateLimit.AuthBurst,
		handlers.WithTrustedProxies(proxies...),
	)
	httpHandler := handlers.NewHTTPHandler(provider, registry, limiter, m, logger)
	if err := server.RegisterHTTPHandler(httpHandler, provider, m); err != nil {
		logger.Error("Failed to register HTTP handlers", zap.Error(err))
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	return waitForShutdown(server, errCh, logger)
}

// waitForShutdown blocks until an interrupt or SIGTERM is received or a
// server fails, then shuts the servers down.
func waitForShutdown(server *handlers.Server, errCh <-chan error, logger *zap.Logger) error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)

	var err error
	select {
	case <-stop:
	case err = <-errCh:
		logger.Error("Server failed", zap.Error(err))
	}

	server.Stop()
	logger.Info("Servers stopped properly")
	return err
}
