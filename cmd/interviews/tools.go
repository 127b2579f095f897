package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gartstein/interviews/internal/interviews/auth"
	"github.com/gartstein/interviews/internal/interviews/db"
	"github.com/gartstein/interviews/internal/interviews/events"
)

func NewCheckDBCommand(opts *RootOptions) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "check-db",
		Short: "Check that the remote store is reachable and migrated",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.setup()
			if err != nil {
				return err
			}
			defer syncLogger(logger)

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			repo, err := db.ConnectWithRetry(ctx, cfg.Database(), timeout)
			if err != nil {
				return fmt.Errorf("database unreachable: %w", err)
			}
			defer repo.Close()

			count, err := repo.Ping(ctx)
			if err != nil {
				return fmt.Errorf("database check failed: %w", err)
			}
			logger.Info("Database reachable", zap.String("driver", cfg.DB.Driver), zap.Int64("companies_sampled", count))
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %s database reachable\n", cfg.DB.Driver)
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 15*time.Second, "give up after this long")
	return cmd
}

func NewTailCommand(opts *RootOptions) *cobra.Command {
	var group string

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Print change events from the Kafka topic as JSON lines",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.setup()
			if err != nil {
				return err
			}
			defer syncLogger(logger)

			if len(cfg.Kafka.Brokers) == 0 {
				return fmt.Errorf("kafka.brokers is not configured")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			consumer := events.NewConsumer(cfg.Kafka.Brokers, group, cfg.Kafka.Topic, logger)
			defer consumer.Close()
			consumer.RegisterHandler(printEvent(cmd.OutOrStdout()))

			logger.Info("Tailing change events", zap.String("topic", cfg.Kafka.Topic), zap.String("group", group))
			consumer.Run(ctx)
			return nil
		},
	}

	cmd.Flags().StringVar(&group, "group", "interviews-tail", "consumer group id")
	return cmd
}

func printEvent(w io.Writer) func(context.Context, events.Event) error {
	enc := json.NewEncoder(w)
	return func(_ context.Context, event events.Event) error {
		return enc.Encode(event)
	}
}

func NewTokenCommand(opts *RootOptions) *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token <email>",
		Short: "Issue a session token for an existing user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.setup()
			if err != nil {
				return err
			}
			defer syncLogger(logger)

			repo, err := db.NewRepository(cfg.Database())
			if err != nil {
				return err
			}
			defer repo.Close()

			email := strings.ToLower(strings.TrimSpace(args[0]))
			user, _, err := repo.GetUserByEmail(cmd.Context(), email)
			if err != nil {
				return fmt.Errorf("look up %s: %w", args[0], err)
			}
			if ttl == 0 {
				ttl = cfg.Auth.TokenTTL
			}
			token, err := auth.GenerateToken(user.ID, user.Email, cfg.Auth.JWTSecret, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to auth.token_ttl)")
	return cmd
}
