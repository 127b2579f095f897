// Command interviews runs the interview tracker service and its operator
// tooling.
package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gartstein/interviews/internal/interviews/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Dev        bool
}

func main() {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	if err := NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// NewRootCommand creates the root command and its subcommands.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "interviews",
		Short:         "Interview question tracker",
		Long:          "Tracks interview questions, answers and schedules per company, synchronized to a remote store.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to the YAML config file (INTERVIEWS_* variables override it)")
	cmd.PersistentFlags().BoolVar(&opts.Dev, "dev", false, "human-readable development logging")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewCheckDBCommand(opts))
	cmd.AddCommand(NewTailCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))

	return cmd
}

// setup loads the configuration and builds the logger.
func (o *RootOptions) setup() (*config.Config, *zap.Logger, error) {
	logger, err := initLogger(o.Dev)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, err
	}
	return cfg, logger, nil
}

// initLogger initializes a Zap production logger, or a development one.
func initLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func syncLogger(logger *zap.Logger) {
	// Sync fails on stderr for some terminals; nothing useful to do then.
	_ = logger.Sync()
}
