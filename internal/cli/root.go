// Package cli implements labelctl, the operator tool for the label counter.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Siddarth2230/asset-labels/internal/allocator"
	"github.com/Siddarth2230/asset-labels/internal/backend"
	"github.com/Siddarth2230/asset-labels/internal/config"
	"github.com/Siddarth2230/asset-labels/internal/logging"
	"github.com/Siddarth2230/asset-labels/internal/repository"
	"github.com/Siddarth2230/asset-labels/internal/service"
	"github.com/Siddarth2230/asset-labels/pkg/idgen"
)

var (
	configPath  string
	databaseURL string
	logLevel    string
)

var rootCmd = &cobra.Command{
	Use:   "labelctl",
	Short: "Manage asset label allocation",
	Long: `labelctl inspects and drives the asset label counter: it creates the schema,
reserves label blocks for printing, and converts between labels and values.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (defaults to $CONFIG_FILE)")
	rootCmd.PersistentFlags().StringVar(&databaseURL, "database-url", "", "override the configured database URL")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(reserveCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(encodeCmd)
	rootCmd.AddCommand(decodeCmd)
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig applies the command line overrides on top of config.Load.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if databaseURL != "" {
		cfg.Database.URL = databaseURL
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// env is what the database commands share.
type env struct {
	cfg     *config.Config
	logger  *slog.Logger
	backend backend.Backend
	alloc   *allocator.Allocator
	labels  *service.LabelService
	closers []io.Closer
}

func (e *env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		_ = e.closers[i].Close()
	}
}

func openEnv(ctx context.Context, cmd *cobra.Command) (*env, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, logCloser, err := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, err
	}
	e := &env{cfg: cfg, logger: logger, closers: []io.Closer{logCloser}}

	b, err := backend.Open(ctx, cfg.Backend())
	if err != nil {
		e.Close()
		return nil, err
	}
	e.backend = b
	e.closers = append(e.closers, b)

	alloc, err := allocator.New(b, allocator.Options{
		Encoder: idgen.NewEncoder(cfg.Labels.Width),
		Policy:  cfg.RetryPolicy(),
		Logger:  logger,
	})
	if err != nil {
		e.Close()
		return nil, err
	}
	e.alloc = alloc
	e.labels = service.NewLabelService(b, repository.NewItemRepository(b, logger), alloc, logger)
	return e, nil
}

// withEnv wraps a RunE body that needs the database.
func withEnv(fn func(cmd *cobra.Command, args []string, e *env) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(cmd.Context(), cmd)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer e.Close()
		return fn(cmd, args, e)
	}
}
