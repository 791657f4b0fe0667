// Package cli implements the demonlistctl command tree. Every command works
// directly on the SQLite database through the service layer.
package cli

import (
	"context"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/pointercrate/demonlist/internal/adapters/repository"
	service "github.com/pointercrate/demonlist/internal/app"
	"github.com/pointercrate/demonlist/internal/config"
	"github.com/pointercrate/demonlist/pkg/logger"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Database string
	Format   string // "text" | "json" | "yaml"
	Verbose  bool
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json", "yaml"}

// NewRootCommand creates the root command for demonlistctl.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "demonlistctl",
		Short: "Operate a demonlist database",
		Long: `Add, move and remove demons, inspect the list at any instant and
run the randomized position simulator.

List sizes and the time machine bound come from the usual configuration
layers (DEMONLIST_CONFIG file, DEMONLIST_* environment).`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			if err := logger.Init(logger.WithWriter(cmd.ErrOrStderr())); err != nil {
				return WrapExitError(ExitCommandError, "failed to initialize logging", err)
			}
			level := "warn"
			if opts.Verbose {
				level = "debug"
			}
			return logger.SetLevelString(level)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (default: database_path from config)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json|yaml)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(NewAddCommand(opts))
	cmd.AddCommand(NewMoveCommand(opts))
	cmd.AddCommand(NewRemoveCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewRankingCommand(opts))
	cmd.AddCommand(NewSimulateCommand(opts))

	return cmd
}

// withService opens the database, starts a service over it and runs fn.
// The service is stopped, and the database closed, before returning.
func withService(ctx context.Context, opts *RootOptions, fn func(*service.Service) error) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	path := opts.Database
	if path == "" {
		path = cfg.DatabasePath
	}

	store, err := repository.OpenSQLite(ctx, path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}

	svc := service.New(
		service.WithStore(store),
		service.WithConfig(config.NewLive(cfg, "")),
		service.WithWorkerCount(1),
	)
	if err := svc.Start(ctx); err != nil {
		_ = store.Close()
		return WrapExitError(ExitCommandError, "failed to start service", err)
	}

	runErr := fn(svc)
	if err := svc.Stop(ctx); err != nil && runErr == nil {
		return WrapExitError(ExitCommandError, "failed to close database", err)
	}
	return runErr
}
