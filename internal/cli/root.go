// Package cli implements volunteerctl, the operator command line for the
// reputation engine. Every command opens the configured store, runs one
// operation, drains pending badge refreshes and exits.
package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/volunteerfinder/reputation/internal/adapters/repository"
	service "github.com/volunteerfinder/reputation/internal/app"
	"github.com/volunteerfinder/reputation/internal/config"
	"github.com/volunteerfinder/reputation/pkg/logger"
)

// StoreOpener returns the store a command operates on along with the
// loaded configuration.
type StoreOpener func(ctx context.Context) (*config.Config, repository.Store, error)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	open StoreOpener
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// DefaultStoreOpener loads configuration from the environment and opens
// the configured backend.
func DefaultStoreOpener(ctx context.Context) (*config.Config, repository.Store, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, nil, err
	}
	s, err := service.OpenStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, s, nil
}

// NewRootCommand creates the volunteerctl root command.
func NewRootCommand(open StoreOpener) *cobra.Command {
	if open == nil {
		open = DefaultStoreOpener
	}
	opts := &RootOptions{open: open}

	cmd := &cobra.Command{
		Use:   "volunteerctl",
		Short: "Operate the volunteer reputation engine",
		Long: `volunteerctl runs reputation operations directly against the configured
store. Configuration is read from VOLUNTEER_* environment variables and the
optional YAML file named by VOLUNTEER_CONFIG.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log to stderr")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewCompleteCommand(opts))
	cmd.AddCommand(NewCreditCommand(opts))
	cmd.AddCommand(NewRefreshBadgesCommand(opts))
	cmd.AddCommand(NewResetScoresCommand(opts))
	cmd.AddCommand(NewRankingsCommand(opts))
	cmd.AddCommand(NewDeleteEventCommand(opts))

	return cmd
}

// withService opens the store, runs fn against a started service, then
// stops it so queued badge refreshes finish before the process exits.
func withService(cmd *cobra.Command, opts *RootOptions, fn func(ctx context.Context, svc *service.Service) error) (err error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, store, err := opts.open(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open store", err)
	}

	log := logger.NewNop()
	if opts.Verbose {
		log = logger.FromSlog(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), nil)))
	}

	svc := service.New(
		service.WithStore(store),
		service.WithLogger(log),
		service.WithCreditConcurrency(cfg.CreditConcurrency),
		service.WithAutoRefreshBadges(cfg.AutoRefreshBadges),
		service.WithWorkerCount(1),
		service.WithMaxRankingLimit(cfg.MaxRankingLimit),
	)
	if err := svc.Start(ctx); err != nil {
		_ = store.Close()
		return WrapExitError(ExitCommandError, "failed to start service", err)
	}
	defer func() {
		if stopErr := svc.Stop(context.WithoutCancel(ctx)); stopErr != nil && err == nil {
			err = WrapExitError(ExitCommandError, "failed to stop service", stopErr)
		}
	}()

	return fn(ctx, svc)
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
