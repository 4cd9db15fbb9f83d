package commands

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/lookerexp/internal/cli/config"
	"github.com/leapstack-labs/lookerexp/internal/looker"
	"github.com/leapstack-labs/lookerexp/internal/state"
)

// closeTimeout bounds teardown work that runs after the command context
// may already be cancelled.
const closeTimeout = 10 * time.Second

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg    *config.Config
	Logger *slog.Logger
}

// NewCommandContext collects the loaded config and logger for cmd.
func NewCommandContext(cmd *cobra.Command) *CommandContext {
	return &CommandContext{
		Cfg:    getConfig(),
		Logger: config.GetLogger(cmd.Context()),
	}
}

// getConfig returns the configuration loaded by the root command, or
// defaults when a command runs standalone.
func getConfig() *config.Config {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg
	}
	return config.DefaultConfig()
}

// OpenClient authenticates against Looker. The returned cleanup logs the
// session out and must be called (typically via defer).
func (c *CommandContext) OpenClient(ctx context.Context) (*looker.Client, func(), error) {
	if err := c.Cfg.ValidateConnection(); err != nil {
		return nil, nil, err
	}

	session, err := looker.Open(ctx, looker.Config{
		APIURL:         c.Cfg.APIURL,
		APIVersion:     c.Cfg.APIVersion,
		ClientID:       c.Cfg.ClientID,
		ClientSecret:   c.Cfg.ClientSecret,
		RequestTimeout: c.Cfg.Timeouts.Request,
		RateLimit:      c.Cfg.RateLimit.RPS,
		Burst:          c.Cfg.RateLimit.Burst,
		Retry: looker.RetryConfig{
			MaxAttempts: c.Cfg.Retry.MaxAttempts,
			BaseDelay:   c.Cfg.Retry.BaseDelay,
			MaxDelay:    c.Cfg.Retry.MaxDelay,
		},
		Logger: c.Logger,
	})
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
		defer cancel()
		if err := session.Close(closeCtx); err != nil {
			c.Logger.Warn("failed to log out of looker", slog.String("error", err.Error()))
		}
	}
	return looker.NewClient(session), cleanup, nil
}

// OpenStore opens and migrates the run history database.
func (c *CommandContext) OpenStore(ctx context.Context) (*state.SQLiteStore, func(), error) {
	store := state.NewSQLiteStore(c.Logger)
	if err := store.Open(c.Cfg.StatePath); err != nil {
		return nil, nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	cleanup := func() {
		if err := store.Close(); err != nil {
			c.Logger.Warn("failed to close state store", slog.String("error", err.Error()))
		}
	}
	return store, cleanup, nil
}

// checkFailed turns a partial batch failure into the command's error.
func checkFailed(failed, total int) error {
	if failed == 0 {
		return nil
	}
	return fmt.Errorf("%d of %d dashboards failed", failed, total)
}
