package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/blecentral/internal/tracer"
	"github.com/srg/blecentral/pkg/adapter"
	"github.com/srg/blecentral/pkg/adapter/goble"
	"github.com/srg/blecentral/pkg/central"
	"github.com/srg/blecentral/pkg/config"
)

// adapterFactory opens the platform adapter and returns its closer. Tests
// replace it with an in-memory adapter.
var adapterFactory = func(logger *logrus.Logger) (adapter.Adapter, func() error, error) {
	a, err := goble.New(logger)
	if err != nil {
		return nil, nil, err
	}
	return a, a.Close, nil
}

// app is the per-command runtime: configuration, logger and a session bound
// to the platform adapter.
type app struct {
	cfg     *config.Config
	logger  *logrus.Logger
	session *central.Session

	closeAdapter  func() error
	shutdownTrace func(context.Context) error
}

func openApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return nil, err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	shutdownTrace, err := tracer.Setup(cmd.Context(), cfg.Tracing)
	if err != nil {
		return nil, err
	}

	a, closeAdapter, err := adapterFactory(logger)
	if err != nil {
		_ = shutdownTrace(context.Background())
		return nil, fmt.Errorf("failed to open BLE adapter: %w", err)
	}

	session, err := central.New(a,
		central.WithLogger(logger),
		central.WithConfig(cfg),
		central.WithName(cmd.Name()),
	)
	if err != nil {
		_ = closeAdapter()
		_ = shutdownTrace(context.Background())
		return nil, err
	}

	return &app{
		cfg:           cfg,
		logger:        logger,
		session:       session,
		closeAdapter:  closeAdapter,
		shutdownTrace: shutdownTrace,
	}, nil
}

// Close shuts the session down before the adapter, then flushes spans.
func (a *app) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return errors.Join(a.session.Close(), a.closeAdapter(), a.shutdownTrace(ctx))
}

// commandContext derives a context from the command that ends on Ctrl+C,
// SIGTERM or after timeout (no deadline when timeout is zero).
func commandContext(cmd *cobra.Command, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	if timeout <= 0 {
		return ctx, stop
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

// interrupted reports whether ctx ended because of a signal rather than its
// deadline.
func interrupted(ctx context.Context) bool {
	return errors.Is(ctx.Err(), context.Canceled)
}
