package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"cardvault/internal/platform/config"
	"cardvault/internal/platform/httpserver"
	"cardvault/internal/platform/logger"
)

const (
	modeServe   = "serve"
	modePoller  = "poller"
	modeMigrate = "migrate"
)

// main wires dependencies from the environment and runs one of three modes:
// serve (HTTP API plus the poller when enabled), poller (background
// reconciliation only) or migrate (apply schema migrations and exit).
func main() {
	mode := flag.String("mode", modeServe, "run mode: serve, poller or migrate")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(2)
	}
	log := logger.New(cfg.Server.LogLevel, cfg.Server.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *mode, cfg, log); err != nil {
		log.Error("cardvault exited with error", "mode", *mode, "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, mode string, cfg *config.Config, log *slog.Logger) error {
	switch mode {
	case modeServe, modePoller, modeMigrate:
	default:
		return fmt.Errorf("unknown mode %q", mode)
	}

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	if mode == modeMigrate {
		log.InfoContext(ctx, "migrations applied", "store", cfg.Store.Backend, "queue", cfg.Queue.Provider)
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)

	if mode == modePoller || cfg.Poller.Enabled {
		if a.poller == nil {
			if mode == modePoller {
				return errors.New("poller mode requires EVENT_QUEUE_PROVIDER to be set")
			}
			log.InfoContext(ctx, "cards poller disabled, no queue configured")
		} else {
			g.Go(func() error { return a.poller.Run(gctx) })
		}
	}

	if mode == modeServe {
		srv := httpserver.New(cfg.Server.Addr, a.router(), cfg.Refresh.MaxWait, log)
		g.Go(func() error { return httpserver.Serve(gctx, srv, cfg.Server.ShutdownTimeout, log) })
	}

	return g.Wait()
}
