package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/amoylab/inboxhub/internal/auth"
	"github.com/amoylab/inboxhub/internal/auth/jwt"
	"github.com/amoylab/inboxhub/internal/common/config"
	"github.com/amoylab/inboxhub/internal/realtime"
	"github.com/amoylab/inboxhub/internal/realtime/bus"
	"github.com/amoylab/inboxhub/internal/server"
	"github.com/amoylab/inboxhub/pkg/helper"
	"github.com/amoylab/inboxhub/pkg/logger"
	"github.com/amoylab/inboxhub/pkg/metrics"
	"github.com/amoylab/inboxhub/pkg/trace"
	"github.com/amoylab/inboxhub/pkg/utils"
	"github.com/amoylab/inboxhub/pkg/version"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func serve(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, cfgPath, err := config.LoadConfig[config.HubServerConfig](confOr(defaultServerConfig))
	if err != nil {
		return fmt.Errorf("failed to load configuration %s: %w", cfgPath, err)
	}

	lg, err := logger.NewLogger(&cfg.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer lg.Sync()

	lg.Info("starting inboxhub",
		zap.String("version", version.Get()),
		zap.String("config", cfgPath))

	shutdownTracing, err := trace.InitTracing(ctx, &cfg.Tracing, lg)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(tctx); err != nil {
			lg.Warn("failed to flush traces", zap.Error(err))
		}
	}()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(cfg.Metrics)
	}

	hub := realtime.NewHub(cfg.Hub, lg, m)
	b, err := bus.New(cfg.Bus, hub.Local(), lg, m)
	if err != nil {
		return fmt.Errorf("failed to initialize bus: %w", err)
	}
	defer b.Close()

	svc, err := jwt.NewService(jwt.Config{SecretKey: cfg.Auth.JWT.SecretKey, Duration: cfg.Auth.JWT.Duration})
	if err != nil {
		return fmt.Errorf("failed to initialize jwt: %w", err)
	}
	srv := server.NewServer(lg, cfg, hub, b, auth.NewJWTAuthenticator(svc, cfg.Auth.QueryParam), m)

	if p := utils.FirstNonEmpty(pidFile, cfg.PID); p != "" {
		pm := utils.NewPIDManager(helper.GetPIDPath(p))
		if err := pm.WritePID(); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() {
			if err := pm.RemovePID(); err != nil && !errors.Is(err, os.ErrNotExist) {
				lg.Warn("failed to remove PID file", zap.Error(err))
			}
		}()
		lg.Info("wrote PID file", zap.String("path", pm.GetPIDFile()))
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		return b.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		lg.Info("received shutdown signal")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil {
		lg.Error("server stopped with error", zap.Error(err))
		return err
	}
	lg.Info("server stopped")
	return nil
}
