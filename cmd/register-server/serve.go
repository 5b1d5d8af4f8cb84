package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Portunus/register/internal/cache"
	"github.com/BrandonDHaskell/Portunus/register/internal/config"
	"github.com/BrandonDHaskell/Portunus/register/internal/db"
	"github.com/BrandonDHaskell/Portunus/register/internal/grpcapi"
	"github.com/BrandonDHaskell/Portunus/register/internal/httpapi"
	"github.com/BrandonDHaskell/Portunus/register/internal/register/service"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and, when grpc.addr is set, the gRPC API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	cfg, logger := a.cfg, a.logger

	be, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer be.close()

	// Dev databases (and the memory driver) start with demo fixtures.
	if cfg.Env == "dev" || cfg.Store.Driver == config.DriverMemory {
		stats, err := db.SeedDev(ctx, be.registry)
		if err != nil {
			return err
		}
		logger.Info("dev fixtures", zap.Any("created", stats))
	}

	engineCfg := service.EngineConfig{
		Registry:     be.registry,
		Log:          be.log,
		Logger:       logger,
		HistoryLimit: cfg.History.DefaultLimit,
	}
	if cfg.Redis.Addr != "" {
		cc, err := cache.NewCountCache(cfg.Redis, logger.Named("cache"))
		if err != nil {
			return err
		}
		defer cc.Close()
		engineCfg.Cache = cc
	}
	engine := service.NewEngine(engineCfg)

	if engineCfg.Cache != nil {
		warmer := service.NewCountsWarmer(engine.Presence, cfg.Redis.WarmInterval, logger.Named("warmer"))
		warmer.Start(ctx)
		defer warmer.Stop()
	}

	httpSrv := httpapi.NewServer(httpapi.Dependencies{
		Logger:      logger.Named("http"),
		Addr:        cfg.HTTP.Addr,
		Engine:      engine,
		Location:    cfg.Location(),
		ExportLimit: cfg.History.ExportLimit,
	})

	// Both servers are built before either starts listening, so a
	// construction failure leaves nothing running.
	var grpcSrv *grpcapi.Server
	if cfg.GRPC.Addr != "" {
		grpcSrv, err = grpcapi.NewServer(grpcapi.Dependencies{
			Logger:      logger.Named("grpc"),
			Addr:        cfg.GRPC.Addr,
			Engine:      engine,
			ExportLimit: cfg.History.ExportLimit,
		})
		if err != nil {
			return err
		}
	}

	errc := make(chan error, 2)
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.HTTP.Addr), zap.String("store", cfg.Store.Driver))
		if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()
	if grpcSrv != nil {
		go func() {
			if err := grpcSrv.Start(); err != nil {
				errc <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err = <-errc:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if grpcSrv != nil {
		grpcSrv.Shutdown(shutdownCtx)
	}
	if shutErr := httpSrv.Shutdown(shutdownCtx); shutErr != nil {
		logger.Warn("http shutdown", zap.Error(shutErr))
	}
	return err
}
