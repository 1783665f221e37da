package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/fidde/agripredict/internal/api"
	"github.com/fidde/agripredict/internal/artifacts"
	"github.com/fidde/agripredict/internal/config"
	"github.com/fidde/agripredict/internal/grpcserver"
	"github.com/fidde/agripredict/internal/metrics"
	"github.com/fidde/agripredict/internal/service"
	"github.com/fidde/agripredict/internal/storage"
	"github.com/fidde/agripredict/web"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

func runServe(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := cfg.NewLogger()
	slog.SetDefault(logger)
	logger.Info("Starting agripredict", "version", api.Version)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, logger)
}

func serve(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	sc, err := loadSchema(cfg)
	if err != nil {
		return err
	}

	m := metrics.New("agripredict")
	holder := artifacts.NewHolder(cfg.ArtifactPaths(), sc, logger)
	if !holder.Ready() {
		// Keep serving: /predict answers 503 until a reload succeeds.
		logger.Error("prediction pipeline not ready; send SIGHUP or POST /api/v1/admin/reload after fixing artifacts",
			"dir", cfg.Artifacts.Dir,
		)
	}

	storageCfg := cfg.StorageConfig()
	storageCfg.OnMirrorError = m.ObserveMirrorError
	sink, err := storage.NewSink(ctx, storageCfg, logger)
	if err != nil {
		return fmt.Errorf("creating storage: %w", err)
	}

	svc, err := service.New(service.Config{
		Schema:  sc,
		Holder:  holder,
		Sink:    sink,
		Metrics: m,
		Logger:  logger,
		Policy:  cfg.Policy(),
	})
	if err != nil {
		sink.Close()
		return err
	}
	defer func() {
		logger.Info("Closing storage...")
		if err := svc.Close(); err != nil {
			logger.Error("Error closing storage", "error", err)
		}
	}()

	static, err := web.FileSystem(cfg.Server.StaticDir)
	if err != nil {
		logger.Warn("UI disabled", "static_dir", cfg.Server.StaticDir, "error", err)
		static = nil
	}

	apiServer := api.NewServer(api.Config{
		Addr:           cfg.Server.HTTPAddr,
		CORSOrigins:    cfg.Server.CORSOrigins,
		RequestTimeout: cfg.Server.RequestTimeout,
		SubmitRate:     cfg.Server.SubmitRate,
		SubmitBurst:    cfg.Server.SubmitBurst,
		TrustProxy:     cfg.Server.TrustProxy,
		Static:         static,
		Metrics:        m.Handler(),
		Logger:         logger,
	}, svc)

	var grpcServer *grpcserver.Server
	if cfg.Server.GRPCAddr != "" {
		grpcServer = grpcserver.New(cfg.Server.GRPCAddr, logger)
		holder.OnSwap(grpcServer.ObserveBundle)
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting REST API server", "addr", cfg.Server.HTTPAddr)
		if err := apiServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("API server error: %w", err)
		}
		return nil
	})

	if grpcServer != nil {
		g.Go(func() error {
			if err := grpcServer.Start(); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return fmt.Errorf("gRPC server error: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		for {
			select {
			case <-hup:
				logger.Info("Received SIGHUP, reloading artifacts")
				svc.Reload()
			case <-gctx.Done():
				return shutdown(cfg, logger, apiServer, grpcServer)
			}
		}
	})

	return g.Wait()
}

func shutdown(cfg config.Config, logger *slog.Logger, apiServer *api.Server, grpcServer *grpcserver.Server) error {
	logger.Info("Shutting down servers...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := apiServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutting down API server: %w", err))
	}
	if grpcServer != nil {
		if err := grpcServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutting down gRPC server: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	logger.Info("Shutdown complete")
	return nil
}
