package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/solatis/smartfolder/internal/cache"
	"github.com/solatis/smartfolder/internal/core/api"
	"github.com/solatis/smartfolder/internal/core/db"
	"github.com/solatis/smartfolder/internal/core/server"
	"github.com/solatis/smartfolder/internal/perf"
	"github.com/solatis/smartfolder/internal/rules"
)

const shutdownGrace = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gRPC folder service and the refresher",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("host", "0.0.0.0", "gRPC server host")
	serveCmd.Flags().Int("port", 50061, "gRPC server port")
	serveCmd.Flags().Duration("refresh-interval", 30*time.Second, "how often folders are checked for auto refresh")
	serveCmd.Flags().Int("refresh-concurrency", 4, "folders refreshed in parallel")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := openDatabase(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := requireMigrated(ctx, database); err != nil {
		return err
	}

	opts := compileOptions()
	store, err := db.NewStore(database, opts)
	if err != nil {
		return fmt.Errorf("failed to create store: %w", err)
	}

	recorder := perf.NewRecorder(logger)
	engine := rules.NewEngine(
		rules.WithCache(cache.New()),
		rules.WithRecorder(recorder),
		rules.WithLogger(logger),
	)

	service, err := api.NewFolderService(store, engine, recorder, opts, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}
	handler, err := api.NewHandler(service)
	if err != nil {
		return fmt.Errorf("failed to create handler: %w", err)
	}
	grpcServer, err := server.NewGRPCServer(cfg, handler, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	refresher := api.NewRefresher(service, cfg.RefreshInterval, cfg.RefreshConcurrency, logger)

	logger.Info("starting smartfolder service",
		zap.String("version", Version),
		zap.String("addr", cfg.Addr()),
		zap.Duration("refresh_interval", cfg.RefreshInterval))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return grpcServer.Start(gctx)
	})
	g.Go(func() error {
		return refresher.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return grpcServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
