package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tomydb/pkg/config"
	"tomydb/pkg/engine"
	"tomydb/pkg/engine/buffer"
	"tomydb/pkg/logging"
	"tomydb/pkg/metadata"
	"tomydb/pkg/service"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	listen := flag.String("listen", "", "listen address, overrides the config")
	flag.Parse()

	if err := run(*configPath, *listen); err != nil {
		fmt.Fprintf(os.Stderr, "tomydb: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, listen string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if listen != "" {
		cfg.ListenAddr = listen
	}

	logger, closeLogs, err := logging.SetupLogger(cfg.LogLevel, cfg.SeqURL)
	if err != nil {
		return err
	}
	defer closeLogs()
	slog.SetDefault(logger)

	for _, dir := range []string{cfg.MetadataDir(), cfg.TablesDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	metastore, err := metadata.Open(cfg.MetadataDir(), logger)
	if err != nil {
		return err
	}
	defer metastore.Close()

	pool, err := buffer.NewPool(buffer.Options{CacheBytes: cfg.ColumnCacheBytes, Logger: logger})
	if err != nil {
		return err
	}
	defer pool.Close()

	qm := engine.NewQueryManager(metastore, pool, engine.Options{
		ChunkSize: cfg.ChunkSize,
		TablesDir: cfg.TablesDir(),
		Logger:    logger,
	})
	defer qm.Close()

	router := service.NewRouter(logger,
		service.NewSchemaAPIController(service.NewSchemaAPIService(metastore)),
		service.NewExecutionAPIController(service.NewExecutionAPIService(qm)),
		service.NewMetadataAPIController(service.NewMetadataAPIService(metastore, qm)),
	)
	srv := &http.Server{Addr: cfg.ListenAddr, Handler: router, ReadHeaderTimeout: 10 * time.Second}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server started", "addr", cfg.ListenAddr, "data_dir", cfg.DataDir)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
	}
	return nil
}
