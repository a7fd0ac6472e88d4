package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/leeforge/mapcrop/config"
	"github.com/leeforge/mapcrop/crop"
	"github.com/leeforge/mapcrop/env_mode"
	"github.com/leeforge/mapcrop/http/api"
	"github.com/leeforge/mapcrop/imagestore"
	"github.com/leeforge/mapcrop/logging"
	"github.com/leeforge/mapcrop/metrics"
	"github.com/leeforge/mapcrop/utils"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "mapcrop: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := config.DefaultConfigOptions()
	if env_mode.Mode() == env_mode.DevMode {
		opts = config.DevConfigOptions()
	}
	opts.EnvPrefix = os.Getenv("MAPCROP_ENV_PREFIX")

	var logger logging.Logger
	opts.OnChange = func(e fsnotify.Event) {
		if logger != nil {
			logger.Info("config file changed, restart to apply", zap.String("file", e.Name), zap.String("op", e.Op.String()))
		}
	}

	cfg, source, err := config.Load(opts)
	if err != nil {
		return err
	}

	logger = logging.Init(cfg.Log)
	defer func() {
		_ = logger.Sync()
		_ = logging.CloseAllWriters()
	}()
	logger.Info("config loaded",
		zap.String("env", string(env_mode.Mode())),
		zap.Strings("files", source.Files()),
	)

	go func() {
		if err := source.Watch(ctx); err != nil {
			logger.Warn("config watch stopped", zap.Error(err))
		}
	}()

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector()
	}

	imagePath := cfg.Image.ResolvedPath()
	store := imagestore.New(imagePath,
		imagestore.WithLogger(logger),
		imagestore.WithMetrics(collector),
	)
	if cfg.Image.Preload {
		if err := store.Preload(ctx); err != nil {
			return err
		}
	}

	compression, err := crop.ParseCompression(cfg.Image.PNGCompression)
	if err != nil {
		return err
	}

	service := crop.NewService(store,
		crop.WithLogger(logger),
		crop.WithMetrics(collector),
		crop.WithCompression(compression),
	)
	handlerOpts := []api.Option{
		api.WithLogger(logger),
		api.WithCORS(cfg.CORS),
		api.WithMaxConcurrent(cfg.Server.MaxConcurrentRequests, cfg.Server.BacklogTimeout),
	}
	if collector != nil {
		handlerOpts = append(handlerOpts, api.WithMetrics(collector))
	}
	router := api.NewHandler(service, store, handlerOpts...).Routes()

	if routes, err := utils.Routes(router); err == nil {
		for _, route := range routes {
			logger.Debug("route registered", zap.String("route", route))
		}
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr), zap.String("image", imagePath))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
