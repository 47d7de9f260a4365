package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/john-huang-121/D3-globe/internal/api"
	"github.com/john-huang-121/D3-globe/internal/config"
	"github.com/john-huang-121/D3-globe/internal/dataset"
	"github.com/john-huang-121/D3-globe/internal/globe"
	"github.com/john-huang-121/D3-globe/internal/storage/sqlite"
	"github.com/john-huang-121/D3-globe/internal/templating"
	"github.com/john-huang-121/D3-globe/internal/websocket"
	"github.com/john-huang-121/D3-globe/pkg/logger"
	"golang.org/x/sync/errgroup"
)

var (
	// Version is injected at build time
	Version = "dev"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to configuration file (optional - will search in configs/ and root directory)")
	flag.Parse()

	// Load configuration with fallback logic
	cfg, err := config.LoadWithFallback(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Create logger
	log, err := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting globe server",
		logger.String("version", Version),
		logger.String("variant", cfg.Globe.Variant),
		logger.String("tick_source", cfg.Globe.TickSource))

	if err := run(cfg, log); err != nil {
		log.Error("Server exited with error", logger.Error(err))
		os.Exit(1)
	}
	log.Info("Server stopped")
}

func run(cfg *config.Config, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Airport catalog lives in memory only
	catalog, err := sqlite.NewAirportCatalog(cfg.Storage.SQLiteDSN, log)
	if err != nil {
		return fmt.Errorf("failed to create airport catalog: %w", err)
	}
	defer catalog.Close()

	wsServer := websocket.NewServer(log)

	renderer := globe.NewRenderer(cfg.Globe, log)
	loop := globe.NewLoop(renderer, cfg.Globe, log)
	wsHandler := globe.NewWebSocketHandler(loop, wsServer, log)
	loop.Subscribe(wsHandler)
	wsServer.SetMessageHandler(wsHandler)

	snapshots := templating.NewService(cfg.Server.SnapshotTemplate, cfg.Globe, log)
	loader := dataset.NewLoader(cfg.Data, cfg.Globe.AirportsEnabled(), log)

	handler := api.NewHandler(cfg, loop, catalog, loader, snapshots, wsServer, log)
	router := api.NewRouter(handler, wsServer.HandleConnection, cfg.Server.StaticFilesDir, log)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return loop.Run(ctx)
	})
	g.Go(func() error {
		wsServer.Run(ctx)
		return nil
	})

	// Data arrives asynchronously; the globe renders without it until then
	loader.Start(ctx, loop, loop, catalog)

	ports := append([]int{cfg.Server.Port}, cfg.Server.AdditionalPorts...)
	servers := make([]*http.Server, 0, len(ports))
	for _, port := range ports {
		server := &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, port),
			Handler:      router,
			ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSecs) * time.Second,
			WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSecs) * time.Second,
			IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSecs) * time.Second,
		}
		servers = append(servers, server)

		g.Go(func() error {
			log.Info("Starting HTTP server", logger.String("addr", server.Addr))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("HTTP server on %s failed: %w", server.Addr, err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		log.Info("Shutting down servers...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error
		for _, server := range servers {
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Error("HTTP server shutdown failed", logger.String("addr", server.Addr), logger.Error(err))
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}
