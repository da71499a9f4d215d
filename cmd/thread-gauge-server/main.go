package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/menta2k/thread-gauge/internal/app"
	"github.com/menta2k/thread-gauge/internal/config"
	"github.com/menta2k/thread-gauge/internal/logger"
	"github.com/menta2k/thread-gauge/internal/server"
	"github.com/menta2k/thread-gauge/internal/utils"
)

func main() {
	var configPath string
	var watch bool
	flag.StringVar(&configPath, "config", config.GetConfigPath(), "configuration file (.json or .toml)")
	flag.BoolVar(&watch, "watch", true, "reload the pipeline when the configuration file changes")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	lg, err := logger.NewLogger(cfg.Log.Dir, logger.ParseLevel(cfg.Log.Level))
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer lg.Close()

	if cfg.Output.DebugDir != "" {
		if err := utils.EnsureDir(cfg.Output.DebugDir); err != nil {
			lg.Error("Failed to create debug directory: %v", err)
			os.Exit(1)
		}
	}

	orch, backend, err := app.NewOrchestrator(cfg, lg)
	if err != nil {
		lg.Error("Failed to build pipeline: %v", err)
		os.Exit(1)
	}

	// current is swapped on reload; the health probe follows it
	var current atomic.Pointer[app.Backend]
	current.Store(backend)
	srv := server.New(orch, server.Options{
		StaticDir:      cfg.Server.StaticDir,
		RequestTimeout: time.Duration(cfg.Server.RequestTimeoutSeconds) * time.Second,
		MaxUploadMB:    cfg.Server.MaxUploadMB,
		Health: func(ctx context.Context) error {
			return current.Load().Health(ctx)
		},
	}, lg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reloads := make(chan *config.Config)
	if watch && utils.FileExists(configPath) {
		go func() {
			err := config.Watch(ctx, configPath, func(c *config.Config) {
				select {
				case reloads <- c:
				case <-ctx.Done():
				}
			}, func(err error) {
				lg.Warning("Ignoring configuration change: %v", err)
			})
			if err != nil {
				lg.Warning("Configuration watch stopped: %v", err)
			}
		}()
		lg.Info("Watching %s for changes", configPath)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(ctx, cfg.Server.Addr) }()

	for {
		select {
		case c := <-reloads:
			next, b, err := app.NewOrchestrator(c, lg)
			if err != nil {
				lg.Warning("Keeping previous pipeline: %v", err)
				continue
			}
			for _, field := range cfg.RestartFields(c) {
				lg.Warning("Ignoring change to %s until restart", field)
			}
			srv.SetOrchestrator(next)
			old := current.Swap(b)
			// In-flight requests on the old pipeline may still need its detector
			time.AfterFunc(time.Duration(cfg.Server.RequestTimeoutSeconds)*time.Second, func() { old.Close() })
			lg.Info("Reloaded configuration, detector %s", b.Name)
		case err := <-errCh:
			current.Load().Close()
			if err != nil {
				lg.Error("Server failed: %v", err)
				lg.Close()
				os.Exit(1)
			}
			return
		}
	}
}
