package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stockcast/config"
	"stockcast/db"
	httpserver "stockcast/http"
	"stockcast/logging"
	"stockcast/pipeline"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	watchConfig := flag.Bool("watch-config", false, "reload configuration on file change")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "config error: %v\n", err)
			os.Exit(1)
		}
		cfg = config.Default()
	}

	log := logging.New(cfg.Log.Level, cfg.Log.File)
	defer log.Sync()

	store, err := db.Open(cfg.Database.Path)
	if err != nil {
		log.Fatalw("failed to open database", "error", err)
	}
	defer store.Close()

	session := pipeline.NewSession(pipeline.Config{
		DataURL:      cfg.Data.URL,
		CacheTTL:     cfg.Data.CacheTTL,
		WindowSize:   cfg.Model.WindowSize,
		Horizon:      cfg.Model.Horizon,
		TestSplit:    cfg.Model.TestSplit,
		Epochs:       cfg.Model.Epochs,
		BatchSize:    cfg.Model.BatchSize,
		HiddenUnits:  cfg.Model.HiddenUnits,
		LearningRate: cfg.Model.LearningRate,
	}, store, log)
	defer session.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// warm start: load and prepare eagerly so the API is useful immediately;
	// failures are recoverable through POST /api/data/reload
	if cfg.Data.URL != "" {
		loadCtx, loadCancel := context.WithTimeout(ctx, 60*time.Second)
		if err := session.LoadData(loadCtx); err != nil {
			log.Warnw("initial data load failed", "error", err)
		} else if err := session.PrepareData(); err != nil {
			log.Warnw("initial data preparation failed", "error", err)
		}
		loadCancel()
	}

	if *watchConfig {
		go func() {
			err := config.Watch(ctx, *configPath, func(next *config.Config) {
				log.Infow("configuration reloaded", "path", *configPath)
			})
			if err != nil && err != context.Canceled {
				log.Warnw("config watcher stopped", "error", err)
			}
		}()
	}

	serverCfg := httpserver.DefaultServerConfig()
	serverCfg.Port = cfg.Http.Port
	server := httpserver.NewServer(serverCfg, session, store, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Infow("shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			log.Errorw("server error", "error", err)
		}
	}

	if err := server.Stop(); err != nil {
		log.Errorw("shutdown error", "error", err)
	}
}
