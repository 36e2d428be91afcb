package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/polydictions/polydictions/internal/api"
	"github.com/polydictions/polydictions/internal/config"
	"github.com/polydictions/polydictions/internal/logger"
	"github.com/polydictions/polydictions/internal/monitor"
	"github.com/polydictions/polydictions/internal/polymarket"
	"github.com/polydictions/polydictions/internal/storage"
	"github.com/polydictions/polydictions/internal/telegram"
)

var configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Configuration loaded from %s", *configPath)

	store, err := storage.New(cfg.Storage.DBPath)
	if err != nil {
		logger.Fatal("Failed to initialize storage: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	market := polymarket.NewClient(
		cfg.Polymarket.GammaAPIURL,
		cfg.Polymarket.GrokAPIURL,
		cfg.Polymarket.Timeout,
		cfg.Polymarket.ContextTimeout,
	)

	if !cfg.Telegram.Enabled {
		logger.Fatal("Telegram is disabled in config; the bot cannot run without it")
	}
	tg, err := telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChannelID)
	if err != nil {
		logger.Fatal("Failed to initialize Telegram client: %v", err)
	}
	logger.Info("Telegram client initialized successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := telegram.NewHandler(store, market, cfg.Monitor.MinNewsInterval, cfg.Monitor.DefaultNewsInterval)
	tg.ListenForCommands(ctx, handler)

	eventMon := monitor.NewEventMonitor(store, market, tg, cfg)
	alertMon := monitor.NewAlertMonitor(store, market, tg, cfg)
	newsMon := monitor.NewNewsMonitor(store, market, tg, cfg)

	eventMon.Start(ctx)
	alertMon.Start(ctx)
	newsMon.Start(ctx)

	var apiSrv *api.Server
	if cfg.API.Enabled {
		apiSrv = api.NewServer(store, market, &cfg.API)
		go func() {
			if err := apiSrv.Start(); err != nil {
				logger.Error("API server error: %v", err)
			}
		}()
	}

	logger.Info("Polydictions started (events: %v, alerts: %v, news tick: %v)",
		cfg.Monitor.EventCheckInterval,
		cfg.Monitor.AlertCheckInterval,
		cfg.Monitor.NewsTick,
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("Shutdown signal received, cleaning up...")

	cancel()
	eventMon.Stop()
	alertMon.Stop()
	newsMon.Stop()

	if apiSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Polymarket.Timeout)
		defer shutdownCancel()
		if err := apiSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("API server shutdown failed: %v", err)
		}
	}

	logger.Info("Service stopped")
}
