// Command bridge runs the TradingView-to-Dhan options signal bridge.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/mageshtv/dhanbridge/internal/broker"
	"github.com/mageshtv/dhanbridge/internal/catalog"
	"github.com/mageshtv/dhanbridge/internal/config"
	"github.com/mageshtv/dhanbridge/internal/metrics"
	"github.com/mageshtv/dhanbridge/internal/notify"
	"github.com/mageshtv/dhanbridge/internal/processor"
	"github.com/mageshtv/dhanbridge/internal/retry"
	"github.com/mageshtv/dhanbridge/internal/storage"
	"github.com/mageshtv/dhanbridge/internal/webhook"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// Secrets come from the environment; a local .env is optional.
	_ = godotenv.Load()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}

	if level, err := logrus.ParseLevel(cfg.Environment.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	logger.Infof("starting signal bridge in %s mode", cfg.Environment.Mode)

	store, err := storage.NewStore(cfg.Storage.Path, logger)
	if err != nil {
		logger.Fatalf("failed to open state store: %v", err)
	}

	cat := catalog.New(catalog.Config{
		URL:         cfg.Catalog.URL,
		LocalPath:   cfg.Catalog.LocalPath,
		HTTPTimeout: cfg.GetCatalogHTTPTimeout(),
		Retry: retry.Config{
			MaxRetries:     cfg.Catalog.MaxRetries,
			InitialBackoff: cfg.GetCatalogRetryBackoff(),
			MaxBackoff:     retry.DefaultConfig.MaxBackoff,
		},
	}, logger)

	var brk broker.Broker
	if cfg.IsPaperTrading() {
		logger.Info("paper trading mode - orders are simulated")
		brk = broker.NewPaperBroker(logger)
	} else {
		logger.Warn("live trading mode - real money at risk")
		brk = broker.NewCircuitBreakerBroker(
			broker.NewDhanAPI(cfg.Broker.ClientID, cfg.Broker.AccessToken, cfg.Broker.APIEndpoint),
			logger,
		)
	}

	var notifier notify.Notifier = notify.Noop{}
	if cfg.Notify.TelegramBotToken != "" {
		notifier = notify.NewTelegram(cfg.Notify.TelegramBotToken, cfg.Notify.TelegramChatID)
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	proc := processor.New(processor.Config{
		ExpiryIndex:     cfg.Strategy.ExpiryIndex,
		CEStrikeType:    cfg.Strategy.CEStrikeType,
		PEStrikeType:    cfg.Strategy.PEStrikeType,
		StrikeStep:      cfg.Strategy.StrikeStep,
		Lots:            cfg.Strategy.Lots,
		OrderType:       cfg.Broker.OrderType,
		ProductType:     cfg.Broker.ProductType,
		ExchangeSegment: cfg.Broker.ExchangeSegment,
		BusyTimeout:     cfg.GetBusyTimeout(),
	}, cat, store, brk, notifier, logger, m)

	server := webhook.NewServer(webhook.Config{
		Port:   cfg.Webhook.Port,
		Secret: cfg.Webhook.Secret,
	}, proc, registry, logger)

	// Warm the catalog so the first signal doesn't pay the download.
	warmCtx, warmCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	if err := cat.Warm(warmCtx); err != nil {
		logger.Warnf("instrument catalog warm-up failed (will retry lazily): %v", err)
	}
	warmCancel()

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Infof("received %s, shutting down", sig)
	case err := <-errCh:
		if err != nil {
			logger.Fatalf("webhook server error: %v", err)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutdown error: %v", err)
	}
	logger.Info("bridge stopped")
}
