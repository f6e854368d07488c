package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"peerlend/config"
	"peerlend/native/lending"
	"peerlend/observability"
	"peerlend/observability/logging"
	"peerlend/pool"
	"peerlend/rpc"
	"peerlend/state"
	"peerlend/storage"
)

func main() {
	configPath := flag.String("config", "", "path to the service configuration file")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			slog.Error("load configuration", slog.String("error", err.Error()))
			os.Exit(1)
		}
		cfg = loaded
	}

	log := logging.Setup(logging.Options{
		Level:   cfg.LogLevel,
		File:    cfg.LogFile,
		Service: "peerlendd",
	})

	var db storage.Database
	if cfg.DataDir != "" {
		ldb, err := storage.NewLevelDB(cfg.DataDir)
		if err != nil {
			log.Error("open database", slog.String("dir", cfg.DataDir), slog.String("error", err.Error()))
			os.Exit(1)
		}
		db = ldb
	} else {
		log.Warn("no data directory configured, using in-memory store")
		db = storage.NewMemDB()
	}
	defer db.Close()

	adapter := pool.NewStaticAdapter()
	risk := pool.NewAccrualRisk()

	engine := lending.NewEngine()
	engine.SetState(state.NewManager(db))
	engine.SetPoolAdapter(adapter)
	engine.SetRiskProvider(risk)
	engine.SetEmitter(observability.NewMetricsEmitter(nil))

	for _, m := range cfg.Markets {
		asset := m.AssetAddress()
		adapter.Configure(asset, lending.ReserveConfig{
			SupplyCap:        m.SupplyCapAmount(),
			BorrowCap:        m.BorrowCapAmount(),
			Decimals:         m.Decimals,
			BorrowingEnabled: m.BorrowingEnabled,
			RiskCategory:     m.RiskCategory,
		})
		if _, err := engine.CreateMarket(asset, m.RiskCategory, m.P2PEnabled); err != nil {
			if errors.Is(err, lending.ErrMarketExists) {
				continue
			}
			log.Error("create market", slog.String("asset", m.Asset), slog.String("error", err.Error()))
			os.Exit(1)
		}
		log.Info("market created", slog.String("asset", m.Asset))
	}

	server := rpc.NewServer(engine, rpc.Options{
		DefaultMaxIterations: cfg.DefaultMaxIterations,
		RateLimitPerMinute:   cfg.RateLimitPerMinute,
		Log:                  log,
	})
	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("rpc listening", slog.String("address", cfg.ListenAddress))
		errCh <- httpServer.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("shutting down", slog.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			log.Error("shutdown", slog.String("error", err.Error()))
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("rpc server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}
}
