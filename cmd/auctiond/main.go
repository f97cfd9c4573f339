// Command auctiond runs the auction HTTP service.
//
// The payment ledger and asset registry run in process; dev-mode
// configuration seeds them with funded accounts and minted assets. State is
// persisted to PostgreSQL when configured, otherwise held in memory.
//
//	go run ./cmd/auctiond --addr=:8080 --metrics-addr=:9090
//	go run ./cmd/auctiond --config=auctiond.yaml
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/yuliyu123/nft-auction/api/httpserver"
	"github.com/yuliyu123/nft-auction/assets"
	"github.com/yuliyu123/nft-auction/auction"
	"github.com/yuliyu123/nft-auction/cmd/common"
	"github.com/yuliyu123/nft-auction/services"
	"github.com/yuliyu123/nft-auction/token"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to YAML config file")
		addr        = flag.String("addr", "", "HTTP listen address")
		metricsAddr = flag.String("metrics-addr", "", "Metrics listen address")
		enablePprof = flag.Bool("pprof", false, "Enable pprof debugging API")
		engineKey   = flag.String("engine-key", "", "Hex-encoded Ed25519 private key for the engine account")
	)
	flag.Parse()

	cfg, err := loadConfiguration(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	if *addr != "" {
		cfg.ListenAddr = *addr
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}
	if *enablePprof {
		cfg.EnablePprof = true
	}
	if *engineKey != "" {
		cfg.EngineKey = *engineKey
	}

	if err := run(cfg); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfiguration(configPath string) (*common.Config, error) {
	if configPath != "" {
		return common.LoadConfig(configPath)
	}
	return common.DefaultConfig(), nil
}

func run(cfg *common.Config) error {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	signingKey, err := common.LoadOrGenerateSigningKey(cfg.EngineKey)
	if err != nil {
		return fmt.Errorf("loading engine key: %w", err)
	}
	engineAddr, err := signingKey.Address()
	if err != nil {
		return err
	}

	ledger := token.NewMockLedger()
	ledgers := token.NewRegistry()
	ledgers.Register(common.DevMedium, ledger)
	custodian := assets.NewMockRegistry()

	engine, err := auction.NewEngine(auction.EngineConfig{
		Self:      engineAddr,
		Ledgers:   ledgers,
		Custodian: custodian,
		Log:       log,
	})
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}

	if err := common.ApplyDevSetup(&cfg.Dev, engineAddr, ledger, custodian); err != nil {
		return fmt.Errorf("dev setup: %w", err)
	}

	var store services.Store
	if cfg.Postgres != nil {
		store, err = services.NewPostgresStore(cfg.Postgres)
		if err != nil {
			return fmt.Errorf("opening store: %w", err)
		}
	} else {
		store = services.NewInMemoryStore()
	}
	defer store.Close()

	if err := services.RestoreAll(engine, store); err != nil {
		return fmt.Errorf("restoring persisted auctions: %w", err)
	}

	feed := services.NewEventFeed(log)
	handler := services.NewAuctionHandler(engine, store, feed, log)

	srv, err := httpserver.New(&httpserver.HTTPServerConfig{
		ListenAddr:               cfg.ListenAddr,
		MetricsAddr:              cfg.MetricsAddr,
		EnablePprof:              cfg.EnablePprof,
		Log:                      log,
		DrainDuration:            cfg.DrainDuration,
		GracefulShutdownDuration: cfg.GracefulShutdownDuration,
	}, handler)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	log.Info("auction service starting",
		"engine_address", engineAddr.String(),
		"payment_medium", common.DevMedium.String(),
		"collection", common.DevCollection.String())
	srv.RunInBackground()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info("shutting down")
	srv.Shutdown()
	return nil
}
