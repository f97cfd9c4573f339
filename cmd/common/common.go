// Package common provides shared helpers for the auction CLI commands:
// YAML configuration loading, signing key handling, and dev-mode seeding of
// the in-process collaborators.
package common

import (
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/yuliyu123/nft-auction/assets"
	"github.com/yuliyu123/nft-auction/crypto"
	"github.com/yuliyu123/nft-auction/services"
	"github.com/yuliyu123/nft-auction/token"
)

// Well-known addresses of the in-process collaborators. The payment medium
// and the asset collection live inside the service, so their addresses are
// fixed rather than derived from keys.
var (
	DevMedium     = crypto.Address{0xF0}
	DevCollection = crypto.Address{0xC0}
)

// DevAsset names one asset to mint in dev mode.
type DevAsset struct {
	Owner string `yaml:"owner"`
	ID    uint64 `yaml:"id"`
}

// DevConfig seeds the in-process collaborators at startup so signed requests
// from the listed accounts work without a separate funding step.
type DevConfig struct {
	Enabled  bool       `yaml:"enabled"`
	Balance  string     `yaml:"balance"`
	Accounts []string   `yaml:"accounts"`
	Assets   []DevAsset `yaml:"assets"`
}

// Config contains all auctiond settings.
type Config struct {
	ListenAddr  string `yaml:"listen_addr"`
	MetricsAddr string `yaml:"metrics_addr"`
	EnablePprof bool   `yaml:"enable_pprof"`

	// EngineKey is the hex-encoded Ed25519 private key of the engine's own
	// account. Empty generates a fresh key on startup.
	EngineKey string `yaml:"engine_key"`

	DrainDuration            time.Duration `yaml:"drain_duration"`
	GracefulShutdownDuration time.Duration `yaml:"graceful_shutdown_duration"`

	// Postgres enables database persistence when set; otherwise state lives
	// in memory.
	Postgres *services.PostgresConfig `yaml:"postgres"`

	Dev DevConfig `yaml:"dev"`
}

// DefaultConfig returns the baseline configuration.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:               ":8080",
		DrainDuration:            5 * time.Second,
		GracefulShutdownDuration: 10 * time.Second,
	}
}

// LoadConfig reads a YAML config file over the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// LoadOrGenerateSigningKey loads an Ed25519 private key from a hex string,
// or generates a new key pair if hexKey is empty.
func LoadOrGenerateSigningKey(hexKey string) (crypto.PrivateKey, error) {
	if hexKey != "" {
		keyBytes, err := hex.DecodeString(hexKey)
		if err != nil {
			return nil, fmt.Errorf("invalid hex: %w", err)
		}
		return crypto.NewPrivateKeyFromBytes(keyBytes), nil
	}
	_, privKey, err := crypto.GenerateKeyPair()
	return privKey, err
}

// ApplyDevSetup mints the configured balances and assets and pre-approves
// the engine for all of them.
func ApplyDevSetup(cfg *DevConfig, engineAddr crypto.Address, ledger *token.MockLedger, registry *assets.MockRegistry) error {
	if !cfg.Enabled {
		return nil
	}

	balance := decimal.NewFromInt(10000)
	if cfg.Balance != "" {
		var err error
		balance, err = decimal.NewFromString(cfg.Balance)
		if err != nil {
			return fmt.Errorf("invalid dev balance %q: %w", cfg.Balance, err)
		}
	}

	for _, account := range cfg.Accounts {
		addr, err := crypto.NewAddressFromString(account)
		if err != nil {
			return fmt.Errorf("invalid dev account %q: %w", account, err)
		}
		ledger.Mint(addr, balance)
		if err := ledger.Approve(addr, engineAddr, balance); err != nil {
			return err
		}
	}

	for _, asset := range cfg.Assets {
		owner, err := crypto.NewAddressFromString(asset.Owner)
		if err != nil {
			return fmt.Errorf("invalid dev asset owner %q: %w", asset.Owner, err)
		}
		if err := registry.Mint(owner, DevCollection, asset.ID); err != nil {
			return err
		}
		if err := registry.Approve(owner, engineAddr, DevCollection, asset.ID); err != nil {
			return err
		}
	}

	return nil
}
