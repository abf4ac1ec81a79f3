package server

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config is the engine process configuration, read from the environment.
type Config struct {
	// ListenMode selects the request socket transport: "tcp" on ordinary
	// hosts, "vsock" inside enclave-style deployments.
	ListenMode string `env:"AUCTION_LISTEN_MODE" envDefault:"tcp"`
	ListenAddr string `env:"AUCTION_LISTEN_ADDR" envDefault:":7420"`
	VsockPort  uint32 `env:"AUCTION_VSOCK_PORT" envDefault:"5000"`

	// HTTPAddr serves the read accessors and the websocket event feed.
	HTTPAddr string `env:"AUCTION_HTTP_ADDR" envDefault:":8080"`

	// MaxWorkers bounds concurrent socket connections; extra connections
	// are rejected immediately rather than queued.
	MaxWorkers int `env:"AUCTION_MAX_WORKERS,required"`

	// ReceiptKeyPath points at the PEM receipt-signing key. Empty means a
	// fresh key is generated at startup.
	ReceiptKeyPath string `env:"AUCTION_RECEIPT_KEY"`

	// PostgresDSN enables the Postgres record store. Empty means the
	// in-process store.
	PostgresDSN string `env:"AUCTION_POSTGRES_DSN"`

	// EngineAccount is the engine's identity on the external ledgers.
	EngineAccount string `env:"AUCTION_ENGINE_ACCOUNT" envDefault:"auction-engine"`
}

// LoadConfig parses the environment into a Config.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse environment: %w", err)
	}
	if cfg.ListenMode != "tcp" && cfg.ListenMode != "vsock" {
		return Config{}, fmt.Errorf("invalid AUCTION_LISTEN_MODE %q (must be tcp or vsock)", cfg.ListenMode)
	}
	if cfg.MaxWorkers <= 0 {
		return Config{}, fmt.Errorf("AUCTION_MAX_WORKERS must be positive, got %d", cfg.MaxWorkers)
	}
	return cfg, nil
}
