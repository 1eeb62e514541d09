// Copyright 2025 Certen Protocol

package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// NodeConfig holds all configuration for a manynet node (cmd/manyd):
// transport, storage mode, the secondary event-log index, quorum
// enrichment, genesis, and migrations. Mirrors the shape of the
// teacher's AnchorConfig (YAML + ${ENV} substitution), generalized from
// anchor/contract/gas settings to the Network's own domains.
type NodeConfig struct {
	Environment string `yaml:"environment"`

	Server     ServerSettings     `yaml:"server"`
	Storage    StorageSettings    `yaml:"storage"`
	EventLog   EventLogSettings   `yaml:"event_log"`
	Async      AsyncSettings      `yaml:"async"`
	Quorum     QuorumSettings     `yaml:"quorum"`
	Genesis    GenesisSettings    `yaml:"genesis"`
	Migrations MigrationsSettings `yaml:"migrations"`
	CometBFT   CometBFTSettings   `yaml:"cometbft"`
	Monitoring MonitoringSettings `yaml:"monitoring"`
}

// ServerSettings configures the pkg/server HTTP transport.
type ServerSettings struct {
	ListenAddr     string   `yaml:"listen_addr"`
	MaxRequestSize int64    `yaml:"max_request_size"`
	ReadTimeout    Duration `yaml:"read_timeout"`
	WriteTimeout   Duration `yaml:"write_timeout"`
}

// StorageMode selects which pkg/bridge.Submitter backs a node.
type StorageMode string

const (
	// StorageModeDirect runs pkg/bridge.DirectSubmitter: one node, no
	// real BFT engine, for local development and tests.
	StorageModeDirect StorageMode = "direct"
	// StorageModeBlockchain runs a full CometBFT-backed node.
	StorageModeBlockchain StorageMode = "blockchain"
)

// StorageSettings configures pkg/kvstore's backend.
type StorageSettings struct {
	Mode   StorageMode `yaml:"mode"`
	DBPath string      `yaml:"db_path"`
}

// EventLogSettings configures pkg/eventlog's optional secondary index.
type EventLogSettings struct {
	PostgresDSN string `yaml:"postgres_dsn"`
}

// AsyncSettings configures pkg/asynctoken's retention window.
type AsyncSettings struct {
	RetentionBlocks uint64 `yaml:"retention_blocks"`
}

// QuorumSettings configures pkg/quorum's optional BLS aggregation.
type QuorumSettings struct {
	Enabled       bool   `yaml:"enabled"`
	BLSKeyPath    string `yaml:"bls_key_path"`
	DomainTag     string `yaml:"domain_tag"`
	ValidatorSize int    `yaml:"validator_size"`
}

// GenesisSettings configures pkg/genesis's loader.
type GenesisSettings struct {
	Path         string `yaml:"path"`
	VerifyHash   bool   `yaml:"verify_hash"`
}

// MigrationsSettings configures pkg/migrations's TOML registry.
type MigrationsSettings struct {
	Path string `yaml:"path"`
}

// LoadNodeConfig loads a NodeConfig from a YAML file at path, with
// ${VAR_NAME} / ${VAR_NAME:-default} substitution applied before
// parsing (substituteEnvVars in anchor_config.go).
func LoadNodeConfig(path string) (*NodeConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	expanded := substituteEnvVars(string(data))

	var cfg NodeConfig
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// DefaultNodeConfig returns a NodeConfig with every default applied and
// no file read, for cmd/manyd's direct/development mode where a config
// file is optional.
func DefaultNodeConfig() *NodeConfig {
	cfg := &NodeConfig{}
	cfg.applyDefaults()
	return cfg
}

func (c *NodeConfig) applyDefaults() {
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = "0.0.0.0:8080"
	}
	if c.Server.MaxRequestSize == 0 {
		c.Server.MaxRequestSize = 1 << 20 // 1 MiB
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = Duration(10_000_000_000) // 10s
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = Duration(10_000_000_000)
	}
	if c.Storage.Mode == "" {
		c.Storage.Mode = StorageModeDirect
	}
	if c.Storage.DBPath == "" {
		c.Storage.DBPath = "./data/manynet.db"
	}
	if c.Async.RetentionBlocks == 0 {
		c.Async.RetentionBlocks = 50
	}
	if c.Quorum.DomainTag == "" {
		c.Quorum.DomainTag = "MANYNET_QUORUM_V1"
	}
	if c.Genesis.Path == "" {
		c.Genesis.Path = "./genesis.json"
	}
	if c.Migrations.Path == "" {
		c.Migrations.Path = "./migrations"
	}
	if c.CometBFT.ChainID == "" {
		c.CometBFT.ChainID = "manynet"
	}
	if c.CometBFT.RPC.Port == 0 {
		c.CometBFT.RPC.Port = 26657
	}
	if c.CometBFT.P2P.Port == 0 {
		c.CometBFT.P2P.Port = 26656
	}
	if c.Monitoring.Metrics.Port == 0 {
		c.Monitoring.Metrics.Port = 9090
	}
	if c.Monitoring.Metrics.Path == "" {
		c.Monitoring.Metrics.Path = "/metrics"
	}
	if c.Monitoring.Logging.Level == "" {
		c.Monitoring.Logging.Level = "info"
	}
}

// Validate checks that a NodeConfig is usable, erroring out on the
// combinations that would make a node unable to start.
func (c *NodeConfig) Validate() error {
	var errs []string

	switch c.Storage.Mode {
	case StorageModeDirect, StorageModeBlockchain:
	default:
		errs = append(errs, fmt.Sprintf("storage.mode %q is not one of %q, %q", c.Storage.Mode, StorageModeDirect, StorageModeBlockchain))
	}

	if c.Quorum.Enabled && c.Quorum.BLSKeyPath == "" {
		errs = append(errs, "quorum.bls_key_path is required when quorum.enabled is true")
	}

	if c.Storage.Mode == StorageModeBlockchain && c.CometBFT.RPC.ListenAddress == "" && c.CometBFT.RPC.Port == 0 {
		errs = append(errs, "cometbft.rpc settings are required in blockchain mode")
	}

	if len(errs) > 0 {
		return fmt.Errorf("node configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// IsDirect reports whether the node should run without a real BFT engine.
func (c *NodeConfig) IsDirect() bool {
	return c.Storage.Mode == StorageModeDirect
}
