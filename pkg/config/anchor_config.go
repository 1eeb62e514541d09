// Copyright 2025 Certen Protocol
//
// Shared YAML configuration primitives used by node_config.go: a
// time.Duration that unmarshals from YAML's "5s"-style strings, the
// CometBFT/monitoring setting trees, and ${VAR_NAME} environment
// substitution. Carried over from the teacher's own anchor config
// loader, which defined these the same way for its own YAML file.

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// MonitoringSettings contains monitoring configuration.
type MonitoringSettings struct {
	Metrics MetricsSettings `yaml:"metrics"`
	Health  HealthSettings  `yaml:"health"`
	Logging LoggingSettings `yaml:"logging"`
	Tracing TracingSettings `yaml:"tracing"`
}

// MetricsSettings contains Prometheus metrics configuration.
type MetricsSettings struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// HealthSettings contains health check configuration.
type HealthSettings struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// LoggingSettings contains logging configuration.
type LoggingSettings struct {
	Level         string `yaml:"level"`
	Format        string `yaml:"format"`
	Output        string `yaml:"output"`
	IncludeCaller bool   `yaml:"include_caller"`
}

// TracingSettings contains OpenTelemetry tracing configuration.
type TracingSettings struct {
	Enabled    bool    `yaml:"enabled"`
	Endpoint   string  `yaml:"endpoint"`
	SampleRate float64 `yaml:"sample_rate"`
}

// CometBFTSettings contains CometBFT configuration.
type CometBFTSettings struct {
	Enabled   bool                      `yaml:"enabled"`
	ChainID   string                    `yaml:"chain_id"`
	P2P       CometBFTP2PSettings       `yaml:"p2p"`
	RPC       CometBFTRPCSettings       `yaml:"rpc"`
	Consensus CometBFTConsensusSettings `yaml:"consensus"`
}

// CometBFTP2PSettings contains P2P configuration.
type CometBFTP2PSettings struct {
	Port            int    `yaml:"port"`
	MaxPeers        int    `yaml:"max_peers"`
	PersistentPeers string `yaml:"persistent_peers"`
}

// CometBFTRPCSettings contains RPC configuration.
type CometBFTRPCSettings struct {
	Port          int    `yaml:"port"`
	ListenAddress string `yaml:"listen_address"`
}

// CometBFTConsensusSettings contains consensus timing configuration.
type CometBFTConsensusSettings struct {
	TimeoutPropose   Duration `yaml:"timeout_propose"`
	TimeoutPrevote   Duration `yaml:"timeout_prevote"`
	TimeoutPrecommit Duration `yaml:"timeout_precommit"`
	TimeoutCommit    Duration `yaml:"timeout_commit"`
}

// Duration wraps time.Duration for YAML unmarshaling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// envVarPattern matches ${VAR_NAME} or ${VAR_NAME:-default}.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// substituteEnvVars replaces ${VAR_NAME} with environment variable values.
func substituteEnvVars(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}

		varName := groups[1]
		defaultValue := ""
		if len(groups) >= 4 {
			defaultValue = groups[3]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}
