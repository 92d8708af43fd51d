// Package config loads the simulation settings used by the simnet command.
//
// Values come from, in increasing priority: DefaultSimConfig, an optional
// YAML file and HIE_SIM_* environment variables. A .env file in the working
// directory is loaded into the environment first, without overriding
// variables that are already set. Nested keys map to environment names with
// underscores, so node.gossip_interval is HIE_SIM_NODE_GOSSIP_INTERVAL.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/VanDung-dev/HieraChain-Simnet/node"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "HIE_SIM"

// SimConfig describes one simulation run.
type SimConfig struct {
	Nodes       int         `mapstructure:"nodes"`
	BasePort    uint16      `mapstructure:"base_port"`
	Workers     int         `mapstructure:"workers"`
	LogLevel    string      `mapstructure:"log_level"`
	LogJSON     bool        `mapstructure:"log_json"`
	MetricsAddr string      `mapstructure:"metrics_addr"`
	TraceOut    string      `mapstructure:"trace_out"`
	Node        node.Config `mapstructure:"node"`
}

// DefaultSimConfig returns a three node cluster on ports 3000-3002 with
// metrics and tracing off.
func DefaultSimConfig() SimConfig {
	return SimConfig{
		Nodes:    3,
		BasePort: 3000,
		Workers:  2,
		LogLevel: "info",
		Node:     node.DefaultConfig(),
	}
}

// Validate checks the configuration values.
func (c SimConfig) Validate() error {
	if c.Nodes < 1 {
		return errors.New("at least one node is required")
	}
	if c.BasePort == 0 {
		return errors.New("base port must be set")
	}
	if int(c.BasePort)+c.Nodes-1 > 0xffff {
		return fmt.Errorf("%d nodes from port %d overflow the port range", c.Nodes, c.BasePort)
	}
	if c.Workers < 0 {
		return errors.New("workers must not be negative")
	}
	if err := c.Node.Validate(); err != nil {
		return fmt.Errorf("node: %w", err)
	}
	return nil
}

// Ports returns the port of every node, in launch order.
func (c SimConfig) Ports() []uint16 {
	ports := make([]uint16, c.Nodes)
	for i := range ports {
		ports[i] = c.BasePort + uint16(i)
	}
	return ports
}

// Load reads the configuration. An empty path skips the file.
func Load(path string) (SimConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return SimConfig{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v, DefaultSimConfig())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return SimConfig{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg SimConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return SimConfig{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return SimConfig{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can resolve it.
func setDefaults(v *viper.Viper, def SimConfig) {
	v.SetDefault("nodes", def.Nodes)
	v.SetDefault("base_port", def.BasePort)
	v.SetDefault("workers", def.Workers)
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("log_json", def.LogJSON)
	v.SetDefault("metrics_addr", def.MetricsAddr)
	v.SetDefault("trace_out", def.TraceOut)
	v.SetDefault("node.gossip_interval", def.Node.GossipInterval)
	v.SetDefault("node.peer_timeout", def.Node.PeerTimeout)
	v.SetDefault("node.difficulty", uint32(def.Node.Difficulty))
	v.SetDefault("node.mempool_size", def.Node.MempoolSize)
	v.SetDefault("node.block_tx_limit", def.Node.BlockTxLimit)
}
