package node

import (
	"errors"
	"time"

	"github.com/VanDung-dev/HieraChain-Simnet/miner"
)

// Config holds node tunables. A negative PeerTimeout disables peer pruning and
// a negative BlockTxLimit mines empty blocks.
type Config struct {
	GossipInterval time.Duration    `mapstructure:"gossip_interval" json:"gossip_interval"`
	PeerTimeout    time.Duration    `mapstructure:"peer_timeout" json:"peer_timeout"`
	Difficulty     miner.Difficulty `mapstructure:"difficulty" json:"difficulty"`
	MempoolSize    int              `mapstructure:"mempool_size" json:"mempool_size"`
	BlockTxLimit   int              `mapstructure:"block_tx_limit" json:"block_tx_limit"`
}

// DefaultConfig returns the default node configuration. The default target
// needs about 256 hashes per block.
func DefaultConfig() Config {
	return Config{
		GossipInterval: time.Second,
		PeerTimeout:    5 * time.Minute,
		Difficulty:     miner.NewDifficulty(0, 0x00ffff),
		MempoolSize:    10000,
		BlockTxLimit:   100,
	}
}

// Validate checks the configuration values.
func (c Config) Validate() error {
	if c.GossipInterval <= 0 {
		return errors.New("gossip interval must be positive")
	}
	if c.MempoolSize <= 0 {
		return errors.New("mempool size must be positive")
	}
	return c.Difficulty.Validate()
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.GossipInterval <= 0 {
		c.GossipInterval = def.GossipInterval
	}
	if c.PeerTimeout == 0 {
		c.PeerTimeout = def.PeerTimeout
	}
	if c.Difficulty == 0 {
		c.Difficulty = def.Difficulty
	}
	if c.MempoolSize <= 0 {
		c.MempoolSize = def.MempoolSize
	}
	if c.BlockTxLimit == 0 {
		c.BlockTxLimit = def.BlockTxLimit
	}
	return c
}
