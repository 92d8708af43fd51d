package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/VanDung-dev/HieraChain-Simnet/config"
	"github.com/VanDung-dev/HieraChain-Simnet/logging"
	"github.com/VanDung-dev/HieraChain-Simnet/miner"
	"github.com/VanDung-dev/HieraChain-Simnet/node"
)

// Version information
const (
	Version = "0.1.0"
	Name    = "HieraChain-Simnet"
)

var (
	cfgFile string
	simCfg  config.SimConfig
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "simnet",
	Short: "Run simulated HieraChain ledger clusters without real sockets.",
	Long: `simnet launches ledger nodes in one process, routes their RPC ` +
		`traffic through a simulated network and drives them through ` +
		`gossip, partitions and mining.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if err := applyFlags(cmd, &cfg); err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		simCfg = cfg
		return logging.Init(cfg.LogLevel, cfg.LogJSON, os.Stderr)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s v%s (node protocol %s)\n", Name, Version, node.Version)
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "YAML configuration file")
	flags.Int("nodes", 0, "number of nodes")
	flags.Uint16("base-port", 0, "port of the first node")
	flags.Int("workers", 0, "solver pool size")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.Bool("log-json", false, "log as JSON")
	flags.Duration("gossip", 0, "gossip interval")
	flags.Uint32("difficulty", 0, "compact mining target")

	rootCmd.AddCommand(versionCmd)
}

// applyFlags overrides cfg with the flags set on the command line.
func applyFlags(cmd *cobra.Command, cfg *config.SimConfig) error {
	flags := cmd.Flags()
	var err error
	set := func(name string, apply func() error) {
		if err == nil && flags.Changed(name) {
			err = apply()
		}
	}

	set("nodes", func() (e error) { cfg.Nodes, e = flags.GetInt("nodes"); return })
	set("base-port", func() (e error) { cfg.BasePort, e = flags.GetUint16("base-port"); return })
	set("workers", func() (e error) { cfg.Workers, e = flags.GetInt("workers"); return })
	set("log-level", func() (e error) { cfg.LogLevel, e = flags.GetString("log-level"); return })
	set("log-json", func() (e error) { cfg.LogJSON, e = flags.GetBool("log-json"); return })
	set("gossip", func() (e error) { cfg.Node.GossipInterval, e = flags.GetDuration("gossip"); return })
	set("difficulty", func() error {
		d, e := flags.GetUint32("difficulty")
		cfg.Node.Difficulty = miner.Difficulty(d)
		return e
	})
	return err
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
