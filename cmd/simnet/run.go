package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/VanDung-dev/HieraChain-Simnet/api"
	"github.com/VanDung-dev/HieraChain-Simnet/arrow"
	"github.com/VanDung-dev/HieraChain-Simnet/config"
	"github.com/VanDung-dev/HieraChain-Simnet/engine"
	"github.com/VanDung-dev/HieraChain-Simnet/logging"
	"github.com/VanDung-dev/HieraChain-Simnet/network"
	"github.com/VanDung-dev/HieraChain-Simnet/node"
	"github.com/VanDung-dev/HieraChain-Simnet/simnet"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Launch a star cluster and exercise gossip, partition and mining.",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := scenarioOptions{}
		opts.blocks, _ = cmd.Flags().GetInt("blocks")
		opts.txs, _ = cmd.Flags().GetInt("txs")
		opts.timeout, _ = cmd.Flags().GetDuration("timeout")

		cfg := simCfg
		if cmd.Flags().Changed("trace-out") {
			cfg.TraceOut, _ = cmd.Flags().GetString("trace-out")
		}
		if cmd.Flags().Changed("metrics-addr") {
			cfg.MetricsAddr, _ = cmd.Flags().GetString("metrics-addr")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		report, err := runScenario(ctx, cfg, opts, logging.WithComponent("run"))
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

func init() {
	flags := runCmd.Flags()
	flags.Int("blocks", 3, "blocks to mine on the hub node")
	flags.Int("txs", 5, "transactions to submit before mining")
	flags.Duration("timeout", 30*time.Second, "limit for the whole scenario")
	flags.String("trace-out", "", "write the traffic trace as an Arrow IPC stream to this file")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address")

	rootCmd.AddCommand(runCmd)
}

type scenarioOptions struct {
	blocks  int
	txs     int
	timeout time.Duration
}

// scenarioReport is printed at the end of a run.
type scenarioReport struct {
	Nodes       []node.GetStatsResponse `json:"nodes"`
	Converged   time.Duration           `json:"converged_ns"`
	Partitioned bool                    `json:"partitioned"`
	Blocks      uint64                  `json:"blocks"`
	Forwards    int                     `json:"forwards"`
	FabricError string                  `json:"fabric_error,omitempty"`
}

// starNodes makes node 0 the hub and bootstraps every other node from it.
func starNodes(ports []uint16) []simnet.NodeOpts {
	opts := make([]simnet.NodeOpts, len(ports))
	for i, port := range ports {
		opts[i] = simnet.NodeOpts{
			Port:   port,
			Wallet: node.NewWallet(fmt.Sprintf("node-%d", port)),
		}
		if i > 0 {
			opts[i].Bootstrap = []uint16{ports[0]}
		}
	}
	return opts
}

func runScenario(ctx context.Context, cfg config.SimConfig, opts scenarioOptions, log zerolog.Logger) (*scenarioReport, error) {
	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	reg := prometheus.NewRegistry()
	metrics := api.NewMetrics("simnet", reg)
	if cfg.MetricsAddr != "" {
		srv := api.NewMetricsServer(cfg.MetricsAddr, reg)
		srv.StartAsync()
		defer srv.Stop()
		log.Info().Str("addr", cfg.MetricsAddr).Msg("Metrics server started")
	}

	trace := arrow.NewRecorder()
	sw := simnet.NewSwitch(true)

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	net := simnet.Launch(runCtx, sw, starNodes(cfg.Ports()),
		simnet.WithConfig(cfg.Node),
		simnet.WithLogger(logging.Logger()),
		simnet.WithMetrics(metrics),
		simnet.WithTrace(trace),
		simnet.WithWorkers(cfg.Workers),
	)
	defer net.Close()

	report := &scenarioReport{}
	if err := exercise(ctx, net, opts, report, log); err != nil {
		cancelRun()
		<-net.Nodes().Done()
		return nil, err
	}

	if err := net.Shutdown(ctx); err != nil {
		return nil, fmt.Errorf("shutdown: %w", err)
	}
	if err := net.Fabrics().Wait(ctx); err != nil {
		// Fabrics may race node shutdown; the run itself succeeded.
		report.FabricError = err.Error()
		log.Warn().Err(err).Msg("Fabric ended with an error")
	}

	report.Forwards = trace.Len()
	if cfg.TraceOut != "" {
		if err := writeTrace(cfg.TraceOut, trace); err != nil {
			return nil, err
		}
		log.Info().Str("file", cfg.TraceOut).Int("events", report.Forwards).Msg("Trace written")
	}
	return report, nil
}

func exercise(ctx context.Context, net *simnet.Network, opts scenarioOptions, report *scenarioReport, log zerolog.Logger) error {
	peers := net.Peers()
	hub := peers[0]

	start := time.Now()
	if err := waitConverged(ctx, peers); err != nil {
		return err
	}
	report.Converged = time.Since(start)
	log.Info().Dur("took", report.Converged).Int("nodes", len(peers)).Msg("Gossip converged")

	if len(peers) > 1 {
		net.Switch().Disable()
		_, err := peers[1].Stats(ctx)
		net.Switch().Enable()
		if !errors.Is(err, network.ErrNotAnswering) {
			return fmt.Errorf("partitioned stats call: want %v, got %v", network.ErrNotAnswering, err)
		}
		report.Partitioned = true
		log.Info().Stringer("node", peers[1].Addr()).Msg("Partition verified")
	}

	for i := 0; i < opts.txs; i++ {
		tx := engine.Transaction{
			ID:     fmt.Sprintf("tx-%d", i),
			From:   "alice",
			To:     "bob",
			Amount: uint64(i + 1),
			Fee:    uint64(i % 3),
		}
		if _, err := hub.Transact(ctx, tx); err != nil {
			return fmt.Errorf("transact %s: %w", tx.ID, err)
		}
	}

	for i := 0; i < opts.blocks; i++ {
		resp, err := hub.Mine(ctx)
		if err != nil {
			return fmt.Errorf("mine block %d: %w", i+1, err)
		}
		if !resp.Accepted {
			return fmt.Errorf("block %d rejected", i+1)
		}
		report.Blocks = resp.Height
		log.Info().Uint64("height", resp.Height).Str("hash", resp.Hash).Msg("Block mined")
	}

	for _, p := range peers {
		stats, err := p.Stats(ctx)
		if err != nil {
			return fmt.Errorf("stats %s: %w", p.Addr(), err)
		}
		report.Nodes = append(report.Nodes, stats)
	}
	return nil
}

// waitConverged polls until every node knows every other node.
func waitConverged(ctx context.Context, peers []*simnet.Peer) error {
	want := len(peers) - 1
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		converged := true
		for _, p := range peers {
			stats, err := p.Stats(ctx)
			if err != nil {
				return fmt.Errorf("stats %s: %w", p.Addr(), err)
			}
			if stats.Peers < want {
				converged = false
				break
			}
		}
		if converged {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for gossip: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func writeTrace(path string, trace *arrow.Recorder) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create trace file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	rec := trace.Record()
	defer rec.Release()
	if err := arrow.NewIPCWriter().WriteStream(f, rec); err != nil {
		return fmt.Errorf("write trace: %w", err)
	}
	return nil
}
