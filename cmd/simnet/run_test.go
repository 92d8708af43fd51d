package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/VanDung-dev/HieraChain-Simnet/api"
	"github.com/VanDung-dev/HieraChain-Simnet/arrow"
	"github.com/VanDung-dev/HieraChain-Simnet/config"
	"github.com/VanDung-dev/HieraChain-Simnet/miner"
)

func testConfig(t *testing.T) config.SimConfig {
	cfg := config.DefaultSimConfig()
	cfg.Node.GossipInterval = 10 * time.Millisecond
	cfg.Node.Difficulty = miner.Trivial
	cfg.TraceOut = filepath.Join(t.TempDir(), "trace.arrow")
	return cfg
}

func TestStarNodes(t *testing.T) {
	opts := starNodes([]uint16{3000, 3001, 3002})
	require.Len(t, opts, 3)
	require.Empty(t, opts[0].Bootstrap)
	require.Equal(t, []uint16{3000}, opts[1].Bootstrap)
	require.Equal(t, []uint16{3000}, opts[2].Bootstrap)
	require.NotNil(t, opts[2].Wallet)
	require.NotEqual(t, opts[1].Wallet.Address, opts[2].Wallet.Address)
}

func TestRunScenario(t *testing.T) {
	cfg := testConfig(t)

	report, err := runScenario(context.Background(), cfg, scenarioOptions{
		blocks:  2,
		txs:     3,
		timeout: 20 * time.Second,
	}, zerolog.Nop())
	require.NoError(t, err)

	require.True(t, report.Partitioned)
	require.Equal(t, uint64(2), report.Blocks)
	require.Len(t, report.Nodes, 3)
	require.Equal(t, uint64(2), report.Nodes[0].Height)
	require.Zero(t, report.Nodes[0].Mempool)
	for _, stats := range report.Nodes {
		require.Equal(t, 2, stats.Peers)
	}

	f, err := os.Open(cfg.TraceOut)
	require.NoError(t, err)
	defer f.Close()

	records, err := arrow.NewIPCWriter().ReadStream(f)
	require.NoError(t, err)
	require.Len(t, records, 1)
	defer records[0].Release()

	events, err := arrow.EventsFromRecord(records[0])
	require.NoError(t, err)
	require.Len(t, events, report.Forwards)

	var delivered int
	for _, ev := range events {
		if ev.Outcome == api.OutcomeDelivered {
			delivered++
		}
	}
	require.Positive(t, delivered)
}

func TestRunStressTest(t *testing.T) {
	cfg := testConfig(t)
	cfg.Nodes = 2

	result, err := runStress(context.Background(), cfg, StressConfig{
		Concurrency: 4,
		Duration:    200 * time.Millisecond,
		Path:        "stats",
	}, zerolog.Nop())
	require.NoError(t, err)
	require.Positive(t, result.SuccessfulReqs)
	require.LessOrEqual(t, result.MinLatency, result.MaxLatency)

	var out bytes.Buffer
	printResults(&out, result)
	require.Contains(t, out.String(), "Total Requests:")

	sc := StressConfig{Path: "stats", ReportFile: filepath.Join(t.TempDir(), "report.json")}
	require.NoError(t, saveReport(sc, result))

	data, err := os.ReadFile(sc.ReportFile)
	require.NoError(t, err)
	var report map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &report))
	require.Contains(t, report, "results")
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())
	require.Contains(t, out.String(), Name+" v"+Version)
}
