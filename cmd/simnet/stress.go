package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/VanDung-dev/HieraChain-Simnet/config"
	"github.com/VanDung-dev/HieraChain-Simnet/logging"
	"github.com/VanDung-dev/HieraChain-Simnet/simnet"
)

// StressConfig holds configuration for the stress test.
type StressConfig struct {
	Concurrency int
	Duration    time.Duration
	Path        string
	ReportFile  string
}

// StressResult holds the results of a stress test.
type StressResult struct {
	TotalRequests  int64
	SuccessfulReqs int64
	FailedReqs     int64
	TotalDuration  time.Duration
	AvgLatency     time.Duration
	MinLatency     time.Duration
	MaxLatency     time.Duration
	RequestsPerSec float64
}

var stressCmd = &cobra.Command{
	Use:   "stress",
	Short: "Hammer a cluster with concurrent RPC calls and report latency.",
	RunE: func(cmd *cobra.Command, args []string) error {
		sc := StressConfig{}
		sc.Concurrency, _ = cmd.Flags().GetInt("c")
		sc.Duration, _ = cmd.Flags().GetDuration("d")
		sc.Path, _ = cmd.Flags().GetString("path")
		sc.ReportFile, _ = cmd.Flags().GetString("o")

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "=== HieraChain Simnet Stress Test ===")
		fmt.Fprintf(out, "Nodes:       %d\n", simCfg.Nodes)
		fmt.Fprintf(out, "Concurrency: %d workers\n", sc.Concurrency)
		fmt.Fprintf(out, "Duration:    %v\n", sc.Duration)
		fmt.Fprintf(out, "Path:        /%s\n", sc.Path)
		fmt.Fprintln(out)

		result, err := runStress(cmd.Context(), simCfg, sc, logging.WithComponent("stress"))
		if err != nil {
			return err
		}
		printResults(out, result)

		if sc.ReportFile != "" {
			if err := saveReport(sc, result); err != nil {
				return err
			}
			fmt.Fprintf(out, "Report saved to: %s\n", sc.ReportFile)
		}
		return nil
	},
}

func init() {
	flags := stressCmd.Flags()
	flags.Int("c", 10, "number of concurrent workers")
	flags.Duration("d", 10*time.Second, "duration of test")
	flags.String("path", "stats", "GET endpoint to call (stats or peers)")
	flags.String("o", "", "output report file (JSON)")

	rootCmd.AddCommand(stressCmd)
}

// runStress launches a star cluster and runs the stress workers against it.
func runStress(ctx context.Context, cfg config.SimConfig, sc StressConfig, log zerolog.Logger) (StressResult, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	net := simnet.Launch(runCtx, simnet.NewSwitch(true), starNodes(cfg.Ports()),
		simnet.WithConfig(cfg.Node),
		simnet.WithLogger(logging.Logger()),
		simnet.WithWorkers(0),
	)
	defer net.Close()

	result := runStressTest(ctx, net.Peers(), sc)
	log.Info().Int64("requests", result.TotalRequests).Msg("Stress run finished")

	if err := net.Shutdown(ctx); err != nil {
		return result, fmt.Errorf("shutdown: %w", err)
	}
	return result, nil
}

func runStressTest(ctx context.Context, peers []*simnet.Peer, sc StressConfig) StressResult {
	var (
		totalReqs    int64
		successReqs  int64
		failedReqs   int64
		totalLatency int64
		minLatency   int64 = 1<<63 - 1
		maxLatency   int64
		wg           sync.WaitGroup
	)

	ctx, cancel := context.WithTimeout(ctx, sc.Duration)
	defer cancel()

	startTime := time.Now()
	for i := 0; i < sc.Concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			peer := peers[workerID%len(peers)]
			for ctx.Err() == nil {
				start := time.Now()
				err := peer.GetJSON(ctx, sc.Path, struct{}{}, nil)
				latency := int64(time.Since(start))
				atomic.AddInt64(&totalReqs, 1)

				if err != nil {
					atomic.AddInt64(&failedReqs, 1)
					continue
				}
				atomic.AddInt64(&successReqs, 1)
				atomic.AddInt64(&totalLatency, latency)
				for {
					old := atomic.LoadInt64(&minLatency)
					if latency >= old || atomic.CompareAndSwapInt64(&minLatency, old, latency) {
						break
					}
				}
				for {
					old := atomic.LoadInt64(&maxLatency)
					if latency <= old || atomic.CompareAndSwapInt64(&maxLatency, old, latency) {
						break
					}
				}
			}
		}(i)
	}
	wg.Wait()

	duration := time.Since(startTime)
	success := atomic.LoadInt64(&successReqs)

	var avgLatency time.Duration
	if success > 0 {
		avgLatency = time.Duration(atomic.LoadInt64(&totalLatency) / success)
	} else {
		minLatency = 0
	}

	total := atomic.LoadInt64(&totalReqs)
	return StressResult{
		TotalRequests:  total,
		SuccessfulReqs: success,
		FailedReqs:     atomic.LoadInt64(&failedReqs),
		TotalDuration:  duration,
		AvgLatency:     avgLatency,
		MinLatency:     time.Duration(minLatency),
		MaxLatency:     time.Duration(maxLatency),
		RequestsPerSec: float64(total) / duration.Seconds(),
	}
}

func percent(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}

func printResults(out io.Writer, result StressResult) {
	fmt.Fprintln(out, "=== Results ===")
	fmt.Fprintf(out, "Duration:        %v\n", result.TotalDuration.Round(time.Millisecond))
	fmt.Fprintf(out, "Total Requests:  %d\n", result.TotalRequests)
	fmt.Fprintf(out, "Successful:      %d (%.2f%%)\n", result.SuccessfulReqs, percent(result.SuccessfulReqs, result.TotalRequests))
	fmt.Fprintf(out, "Failed:          %d (%.2f%%)\n", result.FailedReqs, percent(result.FailedReqs, result.TotalRequests))
	fmt.Fprintf(out, "Requests/sec:    %.2f\n", result.RequestsPerSec)
	fmt.Fprintf(out, "Avg Latency:     %v\n", result.AvgLatency.Round(time.Microsecond))
	fmt.Fprintf(out, "Min Latency:     %v\n", result.MinLatency.Round(time.Microsecond))
	fmt.Fprintf(out, "Max Latency:     %v\n", result.MaxLatency.Round(time.Microsecond))
}

func saveReport(sc StressConfig, result StressResult) error {
	report := map[string]interface{}{
		"config": map[string]interface{}{
			"path":        sc.Path,
			"concurrency": sc.Concurrency,
			"duration":    sc.Duration.String(),
		},
		"results": map[string]interface{}{
			"total_requests":   result.TotalRequests,
			"successful":       result.SuccessfulReqs,
			"failed":           result.FailedReqs,
			"requests_per_sec": result.RequestsPerSec,
			"avg_latency_ms":   float64(result.AvgLatency.Microseconds()) / 1000,
			"min_latency_ms":   float64(result.MinLatency.Microseconds()) / 1000,
			"max_latency_ms":   float64(result.MaxLatency.Microseconds()) / 1000,
		},
		"timestamp": time.Now().Format(time.RFC3339),
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := os.WriteFile(sc.ReportFile, data, 0644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
