// Package api provides Prometheus metrics for the simulated network.
package api

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Forward outcomes recorded by ObserveForward.
const (
	OutcomeDelivered    = "delivered"
	OutcomeDropped      = "dropped"
	OutcomeNotAnswering = "not_answering"
	OutcomeFailed       = "failed"
)

// Metrics holds all Prometheus metrics for a cluster. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	// Fabric metrics
	ForwardsTotal  *prometheus.CounterVec
	ForwardLatency prometheus.Histogram

	// Client RPC metrics
	RPCRequestsTotal   *prometheus.CounterVec
	RPCRequestDuration *prometheus.HistogramVec

	// Mining metrics
	SolverIterations prometheus.Counter
	SolveDuration    prometheus.Histogram
	BlocksMined      prometheus.Counter

	// Node metrics
	TransactionsTotal  prometheus.Counter
	TransactionsFailed prometheus.Counter
	MempoolSize        *prometheus.GaugeVec
	KnownPeers         *prometheus.GaugeVec

	// Worker pool metrics
	WorkerPoolActive  prometheus.Gauge
	WorkerPoolPending prometheus.Gauge
}

// NewMetrics creates a Metrics instance with the given namespace, registered
// on reg.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ForwardsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fabric_forwards_total",
			Help:      "Requests handled by routing fabrics by outcome",
		}, []string{"outcome"}),
		ForwardLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fabric_forward_latency_seconds",
			Help:      "Time from forwarding a request to relaying its reply",
			Buckets:   []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05, .1, .5, 1},
		}),

		RPCRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_requests_total",
			Help:      "Peer handle RPC calls by path and status",
		}, []string{"path", "status"}),
		RPCRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rpc_request_duration_seconds",
			Help:      "Peer handle RPC duration by path",
			Buckets:   prometheus.DefBuckets,
		}, []string{"path"}),

		SolverIterations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "solver_iterations_total",
			Help:      "Nonces tried by the puzzle solver",
		}),
		SolveDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "solve_duration_seconds",
			Help:      "Puzzle solving time in seconds",
			Buckets:   []float64{.0001, .001, .01, .1, .5, 1, 5, 10, 30},
		}),
		BlocksMined: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocks_mined_total",
			Help:      "Blocks accepted by nodes",
		}),

		TransactionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_total",
			Help:      "Total number of transactions submitted",
		}),
		TransactionsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_failed_total",
			Help:      "Total number of rejected transactions",
		}),
		MempoolSize: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mempool_size",
			Help:      "Current number of pending transactions per node",
		}, []string{"node"}),
		KnownPeers: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "known_peers",
			Help:      "Peers in each node's peer book",
		}, []string{"node"}),

		WorkerPoolActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "worker_pool_active",
			Help:      "Number of active workers",
		}),
		WorkerPoolPending: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "worker_pool_pending",
			Help:      "Number of pending tasks in worker pool",
		}),
	}
}

// ObserveForward records one fabric forwarding attempt.
func (m *Metrics) ObserveForward(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ForwardsTotal.WithLabelValues(outcome).Inc()
	if outcome != OutcomeDropped {
		m.ForwardLatency.Observe(duration.Seconds())
	}
}

// RecordRPCRequest records a peer handle RPC call.
func (m *Metrics) RecordRPCRequest(path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RPCRequestsTotal.WithLabelValues(path, status).Inc()
	m.RPCRequestDuration.WithLabelValues(path).Observe(duration.Seconds())
}

// RecordSolve records a finished puzzle search.
func (m *Metrics) RecordSolve(iterations uint64, duration time.Duration) {
	if m == nil {
		return
	}
	m.SolverIterations.Add(float64(iterations))
	m.SolveDuration.Observe(duration.Seconds())
}

// RecordBlock records an accepted block.
func (m *Metrics) RecordBlock() {
	if m == nil {
		return
	}
	m.BlocksMined.Inc()
}

// RecordTransaction records a transaction submission.
func (m *Metrics) RecordTransaction(success bool) {
	if m == nil {
		return
	}
	m.TransactionsTotal.Inc()
	if !success {
		m.TransactionsFailed.Inc()
	}
}

// UpdateMempoolSize updates the mempool gauge of a node.
func (m *Metrics) UpdateMempoolSize(node string, size int) {
	if m == nil {
		return
	}
	m.MempoolSize.WithLabelValues(node).Set(float64(size))
}

// UpdateKnownPeers updates the peer book gauge of a node.
func (m *Metrics) UpdateKnownPeers(node string, count int) {
	if m == nil {
		return
	}
	m.KnownPeers.WithLabelValues(node).Set(float64(count))
}

// UpdateWorkerPool updates worker pool gauges.
func (m *Metrics) UpdateWorkerPool(active, pending int) {
	if m == nil {
		return
	}
	m.WorkerPoolActive.Set(float64(active))
	m.WorkerPoolPending.Set(float64(pending))
}

// MetricsServer runs an HTTP server exposing the /metrics endpoint.
type MetricsServer struct {
	server *http.Server
}

// NewMetricsServer creates a metrics server on addr serving the metrics
// gathered from g.
func NewMetricsServer(addr string, g prometheus.Gatherer) *MetricsServer {
	return &MetricsServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           Handler(g),
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Handler returns the metrics and health routes.
func Handler(g prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	return mux
}

// Start starts the metrics server (blocking).
func (s *MetricsServer) Start() error {
	return s.server.ListenAndServe()
}

// StartAsync starts the metrics server in a goroutine.
func (s *MetricsServer) StartAsync() {
	go func() {
		_ = s.server.ListenAndServe()
	}()
}

// Stop stops the metrics server.
func (s *MetricsServer) Stop() error {
	return s.server.Close()
}
