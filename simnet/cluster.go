package simnet

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/VanDung-dev/HieraChain-Simnet/api"
	"github.com/VanDung-dev/HieraChain-Simnet/arrow"
	"github.com/VanDung-dev/HieraChain-Simnet/engine"
	"github.com/VanDung-dev/HieraChain-Simnet/logging"
	"github.com/VanDung-dev/HieraChain-Simnet/miner"
	"github.com/VanDung-dev/HieraChain-Simnet/network"
	"github.com/VanDung-dev/HieraChain-Simnet/node"
)

// Future resolves when every task of a group has returned. Its error is the
// first error returned by any task.
type Future struct {
	done chan struct{}
	err  error
}

func newFuture(g *errgroup.Group) *Future {
	f := &Future{done: make(chan struct{})}
	go func() {
		f.err = g.Wait()
		close(f.done)
	}()
	return f
}

// Done is closed once the future resolves.
func (f *Future) Done() <-chan struct{} { return f.done }

// Err returns the first error once Done is closed, nil before.
func (f *Future) Err() error {
	select {
	case <-f.done:
		return f.err
	default:
		return nil
	}
}

// Wait blocks until the future resolves or ctx is done.
func (f *Future) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

type launchConfig struct {
	node    node.Config
	logger  zerolog.Logger
	metrics *api.Metrics
	trace   *arrow.Recorder
	workers int
	solve   miner.Options
}

// Option configures Launch.
type Option func(*launchConfig)

// WithConfig sets the configuration of every node.
func WithConfig(cfg node.Config) Option {
	return func(c *launchConfig) { c.node = cfg }
}

// WithLogger sets the base logger of the cluster.
func WithLogger(log zerolog.Logger) Option {
	return func(c *launchConfig) { c.logger = log }
}

// WithMetrics records fabric, node and client metrics on m.
func WithMetrics(m *api.Metrics) Option {
	return func(c *launchConfig) { c.metrics = m }
}

// WithTrace records every forward on r.
func WithTrace(r *arrow.Recorder) Option {
	return func(c *launchConfig) { c.trace = r }
}

// WithWorkers sets the size of the solver pool. Zero solves on the calling
// goroutine.
func WithWorkers(n int) Option {
	return func(c *launchConfig) { c.workers = n }
}

// WithSolveOptions bounds the puzzle search of every peer handle.
func WithSolveOptions(opts miner.Options) Option {
	return func(c *launchConfig) { c.solve = opts }
}

// Network is a running cluster.
type Network struct {
	sw       *Switch
	registry *Registry
	nodes    []*node.Node
	handles  []*Handle
	peers    []*Peer
	pool     *engine.WorkerPool
	log      zerolog.Logger

	nodeFuture   *Future
	fabricFuture *Future
}

// Launch creates one node per entry of opts, snapshots the registry of all of
// them and then starts every node and one fabric per node. All fabrics share
// sw and the registry. Cancelling ctx stops everything.
func Launch(ctx context.Context, sw *Switch, opts []NodeOpts, options ...Option) *Network {
	cfg := launchConfig{
		node:    node.DefaultConfig(),
		logger:  logging.Logger(),
		workers: runtime.NumCPU(),
	}
	for _, opt := range options {
		opt(&cfg)
	}

	nodeLog := cfg.logger.With().Str("component", "node").Logger()
	fabricLog := cfg.logger.With().Str("component", "fabric").Logger()

	n := &Network{
		sw:  sw,
		log: cfg.logger.With().Str("component", "simnet").Logger(),
	}
	for _, o := range opts {
		nd, h := CreateNode(o, cfg.node, nodeLog, cfg.metrics)
		n.nodes = append(n.nodes, nd)
		n.handles = append(n.handles, h)
	}
	n.registry = NewRegistry(n.handles)

	if cfg.workers > 0 {
		n.pool = engine.NewWorkerPool("solver", cfg.workers)
	}

	var nodeGroup, fabricGroup errgroup.Group
	for i, h := range n.handles {
		nd := n.nodes[i]
		nodeGroup.Go(func() error {
			if err := nd.Run(ctx); err != nil {
				return fmt.Errorf("node %s: %w", h.Addr, err)
			}
			return nil
		})

		f := NewFabric(h, sw, n.registry)
		f.Metrics = cfg.metrics
		f.Trace = cfg.trace
		f.Logger = fabricLog
		fabricGroup.Go(func() error {
			if err := f.Run(ctx); err != nil {
				return fmt.Errorf("fabric %s: %w", h.Addr, err)
			}
			return nil
		})

		n.peers = append(n.peers, NewPeer(h.Addr, h.Incoming,
			WithPartition(sw),
			WithSolverPool(n.pool),
			WithPeerMetrics(cfg.metrics),
			WithSolveLimit(cfg.solve),
		))
	}
	n.nodeFuture = newFuture(&nodeGroup)
	n.fabricFuture = newFuture(&fabricGroup)

	n.log.Info().Int("nodes", len(n.nodes)).Int("workers", cfg.workers).Msg("Cluster launched")
	return n
}

// Nodes resolves when every node has stopped.
func (n *Network) Nodes() *Future { return n.nodeFuture }

// Fabrics resolves when every fabric has stopped. A fabric that hit an
// unreachable destination surfaces its error here.
func (n *Network) Fabrics() *Future { return n.fabricFuture }

// Peers returns the peer handles in launch order. They honour the cluster
// switch.
func (n *Network) Peers() []*Peer { return n.peers }

// Node returns the i-th node runtime.
func (n *Network) Node(i int) *node.Node { return n.nodes[i] }

// Registry returns the cluster membership.
func (n *Network) Registry() *Registry { return n.registry }

// Switch returns the cluster partition switch.
func (n *Network) Switch() *Switch { return n.sw }

// Shutdown asks every node to stop, bypassing the partition switch, and waits
// for all of them. Nodes that already stopped are skipped.
func (n *Network) Shutdown(ctx context.Context) error {
	var errs []error
	for _, h := range n.handles {
		admin := NewPeer(h.Addr, h.Incoming)
		if err := admin.Shutdown(ctx); err != nil &&
			!errors.Is(err, network.ErrNotListening) && !errors.Is(err, network.ErrNotAnswering) {
			errs = append(errs, fmt.Errorf("shutdown %s: %w", h.Addr, err))
		}
	}
	if err := n.nodeFuture.Wait(ctx); err != nil {
		errs = append(errs, err)
	}
	n.log.Info().Msg("Cluster stopped")
	return errors.Join(errs...)
}

// Close stops the solver pool.
func (n *Network) Close() {
	if n.pool != nil {
		n.pool.Shutdown()
	}
}
