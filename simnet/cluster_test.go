package simnet

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/VanDung-dev/HieraChain-Simnet/api"
	"github.com/VanDung-dev/HieraChain-Simnet/arrow"
	"github.com/VanDung-dev/HieraChain-Simnet/network"
	"github.com/VanDung-dev/HieraChain-Simnet/node"
)

func gossipConfig() node.Config {
	cfg := node.DefaultConfig()
	cfg.GossipInterval = 20 * time.Millisecond
	return cfg
}

func launch(t *testing.T, sw *Switch, opts []NodeOpts, cfg node.Config, extra ...Option) *Network {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	options := append([]Option{WithConfig(cfg), WithLogger(zerolog.Nop()), WithWorkers(2)}, extra...)
	net := Launch(ctx, sw, opts, options...)
	t.Cleanup(func() {
		cancel()
		<-net.Nodes().Done()
		<-net.Fabrics().Done()
		net.Close()
	})
	return net
}

func TestFutureResolvesWithFirstError(t *testing.T) {
	boom := errors.New("boom")
	release := make(chan struct{})

	var g errgroup.Group
	g.Go(func() error { <-release; return nil })
	g.Go(func() error { <-release; return boom })
	f := newFuture(&g)

	require.NoError(t, f.Err())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, f.Wait(ctx), context.DeadlineExceeded)

	close(release)
	require.ErrorIs(t, f.Wait(context.Background()), boom)
	require.ErrorIs(t, f.Err(), boom)
}

func TestClusterEndToEnd(t *testing.T) {
	sw := NewSwitch(true)
	net := launch(t, sw, []NodeOpts{
		{Port: 3000},
		{Port: 3001},
		{Port: 3002, Bootstrap: []uint16{3000, 3001}},
	}, gossipConfig())
	a, b, c := net.Peers()[0], net.Peers()[1], net.Peers()[2]
	ctx := testCtx(t)

	require.Eventually(t, func() bool {
		resp, err := a.Peers(ctx)
		if err != nil {
			return false
		}
		addrs := resp.Addresses()
		return slices.Contains(addrs, b.Addr()) && slices.Contains(addrs, c.Addr())
	}, 5*time.Second, 20*time.Millisecond)

	for _, p := range net.Peers() {
		stats, err := p.Stats(ctx)
		require.NoError(t, err)
		require.Equal(t, p.Addr(), stats.Address)
	}

	sw.Disable()
	_, err := b.Stats(ctx)
	require.ErrorIs(t, err, network.ErrNotAnswering)

	sw.Enable()
	_, err = b.Stats(ctx)
	require.NoError(t, err)

	require.NoError(t, net.Shutdown(ctx))
	require.NoError(t, net.Nodes().Err())

	// Fabrics may fail while their destinations stop; they must still resolve.
	select {
	case <-net.Fabrics().Done():
	case <-ctx.Done():
		t.Fatal("fabrics did not stop")
	}
}

func TestClusterRPCRoundTrip(t *testing.T) {
	net := launch(t, NewSwitch(true), []NodeOpts{
		{Port: 3000},
		{Port: 3001, Bootstrap: []uint16{3000}},
	}, gossipConfig())
	p := net.Peers()[1]
	ctx := testCtx(t)

	webhook := "http://x"
	resp, err := p.SetMiner(ctx, &webhook)
	require.NoError(t, err)
	require.True(t, resp.Registered)

	stats, err := p.Stats(ctx)
	require.NoError(t, err)
	require.NotNil(t, stats.MinerWebhook)
	require.Equal(t, webhook, *stats.MinerWebhook)
}

func TestClusterUnknownBootstrapFailsFabric(t *testing.T) {
	net := launch(t, NewSwitch(true), []NodeOpts{
		{Port: 3000, Bootstrap: []uint16{3999}},
	}, gossipConfig())
	ctx := testCtx(t)

	err := net.Fabrics().Wait(ctx)
	require.ErrorIs(t, err, network.ErrNotListening)
	require.Contains(t, err.Error(), "fabric 127.0.0.1:3000")

	// The node itself keeps serving.
	_, err = net.Peers()[0].Stats(ctx)
	require.NoError(t, err)
}

func TestClusterPartitionIsTraced(t *testing.T) {
	sw := NewSwitch(true)
	trace := arrow.NewRecorder()
	net := launch(t, sw, []NodeOpts{
		{Port: 3000},
		{Port: 3001, Bootstrap: []uint16{3000}},
	}, gossipConfig(), WithTrace(trace))

	hasOutcome := func(outcome string) bool {
		for _, ev := range trace.Events() {
			if ev.Outcome == outcome {
				return true
			}
		}
		return false
	}

	require.Eventually(t, func() bool { return hasOutcome(api.OutcomeDelivered) }, 5*time.Second, 10*time.Millisecond)

	sw.Disable()
	require.Eventually(t, func() bool { return hasOutcome(api.OutcomeDropped) }, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, 2, net.Registry().Len())
	require.Same(t, sw, net.Switch())
}

func TestClusterMining(t *testing.T) {
	net := launch(t, NewSwitch(true), []NodeOpts{
		{Port: 3000, Wallet: node.NewWallet("alice")},
		{Port: 3001, Bootstrap: []uint16{3000}},
	}, gossipConfig())
	ctx := testCtx(t)
	p := net.Peers()[0]

	resp, err := p.Mine(ctx)
	require.NoError(t, err)
	require.True(t, resp.Accepted)
	require.Equal(t, uint64(1), resp.Height)

	tip := net.Node(0).Chain().Tip()
	require.Equal(t, node.NewWallet("alice").Address, tip.Miner)

	stats, err := net.Peers()[1].Stats(ctx)
	require.NoError(t, err)
	require.Zero(t, stats.Height)
}

func TestClusterStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	net := Launch(ctx, NewSwitch(true), []NodeOpts{
		{Port: 3000},
		{Port: 3001, Bootstrap: []uint16{3000}},
	}, WithConfig(gossipConfig()), WithLogger(zerolog.Nop()), WithWorkers(0))
	defer net.Close()

	cancel()

	wait, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	require.ErrorIs(t, net.Nodes().Wait(wait), context.Canceled)

	// A fabric ends either on the cancelled context or on its closed queue.
	select {
	case <-net.Fabrics().Done():
	case <-wait.Done():
		t.Fatal("fabrics did not stop")
	}
}
