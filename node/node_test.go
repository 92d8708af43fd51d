package node

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/VanDung-dev/HieraChain-Simnet/engine"
	"github.com/VanDung-dev/HieraChain-Simnet/miner"
	"github.com/VanDung-dev/HieraChain-Simnet/network"
)

type testNode struct {
	*Node
	in   *network.Queue[network.IncomingRequest]
	out  *network.Queue[network.OutgoingRequest]
	done chan error
}

func startNode(t *testing.T, cfg Config, port uint16, bootstrap ...uint16) *testNode {
	t.Helper()
	tn := newNode(t, cfg, port, bootstrap...)
	tn.start(t, context.Background())
	return tn
}

func newNode(t *testing.T, cfg Config, port uint16, bootstrap ...uint16) *testNode {
	t.Helper()
	var peers []network.PeerAddress
	for _, p := range bootstrap {
		peers = append(peers, network.LocalAddress(p))
	}
	in := network.NewQueue[network.IncomingRequest]()
	out := network.NewQueue[network.OutgoingRequest]()
	n := New(Options{
		Addr:      network.LocalAddress(port),
		Bootstrap: peers,
		Chain:     NewChain(Block{}),
		Wallet:    NewWallet("miner"),
		Incoming:  in,
		Outgoing:  out,
		Config:    cfg,
		Logger:    zerolog.Nop(),
	})
	return &testNode{Node: n, in: in, out: out, done: make(chan error, 1)}
}

func (tn *testNode) start(t *testing.T, ctx context.Context) {
	t.Helper()
	go func() { tn.done <- tn.Run(ctx) }()
	t.Cleanup(func() {
		for _, req := range tn.in.Close() {
			req.Reply.Drop()
		}
		select {
		case <-tn.done:
		case <-time.After(5 * time.Second):
			t.Error("node did not stop")
		}
	})
}

func quietConfig() Config {
	cfg := DefaultConfig()
	cfg.GossipInterval = time.Hour
	return cfg
}

func (tn *testNode) push(t *testing.T, method, path string, body interface{}) *network.ReplySlot {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, tn.Addr().URL(path, ""), reader)
	require.NoError(t, err)

	slot := network.NewReplySlot()
	require.NoError(t, tn.in.Push(network.IncomingRequest{
		From:    network.Unspecified(),
		Request: req,
		Reply:   slot,
	}))
	return slot
}

func (tn *testNode) call(t *testing.T, method, path string, body, out interface{}) int {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := tn.push(t, method, path, body).Wait(ctx)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if out != nil {
		require.NoError(t, json.Unmarshal(raw, out), string(raw))
	}
	return resp.StatusCode
}

func TestNodeStats(t *testing.T) {
	tn := startNode(t, quietConfig(), 3000, 3001)

	var stats GetStatsResponse
	require.Equal(t, http.StatusOK, tn.call(t, http.MethodGet, "stats", nil, &stats))
	require.Equal(t, network.LocalAddress(3000), stats.Address)
	require.Equal(t, Version, stats.Version)
	require.Equal(t, uint64(0), stats.Height)
	require.Equal(t, DefaultGenesis().Hash, stats.TipHash)
	require.Equal(t, 1, stats.Peers)
	require.Equal(t, NewWallet("miner").Address, stats.Miner)
	require.Nil(t, stats.MinerWebhook)
}

func TestNodeClockOffset(t *testing.T) {
	in := network.NewQueue[network.IncomingRequest]()
	n := New(Options{
		Addr:            network.LocalAddress(3000),
		TimestampOffset: -3600,
		Incoming:        in,
		Outgoing:        network.NewQueue[network.OutgoingRequest](),
		Config:          quietConfig(),
		Logger:          zerolog.Nop(),
	})
	tn := &testNode{Node: n, in: in, done: make(chan error, 1)}
	tn.start(t, context.Background())

	var stats GetStatsResponse
	tn.call(t, http.MethodGet, "stats", nil, &stats)
	require.InDelta(t, time.Now().Add(-time.Hour).Unix(), stats.Timestamp, 5)
}

func TestNodeRegisterMiner(t *testing.T) {
	tn := startNode(t, quietConfig(), 3000)

	webhook := "http://x"
	var reg RegisterMinerResponse
	require.Equal(t, http.StatusOK, tn.call(t, http.MethodPost, "miner", RegisterMinerRequest{Webhook: &webhook}, &reg))
	require.True(t, reg.Registered)
	require.NotNil(t, reg.Webhook)
	require.Equal(t, webhook, *reg.Webhook)

	var stats GetStatsResponse
	tn.call(t, http.MethodGet, "stats", nil, &stats)
	require.NotNil(t, stats.MinerWebhook)
	require.Equal(t, webhook, *stats.MinerWebhook)
}

func TestNodePostPeerHandshake(t *testing.T) {
	tn := startNode(t, quietConfig(), 3000)

	var resp PostPeerResponse
	status := tn.call(t, http.MethodPost, "peers", PostPeerRequest{
		Address: network.LocalAddress(3002),
		Height:  4,
		Peers:   []network.PeerAddress{network.LocalAddress(3000), network.LocalAddress(3003)},
	}, &resp)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, []network.PeerAddress{network.LocalAddress(3002), network.LocalAddress(3003)}, resp.Peers)

	var peers GetPeersResponse
	tn.call(t, http.MethodGet, "peers", nil, &peers)
	require.Equal(t, resp.Peers, peers.Addresses())
	require.Equal(t, uint64(4), peers.Peers[0].Height)
}

func TestNodePostPeerRequiresAddress(t *testing.T) {
	tn := startNode(t, quietConfig(), 3000)

	var errResp ErrorResponse
	status := tn.call(t, http.MethodPost, "peers", map[string]interface{}{"peers": []string{}}, &errResp)
	require.Equal(t, http.StatusBadRequest, status)
	require.NotEmpty(t, errResp.Error)
}

func TestNodeMiningIncludesTransactions(t *testing.T) {
	cfg := quietConfig()
	cfg.Difficulty = miner.Trivial
	tn := startNode(t, cfg, 3000)

	var tr TransactResponse
	require.Equal(t, http.StatusOK, tn.call(t, http.MethodPost, "transact", TransactRequest{
		Tx: engine.Transaction{ID: "tx-1", From: "alice", To: "bob", Amount: 5},
	}, &tr))
	require.Equal(t, "tx-1", tr.ID)
	require.Equal(t, 1, tr.Pending)

	var puzzle miner.Puzzle
	require.Equal(t, http.StatusOK, tn.call(t, http.MethodGet, "miner/puzzle", nil, &puzzle))
	require.Equal(t, nonceOffset, puzzle.Offset)
	require.Equal(t, nonceSize, puzzle.Size)
	require.Equal(t, DefaultGenesis().Hash, puzzle.Key)

	sol, err := miner.Solve(puzzle)
	require.NoError(t, err)

	var accepted PostMinerSolutionResponse
	require.Equal(t, http.StatusOK, tn.call(t, http.MethodPost, "miner/solution", sol, &accepted))
	require.True(t, accepted.Accepted)
	require.Equal(t, uint64(1), accepted.Height)

	tip := tn.Chain().Tip()
	require.Equal(t, accepted.Hash, tip.Hash)
	require.Equal(t, NewWallet("miner").Address, tip.Miner)
	require.Len(t, tip.Transactions, 1)
	require.Equal(t, "tx-1", tip.Transactions[0].ID)
	require.Equal(t, 0, tn.Mempool().Size())

	// The candidate is consumed by an accepted solution
	status := tn.call(t, http.MethodPost, "miner/solution", sol, nil)
	require.Equal(t, http.StatusConflict, status)
}

func TestNodeRejectsWrongSolution(t *testing.T) {
	cfg := quietConfig()
	cfg.Difficulty = miner.NewDifficulty(6, 0)
	tn := startNode(t, cfg, 3000)

	status := tn.call(t, http.MethodPost, "miner/solution", miner.Solution{Nonce: "0000000000000000"}, nil)
	require.Equal(t, http.StatusConflict, status)

	tn.call(t, http.MethodGet, "miner/puzzle", nil, &miner.Puzzle{})

	var resp PostMinerSolutionResponse
	require.Equal(t, http.StatusOK, tn.call(t, http.MethodPost, "miner/solution", miner.Solution{Nonce: "0000000000000000"}, &resp))
	require.False(t, resp.Accepted)
	require.Equal(t, uint64(0), resp.Height)

	status = tn.call(t, http.MethodPost, "miner/solution", miner.Solution{Nonce: "00"}, nil)
	require.Equal(t, http.StatusBadRequest, status)
}

func TestNodeTransactErrors(t *testing.T) {
	tn := startNode(t, quietConfig(), 3000)

	tx := engine.Transaction{ID: "tx-1", From: "alice", To: "bob", Amount: 5}
	require.Equal(t, http.StatusOK, tn.call(t, http.MethodPost, "transact", TransactRequest{Tx: tx}, nil))
	require.Equal(t, http.StatusConflict, tn.call(t, http.MethodPost, "transact", TransactRequest{Tx: tx}, nil))

	tx.ID = "tx-2"
	tx.Amount = 0
	require.Equal(t, http.StatusBadRequest, tn.call(t, http.MethodPost, "transact", TransactRequest{Tx: tx}, nil))
}

func TestNodeUnknownRoute(t *testing.T) {
	tn := startNode(t, quietConfig(), 3000)

	var errResp ErrorResponse
	require.Equal(t, http.StatusNotFound, tn.call(t, http.MethodGet, "nope", nil, &errResp))
	require.Contains(t, errResp.Error, "/nope")

	require.Equal(t, http.StatusMethodNotAllowed, tn.call(t, http.MethodDelete, "stats", nil, nil))
}

func TestNodeShutdownDropsQueuedRequests(t *testing.T) {
	tn := newNode(t, quietConfig(), 3000)

	ack := tn.push(t, http.MethodPost, "shutdown", ShutdownRequest{})
	queued := tn.push(t, http.MethodGet, "stats", nil)
	tn.start(t, context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := ack.Wait(ctx)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	_, err = queued.Wait(ctx)
	require.ErrorIs(t, err, network.ErrNotAnswering)

	select {
	case err := <-tn.done:
		require.NoError(t, err)
		tn.done <- nil
	case <-ctx.Done():
		t.Fatal("node did not stop after shutdown")
	}

	require.True(t, tn.in.Closed())
	require.True(t, tn.out.Closed())
	require.ErrorIs(t, tn.in.Push(network.IncomingRequest{Reply: network.NewReplySlot()}), network.ErrQueueClosed)
}

func TestNodeRunStopsOnCancel(t *testing.T) {
	tn := newNode(t, quietConfig(), 3000)
	ctx, cancel := context.WithCancel(context.Background())

	go func() { tn.done <- tn.Run(ctx) }()
	cancel()

	select {
	case err := <-tn.done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("node did not stop after cancel")
	}
	require.True(t, tn.out.Closed())
}

func TestNodeGossipHandshake(t *testing.T) {
	tn := startNode(t, quietConfig(), 3000, 3001)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out, err := tn.out.Recv(ctx)
	require.NoError(t, err)
	require.Equal(t, http.MethodPost, out.Request.Method)
	require.Equal(t, "127.0.0.1:3001", out.Request.URL.Host)
	require.Equal(t, "/peers", out.Request.URL.Path)

	var hello PostPeerRequest
	require.NoError(t, json.NewDecoder(out.Request.Body).Decode(&hello))
	require.Equal(t, network.LocalAddress(3000), hello.Address)
	require.Equal(t, []network.PeerAddress{network.LocalAddress(3001)}, hello.Peers)

	body, err := json.Marshal(PostPeerResponse{
		Height: 5,
		Peers:  []network.PeerAddress{network.LocalAddress(3000), network.LocalAddress(3009)},
	})
	require.NoError(t, err)
	require.NoError(t, out.Reply.Respond(&http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(bytes.NewReader(body)),
	}))

	require.Eventually(t, func() bool {
		return len(tn.Peers()) == 2
	}, 5*time.Second, 10*time.Millisecond)

	var peers GetPeersResponse
	tn.call(t, http.MethodGet, "peers", nil, &peers)
	require.Equal(t, []network.PeerAddress{network.LocalAddress(3001), network.LocalAddress(3009)}, peers.Addresses())
	require.Equal(t, uint64(5), peers.Peers[0].Height)
}
