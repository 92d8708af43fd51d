package simnet

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/go-querystring/query"

	"github.com/VanDung-dev/HieraChain-Simnet/api"
	"github.com/VanDung-dev/HieraChain-Simnet/engine"
	"github.com/VanDung-dev/HieraChain-Simnet/miner"
	"github.com/VanDung-dev/HieraChain-Simnet/network"
	"github.com/VanDung-dev/HieraChain-Simnet/node"
)

// StatusError is returned when a node answers with a non-2xx status.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("node replied %d %s: %s", e.Code, http.StatusText(e.Code), e.Message)
}

// Peer is a typed client for one node, talking straight to its inbound
// queue.
type Peer struct {
	addr    network.PeerAddress
	inbound *network.Queue[network.IncomingRequest]

	sw      *Switch
	pool    *engine.WorkerPool
	metrics *api.Metrics
	solve   miner.Options
}

// PeerOption configures a Peer.
type PeerOption func(*Peer)

// WithPartition makes the peer honour sw: while it is disabled every call
// fails with network.ErrNotAnswering without reaching the node.
func WithPartition(sw *Switch) PeerOption {
	return func(p *Peer) { p.sw = sw }
}

// WithSolverPool runs Mine's puzzle search on pool.
func WithSolverPool(pool *engine.WorkerPool) PeerOption {
	return func(p *Peer) { p.pool = pool }
}

// WithPeerMetrics records RPC and solver metrics on m.
func WithPeerMetrics(m *api.Metrics) PeerOption {
	return func(p *Peer) { p.metrics = m }
}

// WithSolveLimit bounds Mine's puzzle search.
func WithSolveLimit(opts miner.Options) PeerOption {
	return func(p *Peer) { p.solve = opts }
}

// NewPeer creates a client for the node at addr.
func NewPeer(addr network.PeerAddress, inbound *network.Queue[network.IncomingRequest], opts ...PeerOption) *Peer {
	p := &Peer{addr: addr, inbound: inbound}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Addr returns the node address.
func (p *Peer) Addr() network.PeerAddress { return p.addr }

// Raw delivers req to the node and returns the reply body. Non-2xx replies
// return a *StatusError.
func (p *Peer) Raw(ctx context.Context, req *http.Request) ([]byte, error) {
	if !p.sw.Enabled() {
		return nil, network.ErrNotAnswering
	}

	slot := network.NewReplySlot()
	err := p.inbound.Push(network.IncomingRequest{
		From:    network.Unspecified(),
		Request: req,
		Reply:   slot,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", network.ErrNotListening, p.addr, err)
	}

	resp, err := slot.Wait(ctx)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, fmt.Errorf("%w: empty reply from %s", network.ErrTransport, p.addr)
	}
	if resp.Body == nil {
		resp.Body = http.NoBody
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read reply: %v", network.ErrTransport, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		se := &StatusError{Code: resp.StatusCode}
		var nodeErr node.ErrorResponse
		if json.Unmarshal(body, &nodeErr) == nil && nodeErr.Error != "" {
			se.Message = nodeErr.Error
		} else {
			se.Message = strings.TrimSpace(string(body))
		}
		return nil, se
	}
	return body, nil
}

// GetJSON sends req query-string encoded to path and decodes the reply into
// resp.
func (p *Peer) GetJSON(ctx context.Context, path string, req, resp interface{}) error {
	values, err := query.Values(req)
	if err != nil {
		return fmt.Errorf("%w: encode %s query: %v", network.ErrSerialization, path, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.addr.URL(path, values.Encode()), nil)
	if err != nil {
		return fmt.Errorf("%w: %v", network.ErrTransport, err)
	}
	return p.roundTrip(ctx, path, httpReq, resp)
}

// PostJSON sends req as a JSON body to path and decodes the reply into resp.
func (p *Peer) PostJSON(ctx context.Context, path string, req, resp interface{}) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("%w: encode %s body: %v", network.ErrSerialization, path, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.addr.URL(path, ""), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", network.ErrTransport, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return p.roundTrip(ctx, path, httpReq, resp)
}

func (p *Peer) roundTrip(ctx context.Context, path string, req *http.Request, resp interface{}) error {
	start := time.Now()
	body, err := p.Raw(ctx, req)

	status := "ok"
	if err != nil {
		status = "error"
	}
	p.metrics.RecordRPCRequest(path, status, time.Since(start))

	if err != nil {
		return err
	}
	if resp == nil {
		return nil
	}
	if err := json.Unmarshal(body, resp); err != nil {
		return fmt.Errorf("%w: decode %s reply: %v", network.ErrSerialization, path, err)
	}
	return nil
}

// Shutdown asks the node to stop.
func (p *Peer) Shutdown(ctx context.Context) error {
	var resp node.ShutdownResponse
	return p.PostJSON(ctx, "shutdown", node.ShutdownRequest{}, &resp)
}

// Stats fetches the node statistics.
func (p *Peer) Stats(ctx context.Context) (node.GetStatsResponse, error) {
	var resp node.GetStatsResponse
	err := p.GetJSON(ctx, "stats", node.GetStatsRequest{}, &resp)
	return resp, err
}

// Peers fetches the node's known peers.
func (p *Peer) Peers(ctx context.Context) (node.GetPeersResponse, error) {
	var resp node.GetPeersResponse
	err := p.GetJSON(ctx, "peers", node.GetPeersRequest{}, &resp)
	return resp, err
}

// SetMiner registers a miner with an optional webhook.
func (p *Peer) SetMiner(ctx context.Context, webhook *string) (node.RegisterMinerResponse, error) {
	var resp node.RegisterMinerResponse
	err := p.PostJSON(ctx, "miner", node.RegisterMinerRequest{Webhook: webhook}, &resp)
	return resp, err
}

// Puzzle fetches the current mining puzzle.
func (p *Peer) Puzzle(ctx context.Context) (miner.Puzzle, error) {
	var resp miner.Puzzle
	err := p.GetJSON(ctx, "miner/puzzle", node.GetMinerPuzzleRequest{}, &resp)
	return resp, err
}

// SubmitSolution posts a puzzle solution.
func (p *Peer) SubmitSolution(ctx context.Context, sol miner.Solution) (node.PostMinerSolutionResponse, error) {
	var resp node.PostMinerSolutionResponse
	err := p.PostJSON(ctx, "miner/solution", sol, &resp)
	return resp, err
}

// Transact submits a transaction to the node mempool.
func (p *Peer) Transact(ctx context.Context, tx engine.Transaction) (node.TransactResponse, error) {
	var resp node.TransactResponse
	err := p.PostJSON(ctx, "transact", node.TransactRequest{Tx: tx}, &resp)
	return resp, err
}

// Mine fetches a puzzle, solves it and submits the solution. The search runs
// on the solver pool when one is configured, otherwise on the calling
// goroutine.
func (p *Peer) Mine(ctx context.Context) (node.PostMinerSolutionResponse, error) {
	puzzle, err := p.Puzzle(ctx)
	if err != nil {
		return node.PostMinerSolutionResponse{}, err
	}

	res, err := p.solvePuzzle(ctx, puzzle)
	if err != nil {
		return node.PostMinerSolutionResponse{}, fmt.Errorf("solve puzzle from %s: %w", p.addr, err)
	}
	return p.SubmitSolution(ctx, res.Solution)
}

func (p *Peer) solvePuzzle(ctx context.Context, puzzle miner.Puzzle) (miner.Result, error) {
	start := time.Now()

	var res miner.Result
	if p.pool == nil {
		var err error
		if res, err = miner.SolveContext(ctx, puzzle, p.solve); err != nil {
			return miner.Result{}, err
		}
	} else {
		data, err := p.pool.Do(ctx, "solve-"+p.addr.String(), func(ctx context.Context) (interface{}, error) {
			return miner.SolveContext(ctx, puzzle, p.solve)
		})
		if err != nil {
			return miner.Result{}, err
		}
		res = data.(miner.Result)

		stats := p.pool.GetStats()
		p.metrics.UpdateWorkerPool(int(stats.Active), stats.Pending)
	}

	p.metrics.RecordSolve(res.Iterations, time.Since(start))
	return res, nil
}
