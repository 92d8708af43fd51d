package node

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/VanDung-dev/HieraChain-Simnet/api"
	"github.com/VanDung-dev/HieraChain-Simnet/engine"
	"github.com/VanDung-dev/HieraChain-Simnet/miner"
	"github.com/VanDung-dev/HieraChain-Simnet/network"
)

// Options wires a node to its collaborators.
type Options struct {
	Addr      network.PeerAddress
	Bootstrap []network.PeerAddress
	Chain     *Chain
	Wallet    *Wallet

	// TimestampOffset shifts the node clock, in seconds.
	TimestampOffset int32

	Incoming *network.Queue[network.IncomingRequest]
	Outgoing *network.Queue[network.OutgoingRequest]

	Config  Config
	Logger  zerolog.Logger
	Metrics *api.Metrics
}

// Node is a simulated ledger node.
type Node struct {
	addr    network.PeerAddress
	cfg     Config
	chain   *Chain
	wallet  *Wallet
	offset  time.Duration
	mempool *engine.Mempool
	peers   *peerBook
	router  *mux.Router
	log     zerolog.Logger
	metrics *api.Metrics

	incoming *network.Queue[network.IncomingRequest]
	outgoing *network.Queue[network.OutgoingRequest]

	mu      sync.Mutex
	webhook *string
	work    *Block
	puzzle  miner.Puzzle

	stopping atomic.Bool

	inflightMu sync.Mutex
	inflight   map[network.PeerAddress]struct{}
	gossipWG   sync.WaitGroup
}

// New creates a node. Bootstrap peers are known from the start. Zero config
// fields take their defaults.
func New(opts Options) *Node {
	cfg := opts.Config.withDefaults()
	chain := opts.Chain
	if chain == nil {
		chain = NewChain(DefaultGenesis())
	}

	n := &Node{
		addr:     opts.Addr,
		cfg:      cfg,
		chain:    chain,
		wallet:   opts.Wallet,
		offset:   time.Duration(opts.TimestampOffset) * time.Second,
		mempool:  engine.NewMempool(cfg.MempoolSize),
		peers:    newPeerBook(opts.Addr, cfg.PeerTimeout),
		log:      opts.Logger.With().Stringer("node", opts.Addr).Logger(),
		metrics:  opts.Metrics,
		incoming: opts.Incoming,
		outgoing: opts.Outgoing,
		inflight: make(map[network.PeerAddress]struct{}),
	}
	n.router = n.routes()

	now := n.now()
	for _, addr := range opts.Bootstrap {
		n.peers.add(addr, now)
	}
	return n
}

// Addr returns the node address.
func (n *Node) Addr() network.PeerAddress { return n.addr }

// Chain returns the node chain.
func (n *Node) Chain() *Chain { return n.chain }

// Mempool returns the node transaction pool.
func (n *Node) Mempool() *engine.Mempool { return n.mempool }

// Peers returns the known peer addresses.
func (n *Node) Peers() []network.PeerAddress { return n.peers.addresses() }

func (n *Node) now() time.Time {
	return time.Now().Add(n.offset)
}

// Run serves inbound requests until /shutdown is received, the inbound queue
// is closed or ctx is done. On exit both queues are closed and every request
// left in them is dropped. Run returns nil on shutdown and the context error
// on cancellation.
func (n *Node) Run(ctx context.Context) error {
	n.log.Info().
		Uint64("height", n.chain.Height()).
		Int("peers", n.peers.count()).
		Msg("Node started")

	loopCtx, stopGossip := context.WithCancel(ctx)
	gossipDone := make(chan struct{})
	go func() {
		defer close(gossipDone)
		n.gossip(loopCtx, ctx)
	}()

	var runErr error
	for !n.stopping.Load() {
		req, err := n.incoming.Recv(ctx)
		if err != nil {
			if !errors.Is(err, network.ErrQueueClosed) {
				runErr = err
			}
			break
		}
		n.serve(req)
	}

	stopGossip()
	n.closeQueues()
	<-gossipDone
	n.gossipWG.Wait()

	n.log.Info().Uint64("height", n.chain.Height()).Msg("Node stopped")
	return runErr
}

// serve routes one request and answers on its reply slot.
func (n *Node) serve(in network.IncomingRequest) {
	if in.Request == nil {
		in.Reply.Drop()
		return
	}
	in.Request.RemoteAddr = in.From.String()

	rec := httptest.NewRecorder()
	n.router.ServeHTTP(rec, in.Request)

	if err := in.Reply.Respond(rec.Result()); err != nil {
		n.log.Debug().Err(err).Str("path", in.Request.URL.Path).Msg("Reply not delivered")
	}
}

func (n *Node) closeQueues() {
	for _, req := range n.incoming.Close() {
		req.Reply.Drop()
	}
	for _, req := range n.outgoing.Close() {
		req.Reply.Drop()
	}
}
