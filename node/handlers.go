package node

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"github.com/VanDung-dev/HieraChain-Simnet/engine"
	"github.com/VanDung-dev/HieraChain-Simnet/miner"
)

func (n *Node) routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/stats", n.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/peers", n.handleGetPeers).Methods(http.MethodGet)
	r.HandleFunc("/peers", n.handlePostPeer).Methods(http.MethodPost)
	r.HandleFunc("/miner", n.handleRegisterMiner).Methods(http.MethodPost)
	r.HandleFunc("/miner/puzzle", n.handlePuzzle).Methods(http.MethodGet)
	r.HandleFunc("/miner/solution", n.handleSolution).Methods(http.MethodPost)
	r.HandleFunc("/transact", n.handleTransact).Methods(http.MethodPost)
	r.HandleFunc("/shutdown", n.handleShutdown).Methods(http.MethodPost)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, fmt.Errorf("no route for %s", r.URL.Path))
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("%s not allowed on %s", r.Method, r.URL.Path))
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

func decodeBody(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return errors.New("empty request body")
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

func (n *Node) handleStats(w http.ResponseWriter, r *http.Request) {
	tip := n.chain.Tip()

	n.mu.Lock()
	webhook := n.webhook
	n.mu.Unlock()

	resp := GetStatsResponse{
		Address:      n.addr,
		Version:      Version,
		Height:       tip.Index,
		TipHash:      tip.Hash,
		Timestamp:    n.now().Unix(),
		Peers:        n.peers.count(),
		Mempool:      n.mempool.Size(),
		MinerWebhook: webhook,
	}
	if n.wallet != nil {
		resp.Miner = n.wallet.Address
	}
	writeJSON(w, http.StatusOK, resp)
}

func (n *Node) handleGetPeers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, GetPeersResponse{Peers: n.peers.list()})
}

func (n *Node) handlePostPeer(w http.ResponseWriter, r *http.Request) {
	var req PostPeerRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if !req.Address.IsValid() || req.Address.Port() == 0 {
		writeError(w, http.StatusBadRequest, errors.New("handshake without a sender address"))
		return
	}

	now := n.now()
	if n.peers.add(req.Address, now) {
		n.log.Info().Stringer("peer", req.Address).Msg("Peer joined")
	}
	n.peers.seen(req.Address, req.Height, now)
	for _, addr := range req.Peers {
		if n.peers.add(addr, now) {
			n.log.Debug().Stringer("peer", addr).Msg("Peer discovered")
		}
	}
	n.metrics.UpdateKnownPeers(n.addr.String(), n.peers.count())

	writeJSON(w, http.StatusOK, PostPeerResponse{
		Height: n.chain.Height(),
		Peers:  n.peers.addresses(),
	})
}

func (n *Node) handleRegisterMiner(w http.ResponseWriter, r *http.Request) {
	var req RegisterMinerRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	n.mu.Lock()
	n.webhook = req.Webhook
	n.mu.Unlock()

	ev := n.log.Info()
	if req.Webhook != nil {
		ev = ev.Str("webhook", *req.Webhook)
	}
	ev.Msg("Miner registered")

	writeJSON(w, http.StatusOK, RegisterMinerResponse{Registered: true, Webhook: req.Webhook})
}

// handlePuzzle builds a candidate block on the tip and serves its puzzle.
// Each call replaces the previous candidate.
func (n *Node) handlePuzzle(w http.ResponseWriter, r *http.Request) {
	tip := n.chain.Tip()

	var txs []engine.Transaction
	for _, tx := range n.mempool.Peek(n.cfg.BlockTxLimit) {
		txs = append(txs, *tx)
	}
	ts := n.now().Unix()
	if ts < tip.Timestamp {
		ts = tip.Timestamp
	}

	candidate := &Block{
		Index:        tip.Index + 1,
		Timestamp:    ts,
		PrevHash:     tip.Hash,
		Transactions: txs,
		Target:       uint32(n.cfg.Difficulty),
	}
	if n.wallet != nil {
		candidate.Miner = n.wallet.Address
	}

	puzzle, err := candidate.Puzzle()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	n.mu.Lock()
	n.work = candidate
	n.puzzle = puzzle
	n.mu.Unlock()

	writeJSON(w, http.StatusOK, puzzle)
}

func (n *Node) handleSolution(w http.ResponseWriter, r *http.Request) {
	var sol PostMinerSolutionRequest
	if err := decodeBody(r, &sol); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.work == nil {
		writeError(w, http.StatusConflict, errors.New("no puzzle issued"))
		return
	}
	nonce, err := miner.DecodeNonce(sol.Nonce, nonceSize)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ok, err := miner.Verify(n.puzzle, sol)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, PostMinerSolutionResponse{Height: n.chain.Height()})
		return
	}

	block := *n.work
	block.Nonce = nonce
	if block.Hash, err = block.ComputeHash(); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	n.work = nil
	if err := n.chain.Append(block); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, ErrStaleBlock) {
			status = http.StatusConflict
		}
		writeError(w, status, err)
		return
	}

	ids := make([]string, 0, len(block.Transactions))
	for _, tx := range block.Transactions {
		ids = append(ids, tx.ID)
	}
	n.mempool.RemoveBatch(ids)
	n.metrics.RecordBlock()
	n.metrics.UpdateMempoolSize(n.addr.String(), n.mempool.Size())

	n.log.Info().
		Uint64("height", block.Index).
		Str("hash", block.Hash).
		Int("txs", len(block.Transactions)).
		Msg("Block mined")

	writeJSON(w, http.StatusOK, PostMinerSolutionResponse{
		Accepted: true,
		Height:   block.Index,
		Hash:     block.Hash,
	})
}

func (n *Node) handleTransact(w http.ResponseWriter, r *http.Request) {
	var req TransactRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	tx := req.Tx
	if tx.Timestamp.IsZero() {
		tx.Timestamp = n.now()
	}
	err := n.mempool.Add(&tx)
	n.metrics.RecordTransaction(err == nil)
	switch {
	case err == nil:
	case errors.Is(err, engine.ErrTxAlreadyExists):
		writeError(w, http.StatusConflict, err)
		return
	case errors.Is(err, engine.ErrMempoolFull):
		writeError(w, http.StatusServiceUnavailable, err)
		return
	default:
		writeError(w, http.StatusBadRequest, err)
		return
	}

	pending := n.mempool.Size()
	n.metrics.UpdateMempoolSize(n.addr.String(), pending)
	n.log.Debug().Str("tx", tx.ID).Int("pending", pending).Msg("Transaction accepted")

	writeJSON(w, http.StatusOK, TransactResponse{ID: tx.ID, Pending: pending})
}

func (n *Node) handleShutdown(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ShutdownResponse{})
	n.stopping.Store(true)
	n.log.Info().Str("from", r.RemoteAddr).Msg("Shutdown requested")
}
