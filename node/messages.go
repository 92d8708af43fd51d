package node

import (
	"github.com/VanDung-dev/HieraChain-Simnet/engine"
	"github.com/VanDung-dev/HieraChain-Simnet/miner"
	"github.com/VanDung-dev/HieraChain-Simnet/network"
)

// Version is reported by /stats.
const Version = "0.1.0"

// PeerInfo describes a known peer.
type PeerInfo struct {
	Address  network.PeerAddress `json:"address"`
	Height   uint64              `json:"height"`
	LastSeen int64               `json:"last_seen"`
}

// GetStatsRequest is the empty query of GET /stats.
type GetStatsRequest struct{}

// GetStatsResponse reports the node chain, peers, mempool and miner.
type GetStatsResponse struct {
	Address      network.PeerAddress `json:"address"`
	Version      string              `json:"version"`
	Height       uint64              `json:"height"`
	TipHash      string              `json:"tip_hash"`
	Timestamp    int64               `json:"timestamp"`
	Peers        int                 `json:"peers"`
	Mempool      int                 `json:"mempool"`
	Miner        string              `json:"miner,omitempty"`
	MinerWebhook *string             `json:"miner_webhook,omitempty"`
}

// GetPeersRequest is the empty query of GET /peers.
type GetPeersRequest struct{}

// GetPeersResponse lists the known peers.
type GetPeersResponse struct {
	Peers []PeerInfo `json:"peers"`
}

// Addresses returns the listed peer addresses.
func (r GetPeersResponse) Addresses() []network.PeerAddress {
	addrs := make([]network.PeerAddress, 0, len(r.Peers))
	for _, p := range r.Peers {
		addrs = append(addrs, p.Address)
	}
	return addrs
}

// PostPeerRequest is the handshake a node sends to each known peer.
type PostPeerRequest struct {
	Address   network.PeerAddress   `json:"address"`
	Height    uint64                `json:"height"`
	Timestamp int64                 `json:"timestamp"`
	Peers     []network.PeerAddress `json:"peers"`
}

// PostPeerResponse answers a handshake with the receiver height and peers.
type PostPeerResponse struct {
	Height uint64                `json:"height"`
	Peers  []network.PeerAddress `json:"peers"`
}

// RegisterMinerRequest registers a miner with an optional webhook.
type RegisterMinerRequest struct {
	Webhook *string `json:"webhook,omitempty"`
}

// RegisterMinerResponse confirms a miner registration.
type RegisterMinerResponse struct {
	Registered bool    `json:"registered"`
	Webhook    *string `json:"webhook,omitempty"`
}

// GetMinerPuzzleRequest is the empty query of GET /miner/puzzle.
type GetMinerPuzzleRequest struct{}

// PostMinerSolutionRequest carries the hex nonce.
type PostMinerSolutionRequest = miner.Solution

// PostMinerSolutionResponse reports whether a solution extended the chain.
type PostMinerSolutionResponse struct {
	Accepted bool   `json:"accepted"`
	Height   uint64 `json:"height"`
	Hash     string `json:"hash,omitempty"`
}

// TransactRequest submits a transaction to the mempool.
type TransactRequest struct {
	Tx engine.Transaction `json:"tx"`
}

// TransactResponse reports the accepted id and the mempool size.
type TransactResponse struct {
	ID      string `json:"id"`
	Pending int    `json:"pending"`
}

// ShutdownRequest asks the node to stop.
type ShutdownRequest struct{}

// ShutdownResponse acknowledges a shutdown request.
type ShutdownResponse struct{}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}
