// Package node is a small in-memory ledger node that speaks the admin and
// mining RPC surface over simulated queues instead of sockets.
//
// A Node consumes requests from its inbound queue, routes them through a
// gorilla/mux router and answers on each request's reply slot. Requests the
// node makes to other peers (handshake gossip) are pushed onto its outbound
// queue and are delivered by whatever routes that queue.
//
// RPC surface:
//
//	GET  /stats           GetStatsResponse
//	GET  /peers           GetPeersResponse
//	POST /peers           PostPeerRequest -> PostPeerResponse
//	POST /miner           RegisterMinerRequest -> RegisterMinerResponse
//	GET  /miner/puzzle    miner.Puzzle
//	POST /miner/solution  miner.Solution -> PostMinerSolutionResponse
//	POST /transact        TransactRequest -> TransactResponse
//	POST /shutdown        ShutdownRequest -> ShutdownResponse
package node
