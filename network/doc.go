// Package network provides the addressing and message plumbing shared by the
// simulated cluster.
// This package implements:
// - PeerAddress identities for simulated endpoints
// - Outgoing and incoming request envelopes
// - Single-use reply slots
// - Unbounded FIFO queues connecting nodes to their fabrics
package network
