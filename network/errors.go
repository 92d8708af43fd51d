package network

import "errors"

// Common errors for simulated network operations
var (
	// ErrNotListening is returned when a destination inbound queue is closed or
	// the destination is unknown to the cluster.
	ErrNotListening = errors.New("peer is not listening")

	// ErrNotAnswering is returned when a request was delivered but its reply
	// slot was dropped without an answer.
	ErrNotAnswering = errors.New("peer is not answering")

	// ErrSerialization is returned when a typed request or response could not
	// be encoded or decoded.
	ErrSerialization = errors.New("serialization failed")

	// ErrTransport is returned when a request could not be constructed.
	ErrTransport = errors.New("malformed request")

	// ErrQueueClosed is returned by Push and Recv once a queue is closed.
	ErrQueueClosed = errors.New("queue closed")

	// ErrReplyUsed is returned when a reply slot was already answered or
	// dropped.
	ErrReplyUsed = errors.New("reply slot already used")
)
