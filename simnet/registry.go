package simnet

import (
	"slices"

	"github.com/VanDung-dev/HieraChain-Simnet/network"
)

// Registry maps cluster members to their inbound queues. It is built once
// before any fabric starts and never changes, so lookups need no locking.
type Registry struct {
	queues map[network.PeerAddress]*network.Queue[network.IncomingRequest]
}

// NewRegistry snapshots the inbound queues of handles.
func NewRegistry(handles []*Handle) *Registry {
	queues := make(map[network.PeerAddress]*network.Queue[network.IncomingRequest], len(handles))
	for _, h := range handles {
		queues[h.Addr] = h.Incoming
	}
	return &Registry{queues: queues}
}

// Lookup returns the inbound queue of addr.
func (r *Registry) Lookup(addr network.PeerAddress) (*network.Queue[network.IncomingRequest], bool) {
	q, ok := r.queues[addr]
	return q, ok
}

// Len returns the number of members.
func (r *Registry) Len() int {
	return len(r.queues)
}

// Addresses returns the members in address order.
func (r *Registry) Addresses() []network.PeerAddress {
	addrs := make([]network.PeerAddress, 0, len(r.queues))
	for addr := range r.queues {
		addrs = append(addrs, addr)
	}
	slices.SortFunc(addrs, network.PeerAddress.Compare)
	return addrs
}
