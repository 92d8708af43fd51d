package node

import (
	"slices"
	"sync"
	"time"

	"github.com/VanDung-dev/HieraChain-Simnet/network"
)

type peerEntry struct {
	height   uint64
	lastSeen time.Time
}

// peerBook tracks known peers, excluding the node itself.
type peerBook struct {
	self         network.PeerAddress
	staleTimeout time.Duration

	mu    sync.RWMutex
	known map[network.PeerAddress]*peerEntry
}

func newPeerBook(self network.PeerAddress, staleTimeout time.Duration) *peerBook {
	return &peerBook{
		self:         self,
		staleTimeout: staleTimeout,
		known:        make(map[network.PeerAddress]*peerEntry),
	}
}

// add registers addr if unknown. It reports whether the peer is new.
func (b *peerBook) add(addr network.PeerAddress, now time.Time) bool {
	if !addr.IsValid() || addr == b.self || addr.Port() == 0 {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.known[addr]; exists {
		return false
	}
	b.known[addr] = &peerEntry{lastSeen: now}
	return true
}

// seen adds or refreshes addr after direct contact.
func (b *peerBook) seen(addr network.PeerAddress, height uint64, now time.Time) {
	if !addr.IsValid() || addr == b.self || addr.Port() == 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	entry, exists := b.known[addr]
	if !exists {
		entry = &peerEntry{}
		b.known[addr] = entry
	}
	entry.height = height
	entry.lastSeen = now
}

// prune removes peers not seen within the stale timeout. A zero timeout
// disables pruning.
func (b *peerBook) prune(now time.Time) []network.PeerAddress {
	if b.staleTimeout <= 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	var removed []network.PeerAddress
	cutoff := now.Add(-b.staleTimeout)
	for addr, entry := range b.known {
		if entry.lastSeen.Before(cutoff) {
			delete(b.known, addr)
			removed = append(removed, addr)
		}
	}
	return removed
}

func (b *peerBook) addresses() []network.PeerAddress {
	b.mu.RLock()
	addrs := make([]network.PeerAddress, 0, len(b.known))
	for addr := range b.known {
		addrs = append(addrs, addr)
	}
	b.mu.RUnlock()

	slices.SortFunc(addrs, network.PeerAddress.Compare)
	return addrs
}

func (b *peerBook) list() []PeerInfo {
	b.mu.RLock()
	peers := make([]PeerInfo, 0, len(b.known))
	for addr, entry := range b.known {
		peers = append(peers, PeerInfo{
			Address:  addr,
			Height:   entry.height,
			LastSeen: entry.lastSeen.Unix(),
		})
	}
	b.mu.RUnlock()

	slices.SortFunc(peers, func(a, b PeerInfo) int { return a.Address.Compare(b.Address) })
	return peers
}

func (b *peerBook) count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.known)
}
