package node

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/VanDung-dev/HieraChain-Simnet/network"
)

// gossip sends a handshake to every known peer right away and then once per
// gossip interval until loopCtx is done. Replies are awaited under reqCtx.
func (n *Node) gossip(loopCtx, reqCtx context.Context) {
	ticker := time.NewTicker(n.cfg.GossipInterval)
	defer ticker.Stop()

	for {
		n.gossipRound(reqCtx)

		select {
		case <-loopCtx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (n *Node) gossipRound(ctx context.Context) {
	now := n.now()
	for _, addr := range n.peers.prune(now) {
		n.log.Info().Stringer("peer", addr).Msg("Pruned stale peer")
	}

	req := PostPeerRequest{
		Address:   n.addr,
		Height:    n.chain.Height(),
		Timestamp: now.Unix(),
		Peers:     n.peers.addresses(),
	}
	n.metrics.UpdateKnownPeers(n.addr.String(), len(req.Peers))

	body, err := json.Marshal(req)
	if err != nil {
		n.log.Error().Err(err).Msg("Failed to encode handshake")
		return
	}

	for _, addr := range req.Peers {
		if !n.claim(addr) {
			continue
		}
		n.gossipWG.Add(1)
		go n.handshake(ctx, addr, body)
	}
}

// claim marks addr as having a handshake in flight. At most one is in flight
// per peer.
func (n *Node) claim(addr network.PeerAddress) bool {
	n.inflightMu.Lock()
	defer n.inflightMu.Unlock()
	if _, busy := n.inflight[addr]; busy {
		return false
	}
	n.inflight[addr] = struct{}{}
	return true
}

func (n *Node) release(addr network.PeerAddress) {
	n.inflightMu.Lock()
	delete(n.inflight, addr)
	n.inflightMu.Unlock()
}

func (n *Node) handshake(ctx context.Context, addr network.PeerAddress, body []byte) {
	defer n.gossipWG.Done()
	defer n.release(addr)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, addr.URL("peers", ""), bytes.NewReader(body))
	if err != nil {
		n.log.Error().Err(err).Stringer("peer", addr).Msg("Failed to build handshake")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	slot := network.NewReplySlot()
	if err := n.outgoing.Push(network.OutgoingRequest{Request: req, Reply: slot}); err != nil {
		return
	}

	resp, err := slot.Wait(ctx)
	if err != nil {
		n.log.Debug().Err(err).Stringer("peer", addr).Msg("Handshake failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		n.log.Debug().Int("status", resp.StatusCode).Stringer("peer", addr).Msg("Handshake rejected")
		return
	}

	var out PostPeerResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		n.log.Debug().Err(err).Stringer("peer", addr).Msg("Malformed handshake reply")
		return
	}

	now := n.now()
	n.peers.seen(addr, out.Height, now)
	for _, p := range out.Peers {
		if n.peers.add(p, now) {
			n.log.Debug().Stringer("peer", p).Msg("Peer discovered")
		}
	}
}
