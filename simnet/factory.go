package simnet

import (
	"github.com/rs/zerolog"

	"github.com/VanDung-dev/HieraChain-Simnet/api"
	"github.com/VanDung-dev/HieraChain-Simnet/network"
	"github.com/VanDung-dev/HieraChain-Simnet/node"
)

// NodeOpts describes one simulated node.
type NodeOpts struct {
	// Genesis roots the node chain. The zero block selects node.DefaultGenesis.
	Genesis node.Block
	// Wallet is credited with mined blocks when set.
	Wallet *node.Wallet
	// Port is the logical port on the loopback address.
	Port uint16
	// Bootstrap lists the ports of peers known from the start.
	Bootstrap []uint16
	// TimestampOffset shifts the node clock, in seconds.
	TimestampOffset int32
}

// Handle is the cluster side of a node: where to deliver its requests and
// where to collect the requests it makes.
type Handle struct {
	Addr     network.PeerAddress
	Incoming *network.Queue[network.IncomingRequest]
	Outgoing *network.Queue[network.OutgoingRequest]
}

// CreateNode builds a node and its queue handle. Nothing runs until the
// node's Run is called.
func CreateNode(opts NodeOpts, cfg node.Config, log zerolog.Logger, metrics *api.Metrics) (*node.Node, *Handle) {
	addr := network.LocalAddress(opts.Port)
	bootstrap := make([]network.PeerAddress, 0, len(opts.Bootstrap))
	for _, port := range opts.Bootstrap {
		bootstrap = append(bootstrap, network.LocalAddress(port))
	}

	h := &Handle{
		Addr:     addr,
		Incoming: network.NewQueue[network.IncomingRequest](),
		Outgoing: network.NewQueue[network.OutgoingRequest](),
	}

	n := node.New(node.Options{
		Addr:            addr,
		Bootstrap:       bootstrap,
		Chain:           node.NewChain(opts.Genesis),
		Wallet:          opts.Wallet,
		TimestampOffset: opts.TimestampOffset,
		Incoming:        h.Incoming,
		Outgoing:        h.Outgoing,
		Config:          cfg,
		Logger:          log,
		Metrics:         metrics,
	})
	return n, h
}
