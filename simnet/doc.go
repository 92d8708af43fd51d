// Package simnet runs a cluster of simulated ledger nodes in one process.
//
// Every node gets an inbound and an outbound queue. A Fabric per node moves
// requests from its outbound queue to the destination's inbound queue and
// relays the single reply back, unless the shared Switch is disabled, in
// which case the request is dropped and its caller sees
// network.ErrNotAnswering right away. Peer handles let a test driver call a
// node's RPC surface directly.
//
// A typical driver:
//
//	sw := simnet.NewSwitch(true)
//	cluster := simnet.Launch(ctx, sw, []simnet.NodeOpts{
//		{Port: 3000},
//		{Port: 3001},
//		{Port: 3002, Bootstrap: []uint16{3000, 3001}},
//	})
//	defer cluster.Close()
//
//	stats, err := cluster.Peers()[0].Stats(ctx)
//	sw.Disable()
//	_, err = cluster.Peers()[1].Stats(ctx) // network.ErrNotAnswering
package simnet
