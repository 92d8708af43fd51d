// Package engine holds the node-side processing primitives: a fee-ordered
// transaction mempool and a worker pool that keeps CPU-bound puzzle solving
// off the goroutines that forward simulated traffic.
package engine
