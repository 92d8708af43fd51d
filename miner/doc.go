// Package miner provides the proof-of-work puzzle format and a brute-force
// solver.
//
// A puzzle carries a hash key, a data blob, the location of the nonce field
// inside the blob and a compact difficulty target. Solving means finding the
// first little-endian nonce whose keyed BLAKE2b-256 digest meets the target.
package miner
