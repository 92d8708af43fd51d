package miner

import (
	"encoding/hex"
	"hash"

	"golang.org/x/crypto/blake2b"
)

// DigestSize is the size of a proof-of-work digest in bytes.
const DigestSize = blake2b.Size256

// Digest is a proof-of-work hash output.
type Digest [DigestSize]byte

func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// Hasher computes keyed digests. It reuses its internal state and output
// buffer, so Sum does not allocate. A Hasher is not safe for concurrent use.
type Hasher struct {
	h   hash.Hash
	buf []byte
}

// NewHasher creates a hasher keyed with key (at most 64 bytes).
func NewHasher(key []byte) (*Hasher, error) {
	h, err := blake2b.New256(key)
	if err != nil {
		return nil, err
	}
	return &Hasher{h: h, buf: make([]byte, 0, DigestSize)}, nil
}

// Sum returns the digest of blob under the hasher key.
func (h *Hasher) Sum(blob []byte) Digest {
	h.h.Reset()
	h.h.Write(blob)
	var d Digest
	copy(d[:], h.h.Sum(h.buf[:0]))
	return d
}

// Hash is the one-shot form of Hasher.Sum.
func Hash(key, blob []byte) (Digest, error) {
	h, err := NewHasher(key)
	if err != nil {
		return Digest{}, err
	}
	return h.Sum(blob), nil
}
