package miner

import (
	"encoding/hex"
	"errors"
	"fmt"
)

// Common errors for puzzle handling
var (
	ErrInvalidPuzzle       = errors.New("invalid puzzle")
	ErrInvalidTarget       = errors.New("invalid difficulty target")
	ErrInvalidNonce        = errors.New("invalid nonce")
	ErrNonceSpaceExhausted = errors.New("nonce space exhausted")
	ErrIterationLimit      = errors.New("iteration limit reached")
)

// MaxNonceSize is the largest nonce field a puzzle may declare.
const MaxNonceSize = 8

// Puzzle is a proof-of-work challenge as served by a node.
type Puzzle struct {
	Key    string `json:"key"`
	Blob   string `json:"blob"`
	Offset int    `json:"offset"`
	Size   int    `json:"size"`
	Target uint32 `json:"target"`
}

// Solution is the answer posted back to the node.
type Solution struct {
	Nonce string `json:"nonce"`
}

// decoded is a puzzle with its hex fields decoded and bounds checked.
type decoded struct {
	key    []byte
	blob   []byte
	offset int
	size   int
	target Difficulty
}

func (p Puzzle) decode() (*decoded, error) {
	key, err := hex.DecodeString(p.Key)
	if err != nil {
		return nil, fmt.Errorf("%w: key: %v", ErrInvalidPuzzle, err)
	}
	if len(key) > 64 {
		return nil, fmt.Errorf("%w: key longer than 64 bytes", ErrInvalidPuzzle)
	}
	blob, err := hex.DecodeString(p.Blob)
	if err != nil {
		return nil, fmt.Errorf("%w: blob: %v", ErrInvalidPuzzle, err)
	}
	if p.Size < 1 || p.Size > MaxNonceSize {
		return nil, fmt.Errorf("%w: nonce size %d", ErrInvalidPuzzle, p.Size)
	}
	if p.Offset < 0 || p.Offset+p.Size > len(blob) {
		return nil, fmt.Errorf("%w: nonce field [%d,%d) outside blob of %d bytes",
			ErrInvalidPuzzle, p.Offset, p.Offset+p.Size, len(blob))
	}
	target := Difficulty(p.Target)
	if err := target.Validate(); err != nil {
		return nil, err
	}
	return &decoded{key: key, blob: blob, offset: p.Offset, size: p.Size, target: target}, nil
}

// Validate checks the puzzle fields without solving it.
func (p Puzzle) Validate() error {
	_, err := p.decode()
	return err
}

// EncodeNonce returns the hex form of the low size bytes of nonce, little-endian.
func EncodeNonce(nonce uint64, size int) string {
	var b [MaxNonceSize]byte
	putNonce(b[:size], nonce)
	return hex.EncodeToString(b[:size])
}

// DecodeNonce parses a hex nonce of exactly size bytes.
func DecodeNonce(s string, size int) (uint64, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidNonce, err)
	}
	if len(b) != size {
		return 0, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidNonce, len(b), size)
	}
	var n uint64
	for i := len(b) - 1; i >= 0; i-- {
		n = n<<8 | uint64(b[i])
	}
	return n, nil
}

func putNonce(field []byte, nonce uint64) {
	for i := range field {
		field[i] = byte(nonce)
		nonce >>= 8
	}
}
