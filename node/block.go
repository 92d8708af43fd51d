package node

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"golang.org/x/crypto/sha3"

	"github.com/VanDung-dev/HieraChain-Simnet/engine"
	"github.com/VanDung-dev/HieraChain-Simnet/miner"
)

// Header layout: index | timestamp | prev hash | body hash | target | nonce.
const (
	hashSize    = 32
	headerSize  = 8 + 8 + hashSize + hashSize + 4 + nonceSize
	nonceOffset = headerSize - nonceSize
	nonceSize   = 8

	genesisTimestamp = 1700000000
)

// Common errors for chain operations
var (
	ErrInvalidBlock = errors.New("invalid block")
	ErrStaleBlock   = errors.New("block does not extend the tip")
)

var zeroHash = strings.Repeat("0", 2*hashSize)

// Block is a mined block. Hash is the SHA3-256 of the header.
type Block struct {
	Index        uint64               `json:"index"`
	Timestamp    int64                `json:"timestamp"`
	PrevHash     string               `json:"prev_hash"`
	Miner        string               `json:"miner,omitempty"`
	Transactions []engine.Transaction `json:"transactions,omitempty"`
	Target       uint32               `json:"target"`
	Nonce        uint64               `json:"nonce"`
	Hash         string               `json:"hash"`
}

// DefaultGenesis returns the genesis block used when none is supplied.
func DefaultGenesis() Block {
	b := Block{
		Timestamp: genesisTimestamp,
		PrevHash:  zeroHash,
		Target:    uint32(miner.Trivial),
	}
	b.Hash, _ = b.ComputeHash()
	return b
}

func (b *Block) isZero() bool {
	return b.Index == 0 && b.Timestamp == 0 && b.PrevHash == "" && b.Hash == "" &&
		b.Miner == "" && len(b.Transactions) == 0
}

func decodeHash(s string) ([]byte, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: hash: %v", ErrInvalidBlock, err)
	}
	if len(raw) != hashSize {
		return nil, fmt.Errorf("%w: hash is %d bytes", ErrInvalidBlock, len(raw))
	}
	return raw, nil
}

func (b *Block) bodyHash() ([hashSize]byte, error) {
	body, err := json.Marshal(struct {
		Miner        string               `json:"miner"`
		Transactions []engine.Transaction `json:"transactions"`
	}{b.Miner, b.Transactions})
	if err != nil {
		return [hashSize]byte{}, fmt.Errorf("%w: body: %v", ErrInvalidBlock, err)
	}
	return sha3.Sum256(body), nil
}

// Header returns the serialized header. The nonce occupies the last
// nonceSize bytes, little-endian.
func (b *Block) Header() ([]byte, error) {
	prev, err := decodeHash(b.PrevHash)
	if err != nil {
		return nil, err
	}
	body, err := b.bodyHash()
	if err != nil {
		return nil, err
	}

	h := make([]byte, headerSize)
	binary.LittleEndian.PutUint64(h[0:], b.Index)
	binary.LittleEndian.PutUint64(h[8:], uint64(b.Timestamp))
	copy(h[16:16+hashSize], prev)
	copy(h[16+hashSize:16+2*hashSize], body[:])
	binary.LittleEndian.PutUint32(h[16+2*hashSize:], b.Target)
	binary.LittleEndian.PutUint64(h[nonceOffset:], b.Nonce)
	return h, nil
}

// ComputeHash returns the hex SHA3-256 of the header.
func (b *Block) ComputeHash() (string, error) {
	h, err := b.Header()
	if err != nil {
		return "", err
	}
	sum := sha3.Sum256(h)
	return hex.EncodeToString(sum[:]), nil
}

// Puzzle returns the proof-of-work challenge for this block. The key is the
// previous block hash.
func (b *Block) Puzzle() (miner.Puzzle, error) {
	h, err := b.Header()
	if err != nil {
		return miner.Puzzle{}, err
	}
	return miner.Puzzle{
		Key:    b.PrevHash,
		Blob:   hex.EncodeToString(h),
		Offset: nonceOffset,
		Size:   nonceSize,
		Target: b.Target,
	}, nil
}

// Chain is an in-memory block list rooted at a genesis block.
type Chain struct {
	mu     sync.RWMutex
	blocks []Block
}

// NewChain creates a chain from genesis. A zero or malformed genesis block is
// replaced by DefaultGenesis.
func NewChain(genesis Block) *Chain {
	if genesis.isZero() {
		genesis = DefaultGenesis()
	}
	if genesis.Hash == "" {
		hash, err := genesis.ComputeHash()
		if err != nil {
			genesis = DefaultGenesis()
		} else {
			genesis.Hash = hash
		}
	}
	return &Chain{blocks: []Block{genesis}}
}

// Tip returns the latest block.
func (c *Chain) Tip() Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.blocks[len(c.blocks)-1]
}

// Height returns the index of the latest block.
func (c *Chain) Height() uint64 {
	return c.Tip().Index
}

// Block returns the block at index.
func (c *Chain) Block(index uint64) (Block, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if index >= uint64(len(c.blocks)) {
		return Block{}, false
	}
	return c.blocks[index], true
}

// Append validates b against the tip and adds it.
func (c *Chain) Append(b Block) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tip := c.blocks[len(c.blocks)-1]
	if b.Index != tip.Index+1 || b.PrevHash != tip.Hash {
		return ErrStaleBlock
	}
	if b.Timestamp < tip.Timestamp {
		return fmt.Errorf("%w: timestamp %d before parent %d", ErrInvalidBlock, b.Timestamp, tip.Timestamp)
	}

	hash, err := b.ComputeHash()
	if err != nil {
		return err
	}
	if hash != b.Hash {
		return fmt.Errorf("%w: hash mismatch", ErrInvalidBlock)
	}

	header, _ := b.Header()
	key, _ := decodeHash(b.PrevHash)
	digest, err := miner.Hash(key, header)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBlock, err)
	}
	if !digest.Meets(miner.Difficulty(b.Target)) {
		return fmt.Errorf("%w: proof of work does not meet target %s", ErrInvalidBlock, miner.Difficulty(b.Target))
	}

	c.blocks = append(c.blocks, b)
	return nil
}
