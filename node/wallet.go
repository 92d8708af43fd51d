package node

import (
	"encoding/hex"

	"golang.org/x/crypto/sha3"
)

// Wallet is the identity a node credits mined blocks to. It carries no keys.
type Wallet struct {
	Address string `json:"address"`
}

// NewWallet derives a deterministic address from seed.
func NewWallet(seed string) *Wallet {
	sum := sha3.Sum256([]byte(seed))
	return &Wallet{Address: "0x" + hex.EncodeToString(sum[:20])}
}
