package miner

import "fmt"

// Difficulty is a compact proof-of-work target. The high byte is the number of
// leading zero bytes a digest must have; the low 24 bits are the maximum
// big-endian value of the three digest bytes that follow them.
type Difficulty uint32

const (
	// Trivial accepts every digest.
	Trivial Difficulty = 0x00ffffff

	maxZeros = DigestSize - 3
)

// NewDifficulty builds a target from its parts.
func NewDifficulty(zeros uint8, postfix uint32) Difficulty {
	return Difficulty(uint32(zeros)<<24 | postfix&0xffffff)
}

// Zeros returns the required number of leading zero bytes.
func (d Difficulty) Zeros() int {
	return int(d >> 24)
}

// Postfix returns the bound on the bytes following the zero prefix.
func (d Difficulty) Postfix() uint32 {
	return uint32(d) & 0xffffff
}

// Validate checks the target can be met by a digest at all.
func (d Difficulty) Validate() error {
	if d.Zeros() > maxZeros {
		return fmt.Errorf("%w: %d leading zero bytes", ErrInvalidTarget, d.Zeros())
	}
	return nil
}

func (d Difficulty) String() string {
	return fmt.Sprintf("0x%08x", uint32(d))
}

// Meets reports whether the digest satisfies the target.
func (d Digest) Meets(target Difficulty) bool {
	zeros := target.Zeros()
	if zeros > maxZeros {
		return false
	}
	for i := 0; i < zeros; i++ {
		if d[i] != 0 {
			return false
		}
	}
	v := uint32(d[zeros])<<16 | uint32(d[zeros+1])<<8 | uint32(d[zeros+2])
	return v <= target.Postfix()
}
