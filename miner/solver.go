package miner

import (
	"context"
	"math"
)

// ctxCheckInterval is how many nonces are tried between context checks.
const ctxCheckInterval = 1 << 12

// Options bounds a search. The zero value searches without limit.
type Options struct {
	// MaxIterations stops the search after this many nonces. Zero means no cap.
	MaxIterations uint64
}

// Result describes a successful search.
type Result struct {
	Solution   Solution
	Nonce      uint64
	Iterations uint64
}

// Solve searches nonces 0, 1, 2, ... until one meets the puzzle target. The
// search is unbounded; see SolveContext for a cancellable form.
func Solve(p Puzzle) (Solution, error) {
	res, err := SolveContext(context.Background(), p, Options{})
	if err != nil {
		return Solution{}, err
	}
	return res.Solution, nil
}

// SolveContext is Solve with cancellation and an optional iteration cap. It is
// CPU bound and should run on a worker, never on a goroutine that forwards
// network traffic.
func SolveContext(ctx context.Context, p Puzzle, opts Options) (Result, error) {
	d, err := p.decode()
	if err != nil {
		return Result{}, err
	}
	hasher, err := NewHasher(d.key)
	if err != nil {
		return Result{}, err
	}

	maxNonce := uint64(math.MaxUint64)
	if d.size < MaxNonceSize {
		maxNonce = 1<<(8*uint(d.size)) - 1
	}

	field := d.blob[d.offset : d.offset+d.size]
	var iterations uint64
	for nonce := uint64(0); ; nonce++ {
		if opts.MaxIterations > 0 && iterations >= opts.MaxIterations {
			return Result{Iterations: iterations}, ErrIterationLimit
		}
		if iterations%ctxCheckInterval == 0 && iterations > 0 {
			if err := ctx.Err(); err != nil {
				return Result{Iterations: iterations}, err
			}
		}

		putNonce(field, nonce)
		iterations++
		if hasher.Sum(d.blob).Meets(d.target) {
			return Result{
				Solution:   Solution{Nonce: EncodeNonce(nonce, d.size)},
				Nonce:      nonce,
				Iterations: iterations,
			}, nil
		}

		if nonce == maxNonce {
			return Result{Iterations: iterations}, ErrNonceSpaceExhausted
		}
	}
}

// Verify re-embeds the solution nonce into the puzzle blob and checks the
// digest against the target.
func Verify(p Puzzle, s Solution) (bool, error) {
	d, err := p.decode()
	if err != nil {
		return false, err
	}
	nonce, err := DecodeNonce(s.Nonce, d.size)
	if err != nil {
		return false, err
	}
	putNonce(d.blob[d.offset:d.offset+d.size], nonce)
	digest, err := Hash(d.key, d.blob)
	if err != nil {
		return false, err
	}
	return digest.Meets(d.target), nil
}
