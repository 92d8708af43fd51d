package engine

import (
	"container/heap"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"
)

var (
	ErrMempoolFull     = errors.New("mempool is full")
	ErrTxAlreadyExists = errors.New("transaction already exists")
	ErrTxNotFound      = errors.New("transaction not found")
	ErrInvalidTx       = errors.New("invalid transaction")
)

// Transaction is a pending value transfer waiting to be mined.
type Transaction struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Amount    uint64    `json:"amount"`
	Fee       uint64    `json:"fee"`
	Nonce     uint64    `json:"nonce"`
	Memo      string    `json:"memo,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Validate checks the transfer is well formed.
func (tx *Transaction) Validate() error {
	switch {
	case tx.ID == "":
		return fmt.Errorf("%w: missing id", ErrInvalidTx)
	case tx.From == "" || tx.To == "":
		return fmt.Errorf("%w: %s needs a sender and a recipient", ErrInvalidTx, tx.ID)
	case tx.From == tx.To:
		return fmt.Errorf("%w: %s sends to itself", ErrInvalidTx, tx.ID)
	case tx.Amount == 0:
		return fmt.Errorf("%w: %s moves nothing", ErrInvalidTx, tx.ID)
	}
	return nil
}

// poolEntry tracks a transaction and its position in the fee heap. seq is the
// arrival order and breaks fee ties.
type poolEntry struct {
	tx    *Transaction
	seq   uint64
	index int
}

func (e *poolEntry) before(o *poolEntry) bool {
	if e.tx.Fee != o.tx.Fee {
		return e.tx.Fee > o.tx.Fee
	}
	return e.seq < o.seq
}

// feeHeap is a max-heap on fee.
type feeHeap []*poolEntry

func (h feeHeap) Len() int           { return len(h) }
func (h feeHeap) Less(i, j int) bool { return h[i].before(h[j]) }

func (h feeHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *feeHeap) Push(x interface{}) {
	e := x.(*poolEntry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *feeHeap) Pop() interface{} {
	old := *h
	last := len(old) - 1
	e := old[last]
	old[last] = nil
	e.index = -1
	*h = old[:last]
	return e
}

// Mempool holds the transactions a node has accepted but not yet mined,
// served highest fee first.
type Mempool struct {
	mu    sync.RWMutex
	byID  map[string]*poolEntry
	fees  feeHeap
	limit int
	seq   uint64
}

// NewMempool creates a pool holding at most limit transactions.
func NewMempool(limit int) *Mempool {
	return &Mempool{
		byID:  make(map[string]*poolEntry),
		limit: limit,
	}
}

// Add validates tx and queues it. A zero timestamp is set to now.
func (m *Mempool) Add(tx *Transaction) error {
	if tx == nil {
		return fmt.Errorf("%w: nil transaction", ErrInvalidTx)
	}
	if err := tx.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, dup := m.byID[tx.ID]; dup {
		return fmt.Errorf("%w: %s", ErrTxAlreadyExists, tx.ID)
	}
	if len(m.byID) >= m.limit {
		return ErrMempoolFull
	}
	if tx.Timestamp.IsZero() {
		tx.Timestamp = time.Now()
	}

	m.seq++
	e := &poolEntry{tx: tx, seq: m.seq}
	m.byID[tx.ID] = e
	heap.Push(&m.fees, e)
	return nil
}

// Get returns the queued transaction with id, or nil.
func (m *Mempool) Get(id string) *Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if e, ok := m.byID[id]; ok {
		return e.tx
	}
	return nil
}

// Contains reports whether id is queued.
func (m *Mempool) Contains(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.byID[id]
	return ok
}

// Remove drops id and reports whether it was queued.
func (m *Mempool) Remove(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.removeLocked(id)
}

// RemoveBatch drops every listed id, typically the contents of a mined block,
// and returns how many were queued.
func (m *Mempool) RemoveBatch(ids []string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for _, id := range ids {
		if m.removeLocked(id) {
			removed++
		}
	}
	return removed
}

func (m *Mempool) removeLocked(id string) bool {
	e, ok := m.byID[id]
	if !ok {
		return false
	}
	delete(m.byID, id)
	heap.Remove(&m.fees, e.index)
	return true
}

// PopBatch removes and returns up to n transactions, highest fee first.
func (m *Mempool) PopBatch(n int) []*Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()

	n = min(n, len(m.fees))
	if n <= 0 {
		return nil
	}

	batch := make([]*Transaction, 0, n)
	for range n {
		e := heap.Pop(&m.fees).(*poolEntry)
		delete(m.byID, e.tx.ID)
		batch = append(batch, e.tx)
	}
	return batch
}

// Peek returns up to n transactions in PopBatch order without removing them.
// Block templates are built from it so that a rejected solution loses nothing.
func (m *Mempool) Peek(n int) []*Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n = min(n, len(m.fees))
	if n <= 0 {
		return nil
	}

	ordered := slices.Clone(m.fees)
	slices.SortFunc(ordered, func(a, b *poolEntry) int {
		if a.before(b) {
			return -1
		}
		return 1
	})

	batch := make([]*Transaction, n)
	for i, e := range ordered[:n] {
		batch[i] = e.tx
	}
	return batch
}

// Size returns the number of queued transactions.
func (m *Mempool) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID)
}

// IsFull reports whether Add would fail with ErrMempoolFull.
func (m *Mempool) IsFull() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID) >= m.limit
}

// Clear drops every queued transaction.
func (m *Mempool) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID = make(map[string]*poolEntry)
	m.fees = nil
}

// MempoolStats is a size snapshot of the mempool.
type MempoolStats struct {
	Size      int `json:"size"`
	MaxSize   int `json:"max_size"`
	Available int `json:"available"`
}

// Stats returns a size snapshot.
func (m *Mempool) Stats() MempoolStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return MempoolStats{
		Size:      len(m.byID),
		MaxSize:   m.limit,
		Available: m.limit - len(m.byID),
	}
}
