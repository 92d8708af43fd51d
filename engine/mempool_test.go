package engine

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func transfer(id string, fee uint64) *Transaction {
	return &Transaction{
		ID:     id,
		From:   "alice",
		To:     "bob",
		Amount: 10,
		Fee:    fee,
	}
}

func TestNewMempool(t *testing.T) {
	m := NewMempool(100)
	if m == nil {
		t.Fatal("NewMempool returned nil")
	}
	if m.Size() != 0 {
		t.Errorf("Expected size 0, got %d", m.Size())
	}
	if m.Stats().MaxSize != 100 {
		t.Errorf("Expected max size 100, got %d", m.Stats().MaxSize)
	}
}

func TestMempoolAdd(t *testing.T) {
	m := NewMempool(10)

	tx := transfer("tx-1", 1)
	if err := m.Add(tx); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	if m.Size() != 1 {
		t.Errorf("Expected size 1, got %d", m.Size())
	}
	if tx.Timestamp.IsZero() {
		t.Error("Add should stamp the transaction")
	}
}

func TestMempoolAddInvalid(t *testing.T) {
	m := NewMempool(10)

	tests := []struct {
		name string
		tx   *Transaction
	}{
		{"nil", nil},
		{"missing id", &Transaction{From: "a", To: "b", Amount: 1}},
		{"missing sender", &Transaction{ID: "x", To: "b", Amount: 1}},
		{"self transfer", &Transaction{ID: "x", From: "a", To: "a", Amount: 1}},
		{"zero amount", &Transaction{ID: "x", From: "a", To: "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := m.Add(tt.tx)
			if !errors.Is(err, ErrInvalidTx) {
				t.Errorf("Expected ErrInvalidTx, got %v", err)
			}
		})
	}

	if m.Size() != 0 {
		t.Errorf("Expected size 0, got %d", m.Size())
	}
}

func TestMempoolAddDuplicate(t *testing.T) {
	m := NewMempool(10)

	tx := transfer("tx-1", 0)
	_ = m.Add(tx)
	err := m.Add(tx)
	if !errors.Is(err, ErrTxAlreadyExists) {
		t.Errorf("Expected ErrTxAlreadyExists, got %v", err)
	}
}

func TestMempoolFull(t *testing.T) {
	m := NewMempool(2)

	for i := 0; i < 2; i++ {
		_ = m.Add(transfer(fmt.Sprintf("tx-%d", i), 0))
	}

	err := m.Add(transfer("tx-overflow", 0))
	if !errors.Is(err, ErrMempoolFull) {
		t.Errorf("Expected ErrMempoolFull, got %v", err)
	}
	if !m.IsFull() {
		t.Error("IsFull should be true")
	}
}

func TestMempoolGet(t *testing.T) {
	m := NewMempool(10)

	tx := transfer("tx-1", 0)
	_ = m.Add(tx)

	retrieved := m.Get("tx-1")
	if retrieved == nil {
		t.Fatal("Get returned nil")
	}
	if retrieved.ID != tx.ID {
		t.Errorf("Expected ID %s, got %s", tx.ID, retrieved.ID)
	}

	notFound := m.Get("non-existent")
	if notFound != nil {
		t.Error("Expected nil for non-existent tx")
	}
}

func TestMempoolRemove(t *testing.T) {
	m := NewMempool(10)

	_ = m.Add(transfer("tx-1", 0))

	removed := m.Remove("tx-1")
	if !removed {
		t.Error("Remove should return true")
	}
	if m.Size() != 0 {
		t.Errorf("Expected size 0 after remove, got %d", m.Size())
	}

	removed = m.Remove("non-existent")
	if removed {
		t.Error("Remove should return false for non-existent")
	}
}

func TestMempoolRemoveBatch(t *testing.T) {
	m := NewMempool(10)

	for i := 0; i < 5; i++ {
		_ = m.Add(transfer(fmt.Sprintf("tx-%d", i), uint64(i)))
	}

	removed := m.RemoveBatch([]string{"tx-1", "tx-3", "missing"})
	if removed != 2 {
		t.Errorf("Expected 2 removed, got %d", removed)
	}
	if m.Size() != 3 {
		t.Errorf("Expected size 3, got %d", m.Size())
	}
	if m.Contains("tx-1") || m.Contains("tx-3") {
		t.Error("Removed transactions still present")
	}

	batch := m.PopBatch(10)
	if len(batch) != 3 {
		t.Fatalf("Expected 3 items, got %d", len(batch))
	}
	if batch[0].ID != "tx-4" || batch[1].ID != "tx-2" || batch[2].ID != "tx-0" {
		t.Errorf("Unexpected order: %s %s %s", batch[0].ID, batch[1].ID, batch[2].ID)
	}
}

func TestMempoolRemoveKeepsFeeOrder(t *testing.T) {
	m := NewMempool(20)

	for i := 0; i < 10; i++ {
		_ = m.Add(transfer(fmt.Sprintf("tx-%d", i), uint64((i*7)%10)))
	}
	for _, id := range []string{"tx-3", "tx-0", "tx-8"} {
		if !m.Remove(id) {
			t.Fatalf("Remove %s failed", id)
		}
	}

	batch := m.PopBatch(20)
	if len(batch) != 7 {
		t.Fatalf("Expected 7 items, got %d", len(batch))
	}
	for i := 1; i < len(batch); i++ {
		if batch[i-1].Fee < batch[i].Fee {
			t.Errorf("Fee order broken at %d: %d before %d", i, batch[i-1].Fee, batch[i].Fee)
		}
	}
}

func TestMempoolPopBatch(t *testing.T) {
	m := NewMempool(10)

	// Add transactions with different fees
	for i := 0; i < 5; i++ {
		_ = m.Add(transfer(fmt.Sprintf("tx-%d", i), uint64(i))) // 0, 1, 2, 3, 4
	}

	// Pop 3 highest fee
	batch := m.PopBatch(3)
	if len(batch) != 3 {
		t.Fatalf("Expected 3 items, got %d", len(batch))
	}

	// Should be in fee order (highest first)
	if batch[0].Fee != 4 {
		t.Errorf("Expected fee 4, got %d", batch[0].Fee)
	}
	if batch[1].Fee != 3 {
		t.Errorf("Expected fee 3, got %d", batch[1].Fee)
	}
	if batch[2].Fee != 2 {
		t.Errorf("Expected fee 2, got %d", batch[2].Fee)
	}

	// Size should be reduced
	if m.Size() != 2 {
		t.Errorf("Expected size 2, got %d", m.Size())
	}
}

func TestMempoolPeekKeepsTransactions(t *testing.T) {
	m := NewMempool(10)

	base := time.Now()
	for i := 0; i < 3; i++ {
		tx := transfer(fmt.Sprintf("tx-%d", i), 1)
		tx.Timestamp = base.Add(time.Duration(i) * time.Second)
		_ = m.Add(tx)
	}

	peeked := m.Peek(2)
	if len(peeked) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(peeked))
	}
	// Equal fees fall back to arrival order
	if peeked[0].ID != "tx-0" || peeked[1].ID != "tx-1" {
		t.Errorf("Unexpected order: %s %s", peeked[0].ID, peeked[1].ID)
	}
	if m.Size() != 3 {
		t.Errorf("Peek should not remove, size %d", m.Size())
	}
}

func TestMempoolStats(t *testing.T) {
	m := NewMempool(4)
	_ = m.Add(transfer("tx-1", 0))

	stats := m.Stats()
	if stats.Size != 1 || stats.MaxSize != 4 || stats.Available != 3 {
		t.Errorf("Unexpected stats: %+v", stats)
	}

	m.Clear()
	if m.Size() != 0 {
		t.Errorf("Expected size 0 after clear, got %d", m.Size())
	}
}

func TestMempoolConcurrency(t *testing.T) {
	m := NewMempool(1000)
	var wg sync.WaitGroup

	// Concurrent adds
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			_ = m.Add(transfer(fmt.Sprintf("tx-%d", id), uint64(id%10)))
		}(i)
	}

	wg.Wait()

	if m.Size() != 100 {
		t.Errorf("Expected 100 transactions, got %d", m.Size())
	}
}

func BenchmarkMempoolAdd(b *testing.B) {
	m := NewMempool(b.N + 1)
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		tx := transfer(fmt.Sprintf("tx-%d", i), uint64(i%10))
		tx.Timestamp = time.Now()
		_ = m.Add(tx)
	}
}

func BenchmarkMempoolPopBatch(b *testing.B) {
	m := NewMempool(10000)

	// Pre-populate
	for i := 0; i < 10000; i++ {
		_ = m.Add(transfer(fmt.Sprintf("tx-%d", i), uint64(i%10)))
	}

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		m.PopBatch(100)
		// Re-add for next iteration
		for j := 0; j < 100; j++ {
			_ = m.Add(transfer(fmt.Sprintf("tx-new-%d-%d", i, j), 0))
		}
	}
}
