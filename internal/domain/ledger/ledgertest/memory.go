// Package ledgertest provides an in-memory ledger store with the same
// transactional semantics as the pgx store: mutations inside InTx are rolled
// back wholesale when the callback fails. Used by engine and workflow tests.
package ledgertest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"hrcore/internal/domain/ledger"
)

type MemStore struct {
	mu        sync.Mutex
	lots      []ledger.Lot
	txns      []ledger.Transaction
	nextLotID int64
	nextTxnID int64
}

var _ ledger.StoreAPI = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{nextLotID: 1, nextTxnID: 1}
}

func (s *MemStore) InTx(ctx context.Context, fn func(ledger.TxAPI) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshotLocked()
	if err := fn(&memTx{store: s}); err != nil {
		s.restoreLocked(snap)
		return err
	}
	return nil
}

func (s *MemStore) ActiveLots(ctx context.Context, employeeID string, asOf time.Time) ([]ledger.Lot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeLotsLocked(employeeID, asOf), nil
}

func (s *MemStore) RecentTransactions(ctx context.Context, employeeID string, limit int) ([]ledger.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []ledger.Transaction
	for _, txn := range s.txns {
		if txn.EmployeeID == employeeID {
			out = append(out, txn)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].OccurredAt.Equal(out[j].OccurredAt) {
			return out[i].OccurredAt.After(out[j].OccurredAt)
		}
		return out[i].ID > out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemStore) TransactionsInRange(ctx context.Context, employeeID string, from, to time.Time) ([]ledger.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []ledger.Transaction
	for _, txn := range s.txns {
		if txn.EmployeeID != employeeID {
			continue
		}
		if txn.OccurredAt.Before(from) || txn.OccurredAt.After(to) {
			continue
		}
		out = append(out, txn)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].OccurredAt.Equal(out[j].OccurredAt) {
			return out[i].OccurredAt.Before(out[j].OccurredAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Lots returns a copy of every lot, for assertions.
func (s *MemStore) Lots() []ledger.Lot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ledger.Lot(nil), s.lots...)
}

// Txns returns a copy of every transaction, for assertions.
func (s *MemStore) Txns() []ledger.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ledger.Transaction(nil), s.txns...)
}

// TxnsOfType returns all transactions of one type, for assertions.
func (s *MemStore) TxnsOfType(txnType string) []ledger.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []ledger.Transaction
	for _, txn := range s.txns {
		if txn.Type == txnType {
			out = append(out, txn)
		}
	}
	return out
}

// Snapshot captures the current state so a composing fake (the workflow test
// store) can roll the ledger back together with its own state.
func (s *MemStore) Snapshot() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *MemStore) Restore(snap any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.restoreLocked(snap.(memSnapshot))
}

// Tx exposes the mutating surface without transaction management, for fakes
// that manage rollback themselves via Snapshot/Restore.
func (s *MemStore) Tx() ledger.TxAPI {
	return &memTx{store: s, external: true}
}

type memSnapshot struct {
	lots      []ledger.Lot
	txns      []ledger.Transaction
	nextLotID int64
	nextTxnID int64
}

func (s *MemStore) snapshotLocked() memSnapshot {
	return memSnapshot{
		lots:      append([]ledger.Lot(nil), s.lots...),
		txns:      append([]ledger.Transaction(nil), s.txns...),
		nextLotID: s.nextLotID,
		nextTxnID: s.nextTxnID,
	}
}

func (s *MemStore) restoreLocked(snap memSnapshot) {
	s.lots = snap.lots
	s.txns = snap.txns
	s.nextLotID = snap.nextLotID
	s.nextTxnID = snap.nextTxnID
}

func (s *MemStore) activeLotsLocked(employeeID string, asOf time.Time) []ledger.Lot {
	var out []ledger.Lot
	for _, lot := range s.lots {
		if lot.EmployeeID != employeeID {
			continue
		}
		if !lot.ExpiresAt.After(asOf) || !lot.Remaining.IsPositive() {
			continue
		}
		out = append(out, lot)
	}
	sortLots(out)
	return out
}

type memTx struct {
	store *MemStore
	// external transactions are driven by another fake holding the lock
	// through Snapshot/Restore instead of InTx.
	external bool
}

func (t *memTx) lock() func() {
	if t.external {
		t.store.mu.Lock()
		return t.store.mu.Unlock
	}
	// already held by InTx
	return func() {}
}

func (t *memTx) LockActiveLots(ctx context.Context, employeeID string, asOf time.Time) ([]ledger.Lot, error) {
	defer t.lock()()
	return t.store.activeLotsLocked(employeeID, asOf), nil
}

func (t *memTx) LockExpirableLots(ctx context.Context, asOf time.Time) ([]ledger.Lot, error) {
	defer t.lock()()
	var out []ledger.Lot
	for _, lot := range t.store.lots {
		if lot.ExpiresAt.After(asOf) || !lot.Remaining.IsPositive() {
			continue
		}
		out = append(out, lot)
	}
	sortLots(out)
	return out, nil
}

func (t *memTx) InsertLot(ctx context.Context, lot *ledger.Lot) error {
	defer t.lock()()
	lot.ID = t.store.nextLotID
	t.store.nextLotID++
	if lot.CreatedAt.IsZero() {
		lot.CreatedAt = lot.GrantedAt
	}
	t.store.lots = append(t.store.lots, *lot)
	return nil
}

func (t *memTx) UpdateLotRemaining(ctx context.Context, lotID int64, remaining decimal.Decimal) error {
	defer t.lock()()
	for i := range t.store.lots {
		if t.store.lots[i].ID == lotID {
			t.store.lots[i].Remaining = remaining
			return nil
		}
	}
	return nil
}

func (t *memTx) InsertTransaction(ctx context.Context, txn *ledger.Transaction) error {
	defer t.lock()()
	txn.ID = t.store.nextTxnID
	t.store.nextTxnID++
	t.store.txns = append(t.store.txns, *txn)
	return nil
}

func sortLots(lots []ledger.Lot) {
	sort.Slice(lots, func(i, j int) bool {
		if !lots[i].ExpiresAt.Equal(lots[j].ExpiresAt) {
			return lots[i].ExpiresAt.Before(lots[j].ExpiresAt)
		}
		return lots[i].ID < lots[j].ID
	})
}
