package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// StoreAPI is the persistence seam for the ledger. The pgx-backed Store is
// the production implementation; tests use an in-memory fake with the same
// transactional semantics.
type StoreAPI interface {
	// InTx runs fn inside one storage transaction. If fn returns an error the
	// transaction rolls back and no lot or transaction row is left behind.
	InTx(ctx context.Context, fn func(TxAPI) error) error

	// ActiveLots returns lots with credit remaining that expire strictly
	// after asOf, ordered by (expires_at asc, id asc). Read-only.
	ActiveLots(ctx context.Context, employeeID string, asOf time.Time) ([]Lot, error)

	RecentTransactions(ctx context.Context, employeeID string, limit int) ([]Transaction, error)
	TransactionsInRange(ctx context.Context, employeeID string, from, to time.Time) ([]Transaction, error)
}

// TxAPI is the mutating surface available inside a ledger transaction.
type TxAPI interface {
	// LockActiveLots is ActiveLots with a row lock held until commit, so a
	// concurrent consume on the same employee blocks instead of reading a
	// stale balance.
	LockActiveLots(ctx context.Context, employeeID string, asOf time.Time) ([]Lot, error)

	// LockExpirableLots locks lots across all employees whose expiry has
	// passed and that still hold credit, ordered by (expires_at asc, id asc).
	LockExpirableLots(ctx context.Context, asOf time.Time) ([]Lot, error)

	InsertLot(ctx context.Context, lot *Lot) error
	UpdateLotRemaining(ctx context.Context, lotID int64, remaining decimal.Decimal) error
	InsertTransaction(ctx context.Context, txn *Transaction) error
}
