package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
)

// Engine exposes the balance operations: query, grant, expiry sweep and
// FIFO-by-expiry consumption. All mutations run inside a single store
// transaction; the engine never holds a lock across calls.
type Engine struct {
	store StoreAPI
	now   func() time.Time
}

func NewEngine(store StoreAPI) *Engine {
	return &Engine{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock overrides the engine clock. Jobs and tests pass a fixed instant.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// AvailableCoins returns the balance view for an employee at asOf (zero value
// means "now"): capped and raw availability over the rolling window, lots
// expiring within the next 60 days, and the 10 most recent transactions.
func (e *Engine) AvailableCoins(ctx context.Context, employeeID string, asOf time.Time) (BalanceView, error) {
	if asOf.IsZero() {
		asOf = e.now()
	}

	lots, err := e.store.ActiveLots(ctx, employeeID, asOf)
	if err != nil {
		return BalanceView{}, fmt.Errorf("load active lots: %w", err)
	}

	raw, available := AvailableFromLots(lots, asOf)

	txns, err := e.store.RecentTransactions(ctx, employeeID, RecentTxnLimit)
	if err != nil {
		return BalanceView{}, fmt.Errorf("load recent transactions: %w", err)
	}

	return BalanceView{
		Available:    available,
		RawAvailable: raw,
		ExpiringSoon: GroupExpiringSoon(lots, asOf),
		RecentTxns:   txns,
	}, nil
}

// Grant credits the employee with up to amount coins from the given source.
// The cap is enforced at grant time: if the capped balance is already at
// CoinCap nothing is granted. Returns the amount actually granted, which may
// be less than requested or zero; callers must not assume the full amount
// landed.
func (e *Engine) Grant(ctx context.Context, employeeID string, amount decimal.Decimal, source string) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}

	now := e.now()
	granted := decimal.Zero
	err := e.store.InTx(ctx, func(tx TxAPI) error {
		lots, err := tx.LockActiveLots(ctx, employeeID, now)
		if err != nil {
			return err
		}
		_, available := AvailableFromLots(lots, now)

		grantAmount := ClampGrant(available, amount)
		if !grantAmount.IsPositive() {
			return nil
		}

		lot := &Lot{
			EmployeeID: employeeID,
			GrantedAt:  now,
			ExpiresAt:  ExpiryFromGrant(now),
			Quantity:   grantAmount,
			Remaining:  grantAmount,
			Source:     source,
		}
		if err := tx.InsertLot(ctx, lot); err != nil {
			return err
		}
		if err := tx.InsertTransaction(ctx, &Transaction{
			EmployeeID: employeeID,
			LotID:      &lot.ID,
			Type:       TxnGrant,
			Amount:     grantAmount,
			OccurredAt: now,
			Comment:    "Grant " + source,
		}); err != nil {
			return err
		}
		granted = grantAmount
		return nil
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("grant coins: %w", err)
	}
	return granted, nil
}

// ExpireSweep zeroes every lot across all employees whose expiry has passed
// and that still holds credit, writing one expire transaction per lot.
// Re-running after a completed sweep finds no eligible lots and expires zero,
// so the periodic job is safe to retry after a crash.
func (e *Engine) ExpireSweep(ctx context.Context, asOf time.Time) (decimal.Decimal, error) {
	if asOf.IsZero() {
		asOf = e.now()
	}

	total := decimal.Zero
	swept := 0
	err := e.store.InTx(ctx, func(tx TxAPI) error {
		lots, err := tx.LockExpirableLots(ctx, asOf)
		if err != nil {
			return err
		}
		for _, lot := range lots {
			amount := lot.Remaining
			if err := tx.UpdateLotRemaining(ctx, lot.ID, decimal.Zero); err != nil {
				return err
			}
			lotID := lot.ID
			if err := tx.InsertTransaction(ctx, &Transaction{
				EmployeeID: lot.EmployeeID,
				LotID:      &lotID,
				Type:       TxnExpire,
				Amount:     amount,
				OccurredAt: asOf,
				Comment:    fmt.Sprintf("Auto expiry at %d months", RollingMonths),
			}); err != nil {
				return err
			}
			total = total.Add(amount)
			swept++
		}
		return nil
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("expire sweep: %w", err)
	}
	if swept > 0 {
		slog.Info("leave coin expiry sweep", "lots", swept, "expired", total.String())
	}
	return total, nil
}

// Consume debits amount coins from the employee's valid lots, oldest expiry
// first, for the referenced leave request. All-or-nothing: when the lots
// cannot cover the full amount the transaction rolls back and
// ErrInsufficientBalance is returned, leaving the ledger untouched.
func (e *Engine) Consume(ctx context.Context, employeeID string, amount decimal.Decimal, leaveRequestID *string) (decimal.Decimal, error) {
	now := e.now()
	err := e.store.InTx(ctx, func(tx TxAPI) error {
		lots, err := tx.LockActiveLots(ctx, employeeID, now)
		if err != nil {
			return err
		}
		debits, err := PlanConsumption(lots, amount)
		if err != nil {
			return err
		}
		return ApplyDebits(ctx, tx, employeeID, lots, debits, leaveRequestID, now)
	})
	if err != nil {
		return decimal.Zero, err
	}
	return amount, nil
}

// ApplyDebits writes planned debits inside an already-open transaction: one
// remaining-decrement and one consume transaction per touched lot. The leave
// workflow calls this directly so that final approval and consumption commit
// or roll back together.
func ApplyDebits(ctx context.Context, tx TxAPI, employeeID string, lots []Lot, debits []Debit, leaveRequestID *string, now time.Time) error {
	remaining := make(map[int64]decimal.Decimal, len(lots))
	for _, lot := range lots {
		remaining[lot.ID] = lot.Remaining
	}

	comment := "Consume"
	if leaveRequestID != nil {
		comment = "Consume for approved leave"
	}

	for _, debit := range debits {
		left, ok := remaining[debit.LotID]
		if !ok {
			return fmt.Errorf("debit references unknown lot %d", debit.LotID)
		}
		newRemaining := left.Sub(debit.Amount)
		if newRemaining.IsNegative() {
			return fmt.Errorf("debit overdraws lot %d", debit.LotID)
		}
		if err := tx.UpdateLotRemaining(ctx, debit.LotID, newRemaining); err != nil {
			return err
		}
		lotID := debit.LotID
		if err := tx.InsertTransaction(ctx, &Transaction{
			EmployeeID:     employeeID,
			LotID:          &lotID,
			Type:           TxnConsume,
			Amount:         debit.Amount,
			LeaveRequestID: leaveRequestID,
			OccurredAt:     now,
			Comment:        comment,
		}); err != nil {
			return err
		}
	}
	return nil
}

// Adjust credits the employee outside the normal monthly grant, e.g. an HR
// correction. Positive amounts create a manual-adjustment lot expiring on the
// usual schedule plus an adjust transaction. The cap is deliberately not
// applied: an explicit adjustment is an admin decision.
func (e *Engine) Adjust(ctx context.Context, employeeID string, amount decimal.Decimal, comment string) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}

	now := e.now()
	err := e.store.InTx(ctx, func(tx TxAPI) error {
		lot := &Lot{
			EmployeeID: employeeID,
			GrantedAt:  now,
			ExpiresAt:  ExpiryFromGrant(now),
			Quantity:   amount,
			Remaining:  amount,
			Source:     SourceManualAdjustment,
		}
		if err := tx.InsertLot(ctx, lot); err != nil {
			return err
		}
		return tx.InsertTransaction(ctx, &Transaction{
			EmployeeID: employeeID,
			LotID:      &lot.ID,
			Type:       TxnAdjust,
			Amount:     amount,
			OccurredAt: now,
			Comment:    comment,
		})
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("adjust coins: %w", err)
	}
	return amount, nil
}

// Statement returns the employee's transactions between from and to, oldest
// first, for CSV/PDF exports.
func (e *Engine) Statement(ctx context.Context, employeeID string, from, to time.Time) ([]Transaction, error) {
	return e.store.TransactionsInRange(ctx, employeeID, from, to)
}
