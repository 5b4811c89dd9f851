package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"hrcore/internal/domain/ledger"
	"hrcore/internal/domain/ledger/ledgertest"
)

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func newEngine(store *ledgertest.MemStore, at time.Time) *ledger.Engine {
	return ledger.NewEngine(store).WithClock(fixedClock(at))
}

func d(value float64) decimal.Decimal {
	return decimal.NewFromFloat(value)
}

// reconcile checks the accounting invariant: sum of lot remainders equals
// grants plus adjustments and restores minus consumes and expires.
func reconcile(t *testing.T, store *ledgertest.MemStore, employeeID string) {
	t.Helper()

	fromLots := decimal.Zero
	for _, lot := range store.Lots() {
		if lot.EmployeeID == employeeID {
			fromLots = fromLots.Add(lot.Remaining)
		}
	}

	fromTxns := decimal.Zero
	for _, txn := range store.Txns() {
		if txn.EmployeeID != employeeID {
			continue
		}
		switch txn.Type {
		case ledger.TxnGrant, ledger.TxnAdjust, ledger.TxnRestore:
			fromTxns = fromTxns.Add(txn.Amount)
		case ledger.TxnConsume, ledger.TxnExpire:
			fromTxns = fromTxns.Sub(txn.Amount)
		}
	}

	require.True(t, fromLots.Equal(fromTxns),
		"ledger out of balance: lots=%s txns=%s", fromLots, fromTxns)
}

func TestGrantRespectsCap(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store := ledgertest.NewMemStore()
	engine := newEngine(store, now)
	ctx := context.Background()

	granted, err := engine.Grant(ctx, "emp-1", d(8), ledger.SourceMonthlyGrant)
	require.NoError(t, err)
	require.True(t, granted.Equal(d(8)))

	// 8 on the books, cap 10: a grant of 5 only lands 2.
	granted, err = engine.Grant(ctx, "emp-1", d(5), ledger.SourceMonthlyGrant)
	require.NoError(t, err)
	require.True(t, granted.Equal(d(2)), "expected clamped grant of 2, got %s", granted)

	lots := store.Lots()
	require.Len(t, lots, 2)
	require.True(t, lots[1].Quantity.Equal(d(2)), "lot must hold the clamped quantity, got %s", lots[1].Quantity)

	// At the cap: further grants are zero and create no lot.
	granted, err = engine.Grant(ctx, "emp-1", d(1), ledger.SourceMonthlyGrant)
	require.NoError(t, err)
	require.True(t, granted.IsZero())
	require.Len(t, store.Lots(), 2)

	reconcile(t, store, "emp-1")
}

func TestAvailableCoinsView(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store := ledgertest.NewMemStore()
	ctx := context.Background()

	// One coin per month for three months, distinct expiries.
	for month := 0; month < 3; month++ {
		engine := newEngine(store, start.AddDate(0, month, 0))
		_, err := engine.Grant(ctx, "emp-1", d(1), ledger.SourceMonthlyGrant)
		require.NoError(t, err)
	}

	asOf := start.AddDate(0, 11, 0) // first lot expires in one month
	view, err := newEngine(store, asOf).AvailableCoins(ctx, "emp-1", asOf)
	require.NoError(t, err)

	require.True(t, view.RawAvailable.Equal(d(3)))
	require.True(t, view.Available.Equal(d(3)))
	require.Len(t, view.ExpiringSoon, 2, "two lots expire within 60 days")
	require.True(t, view.ExpiringSoon[0].ExpiresAt.Before(view.ExpiringSoon[1].ExpiresAt))
	require.Len(t, view.RecentTxns, 3)
	require.Equal(t, ledger.TxnGrant, view.RecentTxns[0].Type)
	// Newest first.
	require.True(t, view.RecentTxns[0].OccurredAt.After(view.RecentTxns[2].OccurredAt))
}

func TestConsumeDebitsOldestExpiryFirst(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store := ledgertest.NewMemStore()
	ctx := context.Background()

	for month := 0; month < 3; month++ {
		engine := newEngine(store, start.AddDate(0, month, 0))
		_, err := engine.Grant(ctx, "emp-1", d(1), ledger.SourceMonthlyGrant)
		require.NoError(t, err)
	}

	now := start.AddDate(0, 3, 0)
	refID := "req-1"
	consumed, err := newEngine(store, now).Consume(ctx, "emp-1", d(2), &refID)
	require.NoError(t, err)
	require.True(t, consumed.Equal(d(2)))

	lots := store.Lots()
	require.True(t, lots[0].Remaining.IsZero(), "earliest-expiring lot drained first")
	require.True(t, lots[1].Remaining.IsZero())
	require.True(t, lots[2].Remaining.Equal(d(1)))

	consumes := store.TxnsOfType(ledger.TxnConsume)
	require.Len(t, consumes, 2, "one consume transaction per touched lot")
	for _, txn := range consumes {
		require.NotNil(t, txn.LeaveRequestID)
		require.Equal(t, "req-1", *txn.LeaveRequestID)
	}

	view, err := newEngine(store, now).AvailableCoins(ctx, "emp-1", now)
	require.NoError(t, err)
	require.True(t, view.RawAvailable.Equal(d(1)))

	reconcile(t, store, "emp-1")
}

func TestConsumeInsufficientRollsBackEverything(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store := ledgertest.NewMemStore()
	engine := newEngine(store, now)
	ctx := context.Background()

	_, err := engine.Grant(ctx, "emp-1", d(2), ledger.SourceMonthlyGrant)
	require.NoError(t, err)

	_, err = engine.Consume(ctx, "emp-1", d(3), nil)
	require.ErrorIs(t, err, ledger.ErrInsufficientBalance)

	// No lot changed and no consume transaction was written.
	lots := store.Lots()
	require.Len(t, lots, 1)
	require.True(t, lots[0].Remaining.Equal(d(2)))
	require.Empty(t, store.TxnsOfType(ledger.TxnConsume))

	reconcile(t, store, "emp-1")
}

func TestExpireSweepIsIdempotent(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store := ledgertest.NewMemStore()
	ctx := context.Background()

	_, err := newEngine(store, start).Grant(ctx, "emp-1", d(3), ledger.SourceMonthlyGrant)
	require.NoError(t, err)
	_, err = newEngine(store, start).Grant(ctx, "emp-2", d(2), ledger.SourceMonthlyGrant)
	require.NoError(t, err)

	afterExpiry := start.AddDate(0, 12, 0)
	engine := newEngine(store, afterExpiry)

	expired, err := engine.ExpireSweep(ctx, afterExpiry)
	require.NoError(t, err)
	require.True(t, expired.Equal(d(5)), "both employees' lots expired, got %s", expired)

	for _, lot := range store.Lots() {
		require.True(t, lot.Remaining.IsZero())
	}
	require.Len(t, store.TxnsOfType(ledger.TxnExpire), 2)

	// Second sweep at the same instant finds nothing.
	expired, err = engine.ExpireSweep(ctx, afterExpiry)
	require.NoError(t, err)
	require.True(t, expired.IsZero())
	require.Len(t, store.TxnsOfType(ledger.TxnExpire), 2)

	reconcile(t, store, "emp-1")
	reconcile(t, store, "emp-2")
}

func TestAdjustCreatesLotAndTransaction(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store := ledgertest.NewMemStore()
	engine := newEngine(store, now)
	ctx := context.Background()

	adjusted, err := engine.Adjust(ctx, "emp-1", d(1.5), "service award")
	require.NoError(t, err)
	require.True(t, adjusted.Equal(d(1.5)))

	lots := store.Lots()
	require.Len(t, lots, 1)
	require.Equal(t, ledger.SourceManualAdjustment, lots[0].Source)
	require.Len(t, store.TxnsOfType(ledger.TxnAdjust), 1)

	reconcile(t, store, "emp-1")
}
