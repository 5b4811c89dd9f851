package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// Lot is one discrete grant of leave credit with its own expiry. Lots are
// append-only: consume decrements Remaining, the expiry sweep zeroes it,
// nothing ever deletes a row.
type Lot struct {
	ID         int64           `json:"id"`
	EmployeeID string          `json:"employeeId"`
	GrantedAt  time.Time       `json:"grantedAt"`
	ExpiresAt  time.Time       `json:"expiresAt"`
	Quantity   decimal.Decimal `json:"quantity"`
	Remaining  decimal.Decimal `json:"remaining"`
	Source     string          `json:"source"`
	CreatedAt  time.Time       `json:"createdAt"`
}

const (
	TxnGrant   = "grant"
	TxnConsume = "consume"
	TxnExpire  = "expire"
	TxnAdjust  = "adjust"
	TxnRestore = "restore"
)

const (
	SourceMonthlyGrant     = "monthly_grant"
	SourceManualAdjustment = "manual_adjustment"
)

// Transaction is the immutable record of one balance-affecting event.
// The transaction log is the source of truth; lots are a materialized view
// kept for FIFO-by-expiry ordering.
type Transaction struct {
	ID             int64           `json:"id"`
	EmployeeID     string          `json:"employeeId"`
	LotID          *int64          `json:"lotId,omitempty"`
	Type           string          `json:"type"`
	Amount         decimal.Decimal `json:"amount"`
	LeaveRequestID *string         `json:"leaveRequestId,omitempty"`
	OccurredAt     time.Time       `json:"occurredAt"`
	Comment        string          `json:"comment,omitempty"`
}

// ExpiringLot is one expiry date with the summed remaining credit that will
// be forfeited on that date.
type ExpiringLot struct {
	ExpiresAt time.Time       `json:"expiryDate"`
	Amount    decimal.Decimal `json:"amount"`
}

// BalanceView is the read model returned by balance queries. Available is
// capped for display and consumption planning; RawAvailable is the uncapped
// rolling-window sum.
type BalanceView struct {
	Available    decimal.Decimal `json:"availableCoins"`
	RawAvailable decimal.Decimal `json:"rawAvailable"`
	ExpiringSoon []ExpiringLot   `json:"expiringSoon"`
	RecentTxns   []Transaction   `json:"recentTxns"`
}

// Debit is one planned deduction against a specific lot.
type Debit struct {
	LotID  int64
	Amount decimal.Decimal
}
