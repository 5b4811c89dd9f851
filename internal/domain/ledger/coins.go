package ledger

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// RollingMonths is the entitlement window: lots expire this many months after
// their grant date, and balance queries only look back this far.
const RollingMonths = 12

// ExpiringSoonDays is the lookahead used for the expiring-soon projection.
const ExpiringSoonDays = 60

// RecentTxnLimit is how many transactions a balance view carries.
const RecentTxnLimit = 10

// CoinCap is the display/consumption ceiling. Lots above the cap still exist
// and still expire on schedule; the cap only limits what a balance query
// reports as available and what a grant will top up to.
var CoinCap = decimal.NewFromInt(10)

// WindowStart returns the start of the rolling entitlement window for asOf.
func WindowStart(asOf time.Time) time.Time {
	return asOf.AddDate(0, -RollingMonths, 0)
}

// ExpiryFromGrant returns when a lot granted at the given instant expires.
func ExpiryFromGrant(grantedAt time.Time) time.Time {
	return grantedAt.AddDate(0, RollingMonths, 0)
}

// AvailableFromLots computes the uncapped and capped balance from a lot set.
// Only lots granted within the rolling window, expiring strictly after asOf,
// with credit remaining are counted.
func AvailableFromLots(lots []Lot, asOf time.Time) (raw, available decimal.Decimal) {
	windowStart := WindowStart(asOf)
	for _, lot := range lots {
		if lot.GrantedAt.Before(windowStart) {
			continue
		}
		if !lot.ExpiresAt.After(asOf) {
			continue
		}
		if !lot.Remaining.IsPositive() {
			continue
		}
		raw = raw.Add(lot.Remaining)
	}
	available = decimal.Min(raw, CoinCap)
	return raw, available
}

// ClampGrant returns how much of a requested grant actually lands given the
// current capped availability. Zero when already at or above the cap.
func ClampGrant(available, requested decimal.Decimal) decimal.Decimal {
	headroom := CoinCap.Sub(available)
	if !headroom.IsPositive() {
		return decimal.Zero
	}
	return decimal.Min(requested, headroom)
}

// PlanConsumption allocates amount across lots oldest-expiry-first. Lots must
// already be sorted by (ExpiresAt asc, ID asc); both the store queries and the
// sweep rely on that order. Returns ErrInsufficientBalance without partial
// debits when the lots cannot cover the full amount.
func PlanConsumption(lots []Lot, amount decimal.Decimal) ([]Debit, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	remaining := amount
	var debits []Debit
	for _, lot := range lots {
		if !remaining.IsPositive() {
			break
		}
		if !lot.Remaining.IsPositive() {
			continue
		}
		take := decimal.Min(lot.Remaining, remaining)
		debits = append(debits, Debit{LotID: lot.ID, Amount: take})
		remaining = remaining.Sub(take)
	}

	if remaining.IsPositive() {
		return nil, ErrInsufficientBalance
	}
	return debits, nil
}

// GroupExpiringSoon sums remaining credit by expiry date for lots expiring
// within the lookahead window, sorted by expiry ascending.
func GroupExpiringSoon(lots []Lot, asOf time.Time) []ExpiringLot {
	cutoff := asOf.AddDate(0, 0, ExpiringSoonDays)

	byExpiry := make(map[time.Time]decimal.Decimal)
	for _, lot := range lots {
		if !lot.Remaining.IsPositive() {
			continue
		}
		if !lot.ExpiresAt.After(asOf) || lot.ExpiresAt.After(cutoff) {
			continue
		}
		key := lot.ExpiresAt.UTC()
		byExpiry[key] = byExpiry[key].Add(lot.Remaining)
	}

	out := make([]ExpiringLot, 0, len(byExpiry))
	for expiry, amount := range byExpiry {
		out = append(out, ExpiringLot{ExpiresAt: expiry, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ExpiresAt.Before(out[j].ExpiresAt)
	})
	return out
}
