package ledger

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func d(value float64) decimal.Decimal {
	return decimal.NewFromFloat(value)
}

func lot(id int64, granted, expires time.Time, remaining float64) Lot {
	return Lot{
		ID:         id,
		EmployeeID: "emp-1",
		GrantedAt:  granted,
		ExpiresAt:  expires,
		Quantity:   d(remaining),
		Remaining:  d(remaining),
	}
}

func TestExpiryFromGrant(t *testing.T) {
	granted := time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC)
	expiry := ExpiryFromGrant(granted)
	want := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	if !expiry.Equal(want) {
		t.Fatalf("expected expiry %v, got %v", want, expiry)
	}
}

func TestAvailableFromLotsAppliesCap(t *testing.T) {
	asOf := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	granted := asOf.AddDate(0, -1, 0)
	expires := ExpiryFromGrant(granted)

	lots := []Lot{
		lot(1, granted, expires, 7),
		lot(2, granted, expires, 6),
	}

	raw, available := AvailableFromLots(lots, asOf)
	if !raw.Equal(d(13)) {
		t.Fatalf("expected raw 13, got %s", raw)
	}
	if !available.Equal(d(10)) {
		t.Fatalf("expected available capped at 10, got %s", available)
	}
}

func TestAvailableFromLotsSkipsExpiredAndOutOfWindow(t *testing.T) {
	asOf := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	outOfWindow := asOf.AddDate(0, -13, 0)
	lots := []Lot{
		lot(1, outOfWindow, ExpiryFromGrant(outOfWindow), 3), // expired and outside window
		lot(2, asOf.AddDate(0, -2, 0), asOf, 2),              // expires exactly at asOf: excluded
		lot(3, asOf.AddDate(0, -2, 0), ExpiryFromGrant(asOf.AddDate(0, -2, 0)), 4),
	}

	raw, available := AvailableFromLots(lots, asOf)
	if !raw.Equal(d(4)) {
		t.Fatalf("expected raw 4, got %s", raw)
	}
	if !available.Equal(d(4)) {
		t.Fatalf("expected available 4, got %s", available)
	}
}

func TestClampGrant(t *testing.T) {
	cases := []struct {
		available float64
		requested float64
		want      float64
	}{
		{0, 1, 1},
		{8, 5, 2},
		{10, 1, 0},
		{11, 3, 0},
		{9.5, 1, 0.5},
	}
	for _, tc := range cases {
		got := ClampGrant(d(tc.available), d(tc.requested))
		if !got.Equal(d(tc.want)) {
			t.Fatalf("ClampGrant(%v, %v) = %s, want %v", tc.available, tc.requested, got, tc.want)
		}
	}
}

func TestPlanConsumptionFIFOByExpiry(t *testing.T) {
	asOf := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	early := asOf.AddDate(0, 1, 0)
	late := asOf.AddDate(0, 6, 0)

	lots := []Lot{
		lot(1, asOf.AddDate(0, -11, 0), early, 2),
		lot(2, asOf.AddDate(0, -6, 0), late, 5),
	}

	debits, err := PlanConsumption(lots, d(1.5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(debits) != 1 {
		t.Fatalf("expected 1 debit, got %d", len(debits))
	}
	if debits[0].LotID != 1 || !debits[0].Amount.Equal(d(1.5)) {
		t.Fatalf("expected 1.5 from lot 1, got %v from lot %d", debits[0].Amount, debits[0].LotID)
	}
}

func TestPlanConsumptionSpansLots(t *testing.T) {
	asOf := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	lots := []Lot{
		lot(1, asOf, asOf.AddDate(0, 1, 0), 2),
		lot(2, asOf, asOf.AddDate(0, 2, 0), 2),
		lot(3, asOf, asOf.AddDate(0, 3, 0), 2),
	}

	debits, err := PlanConsumption(lots, d(5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(debits) != 3 {
		t.Fatalf("expected 3 debits, got %d", len(debits))
	}
	if !debits[0].Amount.Equal(d(2)) || !debits[1].Amount.Equal(d(2)) || !debits[2].Amount.Equal(d(1)) {
		t.Fatalf("unexpected debit amounts: %v %v %v", debits[0].Amount, debits[1].Amount, debits[2].Amount)
	}
}

func TestPlanConsumptionInsufficient(t *testing.T) {
	asOf := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	lots := []Lot{lot(1, asOf, asOf.AddDate(0, 1, 0), 2)}

	if _, err := PlanConsumption(lots, d(3)); err != ErrInsufficientBalance {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if _, err := PlanConsumption(lots, decimal.Zero); err != ErrInvalidAmount {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestGroupExpiringSoon(t *testing.T) {
	asOf := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	in30 := asOf.AddDate(0, 0, 30)
	in90 := asOf.AddDate(0, 0, 90)

	lots := []Lot{
		lot(1, asOf.AddDate(0, -11, 0), in30, 1),
		lot(2, asOf.AddDate(0, -11, 0), in30, 2),
		lot(3, asOf.AddDate(0, -9, 0), in90, 4), // beyond the 60-day lookahead
	}

	groups := GroupExpiringSoon(lots, asOf)
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	if !groups[0].ExpiresAt.Equal(in30) || !groups[0].Amount.Equal(d(3)) {
		t.Fatalf("unexpected group: %+v", groups[0])
	}
}
