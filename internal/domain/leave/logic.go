package leave

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var halfDay = decimal.NewFromFloat(0.5)

// CalculateLeaveDays returns the inclusive day count of the range. A half-day
// duration subtracts 0.5, so a single half day counts as 0.5.
func CalculateLeaveDays(start, end time.Time, durationType string) (decimal.Decimal, error) {
	start = dateOnly(start)
	end = dateOnly(end)
	if end.Before(start) {
		return decimal.Zero, ErrInvalidDateRange
	}

	days := decimal.NewFromInt(int64(end.Sub(start).Hours()/24) + 1)
	if durationType == DurationFirstHalf || durationType == DurationSecondHalf {
		days = days.Sub(halfDay)
	}
	return days, nil
}

// SplitPaidUnpaid divides the requested days into the part covered by the
// available coin balance and the remainder. Paid never exceeds either side.
func SplitPaidUnpaid(total, available decimal.Decimal) (paid, unpaid decimal.Decimal) {
	if available.IsNegative() {
		available = decimal.Zero
	}
	paid = decimal.Min(total, available)
	unpaid = total.Sub(paid)
	return paid, unpaid
}

// ValidateDuration checks the duration type against the leave type policy.
func ValidateDuration(durationType string, allowHalfDay bool) error {
	switch durationType {
	case DurationFullDay:
		return nil
	case DurationFirstHalf, DurationSecondHalf:
		if !allowHalfDay {
			return ErrHalfDayNotAllowed
		}
		return nil
	default:
		return fmt.Errorf("unknown duration type %q", durationType)
	}
}

// WorkflowStatusForLevel labels the workflow phase while a given approval
// level is pending. Level 1 is always the direct manager.
func WorkflowStatusForLevel(level int) string {
	if level <= 1 {
		return WorkflowPendingManager
	}
	return fmt.Sprintf("pending_level_%d", level)
}

// LevelName labels an approval step for display.
func LevelName(level int) string {
	if level <= 1 {
		return "Manager"
	}
	return fmt.Sprintf("Level %d Manager", level)
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
