package notifications

const (
	TypeLeaveSubmitted  = "leave_submitted"
	TypeApprovalPending = "approval_pending"
	TypeLeaveApproved   = "leave_approved"
	TypeLeaveDenied     = "leave_denied"
	TypeLeaveCancelled  = "leave_cancelled"
	TypeCoinsExpiring   = "coins_expiring"
	TypeBalanceAdjusted = "balance_adjusted"
)
