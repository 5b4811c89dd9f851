package leave

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	StatusPending   = "pending"
	StatusApproved  = "approved"
	StatusDenied    = "denied"
	StatusCancelled = "cancelled"
)

const (
	DurationFullDay    = "full_day"
	DurationFirstHalf  = "first_half"
	DurationSecondHalf = "second_half"
)

const (
	WorkflowPendingManager = "pending_manager"
	WorkflowPendingAdmin   = "pending_admin"
	WorkflowFullyApproved  = "fully_approved"
	WorkflowAdminApproved  = "admin_approved"
	WorkflowDenied         = "denied"
)

const (
	StepPending  = "pending"
	StepApproved = "approved"
	StepDenied   = "denied"
	StepSkipped  = "skipped"
)

// DefaultTypeCode is the lazily created fallback leave type for requests that
// name no known type.
const DefaultTypeCode = "GENERAL"

type LeaveType struct {
	ID                 string          `json:"id"`
	Code               string          `json:"code"`
	Name               string          `json:"name"`
	Description        string          `json:"description,omitempty"`
	DefaultAnnualQuota decimal.Decimal `json:"defaultAnnualQuota"`
	AllowHalfDay       bool            `json:"allowHalfDay"`
	RequiresApproval   bool            `json:"requiresApproval"`
	UsesBalance        bool            `json:"usesBalance"`
	MinNoticeDays      int             `json:"minNoticeDays"`
	MaxDaysPerRequest  decimal.Decimal `json:"maxDaysPerRequest"`
	DisplayOrder       int             `json:"displayOrder"`
	IsActive           bool            `json:"isActive"`
	CreatedAt          time.Time       `json:"createdAt"`
	UpdatedAt          time.Time       `json:"updatedAt"`
}

type Request struct {
	ID                string          `json:"id"`
	EmployeeID        string          `json:"employeeId"`
	LeaveTypeID       string          `json:"leaveTypeId"`
	LeaveTypeName     string          `json:"leaveTypeName,omitempty"`
	StartDate         time.Time       `json:"startDate"`
	EndDate           time.Time       `json:"endDate"`
	DurationType      string          `json:"durationType"`
	HalfDayDate       *time.Time      `json:"halfDayDate,omitempty"`
	TotalDays         decimal.Decimal `json:"totalDays"`
	PaidDays          decimal.Decimal `json:"paidDays"`
	UnpaidDays        decimal.Decimal `json:"unpaidDays"`
	Reason            string          `json:"reason,omitempty"`
	Status            string          `json:"status"`
	WorkflowStatus    string          `json:"workflowStatus"`
	CurrentApproverID *string         `json:"currentApproverId,omitempty"`
	ApprovedBy        *string         `json:"approvedBy,omitempty"`
	ApprovedAt        *time.Time      `json:"approvedAt,omitempty"`
	AdminNotes        string          `json:"adminNotes,omitempty"`
	CancelledBy       *string         `json:"cancelledBy,omitempty"`
	CancelledAt       *time.Time      `json:"cancelledAt,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

type ApprovalStep struct {
	ID             string     `json:"id"`
	RequestID      string     `json:"requestId"`
	Level          int        `json:"level"`
	LevelName      string     `json:"levelName"`
	ApproverID     string     `json:"approverId"`
	Status         string     `json:"status"`
	ActionByUserID *string    `json:"actionByUserId,omitempty"`
	ActionAt       *time.Time `json:"actionAt,omitempty"`
	Comments       string     `json:"comments,omitempty"`
	Sequence       int        `json:"sequence"`
	IsFinal        bool       `json:"isFinal"`
}
