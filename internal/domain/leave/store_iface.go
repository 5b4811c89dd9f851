package leave

import (
	"context"

	"hrcore/internal/domain/ledger"
)

// StoreAPI is the persistence seam for the leave workflow. Reads run on the
// pool; every state transition runs inside InTx so approval and coin
// consumption commit or roll back together.
type StoreAPI interface {
	InTx(ctx context.Context, fn func(Tx) error) error

	RequestByID(ctx context.Context, requestID string) (Request, error)
	StepsForRequest(ctx context.Context, requestID string) ([]ApprovalStep, error)
	ListRequests(ctx context.Context, filter RequestFilter) ([]Request, int, error)

	LeaveTypeByID(ctx context.Context, typeID string) (LeaveType, error)
	LeaveTypeByCode(ctx context.Context, code string) (LeaveType, error)
	ListLeaveTypes(ctx context.Context, includeInactive bool) ([]LeaveType, error)
	CreateLeaveType(ctx context.Context, lt *LeaveType) error
	UpdateLeaveType(ctx context.Context, lt *LeaveType) error
}

// Tx is the mutating surface inside one workflow transaction. Ledger exposes
// the coin ledger's mutating surface bound to the same transaction.
type Tx interface {
	RequestForUpdate(ctx context.Context, requestID string) (Request, error)
	InsertRequest(ctx context.Context, req *Request) error
	UpdateRequest(ctx context.Context, req *Request) error

	StepsForUpdate(ctx context.Context, requestID string) ([]ApprovalStep, error)
	InsertStep(ctx context.Context, step *ApprovalStep) error
	UpdateStep(ctx context.Context, step *ApprovalStep) error

	Ledger() ledger.TxAPI
}

// RequestFilter scopes a listing. EmployeeID limits to one employee's own
// requests; ReportsOf additionally includes direct reports of that employee,
// which is how a manager sees their team.
type RequestFilter struct {
	EmployeeID string
	ReportsOf  string
	Status     string
	Limit      int
	Offset     int
}
