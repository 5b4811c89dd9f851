package leave

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"hrcore/internal/domain/auth"
	"hrcore/internal/domain/directory"
	"hrcore/internal/domain/ledger"
	"hrcore/internal/domain/notifications"
)

// maxApprovalLevels caps the materialized manager chain. Deeper hierarchies
// end at this level's manager as the final approver.
const maxApprovalLevels = 3

// BalanceAPI is the read side of the coin ledger used for pre-splitting and
// the final-approval recompute. Consumption goes through Tx.Ledger instead so
// it shares the workflow transaction.
type BalanceAPI interface {
	AvailableCoins(ctx context.Context, employeeID string, asOf time.Time) (ledger.BalanceView, error)
}

type DirectoryAPI interface {
	EmployeeByID(ctx context.Context, employeeID string) (directory.Employee, error)
	EmployeeByUserID(ctx context.Context, userID string) (directory.Employee, error)
}

type Notifier interface {
	Notify(ctx context.Context, userID, ntype, title, body string) error
}

type Service struct {
	store    StoreAPI
	coins    BalanceAPI
	dir      DirectoryAPI
	notifier Notifier
	now      func() time.Time
}

func NewService(store StoreAPI, coins BalanceAPI, dir DirectoryAPI, notifier Notifier) *Service {
	return &Service{
		store:    store,
		coins:    coins,
		dir:      dir,
		notifier: notifier,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the service clock for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

type CreateRequestInput struct {
	EmployeeID    string
	LeaveTypeID   string
	LeaveTypeCode string
	StartDate     time.Time
	EndDate       time.Time
	DurationType  string
	Reason        string
}

// CreateRequest validates and persists a leave request together with its
// materialized approval chain. The paid/unpaid split is pre-computed from the
// current balance; no coins are consumed until final approval.
func (s *Service) CreateRequest(ctx context.Context, input CreateRequestInput) (Request, error) {
	emp, err := s.dir.EmployeeByID(ctx, input.EmployeeID)
	if err != nil {
		return Request{}, err
	}
	if !emp.IsLeaveEligible || emp.Status != directory.StatusActive {
		return Request{}, ErrNotEligible
	}

	lt, err := s.resolveType(ctx, input.LeaveTypeID, input.LeaveTypeCode)
	if err != nil {
		return Request{}, err
	}

	durationType := input.DurationType
	if durationType == "" {
		durationType = DurationFullDay
	}
	if err := ValidateDuration(durationType, lt.AllowHalfDay); err != nil {
		return Request{}, err
	}

	total, err := CalculateLeaveDays(input.StartDate, input.EndDate, durationType)
	if err != nil {
		return Request{}, err
	}

	now := s.now()
	if lt.MinNoticeDays > 0 && input.StartDate.Before(now.AddDate(0, 0, lt.MinNoticeDays)) {
		return Request{}, ErrNoticeTooShort
	}
	if lt.MaxDaysPerRequest.IsPositive() && total.GreaterThan(lt.MaxDaysPerRequest) {
		return Request{}, ErrTooManyDays
	}

	paid, unpaid := total, decimal.Zero
	if lt.UsesBalance {
		view, err := s.coins.AvailableCoins(ctx, emp.ID, now)
		if err != nil {
			return Request{}, err
		}
		paid, unpaid = SplitPaidUnpaid(total, view.Available)
	}

	req := Request{
		EmployeeID:    emp.ID,
		LeaveTypeID:   lt.ID,
		LeaveTypeName: lt.Name,
		StartDate:     input.StartDate,
		EndDate:       input.EndDate,
		DurationType:  durationType,
		TotalDays:     total,
		PaidDays:      paid,
		UnpaidDays:    unpaid,
		Reason:        input.Reason,
		Status:        StatusPending,
	}
	if durationType != DurationFullDay {
		half := dateOnly(input.StartDate)
		req.HalfDayDate = &half
	}

	chain, err := s.managerChain(ctx, emp)
	if err != nil {
		return Request{}, err
	}

	err = s.store.InTx(ctx, func(tx Tx) error {
		switch {
		case !lt.RequiresApproval:
			req.WorkflowStatus = WorkflowFullyApproved
		case len(chain) == 0:
			req.WorkflowStatus = WorkflowPendingAdmin
		default:
			req.WorkflowStatus = WorkflowStatusForLevel(1)
			req.CurrentApproverID = &chain[0].ID
		}

		if err := tx.InsertRequest(ctx, &req); err != nil {
			return err
		}
		if !lt.RequiresApproval {
			return s.finalize(ctx, tx, &req, "", WorkflowFullyApproved, now)
		}
		for i, approver := range chain {
			step := ApprovalStep{
				RequestID:  req.ID,
				Level:      i + 1,
				LevelName:  LevelName(i + 1),
				ApproverID: approver.ID,
				Status:     StepPending,
				Sequence:   i + 1,
				IsFinal:    i == len(chain)-1,
			}
			if err := tx.InsertStep(ctx, &step); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Request{}, err
	}

	var notices []notice
	notices = append(notices, notice{
		userID: emp.UserID,
		ntype:  notifications.TypeLeaveSubmitted,
		title:  "Leave request submitted",
		body:   fmt.Sprintf("Your %s request for %s days is %s.", req.LeaveTypeName, req.TotalDays, req.WorkflowStatus),
	})
	if len(chain) > 0 && lt.RequiresApproval {
		notices = append(notices, notice{
			userID: chain[0].UserID,
			ntype:  notifications.TypeApprovalPending,
			title:  "Leave approval pending",
			body:   fmt.Sprintf("%s requested %s days of %s.", emp.Name, req.TotalDays, req.LeaveTypeName),
		})
	}
	s.send(ctx, notices)
	if req.Status == StatusApproved {
		s.notifyOutcome(ctx, req)
	}
	return req, nil
}

// ApproveLevel records the acting approver's decision on the pending step.
// Denial terminates the request without touching the ledger. Approval either
// advances to the next step or, on the final step, recomputes the paid/unpaid
// split against the current balance and consumes the paid coins in the same
// transaction. If consumption cannot cover the recomputed paid days the whole
// transaction rolls back and the request stays pending.
func (s *Service) ApproveLevel(ctx context.Context, requestID, actorUserID string, approve bool, comments string) (Request, error) {
	actor, err := s.dir.EmployeeByUserID(ctx, actorUserID)
	if errors.Is(err, directory.ErrNotFound) {
		return Request{}, ErrNotApprover
	}
	if err != nil {
		return Request{}, err
	}

	now := s.now()
	var req Request
	err = s.store.InTx(ctx, func(tx Tx) error {
		var err error
		req, err = tx.RequestForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		if req.Status != StatusPending {
			return ErrInvalidState
		}

		steps, err := tx.StepsForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		current := firstPending(steps)
		if current == nil || current.ApproverID != actor.ID {
			return ErrNotApprover
		}

		current.ActionByUserID = &actorUserID
		current.ActionAt = &now
		current.Comments = comments

		if !approve {
			current.Status = StepDenied
			if err := tx.UpdateStep(ctx, current); err != nil {
				return err
			}
			req.Status = StatusDenied
			req.WorkflowStatus = WorkflowDenied
			req.CurrentApproverID = nil
			return tx.UpdateRequest(ctx, &req)
		}

		current.Status = StepApproved
		if err := tx.UpdateStep(ctx, current); err != nil {
			return err
		}

		if next := nextPending(steps, current.Sequence); next != nil {
			req.CurrentApproverID = &next.ApproverID
			req.WorkflowStatus = WorkflowStatusForLevel(next.Level)
			return tx.UpdateRequest(ctx, &req)
		}

		return s.finalize(ctx, tx, &req, actorUserID, WorkflowFullyApproved, now)
	})
	if err != nil {
		return Request{}, err
	}

	s.notifyOutcome(ctx, req)
	return req, nil
}

// AdminApprove bypasses the remaining chain: every pending step is skipped and
// the request is approved directly, under the same atomic consume-or-fail rule
// as the normal final approval.
func (s *Service) AdminApprove(ctx context.Context, requestID, adminUserID, notes string) (Request, error) {
	now := s.now()
	var req Request
	err := s.store.InTx(ctx, func(tx Tx) error {
		var err error
		req, err = tx.RequestForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		if req.Status != StatusPending {
			return ErrInvalidState
		}

		steps, err := tx.StepsForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		for i := range steps {
			if steps[i].Status != StepPending {
				continue
			}
			steps[i].Status = StepSkipped
			steps[i].ActionByUserID = &adminUserID
			steps[i].ActionAt = &now
			steps[i].Comments = "Admin override"
			if err := tx.UpdateStep(ctx, &steps[i]); err != nil {
				return err
			}
		}

		req.AdminNotes = notes
		return s.finalize(ctx, tx, &req, adminUserID, WorkflowAdminApproved, now)
	})
	if err != nil {
		return Request{}, err
	}

	s.notifyOutcome(ctx, req)
	return req, nil
}

// Deny terminates any pending request without touching the ledger.
func (s *Service) Deny(ctx context.Context, requestID, actorUserID, notes string) (Request, error) {
	now := s.now()
	var req Request
	err := s.store.InTx(ctx, func(tx Tx) error {
		var err error
		req, err = tx.RequestForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		if req.Status != StatusPending {
			return ErrInvalidState
		}

		steps, err := tx.StepsForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		for i := range steps {
			if steps[i].Status != StepPending {
				continue
			}
			steps[i].Status = StepSkipped
			steps[i].ActionByUserID = &actorUserID
			steps[i].ActionAt = &now
			if err := tx.UpdateStep(ctx, &steps[i]); err != nil {
				return err
			}
		}

		req.Status = StatusDenied
		req.WorkflowStatus = WorkflowDenied
		req.CurrentApproverID = nil
		req.AdminNotes = notes
		return tx.UpdateRequest(ctx, &req)
	})
	if err != nil {
		return Request{}, err
	}

	s.notifyOutcome(ctx, req)
	return req, nil
}

// Cancel lets an employee withdraw their own pending request. Approved
// requests cannot be cancelled; their coins are already consumed.
func (s *Service) Cancel(ctx context.Context, requestID, actorUserID string) (Request, error) {
	actor, err := s.dir.EmployeeByUserID(ctx, actorUserID)
	if err != nil {
		return Request{}, err
	}

	now := s.now()
	var req Request
	var pendingApproverID string
	err = s.store.InTx(ctx, func(tx Tx) error {
		var err error
		req, err = tx.RequestForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		if req.EmployeeID != actor.ID {
			return ErrForbidden
		}
		if req.Status != StatusPending {
			return ErrInvalidState
		}
		if req.CurrentApproverID != nil {
			pendingApproverID = *req.CurrentApproverID
		}

		req.Status = StatusCancelled
		req.CurrentApproverID = nil
		req.CancelledBy = &actorUserID
		req.CancelledAt = &now
		return tx.UpdateRequest(ctx, &req)
	})
	if err != nil {
		return Request{}, err
	}

	if pendingApproverID != "" {
		if approver, err := s.dir.EmployeeByID(ctx, pendingApproverID); err == nil {
			s.send(ctx, []notice{{
				userID: approver.UserID,
				ntype:  notifications.TypeLeaveCancelled,
				title:  "Leave request cancelled",
				body:   fmt.Sprintf("%s cancelled their %s request; no action is needed.", actor.Name, req.LeaveTypeName),
			}})
		}
	}
	return req, nil
}

// Get returns a request with its approval chain, scoped to what the viewer
// may see: admins everything, approvers their steps' requests, employees
// their own and their direct reports'.
func (s *Service) Get(ctx context.Context, requestID string, viewer auth.UserContext) (Request, []ApprovalStep, error) {
	req, err := s.store.RequestByID(ctx, requestID)
	if err != nil {
		return Request{}, nil, err
	}
	steps, err := s.store.StepsForRequest(ctx, requestID)
	if err != nil {
		return Request{}, nil, err
	}
	if viewer.IsAdmin() {
		return req, steps, nil
	}

	emp, err := s.dir.EmployeeByUserID(ctx, viewer.UserID)
	if err != nil {
		return Request{}, nil, ErrForbidden
	}
	if req.EmployeeID == emp.ID {
		return req, steps, nil
	}
	for _, step := range steps {
		if step.ApproverID == emp.ID {
			return req, steps, nil
		}
	}
	return Request{}, nil, ErrForbidden
}

// List returns requests the viewer may see, newest first.
func (s *Service) List(ctx context.Context, viewer auth.UserContext, status string, limit, offset int) ([]Request, int, error) {
	filter := RequestFilter{Status: status, Limit: limit, Offset: offset}
	if !viewer.IsAdmin() {
		emp, err := s.dir.EmployeeByUserID(ctx, viewer.UserID)
		if err != nil {
			return nil, 0, err
		}
		filter.EmployeeID = emp.ID
		filter.ReportsOf = emp.ID
	}
	return s.store.ListRequests(ctx, filter)
}

func (s *Service) ListTypes(ctx context.Context, includeInactive bool) ([]LeaveType, error) {
	return s.store.ListLeaveTypes(ctx, includeInactive)
}

func (s *Service) CreateType(ctx context.Context, lt *LeaveType) error {
	return s.store.CreateLeaveType(ctx, lt)
}

func (s *Service) UpdateType(ctx context.Context, lt *LeaveType) error {
	return s.store.UpdateLeaveType(ctx, lt)
}

// finalize approves the request, recomputing the paid/unpaid split against
// the balance as it stands now (it may have drifted since creation) and
// consuming the paid coins through the transaction's ledger surface.
func (s *Service) finalize(ctx context.Context, tx Tx, req *Request, approverUserID, workflowStatus string, now time.Time) error {
	lt, err := s.store.LeaveTypeByID(ctx, req.LeaveTypeID)
	if err != nil {
		return err
	}

	if lt.UsesBalance {
		view, err := s.coins.AvailableCoins(ctx, req.EmployeeID, now)
		if err != nil {
			return err
		}
		req.PaidDays, req.UnpaidDays = SplitPaidUnpaid(req.TotalDays, view.Available)

		if req.PaidDays.IsPositive() {
			ltx := tx.Ledger()
			lots, err := ltx.LockActiveLots(ctx, req.EmployeeID, now)
			if err != nil {
				return err
			}
			debits, err := ledger.PlanConsumption(lots, req.PaidDays)
			if err != nil {
				return err
			}
			if err := ledger.ApplyDebits(ctx, ltx, req.EmployeeID, lots, debits, &req.ID, now); err != nil {
				return err
			}
		}
	}

	req.Status = StatusApproved
	req.WorkflowStatus = workflowStatus
	req.CurrentApproverID = nil
	if approverUserID != "" {
		req.ApprovedBy = &approverUserID
	}
	req.ApprovedAt = &now
	return tx.UpdateRequest(ctx, req)
}

// managerChain walks manager links upward from the employee, one approval
// level per manager, guarding against cycles.
func (s *Service) managerChain(ctx context.Context, emp directory.Employee) ([]directory.Employee, error) {
	var chain []directory.Employee
	seen := map[string]bool{emp.ID: true}
	current := emp
	for len(chain) < maxApprovalLevels && current.ManagerID != nil {
		if seen[*current.ManagerID] {
			break
		}
		manager, err := s.dir.EmployeeByID(ctx, *current.ManagerID)
		if errors.Is(err, directory.ErrNotFound) {
			break
		}
		if err != nil {
			return nil, err
		}
		if manager.Status != directory.StatusActive {
			break
		}
		seen[manager.ID] = true
		chain = append(chain, manager)
		current = manager
	}
	return chain, nil
}

func (s *Service) resolveType(ctx context.Context, typeID, code string) (LeaveType, error) {
	if typeID != "" {
		return s.store.LeaveTypeByID(ctx, typeID)
	}
	if code != "" {
		lt, err := s.store.LeaveTypeByCode(ctx, code)
		if !errors.Is(err, ErrTypeNotFound) {
			return lt, err
		}
	}
	return s.ensureDefaultType(ctx)
}

func (s *Service) ensureDefaultType(ctx context.Context) (LeaveType, error) {
	lt, err := s.store.LeaveTypeByCode(ctx, DefaultTypeCode)
	if err == nil {
		return lt, nil
	}
	if !errors.Is(err, ErrTypeNotFound) {
		return LeaveType{}, err
	}

	lt = LeaveType{
		Code:             DefaultTypeCode,
		Name:             "General Leave",
		AllowHalfDay:     true,
		RequiresApproval: true,
		UsesBalance:      true,
		IsActive:         true,
	}
	if err := s.store.CreateLeaveType(ctx, &lt); err != nil {
		return LeaveType{}, err
	}
	return lt, nil
}

func firstPending(steps []ApprovalStep) *ApprovalStep {
	for i := range steps {
		if steps[i].Status == StepPending {
			return &steps[i]
		}
	}
	return nil
}

func nextPending(steps []ApprovalStep, afterSequence int) *ApprovalStep {
	for i := range steps {
		if steps[i].Status == StepPending && steps[i].Sequence > afterSequence {
			return &steps[i]
		}
	}
	return nil
}

type notice struct {
	userID string
	ntype  string
	title  string
	body   string
}

func (s *Service) send(ctx context.Context, notices []notice) {
	if s.notifier == nil {
		return
	}
	for _, n := range notices {
		if n.userID == "" {
			continue
		}
		if err := s.notifier.Notify(ctx, n.userID, n.ntype, n.title, n.body); err != nil {
			slog.Warn("leave notification failed", "type", n.ntype, "err", err)
		}
	}
}

func (s *Service) notifyOutcome(ctx context.Context, req Request) {
	emp, err := s.dir.EmployeeByID(ctx, req.EmployeeID)
	if err != nil {
		slog.Warn("leave notification lookup failed", "err", err)
		return
	}

	var notices []notice
	switch req.Status {
	case StatusApproved:
		notices = append(notices, notice{
			userID: emp.UserID,
			ntype:  notifications.TypeLeaveApproved,
			title:  "Leave request approved",
			body:   fmt.Sprintf("Your %s request was approved: %s paid, %s unpaid.", req.LeaveTypeName, req.PaidDays, req.UnpaidDays),
		})
	case StatusDenied:
		notices = append(notices, notice{
			userID: emp.UserID,
			ntype:  notifications.TypeLeaveDenied,
			title:  "Leave request denied",
			body:   fmt.Sprintf("Your %s request was denied.", req.LeaveTypeName),
		})
	case StatusPending:
		if req.CurrentApproverID != nil {
			if approver, err := s.dir.EmployeeByID(ctx, *req.CurrentApproverID); err == nil {
				notices = append(notices, notice{
					userID: approver.UserID,
					ntype:  notifications.TypeApprovalPending,
					title:  "Leave approval pending",
					body:   fmt.Sprintf("%s's %s request awaits your approval.", emp.Name, req.LeaveTypeName),
				})
			}
		}
	}
	s.send(ctx, notices)
}
