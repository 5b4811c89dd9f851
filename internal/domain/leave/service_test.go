package leave_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"hrcore/internal/domain/auth"
	"hrcore/internal/domain/directory"
	"hrcore/internal/domain/leave"
	"hrcore/internal/domain/ledger"
	"hrcore/internal/domain/ledger/ledgertest"
)

func d(value float64) decimal.Decimal {
	return decimal.NewFromFloat(value)
}

func day(y int, m time.Month, dd int) time.Time {
	return time.Date(y, m, dd, 0, 0, 0, 0, time.UTC)
}

type fakeDir struct {
	employees map[string]directory.Employee
}

func (f *fakeDir) EmployeeByID(ctx context.Context, employeeID string) (directory.Employee, error) {
	emp, ok := f.employees[employeeID]
	if !ok {
		return directory.Employee{}, directory.ErrNotFound
	}
	return emp, nil
}

func (f *fakeDir) EmployeeByUserID(ctx context.Context, userID string) (directory.Employee, error) {
	for _, emp := range f.employees {
		if emp.UserID == userID {
			return emp, nil
		}
	}
	return directory.Employee{}, directory.ErrNotFound
}

type sentNotice struct {
	UserID string
	Type   string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentNotice
}

func (f *fakeNotifier) Notify(ctx context.Context, userID, ntype, title, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentNotice{UserID: userID, Type: ntype})
	return nil
}

func (f *fakeNotifier) ofType(ntype string) []sentNotice {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentNotice
	for _, n := range f.sent {
		if n.Type == ntype {
			out = append(out, n)
		}
	}
	return out
}

// fakeStore keeps workflow state in memory and composes the ledger memory
// store so a failing transaction rolls back both sides, matching the pgx
// store's shared-transaction behavior.
type fakeStore struct {
	mu       sync.Mutex
	coins    *ledgertest.MemStore
	dir      *fakeDir
	types    map[string]leave.LeaveType
	requests map[string]leave.Request
	steps    map[string][]leave.ApprovalStep
	nextID   int
}

func newFakeStore(coins *ledgertest.MemStore, dir *fakeDir) *fakeStore {
	return &fakeStore{
		coins:    coins,
		dir:      dir,
		types:    map[string]leave.LeaveType{},
		requests: map[string]leave.Request{},
		steps:    map[string][]leave.ApprovalStep{},
		nextID:   1,
	}
}

func (f *fakeStore) seedType(lt leave.LeaveType) leave.LeaveType {
	f.mu.Lock()
	defer f.mu.Unlock()
	if lt.ID == "" {
		lt.ID = fmt.Sprintf("lt-%d", f.nextID)
		f.nextID++
	}
	f.types[lt.ID] = lt
	return lt
}

func (f *fakeStore) InTx(ctx context.Context, fn func(leave.Tx) error) error {
	// Snapshot under the lock, but release it before running fn: the service
	// calls plain store reads from inside the transaction callback, and this
	// mutex is not reentrant.
	f.mu.Lock()

	snapTypes := map[string]leave.LeaveType{}
	for k, v := range f.types {
		snapTypes[k] = v
	}
	snapRequests := map[string]leave.Request{}
	for k, v := range f.requests {
		snapRequests[k] = v
	}
	snapSteps := map[string][]leave.ApprovalStep{}
	for k, v := range f.steps {
		snapSteps[k] = append([]leave.ApprovalStep(nil), v...)
	}
	snapNext := f.nextID
	coinsSnap := f.coins.Snapshot()
	f.mu.Unlock()

	if err := fn(&fakeTx{store: f}); err != nil {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.types = snapTypes
		f.requests = snapRequests
		f.steps = snapSteps
		f.nextID = snapNext
		f.coins.Restore(coinsSnap)
		return err
	}
	return nil
}

func (f *fakeStore) RequestByID(ctx context.Context, requestID string) (leave.Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.requests[requestID]
	if !ok {
		return leave.Request{}, leave.ErrNotFound
	}
	return req, nil
}

func (f *fakeStore) StepsForRequest(ctx context.Context, requestID string) ([]leave.ApprovalStep, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sortedStepsLocked(requestID), nil
}

func (f *fakeStore) ListRequests(ctx context.Context, filter leave.RequestFilter) ([]leave.Request, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []leave.Request
	for _, req := range f.requests {
		if filter.Status != "" && req.Status != filter.Status {
			continue
		}
		if filter.EmployeeID != "" && req.EmployeeID != filter.EmployeeID {
			if filter.ReportsOf == "" || !f.isReportOf(req.EmployeeID, filter.ReportsOf) {
				continue
			}
		}
		out = append(out, req)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, len(out), nil
}

func (f *fakeStore) isReportOf(employeeID, managerID string) bool {
	emp, ok := f.dir.employees[employeeID]
	return ok && emp.ManagerID != nil && *emp.ManagerID == managerID
}

func (f *fakeStore) LeaveTypeByID(ctx context.Context, typeID string) (leave.LeaveType, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	lt, ok := f.types[typeID]
	if !ok {
		return leave.LeaveType{}, leave.ErrTypeNotFound
	}
	return lt, nil
}

func (f *fakeStore) LeaveTypeByCode(ctx context.Context, code string) (leave.LeaveType, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, lt := range f.types {
		if lt.Code == code {
			return lt, nil
		}
	}
	return leave.LeaveType{}, leave.ErrTypeNotFound
}

func (f *fakeStore) ListLeaveTypes(ctx context.Context, includeInactive bool) ([]leave.LeaveType, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []leave.LeaveType
	for _, lt := range f.types {
		if lt.IsActive || includeInactive {
			out = append(out, lt)
		}
	}
	return out, nil
}

func (f *fakeStore) CreateLeaveType(ctx context.Context, lt *leave.LeaveType) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	lt.ID = fmt.Sprintf("lt-%d", f.nextID)
	f.nextID++
	f.types[lt.ID] = *lt
	return nil
}

func (f *fakeStore) UpdateLeaveType(ctx context.Context, lt *leave.LeaveType) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.types[lt.ID]; !ok {
		return leave.ErrTypeNotFound
	}
	f.types[lt.ID] = *lt
	return nil
}

func (f *fakeStore) sortedStepsLocked(requestID string) []leave.ApprovalStep {
	steps := append([]leave.ApprovalStep(nil), f.steps[requestID]...)
	sort.Slice(steps, func(i, j int) bool { return steps[i].Sequence < steps[j].Sequence })
	return steps
}

type fakeTx struct {
	store *fakeStore
}

func (t *fakeTx) Ledger() ledger.TxAPI {
	return t.store.coins.Tx()
}

func (t *fakeTx) RequestForUpdate(ctx context.Context, requestID string) (leave.Request, error) {
	req, ok := t.store.requests[requestID]
	if !ok {
		return leave.Request{}, leave.ErrNotFound
	}
	return req, nil
}

func (t *fakeTx) InsertRequest(ctx context.Context, req *leave.Request) error {
	req.ID = fmt.Sprintf("req-%d", t.store.nextID)
	t.store.nextID++
	req.CreatedAt = time.Now().UTC()
	req.UpdatedAt = req.CreatedAt
	t.store.requests[req.ID] = *req
	return nil
}

func (t *fakeTx) UpdateRequest(ctx context.Context, req *leave.Request) error {
	if _, ok := t.store.requests[req.ID]; !ok {
		return leave.ErrNotFound
	}
	t.store.requests[req.ID] = *req
	return nil
}

func (t *fakeTx) StepsForUpdate(ctx context.Context, requestID string) ([]leave.ApprovalStep, error) {
	return t.store.sortedStepsLocked(requestID), nil
}

func (t *fakeTx) InsertStep(ctx context.Context, step *leave.ApprovalStep) error {
	step.ID = fmt.Sprintf("step-%d", t.store.nextID)
	t.store.nextID++
	t.store.steps[step.RequestID] = append(t.store.steps[step.RequestID], *step)
	return nil
}

func (t *fakeTx) UpdateStep(ctx context.Context, step *leave.ApprovalStep) error {
	steps := t.store.steps[step.RequestID]
	for i := range steps {
		if steps[i].ID == step.ID {
			steps[i] = *step
			return nil
		}
	}
	return leave.ErrNotFound
}

// fixedBalance stands in for the balance engine when a test needs the split
// computation to see a stale balance, simulating drift between the balance
// read and the locked consumption.
type fixedBalance struct {
	available decimal.Decimal
}

func (f fixedBalance) AvailableCoins(ctx context.Context, employeeID string, asOf time.Time) (ledger.BalanceView, error) {
	return ledger.BalanceView{Available: f.available, RawAvailable: f.available}, nil
}

type world struct {
	now      time.Time
	coins    *ledgertest.MemStore
	engine   *ledger.Engine
	dir      *fakeDir
	store    *fakeStore
	notifier *fakeNotifier
	svc      *leave.Service
	annual   leave.LeaveType
}

func ptr(s string) *string { return &s }

func newWorld(t *testing.T) *world {
	t.Helper()

	now := day(2025, 6, 1)
	coins := ledgertest.NewMemStore()
	engine := ledger.NewEngine(coins).WithClock(func() time.Time { return now })

	dir := &fakeDir{employees: map[string]directory.Employee{
		"emp-1": {ID: "emp-1", UserID: "u-emp", Name: "Asha Rao", ManagerID: ptr("mgr-1"), IsLeaveEligible: true, Status: directory.StatusActive},
		"mgr-1": {ID: "mgr-1", UserID: "u-mgr", Name: "Ravi Menon", IsLeaveEligible: true, Status: directory.StatusActive},
		"emp-2": {ID: "emp-2", UserID: "u-emp2", Name: "Divya Nair", ManagerID: ptr("mgr-2"), IsLeaveEligible: true, Status: directory.StatusActive},
		"mgr-2": {ID: "mgr-2", UserID: "u-mgr2", Name: "Kiran Das", ManagerID: ptr("dir-1"), IsLeaveEligible: true, Status: directory.StatusActive},
		"dir-1": {ID: "dir-1", UserID: "u-dir", Name: "Meera Iyer", IsLeaveEligible: true, Status: directory.StatusActive},
	}}

	store := newFakeStore(coins, dir)
	annual := store.seedType(leave.LeaveType{
		Code: "ANNUAL", Name: "Annual Leave",
		AllowHalfDay: true, RequiresApproval: true, UsesBalance: true, IsActive: true,
	})

	notifier := &fakeNotifier{}
	svc := leave.NewService(store, engine, dir, notifier).WithClock(func() time.Time { return now })

	return &world{now: now, coins: coins, engine: engine, dir: dir, store: store, notifier: notifier, svc: svc, annual: annual}
}

// grantMonthly issues one coin per month ending at the world clock, giving
// distinct expiries for FIFO assertions.
func (w *world) grantMonthly(t *testing.T, employeeID string, months int) {
	t.Helper()
	for i := months - 1; i >= 0; i-- {
		at := w.now.AddDate(0, -i, 0)
		engine := ledger.NewEngine(w.coins).WithClock(func() time.Time { return at })
		_, err := engine.Grant(context.Background(), employeeID, d(1), ledger.SourceMonthlyGrant)
		require.NoError(t, err)
	}
}

func (w *world) createRequest(t *testing.T, employeeID string, days int) leave.Request {
	t.Helper()
	req, err := w.svc.CreateRequest(context.Background(), leave.CreateRequestInput{
		EmployeeID:  employeeID,
		LeaveTypeID: w.annual.ID,
		StartDate:   w.now.AddDate(0, 0, 7),
		EndDate:     w.now.AddDate(0, 0, 7+days-1),
		Reason:      "trip",
	})
	require.NoError(t, err)
	return req
}

func TestCreateRequestPreSplitsWithoutConsuming(t *testing.T) {
	w := newWorld(t)
	w.grantMonthly(t, "emp-1", 3)

	req := w.createRequest(t, "emp-1", 2)

	require.Equal(t, leave.StatusPending, req.Status)
	require.Equal(t, leave.WorkflowPendingManager, req.WorkflowStatus)
	require.NotNil(t, req.CurrentApproverID)
	require.Equal(t, "mgr-1", *req.CurrentApproverID)
	require.True(t, req.PaidDays.Equal(d(2)))
	require.True(t, req.UnpaidDays.IsZero())

	steps, err := w.store.StepsForRequest(context.Background(), req.ID)
	require.NoError(t, err)
	require.Len(t, steps, 1)
	require.True(t, steps[0].IsFinal)
	require.Equal(t, "mgr-1", steps[0].ApproverID)

	require.Empty(t, w.coins.TxnsOfType(ledger.TxnConsume), "creation must not touch the ledger")
	require.Len(t, w.notifier.ofType("leave_submitted"), 1)
	require.Len(t, w.notifier.ofType("approval_pending"), 1)
}

func TestFinalApprovalConsumesOldestExpiryFirst(t *testing.T) {
	w := newWorld(t)
	w.grantMonthly(t, "emp-1", 3)
	req := w.createRequest(t, "emp-1", 2)

	approved, err := w.svc.ApproveLevel(context.Background(), req.ID, "u-mgr", true, "enjoy")
	require.NoError(t, err)
	require.Equal(t, leave.StatusApproved, approved.Status)
	require.Equal(t, leave.WorkflowFullyApproved, approved.WorkflowStatus)
	require.Nil(t, approved.CurrentApproverID)
	require.True(t, approved.PaidDays.Equal(d(2)))

	consumes := w.coins.TxnsOfType(ledger.TxnConsume)
	require.Len(t, consumes, 2, "one consume per touched lot")
	total := decimal.Zero
	for _, txn := range consumes {
		require.NotNil(t, txn.LeaveRequestID)
		require.Equal(t, req.ID, *txn.LeaveRequestID)
		total = total.Add(txn.Amount)
	}
	require.True(t, total.Equal(d(2)))

	lots := w.coins.Lots()
	require.True(t, lots[0].Remaining.IsZero(), "earliest-expiring lot drained first")
	require.True(t, lots[1].Remaining.IsZero())
	require.True(t, lots[2].Remaining.Equal(d(1)))

	view, err := w.engine.AvailableCoins(context.Background(), "emp-1", w.now)
	require.NoError(t, err)
	require.True(t, view.RawAvailable.Equal(d(1)))

	require.Len(t, w.notifier.ofType("leave_approved"), 1)
}

func TestZeroBalanceRequestApprovesFullyUnpaid(t *testing.T) {
	w := newWorld(t)
	req := w.createRequest(t, "emp-1", 3)

	require.True(t, req.PaidDays.IsZero())
	require.True(t, req.UnpaidDays.Equal(d(3)))

	approved, err := w.svc.ApproveLevel(context.Background(), req.ID, "u-mgr", true, "")
	require.NoError(t, err)
	require.Equal(t, leave.StatusApproved, approved.Status)
	require.True(t, approved.PaidDays.IsZero())
	require.Empty(t, w.coins.TxnsOfType(ledger.TxnConsume))
}

func TestDenyLeavesLedgerUntouched(t *testing.T) {
	w := newWorld(t)
	w.grantMonthly(t, "emp-1", 3)
	req := w.createRequest(t, "emp-1", 2)

	txnsBefore := len(w.coins.Txns())
	denied, err := w.svc.ApproveLevel(context.Background(), req.ID, "u-mgr", false, "busy week")
	require.NoError(t, err)
	require.Equal(t, leave.StatusDenied, denied.Status)
	require.Equal(t, leave.WorkflowDenied, denied.WorkflowStatus)

	require.Len(t, w.coins.Txns(), txnsBefore, "denial writes no ledger transactions")
	for _, lot := range w.coins.Lots() {
		require.True(t, lot.Remaining.Equal(d(1)))
	}

	steps, err := w.store.StepsForRequest(context.Background(), req.ID)
	require.NoError(t, err)
	require.Equal(t, leave.StepDenied, steps[0].Status)
	require.Len(t, w.notifier.ofType("leave_denied"), 1)
}

func TestMultiLevelChainAdvancesThenConsumes(t *testing.T) {
	w := newWorld(t)
	w.grantMonthly(t, "emp-2", 2)

	req := w.createRequest(t, "emp-2", 1)
	require.Equal(t, leave.WorkflowPendingManager, req.WorkflowStatus)
	require.Equal(t, "mgr-2", *req.CurrentApproverID)

	steps, err := w.store.StepsForRequest(context.Background(), req.ID)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	require.False(t, steps[0].IsFinal)
	require.True(t, steps[1].IsFinal)

	advanced, err := w.svc.ApproveLevel(context.Background(), req.ID, "u-mgr2", true, "")
	require.NoError(t, err)
	require.Equal(t, leave.StatusPending, advanced.Status)
	require.Equal(t, "pending_level_2", advanced.WorkflowStatus)
	require.Equal(t, "dir-1", *advanced.CurrentApproverID)
	require.Empty(t, w.coins.TxnsOfType(ledger.TxnConsume), "intermediate approval must not consume")

	final, err := w.svc.ApproveLevel(context.Background(), req.ID, "u-dir", true, "")
	require.NoError(t, err)
	require.Equal(t, leave.StatusApproved, final.Status)
	require.Len(t, w.coins.TxnsOfType(ledger.TxnConsume), 1)
}

func TestApproveRejectsWrongActor(t *testing.T) {
	w := newWorld(t)
	req := w.createRequest(t, "emp-1", 1)

	_, err := w.svc.ApproveLevel(context.Background(), req.ID, "u-emp", true, "")
	require.ErrorIs(t, err, leave.ErrNotApprover)

	_, err = w.svc.ApproveLevel(context.Background(), req.ID, "u-dir", true, "")
	require.ErrorIs(t, err, leave.ErrNotApprover)
}

func TestAdminApproveSkipsPendingSteps(t *testing.T) {
	w := newWorld(t)
	w.grantMonthly(t, "emp-2", 2)
	req := w.createRequest(t, "emp-2", 1)

	approved, err := w.svc.AdminApprove(context.Background(), req.ID, "u-admin", "override for coverage")
	require.NoError(t, err)
	require.Equal(t, leave.StatusApproved, approved.Status)
	require.Equal(t, leave.WorkflowAdminApproved, approved.WorkflowStatus)
	require.Equal(t, "override for coverage", approved.AdminNotes)

	steps, err := w.store.StepsForRequest(context.Background(), req.ID)
	require.NoError(t, err)
	for _, step := range steps {
		require.Equal(t, leave.StepSkipped, step.Status)
		require.Equal(t, "Admin override", step.Comments)
	}
	require.Len(t, w.coins.TxnsOfType(ledger.TxnConsume), 1)

	_, err = w.svc.AdminApprove(context.Background(), req.ID, "u-admin", "")
	require.ErrorIs(t, err, leave.ErrInvalidState)
}

func TestInsufficientBalanceRollsBackApproval(t *testing.T) {
	w := newWorld(t)
	w.grantMonthly(t, "emp-1", 1)

	// The balance read reports two coins while the lots hold one, the drift
	// the final approval must catch: consumption fails and everything rolls
	// back, leaving the request pending.
	w.svc = leave.NewService(w.store, fixedBalance{available: d(2)}, w.dir, w.notifier).
		WithClock(func() time.Time { return w.now })

	req := w.createRequest(t, "emp-1", 2)
	require.True(t, req.PaidDays.Equal(d(2)))

	_, err := w.svc.ApproveLevel(context.Background(), req.ID, "u-mgr", true, "")
	require.ErrorIs(t, err, ledger.ErrInsufficientBalance)

	after, err := w.store.RequestByID(context.Background(), req.ID)
	require.NoError(t, err)
	require.Equal(t, leave.StatusPending, after.Status, "request must stay pending")
	require.Equal(t, "mgr-1", *after.CurrentApproverID)

	steps, err := w.store.StepsForRequest(context.Background(), req.ID)
	require.NoError(t, err)
	require.Equal(t, leave.StepPending, steps[0].Status, "step approval must roll back")

	require.Empty(t, w.coins.TxnsOfType(ledger.TxnConsume))
	require.True(t, w.coins.Lots()[0].Remaining.Equal(d(1)))
}

func TestCancelOwnPendingRequest(t *testing.T) {
	w := newWorld(t)
	req := w.createRequest(t, "emp-1", 1)

	_, err := w.svc.Cancel(context.Background(), req.ID, "u-emp2")
	require.ErrorIs(t, err, leave.ErrForbidden)

	cancelled, err := w.svc.Cancel(context.Background(), req.ID, "u-emp")
	require.NoError(t, err)
	require.Equal(t, leave.StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)
	require.Len(t, w.notifier.ofType("leave_cancelled"), 1)

	_, err = w.svc.ApproveLevel(context.Background(), req.ID, "u-mgr", true, "")
	require.ErrorIs(t, err, leave.ErrInvalidState)
}

func TestCancelApprovedRequestFails(t *testing.T) {
	w := newWorld(t)
	w.grantMonthly(t, "emp-1", 2)
	req := w.createRequest(t, "emp-1", 1)

	_, err := w.svc.ApproveLevel(context.Background(), req.ID, "u-mgr", true, "")
	require.NoError(t, err)

	_, err = w.svc.Cancel(context.Background(), req.ID, "u-emp")
	require.ErrorIs(t, err, leave.ErrInvalidState)
}

func TestGetScopesToViewer(t *testing.T) {
	w := newWorld(t)
	req := w.createRequest(t, "emp-1", 1)
	ctx := context.Background()

	_, _, err := w.svc.Get(ctx, req.ID, auth.UserContext{UserID: "u-admin", Role: auth.RoleAdmin})
	require.NoError(t, err)

	_, _, err = w.svc.Get(ctx, req.ID, auth.UserContext{UserID: "u-emp", Role: auth.RoleEmployee})
	require.NoError(t, err)

	_, steps, err := w.svc.Get(ctx, req.ID, auth.UserContext{UserID: "u-mgr", Role: auth.RoleEmployee})
	require.NoError(t, err)
	require.Len(t, steps, 1)

	_, _, err = w.svc.Get(ctx, req.ID, auth.UserContext{UserID: "u-emp2", Role: auth.RoleEmployee})
	require.ErrorIs(t, err, leave.ErrForbidden)
}

func TestListScopesToViewer(t *testing.T) {
	w := newWorld(t)
	w.createRequest(t, "emp-1", 1)
	w.createRequest(t, "emp-2", 1)
	ctx := context.Background()

	all, total, err := w.svc.List(ctx, auth.UserContext{UserID: "u-admin", Role: auth.RoleAdmin}, "", 20, 0)
	require.NoError(t, err)
	require.Equal(t, 2, total)
	require.Len(t, all, 2)

	own, _, err := w.svc.List(ctx, auth.UserContext{UserID: "u-emp", Role: auth.RoleEmployee}, "", 20, 0)
	require.NoError(t, err)
	require.Len(t, own, 1)
	require.Equal(t, "emp-1", own[0].EmployeeID)

	team, _, err := w.svc.List(ctx, auth.UserContext{UserID: "u-mgr", Role: auth.RoleEmployee}, "", 20, 0)
	require.NoError(t, err)
	require.Len(t, team, 1, "manager sees direct reports")
	require.Equal(t, "emp-1", team[0].EmployeeID)
}

func TestHalfDayRequestConsumesHalfCoin(t *testing.T) {
	w := newWorld(t)
	w.grantMonthly(t, "emp-1", 1)

	req, err := w.svc.CreateRequest(context.Background(), leave.CreateRequestInput{
		EmployeeID:   "emp-1",
		LeaveTypeID:  w.annual.ID,
		StartDate:    w.now.AddDate(0, 0, 7),
		EndDate:      w.now.AddDate(0, 0, 7),
		DurationType: leave.DurationFirstHalf,
	})
	require.NoError(t, err)
	require.True(t, req.TotalDays.Equal(d(0.5)))
	require.NotNil(t, req.HalfDayDate)

	_, err = w.svc.ApproveLevel(context.Background(), req.ID, "u-mgr", true, "")
	require.NoError(t, err)

	consumes := w.coins.TxnsOfType(ledger.TxnConsume)
	require.Len(t, consumes, 1)
	require.True(t, consumes[0].Amount.Equal(d(0.5)))
	require.True(t, w.coins.Lots()[0].Remaining.Equal(d(0.5)))
}

func TestCreateRequestFallsBackToGeneralType(t *testing.T) {
	w := newWorld(t)

	req, err := w.svc.CreateRequest(context.Background(), leave.CreateRequestInput{
		EmployeeID:    "emp-1",
		LeaveTypeCode: "SABBATICAL",
		StartDate:     w.now.AddDate(0, 0, 7),
		EndDate:       w.now.AddDate(0, 0, 7),
	})
	require.NoError(t, err)

	lt, err := w.store.LeaveTypeByID(context.Background(), req.LeaveTypeID)
	require.NoError(t, err)
	require.Equal(t, leave.DefaultTypeCode, lt.Code)
}

func TestCreateRequestPolicyChecks(t *testing.T) {
	w := newWorld(t)
	strict := w.store.seedType(leave.LeaveType{
		Code: "STRICT", Name: "Strict Leave",
		RequiresApproval: true, UsesBalance: true, IsActive: true,
		MinNoticeDays: 14, MaxDaysPerRequest: d(2),
	})

	_, err := w.svc.CreateRequest(context.Background(), leave.CreateRequestInput{
		EmployeeID:  "emp-1",
		LeaveTypeID: strict.ID,
		StartDate:   w.now.AddDate(0, 0, 3),
		EndDate:     w.now.AddDate(0, 0, 3),
	})
	require.ErrorIs(t, err, leave.ErrNoticeTooShort)

	_, err = w.svc.CreateRequest(context.Background(), leave.CreateRequestInput{
		EmployeeID:  "emp-1",
		LeaveTypeID: strict.ID,
		StartDate:   w.now.AddDate(0, 0, 20),
		EndDate:     w.now.AddDate(0, 0, 24),
	})
	require.ErrorIs(t, err, leave.ErrTooManyDays)

	_, err = w.svc.CreateRequest(context.Background(), leave.CreateRequestInput{
		EmployeeID:   "emp-1",
		LeaveTypeID:  strict.ID,
		StartDate:    w.now.AddDate(0, 0, 20),
		EndDate:      w.now.AddDate(0, 0, 20),
		DurationType: leave.DurationFirstHalf,
	})
	require.ErrorIs(t, err, leave.ErrHalfDayNotAllowed)
}
