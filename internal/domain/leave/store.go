package leave

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"hrcore/internal/domain/ledger"
	"hrcore/internal/platform/querier"
)

const requestColumns = `
  r.id, r.employee_id, r.leave_type_id, lt.name, r.start_date, r.end_date,
  r.duration_type, r.half_day_date, r.total_days, r.paid_days, r.unpaid_days,
  COALESCE(r.reason, ''), r.status, r.workflow_status, r.current_approver_id,
  r.approved_by, r.approved_at, COALESCE(r.admin_notes, ''),
  r.cancelled_by, r.cancelled_at, r.created_at, r.updated_at`

const stepColumns = `
  id, leave_request_id, level, level_name, approver_id, status,
  action_by_user_id, action_at, COALESCE(comments, ''), sequence, is_final`

const typeColumns = `
  id, code, name, COALESCE(description, ''), default_annual_quota,
  allow_half_day, requires_approval, uses_balance, min_notice_days,
  max_days_per_request, display_order, is_active, created_at, updated_at`

// Store is the pgx-backed workflow store. Like the ledger store it runs
// transactions at serializable isolation and retries serialization conflicts.
type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

const serializationFailure = "40001"

func (s *Store) InTx(ctx context.Context, fn func(Tx) error) error {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
		if err != nil {
			return err
		}
		if err := fn(&storeTx{tx: tx}); err != nil {
			_ = tx.Rollback(ctx)
			if isSerializationFailure(err) {
				lastErr = err
				continue
			}
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			if isSerializationFailure(err) {
				lastErr = err
				continue
			}
			return err
		}
		return nil
	}
	return lastErr
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == serializationFailure
}

func (s *Store) RequestByID(ctx context.Context, requestID string) (Request, error) {
	return scanRequest(s.DB.QueryRow(ctx, `
    SELECT `+requestColumns+`
    FROM leave_requests r
    JOIN leave_types lt ON lt.id = r.leave_type_id
    WHERE r.id = $1
  `, requestID))
}

func (s *Store) StepsForRequest(ctx context.Context, requestID string) ([]ApprovalStep, error) {
	return querySteps(ctx, s.DB, `
    SELECT `+stepColumns+`
    FROM leave_approvals
    WHERE leave_request_id = $1
    ORDER BY sequence ASC
  `, requestID)
}

func (s *Store) ListRequests(ctx context.Context, filter RequestFilter) ([]Request, int, error) {
	where := "TRUE"
	args := []any{}

	if filter.EmployeeID != "" {
		args = append(args, filter.EmployeeID)
		where = fmt.Sprintf("r.employee_id = $%d", len(args))
		if filter.ReportsOf != "" {
			args = append(args, filter.ReportsOf)
			where = fmt.Sprintf("(%s OR r.employee_id IN (SELECT id FROM employees WHERE manager_id = $%d))", where, len(args))
		}
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where += fmt.Sprintf(" AND r.status = $%d", len(args))
	}

	var total int
	if err := s.DB.QueryRow(ctx, `
    SELECT COUNT(1) FROM leave_requests r WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	args = append(args, limit, filter.Offset)
	query := fmt.Sprintf(`
    SELECT %s
    FROM leave_requests r
    JOIN leave_types lt ON lt.id = r.leave_type_id
    WHERE %s
    ORDER BY r.created_at DESC
    LIMIT $%d OFFSET $%d
  `, requestColumns, where, len(args)-1, len(args))

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var requests []Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, 0, err
		}
		requests = append(requests, req)
	}
	return requests, total, rows.Err()
}

func (s *Store) LeaveTypeByID(ctx context.Context, typeID string) (LeaveType, error) {
	return scanType(s.DB.QueryRow(ctx, `
    SELECT `+typeColumns+` FROM leave_types WHERE id = $1
  `, typeID))
}

func (s *Store) LeaveTypeByCode(ctx context.Context, code string) (LeaveType, error) {
	return scanType(s.DB.QueryRow(ctx, `
    SELECT `+typeColumns+` FROM leave_types WHERE code = $1
  `, code))
}

func (s *Store) ListLeaveTypes(ctx context.Context, includeInactive bool) ([]LeaveType, error) {
	query := `SELECT ` + typeColumns + ` FROM leave_types`
	if !includeInactive {
		query += " WHERE is_active"
	}
	query += " ORDER BY display_order, name"

	rows, err := s.DB.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var types []LeaveType
	for rows.Next() {
		lt, err := scanType(rows)
		if err != nil {
			return nil, err
		}
		types = append(types, lt)
	}
	return types, rows.Err()
}

func (s *Store) CreateLeaveType(ctx context.Context, lt *LeaveType) error {
	return s.DB.QueryRow(ctx, `
    INSERT INTO leave_types
      (code, name, description, default_annual_quota, allow_half_day,
       requires_approval, uses_balance, min_notice_days, max_days_per_request,
       display_order, is_active)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
    RETURNING id, created_at, updated_at
  `, lt.Code, lt.Name, nullIfEmpty(lt.Description), lt.DefaultAnnualQuota,
		lt.AllowHalfDay, lt.RequiresApproval, lt.UsesBalance, lt.MinNoticeDays,
		lt.MaxDaysPerRequest, lt.DisplayOrder, lt.IsActive).Scan(&lt.ID, &lt.CreatedAt, &lt.UpdatedAt)
}

func (s *Store) UpdateLeaveType(ctx context.Context, lt *LeaveType) error {
	tag, err := s.DB.Exec(ctx, `
    UPDATE leave_types
    SET name = $1, description = $2, default_annual_quota = $3,
        allow_half_day = $4, requires_approval = $5, uses_balance = $6,
        min_notice_days = $7, max_days_per_request = $8, display_order = $9,
        is_active = $10, updated_at = now()
    WHERE id = $11
  `, lt.Name, nullIfEmpty(lt.Description), lt.DefaultAnnualQuota,
		lt.AllowHalfDay, lt.RequiresApproval, lt.UsesBalance, lt.MinNoticeDays,
		lt.MaxDaysPerRequest, lt.DisplayOrder, lt.IsActive, lt.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTypeNotFound
	}
	return nil
}

type storeTx struct {
	tx pgx.Tx
}

func (t *storeTx) Ledger() ledger.TxAPI {
	return ledger.NewTx(t.tx)
}

func (t *storeTx) RequestForUpdate(ctx context.Context, requestID string) (Request, error) {
	return scanRequest(t.tx.QueryRow(ctx, `
    SELECT `+requestColumns+`
    FROM leave_requests r
    JOIN leave_types lt ON lt.id = r.leave_type_id
    WHERE r.id = $1
    FOR UPDATE OF r
  `, requestID))
}

func (t *storeTx) InsertRequest(ctx context.Context, req *Request) error {
	return t.tx.QueryRow(ctx, `
    INSERT INTO leave_requests
      (employee_id, leave_type_id, start_date, end_date, duration_type,
       half_day_date, total_days, paid_days, unpaid_days, reason, status,
       workflow_status, current_approver_id)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
    RETURNING id, created_at, updated_at
  `, req.EmployeeID, req.LeaveTypeID, req.StartDate, req.EndDate,
		req.DurationType, req.HalfDayDate, req.TotalDays, req.PaidDays,
		req.UnpaidDays, nullIfEmpty(req.Reason), req.Status, req.WorkflowStatus,
		req.CurrentApproverID).Scan(&req.ID, &req.CreatedAt, &req.UpdatedAt)
}

func (t *storeTx) UpdateRequest(ctx context.Context, req *Request) error {
	tag, err := t.tx.Exec(ctx, `
    UPDATE leave_requests
    SET paid_days = $1, unpaid_days = $2, status = $3, workflow_status = $4,
        current_approver_id = $5, approved_by = $6, approved_at = $7,
        admin_notes = $8, cancelled_by = $9, cancelled_at = $10,
        updated_at = now()
    WHERE id = $11
  `, req.PaidDays, req.UnpaidDays, req.Status, req.WorkflowStatus,
		req.CurrentApproverID, req.ApprovedBy, req.ApprovedAt,
		nullIfEmpty(req.AdminNotes), req.CancelledBy, req.CancelledAt, req.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *storeTx) StepsForUpdate(ctx context.Context, requestID string) ([]ApprovalStep, error) {
	return querySteps(ctx, t.tx, `
    SELECT `+stepColumns+`
    FROM leave_approvals
    WHERE leave_request_id = $1
    ORDER BY sequence ASC
    FOR UPDATE
  `, requestID)
}

func (t *storeTx) InsertStep(ctx context.Context, step *ApprovalStep) error {
	return t.tx.QueryRow(ctx, `
    INSERT INTO leave_approvals
      (leave_request_id, level, level_name, approver_id, status, sequence, is_final)
    VALUES ($1,$2,$3,$4,$5,$6,$7)
    RETURNING id
  `, step.RequestID, step.Level, step.LevelName, step.ApproverID,
		step.Status, step.Sequence, step.IsFinal).Scan(&step.ID)
}

func (t *storeTx) UpdateStep(ctx context.Context, step *ApprovalStep) error {
	_, err := t.tx.Exec(ctx, `
    UPDATE leave_approvals
    SET status = $1, action_by_user_id = $2, action_at = $3, comments = $4
    WHERE id = $5
  `, step.Status, step.ActionByUserID, step.ActionAt, nullIfEmpty(step.Comments), step.ID)
	return err
}

func scanRequest(row pgx.Row) (Request, error) {
	var req Request
	err := row.Scan(&req.ID, &req.EmployeeID, &req.LeaveTypeID, &req.LeaveTypeName,
		&req.StartDate, &req.EndDate, &req.DurationType, &req.HalfDayDate,
		&req.TotalDays, &req.PaidDays, &req.UnpaidDays, &req.Reason, &req.Status,
		&req.WorkflowStatus, &req.CurrentApproverID, &req.ApprovedBy, &req.ApprovedAt,
		&req.AdminNotes, &req.CancelledBy, &req.CancelledAt, &req.CreatedAt, &req.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Request{}, ErrNotFound
	}
	return req, err
}

func scanType(row pgx.Row) (LeaveType, error) {
	var lt LeaveType
	err := row.Scan(&lt.ID, &lt.Code, &lt.Name, &lt.Description,
		&lt.DefaultAnnualQuota, &lt.AllowHalfDay, &lt.RequiresApproval,
		&lt.UsesBalance, &lt.MinNoticeDays, &lt.MaxDaysPerRequest,
		&lt.DisplayOrder, &lt.IsActive, &lt.CreatedAt, &lt.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return LeaveType{}, ErrTypeNotFound
	}
	return lt, err
}

func querySteps(ctx context.Context, q querier.Querier, sql string, args ...any) ([]ApprovalStep, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var steps []ApprovalStep
	for rows.Next() {
		var step ApprovalStep
		if err := rows.Scan(&step.ID, &step.RequestID, &step.Level, &step.LevelName,
			&step.ApproverID, &step.Status, &step.ActionByUserID, &step.ActionAt,
			&step.Comments, &step.Sequence, &step.IsFinal); err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}
