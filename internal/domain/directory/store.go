package directory

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"hrcore/internal/platform/querier"
)

var ErrNotFound = errors.New("employee not found")

const employeeColumns = "id, user_id, name, COALESCE(email, ''), COALESCE(phone, ''), COALESCE(emp_code, ''), manager_id, is_leave_eligible, status, created_at"

type Store struct {
	DB querier.Querier
}

func NewStore(db querier.Querier) *Store {
	return &Store{DB: db}
}

func (s *Store) EmployeeByID(ctx context.Context, employeeID string) (Employee, error) {
	return s.scanOne(s.DB.QueryRow(ctx, `
    SELECT `+employeeColumns+`
    FROM employees
    WHERE id = $1
  `, employeeID))
}

func (s *Store) EmployeeByUserID(ctx context.Context, userID string) (Employee, error) {
	return s.scanOne(s.DB.QueryRow(ctx, `
    SELECT `+employeeColumns+`
    FROM employees
    WHERE user_id = $1
  `, userID))
}

func (s *Store) ListEmployees(ctx context.Context, status string) ([]Employee, error) {
	query := `SELECT ` + employeeColumns + ` FROM employees`
	args := []any{}
	if status != "" {
		query += " WHERE status = $1"
		args = append(args, status)
	}
	query += " ORDER BY name"

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Employee
	for rows.Next() {
		var emp Employee
		if err := rows.Scan(&emp.ID, &emp.UserID, &emp.Name, &emp.Email, &emp.Phone, &emp.EmpCode, &emp.ManagerID, &emp.IsLeaveEligible, &emp.Status, &emp.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, emp)
	}
	return out, rows.Err()
}

// LeaveEligibleEmployeeIDs feeds the monthly coin grant job.
func (s *Store) LeaveEligibleEmployeeIDs(ctx context.Context) ([]string, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id FROM employees
    WHERE status = $1 AND is_leave_eligible
  `, StatusActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) CreateEmployee(ctx context.Context, emp Employee) (string, error) {
	var id string
	err := s.DB.QueryRow(ctx, `
    INSERT INTO employees (user_id, name, email, phone, emp_code, manager_id, is_leave_eligible, status)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
    RETURNING id
  `, emp.UserID, emp.Name, nullIfEmpty(emp.Email), nullIfEmpty(emp.Phone), nullIfEmpty(emp.EmpCode), emp.ManagerID, emp.IsLeaveEligible, defaultStatus(emp.Status)).Scan(&id)
	return id, err
}

func (s *Store) UpdateEmployee(ctx context.Context, emp Employee) error {
	tag, err := s.DB.Exec(ctx, `
    UPDATE employees
    SET name = $1, email = $2, phone = $3, emp_code = $4, manager_id = $5, is_leave_eligible = $6, status = $7
    WHERE id = $8
  `, emp.Name, nullIfEmpty(emp.Email), nullIfEmpty(emp.Phone), nullIfEmpty(emp.EmpCode), emp.ManagerID, emp.IsLeaveEligible, defaultStatus(emp.Status), emp.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) scanOne(row pgx.Row) (Employee, error) {
	var emp Employee
	err := row.Scan(&emp.ID, &emp.UserID, &emp.Name, &emp.Email, &emp.Phone, &emp.EmpCode, &emp.ManagerID, &emp.IsLeaveEligible, &emp.Status, &emp.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Employee{}, ErrNotFound
	}
	return emp, err
}

func defaultStatus(status string) string {
	if status == "" {
		return StatusActive
	}
	return status
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}
