package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"hrcore/internal/domain/directory"
	"hrcore/internal/domain/ledger"
	"hrcore/internal/domain/notifications"
	"hrcore/internal/platform/config"
)

const (
	JobCoinGrant  = "coin_grant"
	JobCoinExpiry = "coin_expiry"
)

var monthlyGrantAmount = decimal.NewFromInt(1)

type Service struct {
	DB        *pgxpool.Pool
	Cfg       config.Config
	Engine    *ledger.Engine
	Directory *directory.Store
	Notify    *notifications.Service
	queue     chan job
}

type job struct {
	Type string
	Run  func(context.Context) (any, error)
}

func New(db *pgxpool.Pool, cfg config.Config, engine *ledger.Engine, dir *directory.Store, notify *notifications.Service) *Service {
	return &Service{
		DB:        db,
		Cfg:       cfg,
		Engine:    engine,
		Directory: dir,
		Notify:    notify,
		queue:     make(chan job, 128),
	}
}

func (s *Service) Start(ctx context.Context) {
	go s.worker(ctx)
	if s.Cfg.CoinGrantInterval > 0 {
		go s.schedule(ctx, s.Cfg.CoinGrantInterval, JobCoinGrant, s.RunGrant)
	}
	if s.Cfg.CoinSweepInterval > 0 {
		go s.schedule(ctx, s.Cfg.CoinSweepInterval, JobCoinExpiry, s.RunExpiry)
	}
}

func (s *Service) Enqueue(jobType string, run func(context.Context) (any, error)) {
	select {
	case s.queue <- job{Type: jobType, Run: run}:
	default:
		slog.Warn("job queue full", "jobType", jobType)
	}
}

// RunNow executes a job synchronously, for the admin trigger endpoints.
func (s *Service) RunNow(ctx context.Context, jobType string, run func(context.Context) (any, error)) (any, error) {
	return s.runJob(ctx, job{Type: jobType, Run: run})
}

func (s *Service) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.queue:
			if _, err := s.runJob(ctx, j); err != nil {
				slog.Warn("job run failed", "jobType", j.Type, "err", err)
			}
		}
	}
}

func (s *Service) runJob(ctx context.Context, j job) (any, error) {
	runID := ""
	if err := s.DB.QueryRow(ctx, `
    INSERT INTO job_runs (job_type, status)
    VALUES ($1,$2)
    RETURNING id
  `, j.Type, "running").Scan(&runID); err != nil {
		slog.Warn("job run insert failed", "err", err)
	}

	details, err := j.Run(ctx)
	status := "completed"
	if err != nil {
		status = "failed"
	}
	detailsJSON, marshalErr := json.Marshal(details)
	if marshalErr != nil {
		slog.Warn("job details marshal failed", "err", marshalErr)
		detailsJSON = []byte("{}")
	}
	if runID != "" {
		if _, updErr := s.DB.Exec(ctx, `
      UPDATE job_runs
      SET status = $1, details_json = $2, completed_at = now()
      WHERE id = $3
    `, status, detailsJSON, runID); updErr != nil {
			slog.Warn("job run update failed", "err", updErr)
		}
	}
	return details, err
}

func (s *Service) schedule(ctx context.Context, interval time.Duration, jobType string, run func(context.Context) (any, error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Enqueue(jobType, run)
		}
	}
}

// RunGrant credits one coin to every leave-eligible employee who has not yet
// received this month's grant. The ticker may fire more often than monthly;
// the per-employee month check plus the cap clamp make re-runs harmless.
func (s *Service) RunGrant(ctx context.Context) (any, error) {
	now := time.Now().UTC()
	ids, err := s.Directory.LeaveEligibleEmployeeIDs(ctx)
	if err != nil {
		return nil, err
	}

	granted := decimal.Zero
	credited := 0
	skipped := 0
	for _, employeeID := range ids {
		done, err := s.grantedThisMonth(ctx, employeeID, now)
		if err != nil {
			return nil, err
		}
		if done {
			skipped++
			continue
		}
		amount, err := s.Engine.Grant(ctx, employeeID, monthlyGrantAmount, ledger.SourceMonthlyGrant)
		if err != nil {
			return nil, err
		}
		granted = granted.Add(amount)
		credited++
	}

	return map[string]any{
		"eligible": len(ids),
		"credited": credited,
		"skipped":  skipped,
		"granted":  granted.String(),
	}, nil
}

// RunExpiry sweeps expired lots across all employees. Idempotent, so the
// schedule and the admin trigger can overlap safely.
func (s *Service) RunExpiry(ctx context.Context) (any, error) {
	now := time.Now().UTC()
	expired, err := s.Engine.ExpireSweep(ctx, now)
	if err != nil {
		return nil, err
	}
	warned := s.warnExpiringSoon(ctx, now)
	return map[string]any{"expired": expired.String(), "warned": warned}, nil
}

// warnExpiringSoon notifies employees who have coins expiring inside the
// warning window. Best effort: a failed lookup skips the employee.
func (s *Service) warnExpiringSoon(ctx context.Context, now time.Time) int {
	if s.Notify == nil {
		return 0
	}
	ids, err := s.Directory.LeaveEligibleEmployeeIDs(ctx)
	if err != nil {
		slog.Warn("expiring-soon employee listing failed", "err", err)
		return 0
	}

	warned := 0
	for _, employeeID := range ids {
		view, err := s.Engine.AvailableCoins(ctx, employeeID, now)
		if err != nil || len(view.ExpiringSoon) == 0 {
			continue
		}
		emp, err := s.Directory.EmployeeByID(ctx, employeeID)
		if err != nil || emp.UserID == "" {
			continue
		}
		next := view.ExpiringSoon[0]
		if err := s.Notify.Notify(ctx, emp.UserID, notifications.TypeCoinsExpiring,
			"Leave coins expiring soon",
			fmt.Sprintf("%s leave coins expire on %s.", next.Amount.StringFixed(2), next.ExpiresAt.Format("2006-01-02"))); err != nil {
			slog.Warn("expiring-soon notification failed", "employee", employeeID, "err", err)
			continue
		}
		warned++
	}
	return warned
}

func (s *Service) grantedThisMonth(ctx context.Context, employeeID string, now time.Time) (bool, error) {
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	var exists bool
	err := s.DB.QueryRow(ctx, `
    SELECT EXISTS (
      SELECT 1 FROM leave_coin_lots
      WHERE employee_id = $1 AND source = $2 AND granted_at >= $3
    )
  `, employeeID, ledger.SourceMonthlyGrant, monthStart).Scan(&exists)
	return exists, err
}
