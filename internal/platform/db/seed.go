package db

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"hrcore/internal/domain/auth"
	"hrcore/internal/platform/config"
)

// Seed ensures the admin login and the default leave type exist. Idempotent:
// a second run changes nothing.
func Seed(ctx context.Context, pool *pgxpool.Pool, cfg config.Config) error {
	if err := ensureAdminUser(ctx, pool, cfg.SeedAdminUsername, cfg.SeedAdminPassword); err != nil {
		return err
	}
	return ensureDefaultLeaveType(ctx, pool)
}

func ensureAdminUser(ctx context.Context, pool *pgxpool.Pool, username, password string) error {
	if username == "" {
		return nil
	}

	var id string
	err := pool.QueryRow(ctx, "SELECT id FROM users WHERE username = $1", username).Scan(&id)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	if password == "" {
		password = "admin"
		slog.Warn("seeding admin user with default password, change it", "username", username)
	}
	hashed, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	_, err = pool.Exec(ctx, `
    INSERT INTO users (username, hashed_password, role)
    VALUES ($1,$2,$3)
    ON CONFLICT (username) DO NOTHING
  `, username, hashed, auth.RoleSuperAdmin)
	return err
}

func ensureDefaultLeaveType(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
    INSERT INTO leave_types
      (code, name, description, allow_half_day, requires_approval, uses_balance, is_active)
    VALUES ('GENERAL', 'General Leave', 'Default leave type drawing on leave coins', true, true, true, true)
    ON CONFLICT (code) DO NOTHING
  `)
	return err
}
