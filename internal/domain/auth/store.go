package auth

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"hrcore/internal/platform/querier"
)

var ErrUserNotFound = errors.New("user not found")

type User struct {
	ID             string    `json:"id"`
	Username       string    `json:"username"`
	HashedPassword string    `json:"-"`
	Role           string    `json:"role"`
	CreatedAt      time.Time `json:"createdAt"`
}

type Store struct {
	DB querier.Querier
}

func NewStore(db querier.Querier) *Store {
	return &Store{DB: db}
}

func (s *Store) UserByUsername(ctx context.Context, username string) (User, error) {
	var user User
	err := s.DB.QueryRow(ctx, `
    SELECT id, username, hashed_password, role, created_at
    FROM users
    WHERE username = $1
  `, username).Scan(&user.ID, &user.Username, &user.HashedPassword, &user.Role, &user.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	return user, err
}

func (s *Store) UserByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.DB.QueryRow(ctx, `
    SELECT id, username, hashed_password, role, created_at
    FROM users
    WHERE id = $1
  `, userID).Scan(&user.ID, &user.Username, &user.HashedPassword, &user.Role, &user.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	return user, err
}

func (s *Store) CreateUser(ctx context.Context, username, hashedPassword, role string) (string, error) {
	var id string
	err := s.DB.QueryRow(ctx, `
    INSERT INTO users (username, hashed_password, role)
    VALUES ($1,$2,$3)
    ON CONFLICT (username) DO UPDATE SET role = EXCLUDED.role
    RETURNING id
  `, username, hashedPassword, role).Scan(&id)
	return id, err
}

func (s *Store) UpdatePassword(ctx context.Context, userID, hashedPassword string) error {
	tag, err := s.DB.Exec(ctx, `
    UPDATE users SET hashed_password = $1 WHERE id = $2
  `, hashedPassword, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}
