package auth

import (
	"context"
	"errors"
	"time"
)

var ErrInvalidCredentials = errors.New("invalid username or password")

const tokenTTL = 12 * time.Hour

type Service struct {
	Store  *Store
	Secret string
}

func NewService(store *Store, secret string) *Service {
	return &Service{Store: store, Secret: secret}
}

// Login verifies credentials and issues a signed token. A missing user and a
// wrong password return the same error.
func (s *Service) Login(ctx context.Context, username, password string) (string, User, error) {
	user, err := s.Store.UserByUsername(ctx, username)
	if errors.Is(err, ErrUserNotFound) {
		return "", User{}, ErrInvalidCredentials
	}
	if err != nil {
		return "", User{}, err
	}
	if err := CheckPassword(user.HashedPassword, password); err != nil {
		return "", User{}, ErrInvalidCredentials
	}

	token, err := GenerateToken(s.Secret, Claims{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
	}, tokenTTL)
	if err != nil {
		return "", User{}, err
	}
	return token, user, nil
}

func (s *Service) ChangePassword(ctx context.Context, userID, current, next string) error {
	user, err := s.Store.UserByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := CheckPassword(user.HashedPassword, current); err != nil {
		return ErrInvalidCredentials
	}
	hashed, err := HashPassword(next)
	if err != nil {
		return err
	}
	return s.Store.UpdatePassword(ctx, userID, hashed)
}

func (s *Service) Authenticate(ctx context.Context, token string) (UserContext, error) {
	claims, err := ParseToken(s.Secret, token)
	if err != nil {
		return UserContext{}, err
	}
	return UserContext{
		UserID:   claims.UserID,
		Username: claims.Username,
		Role:     claims.Role,
	}, nil
}
