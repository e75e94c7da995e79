// Package services contains server-side business logic: account management
// and the history document store operations exposed over the API.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/okarpov/lingohist/internal/common"
	"github.com/okarpov/lingohist/internal/server/auth"
	"github.com/okarpov/lingohist/internal/server/config"
	"github.com/okarpov/lingohist/internal/server/models"
	"github.com/okarpov/lingohist/internal/server/repositories/repomanager"
)

// UserService handles registration and login and mints access tokens.
type UserService struct {
	db            *sql.DB
	repos         repomanager.RepositoryManager
	jwtSecret     []byte
	tokenValidity time.Duration
}

func NewUserService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config) *UserService {
	return &UserService{
		db:            db,
		repos:         m,
		jwtSecret:     []byte(cfg.SecretKey),
		tokenValidity: cfg.AccessTokenValidityDuration,
	}
}

// Register creates a new account. The password is stored as a bcrypt hash.
func (s *UserService) Register(ctx context.Context, email, password string) (*models.User, error) {
	if email == "" || password == "" {
		return nil, common.ErrInvalidCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
	}
	return s.repos.Users(s.db).Create(ctx, user)
}

// Login verifies the credentials and returns a signed access token. Unknown
// emails and wrong passwords are indistinguishable to the caller.
func (s *UserService) Login(ctx context.Context, email, password string) (string, error) {
	user, err := s.repos.Users(s.db).GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return "", common.ErrInvalidCredentials
		}
		return "", fmt.Errorf("loading user: %w", err)
	}

	if bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)) != nil {
		return "", common.ErrInvalidCredentials
	}

	return auth.GenerateToken(user.ID, s.jwtSecret, s.tokenValidity)
}

// ValidateToken returns the user id a valid access token was issued for.
func (s *UserService) ValidateToken(token string) (string, error) {
	return auth.GetUserIDFromToken(token, s.jwtSecret)
}
