// Package users persists registered accounts.
package users

import (
	"context"

	"github.com/okarpov/lingohist/internal/server/models"
)

type Repository interface {
	// Create stores a new user. A duplicate email yields
	// common.ErrEmailAlreadyExists.
	Create(ctx context.Context, user *models.User) (*models.User, error)

	// GetByEmail returns the user or common.ErrNotFound.
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}
