package users

import (
	"context"

	"github.com/dmitrijs2005/mnistlab/internal/web/models"
)

// Repository is the credential store. Accounts are never deleted.
type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	RecordLogin(ctx context.Context, username string) (*models.User, error)
}
