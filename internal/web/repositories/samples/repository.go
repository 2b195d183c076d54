package samples

import (
	"context"

	"github.com/dmitrijs2005/mnistlab/internal/web/models"
)

// Repository is the read-mostly sample corpus.
type Repository interface {
	RandomOnePerLabel(ctx context.Context, split string) ([]models.GridSlot, error)
	GetByID(ctx context.Context, id int64) (*models.Sample, error)
	CountBySplit(ctx context.Context, split string) (int, error)
	LockSplit(ctx context.Context, split string) error
	Insert(ctx context.Context, s *models.Sample) error
}
