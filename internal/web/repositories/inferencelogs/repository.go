package inferencelogs

import (
	"context"

	"github.com/dmitrijs2005/mnistlab/internal/web/models"
)

// Repository is append-only: there is no update or delete.
type Repository interface {
	Append(ctx context.Context, entry *models.InferenceLog) error
	QueryByUser(ctx context.Context, username string, limit int) ([]models.InferenceLog, error)
	AggregateAccuracy(ctx context.Context, filter models.AccuracyFilter) (models.Accuracy, error)
	TopConfusions(ctx context.Context, limit int) ([]models.Confusion, error)
}
