package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/mnistlab/internal/common"
	"github.com/dmitrijs2005/mnistlab/internal/dbx"
	"github.com/dmitrijs2005/mnistlab/internal/logging"
	"github.com/dmitrijs2005/mnistlab/internal/mnist"
	"github.com/dmitrijs2005/mnistlab/internal/web/models"
	"github.com/dmitrijs2005/mnistlab/internal/web/repositories/repomanager"
)

type CorpusService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	logger      logging.Logger
}

func NewCorpusService(db *sql.DB, m repomanager.RepositoryManager, logger logging.Logger) *CorpusService {
	return &CorpusService{db: db, repomanager: m, logger: logger.With("module", "corpus")}
}

// Load bulk-inserts labelled images into split inside one transaction. If the
// split already holds rows nothing is written and 0 is returned, so repeated
// bootstrap runs are harmless.
func (s *CorpusService) Load(ctx context.Context, split string, images []mnist.Image, labels []int) (int, error) {
	if !mnist.ValidSplit(split) {
		return 0, common.FieldErrors{"split": fmt.Sprintf("unknown split %q", split)}
	}
	if len(images) != len(labels) {
		return 0, fmt.Errorf("%w: %d images but %d labels", common.ErrorValidation, len(images), len(labels))
	}
	for i, l := range labels {
		if !mnist.ValidLabel(l) {
			return 0, fmt.Errorf("%w: label %d at index %d", common.ErrorValidation, l, i)
		}
	}

	inserted := 0
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Samples(tx)

		if err := repo.LockSplit(ctx, split); err != nil {
			return err
		}
		n, err := repo.CountBySplit(ctx, split)
		if err != nil {
			return err
		}
		if n > 0 {
			s.logger.Info(ctx, "split already loaded, skipping", "split", split, "rows", n)
			return nil
		}

		for i, img := range images {
			sample := &models.Sample{Split: split, Label: labels[i], Pixels: img.Pixels, Rows: img.Rows, Cols: img.Cols}
			if err := repo.Insert(ctx, sample); err != nil {
				return fmt.Errorf("sample %d: %w", i, err)
			}
			inserted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if inserted > 0 {
		s.logger.Info(ctx, "corpus loaded", "split", split, "rows", inserted)
	}
	return inserted, nil
}
