package samples

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/mnistlab/internal/common"
	"github.com/dmitrijs2005/mnistlab/internal/dbx"
	"github.com/dmitrijs2005/mnistlab/internal/mnist"
	"github.com/dmitrijs2005/mnistlab/internal/web/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// RandomOnePerLabel draws one uniformly random row per label from split.
// The result always has mnist.Classes slots; labels with no rows get a nil
// Sample instead of failing the call.
func (r *PostgresRepository) RandomOnePerLabel(ctx context.Context, split string) ([]models.GridSlot, error) {
	query :=
		`SELECT DISTINCT ON (label) id, split, label, vec, rows, cols
		 FROM demo.mnist_samples
		 WHERE split = $1 AND label BETWEEN 0 AND 9
		 ORDER BY label, random()
		 `

	rows, err := r.db.QueryContext(ctx, query, split)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	slots := make([]models.GridSlot, mnist.Classes)
	for i := range slots {
		slots[i].Label = i
	}

	for rows.Next() {
		s, err := scanSample(rows)
		if err != nil {
			return nil, err
		}
		slots[s.Label].Sample = s
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return slots, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*models.Sample, error) {
	query :=
		`SELECT id, split, label, vec, rows, cols
		 FROM demo.mnist_samples
		 WHERE id = $1
		 `

	s, err := scanSample(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, err
	}
	return s, nil
}

func (r *PostgresRepository) CountBySplit(ctx context.Context, split string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM demo.mnist_samples WHERE split = $1`, split).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

// LockSplit serialises concurrent loaders of the same split until the
// surrounding transaction ends.
func (r *PostgresRepository) LockSplit(ctx context.Context, split string) error {
	_, err := r.db.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext('demo.mnist_samples:' || $1))`, split)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Insert(ctx context.Context, s *models.Sample) error {
	if len(s.Pixels) != s.Rows*s.Cols {
		return fmt.Errorf("sample has %d pixels for %dx%d", len(s.Pixels), s.Rows, s.Cols)
	}

	query :=
		`INSERT INTO demo.mnist_samples (split, label, vec, rows, cols)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id
		 `

	err := r.db.QueryRowContext(ctx, query, s.Split, s.Label, s.Vec(), s.Rows, s.Cols).Scan(&s.ID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSample(row scanner) (*models.Sample, error) {
	var (
		s   models.Sample
		vec []byte
	)
	if err := row.Scan(&s.ID, &s.Split, &s.Label, &vec, &s.Rows, &s.Cols); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	px, err := mnist.DecodeVec(vec, s.Rows, s.Cols)
	if err != nil {
		return nil, fmt.Errorf("sample %d: %w", s.ID, err)
	}
	if !mnist.ValidLabel(s.Label) {
		return nil, fmt.Errorf("sample %d: label %d out of range", s.ID, s.Label)
	}
	s.Pixels = px
	return &s, nil
}
