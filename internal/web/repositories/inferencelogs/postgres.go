package inferencelogs

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/mnistlab/internal/dbx"
	"github.com/dmitrijs2005/mnistlab/internal/web/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Append validates and inserts one entry, filling ID and CreatedAt.
func (r *PostgresRepository) Append(ctx context.Context, e *models.InferenceLog) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("invalid inference log: %w", err)
	}

	var meta, probs []byte
	var err error
	if e.InputMeta != nil {
		if meta, err = json.Marshal(e.InputMeta); err != nil {
			return fmt.Errorf("invalid inference log: %w", err)
		}
	}
	if probs, err = json.Marshal(e.Probabilities); err != nil {
		return fmt.Errorf("invalid inference log: %w", err)
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}

	query :=
		`INSERT INTO ml.inference_logs
		 (id, user_id, username, task, model_version, input_text, input_meta, predicted_label, confidence, probabilities)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING created_at
		 `

	err = r.db.QueryRowContext(ctx, query,
		e.ID, nullString(e.UserID), e.Username, e.Task, e.ModelVersion, nullString(e.InputText),
		nullJSON(meta), strconv.Itoa(e.PredictedLabel), e.Confidence, nullJSON(probs),
	).Scan(&e.CreatedAt)

	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// QueryByUser returns the user's most recent entries, newest first.
func (r *PostgresRepository) QueryByUser(ctx context.Context, username string, limit int) ([]models.InferenceLog, error) {
	query :=
		`SELECT id, user_id, username, task, model_version, input_text, input_meta,
		        predicted_label, confidence, probabilities, created_at
		 FROM ml.inference_logs
		 WHERE username = $1
		 ORDER BY created_at DESC
		 LIMIT $2
		 `

	rows, err := r.db.QueryContext(ctx, query, username, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []models.InferenceLog
	for rows.Next() {
		var (
			e                 models.InferenceLog
			userID, inputText sql.NullString
			username          sql.NullString
			meta, probs       []byte
			label             string
		)
		if err := rows.Scan(&e.ID, &userID, &username, &e.Task, &e.ModelVersion, &inputText, &meta,
			&label, &e.Confidence, &probs, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}

		e.Username = username.String
		if userID.Valid {
			e.UserID = &userID.String
		}
		if inputText.Valid {
			e.InputText = &inputText.String
		}
		if e.PredictedLabel, err = strconv.Atoi(label); err != nil {
			return nil, fmt.Errorf("db error: predicted_label %q: %w", label, err)
		}
		if len(meta) > 0 {
			var m models.InputMeta
			if err := json.Unmarshal(meta, &m); err != nil {
				return nil, fmt.Errorf("db error: entry %s: %w", e.ID, err)
			}
			e.InputMeta = &m
		}
		if len(probs) > 0 {
			if err := json.Unmarshal(probs, &e.Probabilities); err != nil {
				return nil, fmt.Errorf("db error: entry %s: %w", e.ID, err)
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

// knownOutcome matches entries that record both a true label and a
// correctness flag. Accuracy and confusions only look at those rows.
const knownOutcome = `input_meta ? 'correct' AND input_meta ? 'true_label' AND input_meta->>'true_label' IS NOT NULL`

// AggregateAccuracy counts entries with a known outcome for the task and
// source. Both counts share one predicate, so correct never exceeds total.
func (r *PostgresRepository) AggregateAccuracy(ctx context.Context, f models.AccuracyFilter) (models.Accuracy, error) {
	query :=
		`SELECT
		   COUNT(*) FILTER (WHERE ` + knownOutcome + ` AND (input_meta->>'correct')::boolean = true) AS correct,
		   COUNT(*) FILTER (WHERE ` + knownOutcome + `) AS total
		 FROM ml.inference_logs
		 WHERE task = $1
		   AND input_meta->>'source' = $2
		 `

	var a models.Accuracy
	if err := r.db.QueryRowContext(ctx, query, f.Task, string(f.Source)).Scan(&a.Correct, &a.Total); err != nil {
		return models.Accuracy{}, fmt.Errorf("db error: %w", err)
	}
	return a, nil
}

// TopConfusions groups explicitly incorrect entries by (true, predicted)
// label, most frequent first.
func (r *PostgresRepository) TopConfusions(ctx context.Context, limit int) ([]models.Confusion, error) {
	query :=
		`SELECT
		   (input_meta->>'true_label')::int AS true_label,
		   predicted_label::int AS predicted_label,
		   COUNT(*) AS cnt
		 FROM ml.inference_logs
		 WHERE ` + knownOutcome + `
		   AND input_meta->>'correct' = 'false'
		 GROUP BY 1, 2
		 ORDER BY cnt DESC, 1, 2
		 LIMIT $1
		 `

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []models.Confusion
	for rows.Next() {
		var c models.Confusion
		if err := rows.Scan(&c.TrueLabel, &c.PredictedLabel, &c.Count); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
