package services

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/mnistlab/internal/common"
	"github.com/dmitrijs2005/mnistlab/internal/logging"
	"github.com/dmitrijs2005/mnistlab/internal/mnist"
	"github.com/dmitrijs2005/mnistlab/internal/web/client"
	"github.com/dmitrijs2005/mnistlab/internal/web/imaging"
	"github.com/dmitrijs2005/mnistlab/internal/web/models"
	"github.com/dmitrijs2005/mnistlab/internal/web/repositories/repomanager"
	"github.com/dmitrijs2005/mnistlab/internal/web/storage"
)

const (
	DefaultHistoryLimit = 100
	MinHistoryLimit     = 10
	MaxHistoryLimit     = 500

	TopConfusionsLimit = 20
)

// Backend is the remote inference service.
type Backend interface {
	Predict(ctx context.Context, pixels []float64) (*client.Prediction, error)
	Health(ctx context.Context) error
}

// PredictionResult is what the result view renders. TrueLabel and Correct
// are set only for grid predictions.
type PredictionResult struct {
	Label         int
	Confidence    float64
	Probabilities mnist.Probabilities
	TrueLabel     *int
	Correct       *bool
	// Logged is false when the audit entry could not be written.
	Logged bool
}

type Dashboard struct {
	GridAccuracy models.Accuracy
	Confusions   []models.Confusion
}

type PredictionService struct {
	db           *sql.DB
	repomanager  repomanager.RepositoryManager
	backend      Backend
	archive      storage.Archive
	modelVersion string
	logger       logging.Logger
}

func NewPredictionService(db *sql.DB, m repomanager.RepositoryManager, backend Backend, archive storage.Archive,
	modelVersion string, logger logging.Logger) *PredictionService {
	if archive == nil {
		archive = storage.Nop{}
	}
	return &PredictionService{
		db:           db,
		repomanager:  m,
		backend:      backend,
		archive:      archive,
		modelVersion: modelVersion,
		logger:       logger.With("module", "predictions"),
	}
}

func (s *PredictionService) BackendHealthy(ctx context.Context) error {
	return s.backend.Health(ctx)
}

// DrawGrid picks one random test sample per label.
func (s *PredictionService) DrawGrid(ctx context.Context) ([]models.GridSlot, error) {
	return s.repomanager.Samples(s.db).RandomOnePerLabel(ctx, mnist.SplitTest)
}

func (s *PredictionService) Sample(ctx context.Context, id int64) (*models.Sample, error) {
	return s.repomanager.Samples(s.db).GetByID(ctx, id)
}

// PredictGrid classifies a corpus sample and records whether the model got
// its true label right.
func (s *PredictionService) PredictGrid(ctx context.Context, user *models.AccountSummary, sampleID int64) (*PredictionResult, error) {
	if user == nil {
		return nil, common.ErrorUnauthorized
	}
	sample, err := s.Sample(ctx, sampleID)
	if err != nil {
		return nil, err
	}
	if len(sample.Pixels) != mnist.Pixels {
		return nil, fmt.Errorf("%w: sample %d is %dx%d", common.ErrorValidation, sample.ID, sample.Rows, sample.Cols)
	}

	pred, err := s.backend.Predict(ctx, mnist.ToIntensities(sample.Pixels))
	if err != nil {
		return nil, err
	}

	trueLabel := sample.Label
	correct := pred.Label == trueLabel
	res := &PredictionResult{
		Label:         pred.Label,
		Confidence:    pred.Probabilities[pred.Label],
		Probabilities: pred.Probabilities,
		TrueLabel:     &trueLabel,
		Correct:       &correct,
	}
	res.Logged = s.appendLog(ctx, user, models.GridMeta(trueLabel, correct), nil, pred)
	return res, nil
}

// PredictUpload preprocesses an uploaded image and classifies it. The raw
// upload is archived when an archive is configured; an archive failure only
// drops the object key from the log entry.
func (s *PredictionService) PredictUpload(ctx context.Context, user *models.AccountSummary, data []byte, contentType string, invert bool) (*PredictionResult, error) {
	if user == nil {
		return nil, common.ErrorUnauthorized
	}
	pixels, err := imaging.Preprocess(bytes.NewReader(data), invert)
	if err != nil {
		return nil, common.FieldErrors{"image": err.Error()}
	}

	pred, err := s.backend.Predict(ctx, pixels)
	if err != nil {
		return nil, err
	}

	var inputText *string
	key, err := s.archive.Put(ctx, data, contentType)
	if err != nil {
		s.logger.Warn(ctx, "upload archive failed", "username", user.Username, "error", err)
	} else if key != "" {
		inputText = &key
	}

	res := &PredictionResult{
		Label:         pred.Label,
		Confidence:    pred.Probabilities[pred.Label],
		Probabilities: pred.Probabilities,
	}
	res.Logged = s.appendLog(ctx, user, models.UploadMeta(), inputText, pred)
	return res, nil
}

// appendLog writes the audit entry. Failures are logged and reported through
// the return value; the prediction itself is never rolled back.
func (s *PredictionService) appendLog(ctx context.Context, user *models.AccountSummary, meta models.InputMeta,
	inputText *string, pred *client.Prediction) bool {

	entry, err := models.NewInferenceLog(user, common.TaskMNIST, s.modelVersion, meta, pred.Label, pred.Probabilities)
	if err == nil {
		entry.InputText = inputText
		err = s.repomanager.InferenceLogs(s.db).Append(ctx, entry)
	}
	if err != nil {
		s.logger.Error(ctx, "inference log write failed",
			"username", user.Username, "predicted_label", pred.Label, "source", string(meta.Source()), "error", err)
		return false
	}
	return true
}

// ClampHistoryLimit applies the history page bounds; zero means the default.
func ClampHistoryLimit(limit int) int {
	switch {
	case limit == 0:
		return DefaultHistoryLimit
	case limit < MinHistoryLimit:
		return MinHistoryLimit
	case limit > MaxHistoryLimit:
		return MaxHistoryLimit
	}
	return limit
}

func (s *PredictionService) History(ctx context.Context, username string, limit int) ([]models.InferenceLog, error) {
	return s.repomanager.InferenceLogs(s.db).QueryByUser(ctx, username, ClampHistoryLimit(limit))
}

func (s *PredictionService) Dashboard(ctx context.Context) (*Dashboard, error) {
	repo := s.repomanager.InferenceLogs(s.db)

	acc, err := repo.AggregateAccuracy(ctx, models.AccuracyFilter{Task: common.TaskMNIST, Source: models.SourceGrid})
	if err != nil {
		return nil, err
	}
	conf, err := repo.TopConfusions(ctx, TopConfusionsLimit)
	if err != nil {
		return nil, err
	}
	return &Dashboard{GridAccuracy: acc, Confusions: conf}, nil
}

// IsBackendDown reports whether err means the inference service could not answer.
func IsBackendDown(err error) bool {
	return errors.Is(err, common.ErrBackendUnavailable)
}
