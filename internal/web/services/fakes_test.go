package services

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/dmitrijs2005/mnistlab/internal/common"
	"github.com/dmitrijs2005/mnistlab/internal/cryptox"
	"github.com/dmitrijs2005/mnistlab/internal/dbx"
	"github.com/dmitrijs2005/mnistlab/internal/mnist"
	"github.com/dmitrijs2005/mnistlab/internal/web/client"
	"github.com/dmitrijs2005/mnistlab/internal/web/models"
	"github.com/dmitrijs2005/mnistlab/internal/web/repositories/inferencelogs"
	"github.com/dmitrijs2005/mnistlab/internal/web/repositories/samples"
	"github.com/dmitrijs2005/mnistlab/internal/web/repositories/users"
)

func init() {
	cryptox.Cost = bcrypt.MinCost
}

// --- users ---

type fakeUsersRepo struct {
	mu     sync.Mutex
	byName map[string]*models.User
	err    error
}

func newFakeUsersRepo() *fakeUsersRepo {
	return &fakeUsersRepo{byName: map[string]*models.User{}}
}

func (f *fakeUsersRepo) Create(ctx context.Context, u *models.User) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if _, ok := f.byName[u.Username]; ok {
		return nil, common.ErrorConflict
	}
	cp := *u
	cp.RegisteredAt = time.Now()
	f.byName[u.Username] = &cp
	out := cp
	return &out, nil
}

func (f *fakeUsersRepo) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.byName[username]
	if !ok {
		return nil, common.ErrorNotFound
	}
	out := *u
	return &out, nil
}

func (f *fakeUsersRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byName {
		if u.ID == id {
			out := *u
			return &out, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeUsersRepo) RecordLogin(ctx context.Context, username string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byName[username]
	if !ok {
		return nil, common.ErrorNotFound
	}
	now := time.Now()
	u.LastLogin = &now
	u.LoginCount++
	out := *u
	return &out, nil
}

// --- inference logs ---

type fakeLogsRepo struct {
	mu        sync.Mutex
	entries   []models.InferenceLog
	appendErr error
}

func (f *fakeLogsRepo) Append(ctx context.Context, e *models.InferenceLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	if err := e.Validate(); err != nil {
		return err
	}
	e.CreatedAt = time.Now()
	f.entries = append(f.entries, *e)
	return nil
}

func (f *fakeLogsRepo) QueryByUser(ctx context.Context, username string, limit int) ([]models.InferenceLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.InferenceLog
	for i := len(f.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if f.entries[i].Username == username {
			out = append(out, f.entries[i])
		}
	}
	return out, nil
}

func (f *fakeLogsRepo) AggregateAccuracy(ctx context.Context, filter models.AccuracyFilter) (models.Accuracy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var acc models.Accuracy
	for _, e := range f.entries {
		if e.Task != filter.Task || e.InputMeta == nil || e.InputMeta.Source() != filter.Source {
			continue
		}
		c, ok := e.InputMeta.Correct()
		if !ok {
			continue
		}
		acc.Total++
		if c {
			acc.Correct++
		}
	}
	return acc, nil
}

func (f *fakeLogsRepo) TopConfusions(ctx context.Context, limit int) ([]models.Confusion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := map[[2]int]int{}
	for _, e := range f.entries {
		if e.InputMeta == nil {
			continue
		}
		if c, ok := e.InputMeta.Correct(); ok && !c {
			tl, _ := e.InputMeta.TrueLabel()
			counts[[2]int{tl, e.PredictedLabel}]++
		}
	}
	out := make([]models.Confusion, 0, len(counts))
	for k, n := range counts {
		out = append(out, models.Confusion{TrueLabel: k[0], PredictedLabel: k[1], Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		if out[i].TrueLabel != out[j].TrueLabel {
			return out[i].TrueLabel < out[j].TrueLabel
		}
		return out[i].PredictedLabel < out[j].PredictedLabel
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- samples ---

type fakeSamplesRepo struct {
	mu       sync.Mutex
	rows     []*models.Sample
	locked   []string
	countErr error
	failAt   int
}

func (f *fakeSamplesRepo) RandomOnePerLabel(ctx context.Context, split string) ([]models.GridSlot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	slots := make([]models.GridSlot, mnist.Classes)
	for i := range slots {
		slots[i].Label = i
	}
	for _, s := range f.rows {
		if s.Split == split && slots[s.Label].Sample == nil {
			slots[s.Label].Sample = s
		}
	}
	return slots, nil
}

func (f *fakeSamplesRepo) GetByID(ctx context.Context, id int64) (*models.Sample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.rows {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeSamplesRepo) CountBySplit(ctx context.Context, split string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.countErr != nil {
		return 0, f.countErr
	}
	n := 0
	for _, s := range f.rows {
		if s.Split == split {
			n++
		}
	}
	return n, nil
}

func (f *fakeSamplesRepo) LockSplit(ctx context.Context, split string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.locked = append(f.locked, split)
	return nil
}

func (f *fakeSamplesRepo) Insert(ctx context.Context, s *models.Sample) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAt > 0 && len(f.rows)+1 == f.failAt {
		return sql.ErrConnDone
	}
	s.ID = int64(len(f.rows) + 1)
	f.rows = append(f.rows, s)
	return nil
}

// --- manager ---

type fakeRepoManager struct {
	u *fakeUsersRepo
	l *fakeLogsRepo
	s *fakeSamplesRepo
}

func newFakeRepoManager() *fakeRepoManager {
	return &fakeRepoManager{u: newFakeUsersRepo(), l: &fakeLogsRepo{}, s: &fakeSamplesRepo{}}
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error           { return nil }
func (m *fakeRepoManager) Users(db dbx.DBTX) users.Repository                 { return m.u }
func (m *fakeRepoManager) InferenceLogs(db dbx.DBTX) inferencelogs.Repository { return m.l }
func (m *fakeRepoManager) Samples(db dbx.DBTX) samples.Repository             { return m.s }

// --- backend ---

type fakeBackend struct {
	label     int
	err       error
	healthErr error
	lastInput []float64
}

func (b *fakeBackend) Predict(ctx context.Context, pixels []float64) (*client.Prediction, error) {
	b.lastInput = pixels
	if b.err != nil {
		return nil, b.err
	}
	probs := make(mnist.Probabilities, mnist.Classes)
	for i := range probs {
		probs[i] = 0.01
	}
	probs[b.label] = 0.91
	return &client.Prediction{Label: b.label, Probabilities: probs}, nil
}

func (b *fakeBackend) Health(ctx context.Context) error { return b.healthErr }

type fakeArchive struct {
	key  string
	err  error
	puts int
}

func (a *fakeArchive) Put(ctx context.Context, data []byte, contentType string) (string, error) {
	a.puts++
	return a.key, a.err
}
