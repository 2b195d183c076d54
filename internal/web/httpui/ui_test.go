package httpui

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/mnistlab/internal/common"
	"github.com/dmitrijs2005/mnistlab/internal/httpx"
	"github.com/dmitrijs2005/mnistlab/internal/logging"
	"github.com/dmitrijs2005/mnistlab/internal/mnist"
	"github.com/dmitrijs2005/mnistlab/internal/web/models"
	"github.com/dmitrijs2005/mnistlab/internal/web/services"
	"github.com/dmitrijs2005/mnistlab/internal/web/sessions"
)

// --- fakes ---

type fakeAccount struct {
	password string
	summary  models.AccountSummary
}

type fakeAccounts struct {
	mu    sync.Mutex
	users map[string]*fakeAccount
}

func (f *fakeAccounts) Register(ctx context.Context, form services.RegisterForm) (*models.AccountSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if form.Username == "" || form.Password == "" {
		return nil, common.FieldErrors{"username": "this field is required"}
	}
	if form.Password != form.Confirm {
		return nil, common.FieldErrors{"confirm": "passwords do not match"}
	}
	if _, ok := f.users[form.Username]; ok {
		return nil, common.ErrorConflict
	}
	s := models.AccountSummary{ID: "id-" + form.Username, Username: form.Username, Role: models.RoleUser, RegisteredAt: time.Now()}
	f.users[form.Username] = &fakeAccount{password: form.Password, summary: s}
	return &s, nil
}

func (f *fakeAccounts) Login(ctx context.Context, username, password string) (*models.AccountSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.users[username]
	if !ok || a.password != password {
		return nil, common.ErrorUnauthorized
	}
	now := time.Now()
	a.summary.LoginCount++
	a.summary.LastLogin = &now
	s := a.summary
	return &s, nil
}

func (f *fakeAccounts) GetAccount(ctx context.Context, id string) (*models.AccountSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.users {
		if a.summary.ID == id {
			s := a.summary
			return &s, nil
		}
	}
	return nil, common.ErrorNotFound
}

type fakePredictions struct {
	mu           sync.Mutex
	healthErr    error
	predictErr   error
	label        int
	samples      map[int64]*models.Sample
	historyLimit int
	lastInvert   bool
	uploads      int
	dashboard    *services.Dashboard
}

func newFakePredictions() *fakePredictions {
	f := &fakePredictions{samples: map[int64]*models.Sample{}, dashboard: &services.Dashboard{}}
	for l := 0; l < mnist.Classes; l++ {
		id := int64(100 + l)
		f.samples[id] = &models.Sample{ID: id, Split: mnist.SplitTest, Label: l, Pixels: make([]float32, mnist.Pixels), Rows: mnist.Rows, Cols: mnist.Cols}
	}
	return f
}

func (f *fakePredictions) BackendHealthy(ctx context.Context) error { return f.healthErr }

func (f *fakePredictions) DrawGrid(ctx context.Context) ([]models.GridSlot, error) {
	slots := make([]models.GridSlot, mnist.Classes)
	for l := range slots {
		slots[l] = models.GridSlot{Label: l, Sample: f.samples[int64(100+l)]}
	}
	return slots, nil
}

func (f *fakePredictions) Sample(ctx context.Context, id int64) (*models.Sample, error) {
	s, ok := f.samples[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return s, nil
}

func (f *fakePredictions) result() *services.PredictionResult {
	probs := make(mnist.Probabilities, mnist.Classes)
	for i := range probs {
		probs[i] = 0.01
	}
	probs[f.label] = 0.91
	return &services.PredictionResult{Label: f.label, Confidence: 0.91, Probabilities: probs, Logged: true}
}

func (f *fakePredictions) PredictGrid(ctx context.Context, user *models.AccountSummary, sampleID int64) (*services.PredictionResult, error) {
	if f.predictErr != nil {
		return nil, f.predictErr
	}
	s, ok := f.samples[sampleID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	res := f.result()
	tl := s.Label
	correct := res.Label == tl
	res.TrueLabel, res.Correct = &tl, &correct
	return res, nil
}

func (f *fakePredictions) PredictUpload(ctx context.Context, user *models.AccountSummary, data []byte, contentType string, invert bool) (*services.PredictionResult, error) {
	f.mu.Lock()
	f.lastInvert = invert
	f.uploads++
	f.mu.Unlock()
	if f.predictErr != nil {
		return nil, f.predictErr
	}
	if !bytes.HasPrefix(data, []byte("\x89PNG")) {
		return nil, common.FieldErrors{"image": "bad"}
	}
	return f.result(), nil
}

func (f *fakePredictions) History(ctx context.Context, username string, limit int) ([]models.InferenceLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.historyLimit = limit
	meta := models.GridMeta(3, false)
	return []models.InferenceLog{{
		Username: username, Task: common.TaskMNIST, ModelVersion: "mnist_cnn_v1",
		PredictedLabel: 5, Confidence: 0.8, InputMeta: &meta, CreatedAt: time.Now(),
	}}, nil
}

func (f *fakePredictions) Dashboard(ctx context.Context) (*services.Dashboard, error) {
	return f.dashboard, nil
}

// --- harness ---

type harness struct {
	srv      *httptest.Server
	accounts *fakeAccounts
	preds    *fakePredictions
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	accounts := &fakeAccounts{users: map[string]*fakeAccount{}}
	accounts.users["alice"] = &fakeAccount{password: "pw123", summary: models.AccountSummary{ID: "id-alice", Username: "alice", Role: models.RoleUser}}
	accounts.users["root"] = &fakeAccount{password: "toor", summary: models.AccountSummary{ID: "id-root", Username: "root", Role: models.RoleAdmin}}

	preds := newFakePredictions()
	sm := sessions.NewManager(sessions.NewMemoryStore(), []byte("test-secret"), time.Hour, false, logging.Discard())

	ui, err := New(accounts, preds, sm, httpx.NewMetrics("web-test"), logging.Discard())
	require.NoError(t, err)

	srv := httptest.NewServer(ui.Router())
	t.Cleanup(srv.Close)
	return &harness{srv: srv, accounts: accounts, preds: preds}
}

func (h *harness) client(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func do(t *testing.T, c *http.Client, req *http.Request) (int, string, http.Header) {
	t.Helper()
	resp, err := c.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(b), resp.Header
}

func (h *harness) get(t *testing.T, c *http.Client, path string) (int, string, http.Header) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, h.srv.URL+path, nil)
	require.NoError(t, err)
	return do(t, c, req)
}

func (h *harness) post(t *testing.T, c *http.Client, path string, form url.Values) (int, string, http.Header) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, h.srv.URL+path, strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return do(t, c, req)
}

func (h *harness) login(t *testing.T, c *http.Client, user, pw string) {
	t.Helper()
	status, _, hdr := h.post(t, c, "/login", url.Values{"username": {user}, "password": {pw}})
	require.Equal(t, http.StatusSeeOther, status)
	require.Equal(t, "/", hdr.Get("Location"))
}

// --- tests ---

func TestAuthGate(t *testing.T) {
	h := newHarness(t)
	c := h.client(t)

	for _, p := range []string{"/", "/inference", "/history", "/profile", "/admin", "/samples/100.png"} {
		status, _, hdr := h.get(t, c, p)
		assert.Equal(t, http.StatusSeeOther, status, p)
		assert.Equal(t, "/login", hdr.Get("Location"), p)
	}

	status, body, _ := h.get(t, c, "/login")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `action="/login"`)
}

func TestLogin(t *testing.T) {
	h := newHarness(t)
	c := h.client(t)

	status, body, _ := h.post(t, c, "/login", url.Values{"username": {"alice"}, "password": {"wrong"}})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Contains(t, body, "Invalid username or password")

	status, body2, _ := h.post(t, c, "/login", url.Values{"username": {"nobody"}, "password": {"pw123"}})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Contains(t, body2, "Invalid username or password")

	h.login(t, c, "alice", "pw123")

	status, body, _ = h.get(t, c, "/")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "alice")
	assert.NotContains(t, body, `href="/admin"`)

	status, _, _ = h.get(t, c, "/admin")
	assert.Equal(t, http.StatusForbidden, status)

	status, _, hdr := h.get(t, c, "/login")
	assert.Equal(t, http.StatusSeeOther, status)
	assert.Equal(t, "/", hdr.Get("Location"))
}

func TestLogout(t *testing.T) {
	h := newHarness(t)
	c := h.client(t)
	h.login(t, c, "alice", "pw123")

	status, _, hdr := h.post(t, c, "/logout", nil)
	assert.Equal(t, http.StatusSeeOther, status)
	assert.Equal(t, "/login", hdr.Get("Location"))

	status, _, _ = h.get(t, c, "/profile")
	assert.Equal(t, http.StatusSeeOther, status)
}

func TestRegister(t *testing.T) {
	h := newHarness(t)
	c := h.client(t)

	status, body, _ := h.post(t, c, "/register", url.Values{"username": {"bob"}, "password": {"a"}, "confirm": {"b"}})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body, "passwords do not match")

	status, body, _ = h.post(t, c, "/register", url.Values{"username": {"alice"}, "password": {"a"}, "confirm": {"a"}})
	assert.Equal(t, http.StatusConflict, status)
	assert.Contains(t, body, "already exists")

	status, _, hdr := h.post(t, c, "/register", url.Values{"username": {"bob"}, "password": {"pw"}, "confirm": {"pw"}})
	assert.Equal(t, http.StatusSeeOther, status)
	assert.Equal(t, "/login", hdr.Get("Location"))

	// no auto-login
	status, body, _ = h.get(t, c, "/login")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "Account created. Please log in.")

	status, body, _ = h.get(t, c, "/login")
	assert.Equal(t, http.StatusOK, status)
	assert.NotContains(t, body, "Account created")

	h.login(t, c, "bob", "pw")
}

func TestProfile(t *testing.T) {
	h := newHarness(t)
	c := h.client(t)
	h.login(t, c, "alice", "pw123")

	status, body, _ := h.get(t, c, "/profile")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "id-alice")
	assert.Contains(t, body, "<th>Logins</th><td>1</td>")
}

func TestInference_GridFlow(t *testing.T) {
	h := newHarness(t)
	h.preds.label = 7
	c := h.client(t)
	h.login(t, c, "alice", "pw123")

	status, body, _ := h.get(t, c, "/inference")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, mnist.Classes, strings.Count(body, `name="sample_id"`))
	assert.Contains(t, body, `/samples/107.png`)

	status, body, _ = h.post(t, c, "/inference/grid/predict", url.Values{"sample_id": {"107"}})
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "Predicted <strong>7</strong>")
	assert.Contains(t, body, "correct")
	assert.Contains(t, body, "Session accuracy: 1 / 1")

	status, body, _ = h.post(t, c, "/inference/grid/predict", url.Values{"sample_id": {"103"}})
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "wrong")
	assert.Contains(t, body, "Session accuracy: 1 / 2")

	status, body, _ = h.post(t, c, "/inference/grid/predict", url.Values{"sample_id": {"999"}})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body, "no longer on the grid")

	status, _, hdr := h.post(t, c, "/inference/grid/refresh", nil)
	assert.Equal(t, http.StatusSeeOther, status)
	assert.Equal(t, "/inference", hdr.Get("Location"))
}

func TestInference_BackendDown(t *testing.T) {
	h := newHarness(t)
	c := h.client(t)
	h.login(t, c, "alice", "pw123")

	h.preds.healthErr = common.ErrBackendUnavailable
	status, body, _ := h.get(t, c, "/inference")
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Contains(t, body, "Inference backend unavailable, retry later.")
	assert.NotContains(t, body, `name="sample_id"`)

	h.preds.healthErr = nil
	_, _, _ = h.get(t, c, "/inference")

	h.preds.predictErr = common.ErrBackendUnavailable
	status, body, _ = h.post(t, c, "/inference/grid/predict", url.Values{"sample_id": {"101"}})
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Contains(t, body, "retry later")
}

func uploadRequest(t *testing.T, base string, data []byte, invert bool) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("image", "digit.png")
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	if invert {
		require.NoError(t, mw.WriteField("invert", "1"))
	}
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, base+"/inference/upload", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestInference_Upload(t *testing.T) {
	h := newHarness(t)
	h.preds.label = 4
	c := h.client(t)
	h.login(t, c, "alice", "pw123")

	var img bytes.Buffer
	require.NoError(t, png.Encode(&img, image.NewGray(image.Rect(0, 0, 8, 8))))

	status, body, _ := do(t, c, uploadRequest(t, h.srv.URL, img.Bytes(), true))
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "Predicted <strong>4</strong>")
	assert.True(t, h.preds.lastInvert)

	status, _, _ = do(t, c, uploadRequest(t, h.srv.URL, img.Bytes(), false))
	require.Equal(t, http.StatusOK, status)
	assert.False(t, h.preds.lastInvert)

	status, body, _ = do(t, c, uploadRequest(t, h.srv.URL, []byte("nope"), false))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body, "Unsupported or corrupt image")

	req, err := http.NewRequest(http.MethodPost, h.srv.URL+"/inference/upload", strings.NewReader(""))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "multipart/form-data; boundary=x")
	status, _, _ = do(t, c, req)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestHistory(t *testing.T) {
	h := newHarness(t)
	c := h.client(t)
	h.login(t, c, "alice", "pw123")

	status, body, _ := h.get(t, c, "/history")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 100, h.preds.historyLimit)
	assert.Contains(t, body, "mnist_grid true=3 correct=false")

	_, _, _ = h.get(t, c, "/history?limit=5000")
	assert.Equal(t, 500, h.preds.historyLimit)

	_, _, _ = h.get(t, c, "/history?limit=3")
	assert.Equal(t, 10, h.preds.historyLimit)

	status, _, _ = h.get(t, c, "/history?limit=abc")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAdmin(t *testing.T) {
	h := newHarness(t)
	h.preds.dashboard = &services.Dashboard{
		GridAccuracy: models.Accuracy{Correct: 3, Total: 4},
		Confusions:   []models.Confusion{{TrueLabel: 7, PredictedLabel: 1, Count: 2}},
	}
	c := h.client(t)
	h.login(t, c, "root", "toor")

	status, body, _ := h.get(t, c, "/")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `href="/admin"`)

	status, body, _ = h.get(t, c, "/admin")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "3 / 4 (75.0%)")
	assert.Contains(t, body, "<td>7</td><td>1</td><td>2</td>")
}

func TestSamplePNG(t *testing.T) {
	h := newHarness(t)
	c := h.client(t)
	h.login(t, c, "alice", "pw123")

	status, body, hdr := h.get(t, c, "/samples/105.png")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "image/png", hdr.Get("Content-Type"))
	img, err := png.Decode(strings.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, mnist.Cols, img.Bounds().Dx())

	status, _, _ = h.get(t, c, "/samples/1.png")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t)
	c := h.client(t)

	status, body, _ := h.get(t, c, "/health")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"status":"ok"}`, body)

	_, _, _ = h.get(t, c, "/login")
	status, body, _ = h.get(t, c, "/metrics")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `http_requests_total{method="GET",path="/login",service="web-test",status="200"}`)
}
