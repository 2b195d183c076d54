// Package httpui serves the server-rendered web front end: login and
// registration, the inference page (grid quick-test and uploads), history,
// profile and the admin dashboard.
package httpui

import (
	"context"
	"html/template"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrijs2005/mnistlab/internal/httpx"
	"github.com/dmitrijs2005/mnistlab/internal/logging"
	"github.com/dmitrijs2005/mnistlab/internal/web/models"
	"github.com/dmitrijs2005/mnistlab/internal/web/services"
	"github.com/dmitrijs2005/mnistlab/internal/web/sessions"
)

type Accounts interface {
	Register(ctx context.Context, form services.RegisterForm) (*models.AccountSummary, error)
	Login(ctx context.Context, username, password string) (*models.AccountSummary, error)
	GetAccount(ctx context.Context, id string) (*models.AccountSummary, error)
}

type Predictions interface {
	BackendHealthy(ctx context.Context) error
	DrawGrid(ctx context.Context) ([]models.GridSlot, error)
	Sample(ctx context.Context, id int64) (*models.Sample, error)
	PredictGrid(ctx context.Context, user *models.AccountSummary, sampleID int64) (*services.PredictionResult, error)
	PredictUpload(ctx context.Context, user *models.AccountSummary, data []byte, contentType string, invert bool) (*services.PredictionResult, error)
	History(ctx context.Context, username string, limit int) ([]models.InferenceLog, error)
	Dashboard(ctx context.Context) (*services.Dashboard, error)
}

type UI struct {
	accounts    Accounts
	predictions Predictions
	sessions    *sessions.Manager
	metrics     *httpx.Metrics
	logger      logging.Logger
	templates   map[string]*template.Template
}

func New(accounts Accounts, predictions Predictions, sm *sessions.Manager, m *httpx.Metrics, l logging.Logger) (*UI, error) {
	t, err := parseTemplates()
	if err != nil {
		return nil, err
	}
	return &UI{
		accounts:    accounts,
		predictions: predictions,
		sessions:    sm,
		metrics:     m,
		logger:      l.With("module", "web_ui"),
		templates:   t,
	}, nil
}

func (u *UI) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(httpx.Instrument(u.metrics, u.logger))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", u.metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(u.sessions.Middleware)

		r.Get("/login", u.handleLoginPage)
		r.Post("/login", u.handleLogin)
		r.Get("/register", u.handleRegisterPage)
		r.Post("/register", u.handleRegister)

		r.Group(func(r chi.Router) {
			r.Use(u.requireAuth)

			r.Get("/", u.handleHome)
			r.Post("/logout", u.handleLogout)
			r.Get("/profile", u.handleProfile)
			r.Get("/inference", u.handleInference)
			r.Post("/inference/grid/refresh", u.handleGridRefresh)
			r.Post("/inference/grid/predict", u.handleGridPredict)
			r.Post("/inference/upload", u.handleUpload)
			r.Get("/history", u.handleHistory)
			r.Get("/samples/{id}.png", u.handleSamplePNG)

			r.Group(func(r chi.Router) {
				r.Use(u.requireAdmin)
				r.Get("/admin", u.handleAdmin)
			})
		})
	})

	return r
}

// requireAuth sends anonymous sessions to the login page.
func (u *UI) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !sessions.FromContext(r.Context()).Authenticated {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (u *UI) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !sessions.FromContext(r.Context()).IsAdmin() {
			u.render(w, r, http.StatusForbidden, "error", pageData{Title: "Access denied: administrators only"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// save persists session changes; a failure is logged and reported as a 500.
func (u *UI) save(w http.ResponseWriter, r *http.Request, sess *sessions.Session) bool {
	if err := u.sessions.Save(r.Context(), w, sess); err != nil {
		u.logger.Error(r.Context(), "session save failed", "error", err)
		u.renderError(w, r, http.StatusInternalServerError, "Something went wrong, please try again")
		return false
	}
	return true
}

func (u *UI) renderError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	u.render(w, r, status, "error", pageData{Title: msg})
}
