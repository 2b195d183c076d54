package httpui

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrijs2005/mnistlab/internal/common"
	"github.com/dmitrijs2005/mnistlab/internal/web/imaging"
	"github.com/dmitrijs2005/mnistlab/internal/web/models"
	"github.com/dmitrijs2005/mnistlab/internal/web/services"
	"github.com/dmitrijs2005/mnistlab/internal/web/sessions"
)

type historyView struct {
	Limit   int
	Entries []models.InferenceLog
}

func (u *UI) handleHome(w http.ResponseWriter, r *http.Request) {
	u.render(w, r, http.StatusOK, "home", pageData{Title: "Home"})
}

func (u *UI) handleProfile(w http.ResponseWriter, r *http.Request) {
	sess := sessions.FromContext(r.Context())

	account, err := u.accounts.GetAccount(r.Context(), sess.UserID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			_ = u.sessions.Destroy(r.Context(), w, sess)
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		u.logger.Error(r.Context(), "profile lookup failed", "error", err)
		u.renderError(w, r, http.StatusInternalServerError, "Profile is temporarily unavailable")
		return
	}
	u.render(w, r, http.StatusOK, "profile", pageData{Title: "Profile", Data: account})
}

func (u *UI) handleHistory(w http.ResponseWriter, r *http.Request) {
	sess := sessions.FromContext(r.Context())

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			u.renderError(w, r, http.StatusBadRequest, "limit must be a number")
			return
		}
		limit = n
	}
	limit = services.ClampHistoryLimit(limit)

	entries, err := u.predictions.History(r.Context(), sess.Username, limit)
	if err != nil {
		u.logger.Error(r.Context(), "history query failed", "error", err)
		u.renderError(w, r, http.StatusInternalServerError, "History is temporarily unavailable")
		return
	}
	u.render(w, r, http.StatusOK, "history", pageData{Title: "History", Data: historyView{Limit: limit, Entries: entries}})
}

func (u *UI) handleAdmin(w http.ResponseWriter, r *http.Request) {
	dash, err := u.predictions.Dashboard(r.Context())
	if err != nil {
		u.logger.Error(r.Context(), "dashboard query failed", "error", err)
		u.renderError(w, r, http.StatusInternalServerError, "Dashboard is temporarily unavailable")
		return
	}
	u.render(w, r, http.StatusOK, "admin", pageData{Title: "Admin dashboard", Data: dash})
}

func (u *UI) handleSamplePNG(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	sample, err := u.predictions.Sample(r.Context(), id)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			http.NotFound(w, r)
			return
		}
		u.logger.Error(r.Context(), "sample lookup failed", "id", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := imaging.EncodePNG(&buf, sample.Pixels, sample.Rows, sample.Cols); err != nil {
		u.logger.Error(r.Context(), "sample encode failed", "id", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "private, max-age=3600")
	_, _ = w.Write(buf.Bytes())
}
