package httpui

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/mnistlab/internal/common"
	"github.com/dmitrijs2005/mnistlab/internal/web/services"
	"github.com/dmitrijs2005/mnistlab/internal/web/sessions"
)

type loginView struct {
	Username string
}

type registerView struct {
	Username string
	Fields   common.FieldErrors
}

func (u *UI) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	sess := sessions.FromContext(r.Context())
	if sess.Authenticated {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	flash := sess.TakeFlash()
	if flash != "" && !u.save(w, r, sess) {
		return
	}
	u.render(w, r, http.StatusOK, "login", pageData{Title: "Log in", Flash: flash, Data: loginView{}})
}

func (u *UI) handleLogin(w http.ResponseWriter, r *http.Request) {
	sess := sessions.FromContext(r.Context())
	if err := r.ParseForm(); err != nil {
		u.renderError(w, r, http.StatusBadRequest, "Malformed form")
		return
	}
	username := r.PostFormValue("username")

	account, err := u.accounts.Login(r.Context(), username, r.PostFormValue("password"))
	if err != nil {
		if errors.Is(err, common.ErrorUnauthorized) {
			u.render(w, r, http.StatusUnauthorized, "login", pageData{
				Title: "Log in",
				Error: "Invalid username or password",
				Data:  loginView{Username: username},
			})
			return
		}
		u.renderError(w, r, http.StatusInternalServerError, "Login is temporarily unavailable")
		return
	}

	sess.SignIn(account)
	if err := u.sessions.Rotate(r.Context(), w, sess); err != nil {
		u.logger.Error(r.Context(), "session rotate failed", "error", err)
		u.renderError(w, r, http.StatusInternalServerError, "Login is temporarily unavailable")
		return
	}
	u.logger.Info(r.Context(), "user logged in", "username", account.Username, "login_count", account.LoginCount)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (u *UI) handleRegisterPage(w http.ResponseWriter, r *http.Request) {
	if sessions.FromContext(r.Context()).Authenticated {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	u.render(w, r, http.StatusOK, "register", pageData{Title: "Register", Data: registerView{}})
}

func (u *UI) handleRegister(w http.ResponseWriter, r *http.Request) {
	sess := sessions.FromContext(r.Context())
	if err := r.ParseForm(); err != nil {
		u.renderError(w, r, http.StatusBadRequest, "Malformed form")
		return
	}
	form := services.RegisterForm{
		Username: r.PostFormValue("username"),
		Password: r.PostFormValue("password"),
		Confirm:  r.PostFormValue("confirm"),
	}
	view := registerView{Username: form.Username}

	_, err := u.accounts.Register(r.Context(), form)
	var fields common.FieldErrors
	switch {
	case err == nil:
	case errors.As(err, &fields):
		view.Fields = fields
		u.render(w, r, http.StatusBadRequest, "register", pageData{Title: "Register", Error: "Please fix the highlighted fields", Data: view})
		return
	case errors.Is(err, common.ErrorValidation):
		u.render(w, r, http.StatusBadRequest, "register", pageData{Title: "Register", Error: "All fields are required", Data: view})
		return
	case errors.Is(err, common.ErrorConflict):
		u.render(w, r, http.StatusConflict, "register", pageData{Title: "Register", Error: "A user with this username already exists", Data: view})
		return
	default:
		u.logger.Error(r.Context(), "registration failed", "error", err)
		u.renderError(w, r, http.StatusInternalServerError, "Registration is temporarily unavailable")
		return
	}

	sess.Flash = "Account created. Please log in."
	if !u.save(w, r, sess) {
		return
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (u *UI) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := sessions.FromContext(r.Context())
	if err := u.sessions.Destroy(r.Context(), w, sess); err != nil {
		u.logger.Warn(r.Context(), "session delete failed", "error", err)
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}
