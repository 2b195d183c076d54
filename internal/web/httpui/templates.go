package httpui

import (
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/dmitrijs2005/mnistlab/internal/web/sessions"
)

//go:embed templates/*.html
var templateFS embed.FS

var pages = []string{"home", "login", "register", "profile", "inference", "history", "admin", "error"}

var funcs = template.FuncMap{
	"pct": func(v float64) string { return fmt.Sprintf("%.1f%%", v*100) },
	"fmtTime": func(v any) string {
		switch t := v.(type) {
		case time.Time:
			return t.UTC().Format("2006-01-02 15:04:05")
		case *time.Time:
			if t == nil {
				return ""
			}
			return t.UTC().Format("2006-01-02 15:04:05")
		}
		return ""
	},
	"deref":     func(p *int) int { return *p },
	"derefBool": func(p *bool) bool { return p != nil && *p },
}

// pageData is what every template receives.
type pageData struct {
	Title   string
	Session *sessions.Session
	Flash   string
	Error   string
	Data    any
}

func parseTemplates() (map[string]*template.Template, error) {
	out := make(map[string]*template.Template, len(pages))
	for _, p := range pages {
		t, err := template.New(p).Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/"+p+".html")
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", p, err)
		}
		out[p] = t
	}
	return out, nil
}

func (u *UI) render(w http.ResponseWriter, r *http.Request, status int, page string, data pageData) {
	t, ok := u.templates[page]
	if !ok {
		u.logger.Error(r.Context(), "unknown template", "page", page)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if data.Session == nil {
		data.Session = sessions.FromContext(r.Context())
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := t.ExecuteTemplate(w, "layout", data); err != nil {
		u.logger.Error(r.Context(), "template execution failed", "page", page, "error", err)
	}
}
