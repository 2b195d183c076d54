package sessions

import (
	"context"
	"net/http"
	"time"

	"github.com/dmitrijs2005/mnistlab/internal/common"
	"github.com/dmitrijs2005/mnistlab/internal/logging"
)

type ctxKey struct{}

// Manager ties the cookie, the codec and the store together.
type Manager struct {
	store  Store
	codec  *Codec
	ttl    time.Duration
	secure bool
	logger logging.Logger
	now    func() time.Time
}

func NewManager(store Store, secret []byte, ttl time.Duration, secureCookie bool, logger logging.Logger) *Manager {
	return &Manager{
		store:  store,
		codec:  NewCodec(secret, ttl),
		ttl:    ttl,
		secure: secureCookie,
		logger: logger.With("module", "sessions"),
		now:    time.Now,
	}
}

// Load returns the session named by the request cookie, or a fresh
// anonymous one when the cookie is missing, forged, expired or unknown.
func (m *Manager) Load(r *http.Request) (*Session, error) {
	c, err := r.Cookie(common.SessionCookieName)
	if err != nil {
		return New(), nil
	}
	id, err := m.codec.Decode(c.Value)
	if err != nil {
		return New(), nil
	}
	sess, err := m.store.Get(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return New(), nil
	}
	return sess, nil
}

// Save persists the session and refreshes the cookie.
func (m *Manager) Save(ctx context.Context, w http.ResponseWriter, sess *Session) error {
	sess.SavedAt = m.now()
	if err := m.store.Save(ctx, sess, m.ttl); err != nil {
		return err
	}
	token, err := m.codec.Encode(sess.ID)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     common.SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(m.ttl.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Rotate moves the session to a new id and forgets the old one. Called on login.
func (m *Manager) Rotate(ctx context.Context, w http.ResponseWriter, sess *Session) error {
	old := sess.ID
	sess.ID = NewID()
	if err := m.store.Delete(ctx, old); err != nil {
		m.logger.Warn(ctx, "failed to delete rotated session", "error", err)
	}
	return m.Save(ctx, w, sess)
}

// Destroy deletes the session and clears the cookie.
func (m *Manager) Destroy(ctx context.Context, w http.ResponseWriter, sess *Session) error {
	http.SetCookie(w, &http.Cookie{
		Name:     common.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return m.store.Delete(ctx, sess.ID)
}

// Middleware loads the session into the request context. A signed-in
// session older than half its TTL is saved again, so the TTL counts
// inactivity rather than time since the last write.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := m.Load(r)
		if err != nil {
			m.logger.Error(r.Context(), "session store unavailable", "error", err)
			http.Error(w, "session store unavailable", http.StatusServiceUnavailable)
			return
		}
		if sess.Authenticated && m.now().Sub(sess.SavedAt) >= m.ttl/2 {
			if err := m.Save(r.Context(), w, sess); err != nil {
				m.logger.Warn(r.Context(), "session refresh failed", "error", err)
			}
		}
		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sess)))
	})
}

func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the request's session; it is never nil behind Middleware.
func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(ctxKey{}).(*Session)
	if s == nil {
		return New()
	}
	return s
}
