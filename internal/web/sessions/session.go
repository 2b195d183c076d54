// Package sessions holds per-browser state for the web front end: who is
// signed in and the running grid quick-test counters. Sessions live in a
// Store keyed by a random id; the browser only holds a signed token naming
// that id.
package sessions

import (
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/mnistlab/internal/web/models"
)

// GridEntry is one displayed grid image.
type GridEntry struct {
	SampleID int64 `json:"sample_id"`
	Label    int   `json:"label"`
}

type Session struct {
	ID string `json:"-"`

	Authenticated bool        `json:"authenticated"`
	UserID        string      `json:"user_id,omitempty"`
	Username      string      `json:"username,omitempty"`
	Role          models.Role `json:"role,omitempty"`

	GridTotal   int         `json:"grid_total"`
	GridCorrect int         `json:"grid_correct"`
	Grid        []GridEntry `json:"grid,omitempty"`

	// Flash is shown once on the next rendered page.
	Flash string `json:"flash,omitempty"`

	// SavedAt is when the store entry and cookie were last refreshed.
	SavedAt time.Time `json:"saved_at"`
}

func New() *Session {
	return &Session{ID: NewID()}
}

func NewID() string {
	return uuid.NewString()
}

// SignIn marks the session as belonging to user and resets the grid state.
func (s *Session) SignIn(user *models.AccountSummary) {
	s.Authenticated = true
	s.UserID = user.ID
	s.Username = user.Username
	s.Role = user.Role
	s.GridTotal, s.GridCorrect = 0, 0
	s.Grid = nil
}

func (s *Session) IsAdmin() bool {
	return s.Authenticated && s.Role == models.RoleAdmin
}

// Account is the signed-in user as seen by the services.
func (s *Session) Account() *models.AccountSummary {
	if !s.Authenticated {
		return nil
	}
	return &models.AccountSummary{ID: s.UserID, Username: s.Username, Role: s.Role}
}

func (s *Session) RecordGrid(correct bool) {
	s.GridTotal++
	if correct {
		s.GridCorrect++
	}
}

func (s *Session) Accuracy() models.Accuracy {
	return models.Accuracy{Correct: s.GridCorrect, Total: s.GridTotal}
}

// GridLabel returns the true label of a sample currently on the grid.
func (s *Session) GridLabel(sampleID int64) (int, bool) {
	for _, g := range s.Grid {
		if g.SampleID == sampleID {
			return g.Label, true
		}
	}
	return 0, false
}

// TakeFlash returns the pending message and clears it.
func (s *Session) TakeFlash() string {
	f := s.Flash
	s.Flash = ""
	return f
}
