// Package intake runs the patient-side flow: story, personalized survey,
// final submission. Each browser session has its own state, persisted
// through a Store and serialized by a per-session lock.
package intake

import (
	"context"
	"errors"
	"time"

	"github.com/ZayedOfficial/truthshield/internal/clinical"
)

type State string

const (
	StateIdle              State = "idle"
	StateStoryPersonalized State = "story_personalized"
	StateFinalSubmitted    State = "final_submitted"
)

var (
	ErrInvalidTransition = errors.New("invalid intake transition")
	ErrSessionNotFound   = errors.New("session not found")
)

// Session is the intake state of one patient browser session.
type Session struct {
	ID        string              `json:"id"`
	State     State               `json:"state"`
	Story     string              `json:"story,omitempty"`
	Scenario  string              `json:"scenario,omitempty"`
	Questions []clinical.Question `json:"questions,omitempty"`
	Combined  string              `json:"combined,omitempty"`
	UpdatedAt time.Time           `json:"updatedAt"`
}

func newSession(id string) *Session {
	return &Session{ID: id, State: StateIdle}
}

// Store persists sessions. Load returns ErrSessionNotFound for unknown ids.
type Store interface {
	Load(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
}
