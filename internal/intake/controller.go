package intake

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ZayedOfficial/truthshield/internal/apperr"
	"github.com/ZayedOfficial/truthshield/internal/clinical"
	"github.com/ZayedOfficial/truthshield/internal/metrics"
)

const (
	surveyHeader = "\n\n--- STRUCTURED CLINICAL SURVEY ---\n"
	noAnswer     = "No answer"

	finalMessage    = "✅ Submitting to Clinical Team... (Go to 'Clinician Dashboard' to see the received survey)"
	scenarioMessage = "🚀 Demo Scenario Loaded. Review the 10-point honesty check below."
)

// Synthesizer produces the personalized survey for a story.
type Synthesizer interface {
	Generate(ctx context.Context, narrative string, count int) []clinical.Question
}

type StoryResult struct {
	Session   *Session            `json:"session"`
	Questions []clinical.Question `json:"questions"`
	Message   string              `json:"message"`
}

type FinalResult struct {
	Session  *Session `json:"session"`
	Combined string   `json:"combined"`
	Message  string   `json:"message"`
}

type ScenarioResult struct {
	Session  *Session          `json:"session"`
	Scenario clinical.Scenario `json:"scenario"`
	Message  string            `json:"message"`
}

// Controller applies intake operations to sessions.
type Controller struct {
	store   Store
	synth   Synthesizer
	catalog *clinical.Catalog
	count   int
	locks   *keyedLock
	logger  zerolog.Logger
	now     func() time.Time
}

func NewController(store Store, synth Synthesizer, catalog *clinical.Catalog, count int, logger zerolog.Logger) *Controller {
	if count < 1 {
		count = 10
	}
	return &Controller{
		store:   store,
		synth:   synth,
		catalog: catalog,
		count:   count,
		locks:   newKeyedLock(),
		logger:  logger.With().Str("component", "intake").Logger(),
		now:     time.Now,
	}
}

// allowed lists the states each operation may start from.
var allowed = map[string][]State{
	"story":    {StateIdle, StateStoryPersonalized},
	"scenario": {StateIdle, StateStoryPersonalized},
	"final":    {StateStoryPersonalized},
}

func checkTransition(op string, from State) error {
	for _, s := range allowed[op] {
		if s == from {
			return nil
		}
	}
	return fmt.Errorf("%w: %s from %s", ErrInvalidTransition, op, from)
}

// withSession loads (or starts) a session under its lock, runs fn and saves
// the session when fn succeeds.
func (c *Controller) withSession(ctx context.Context, op, id string, fn func(*Session) error) (*Session, error) {
	unlock := c.locks.Lock(id)
	defer unlock()

	s, err := c.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(s); err != nil {
		c.record(op, err)
		return nil, err
	}
	s.UpdatedAt = c.now().UTC()
	if err := c.store.Save(ctx, s); err != nil {
		c.record(op, err)
		return nil, fmt.Errorf("save session: %w", err)
	}
	c.record(op, nil)
	return s, nil
}

func (c *Controller) load(ctx context.Context, id string) (*Session, error) {
	s, err := c.store.Load(ctx, id)
	if errors.Is(err, ErrSessionNotFound) {
		return newSession(id), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	return s, nil
}

func (c *Controller) record(op string, err error) {
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, apperr.ErrValidation):
		result = "invalid_input"
	case errors.Is(err, ErrInvalidTransition):
		result = "rejected"
	default:
		result = "error"
	}
	metrics.IntakeTransitions.WithLabelValues(op, result).Inc()
}

// SubmitStory personalizes the survey for the story. The questions replace
// any previous survey on the session.
func (c *Controller) SubmitStory(ctx context.Context, id, story string) (*StoryResult, error) {
	var qs []clinical.Question
	s, err := c.withSession(ctx, "story", id, func(s *Session) error {
		if err := apperr.RequireText("story", story, "Please enter your story before proceeding."); err != nil {
			return err
		}
		if err := checkTransition("story", s.State); err != nil {
			return err
		}
		qs = c.synth.Generate(ctx, story, c.count)
		s.State = StateStoryPersonalized
		s.Story = story
		s.Scenario = ""
		s.Questions = qs
		s.Combined = ""
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info().Str("session", id).Int("questions", len(qs)).Msg("story personalized")
	return &StoryResult{
		Session:   s,
		Questions: qs,
		Message:   fmt.Sprintf("✨ Story Processed. MedGemma has generated a %d-point diagnostic survey below.", len(qs)),
	}, nil
}

// LoadScenario fills the session with a demo scenario's story and questions.
func (c *Controller) LoadScenario(ctx context.Context, id, scenarioID string) (*ScenarioResult, error) {
	sc, err := c.catalog.Scenario(scenarioID)
	if err != nil {
		c.record("scenario", err)
		return nil, err
	}

	s, err := c.withSession(ctx, "scenario", id, func(s *Session) error {
		if err := checkTransition("scenario", s.State); err != nil {
			return err
		}
		s.State = StateStoryPersonalized
		s.Story = sc.Survey
		s.Scenario = sc.Key
		s.Questions = sc.Questions()
		s.Combined = ""
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info().Str("session", id).Str("scenario", sc.Key).Msg("demo scenario loaded")
	return &ScenarioResult{Session: s, Scenario: sc, Message: scenarioMessage}, nil
}

// SubmitFinal combines the story with the answered survey for the clinician.
func (c *Controller) SubmitFinal(ctx context.Context, id, story string, answers []*string) (*FinalResult, error) {
	s, err := c.withSession(ctx, "final", id, func(s *Session) error {
		if err := apperr.RequireText("story", story, "Please enter some text before submitting."); err != nil {
			return err
		}
		if err := checkTransition("final", s.State); err != nil {
			return err
		}
		s.State = StateFinalSubmitted
		s.Story = story
		s.Combined = c.combine(story, s.Questions, answers)
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info().Str("session", id).Int("answers", len(answers)).Msg("survey submitted")
	return &FinalResult{Session: s, Combined: s.Combined, Message: finalMessage}, nil
}

// combine renders the story followed by one line per answer. The question
// text comes from the session survey, then the fallback bank, then a
// generic label.
func (c *Controller) combine(story string, qs []clinical.Question, answers []*string) string {
	var b strings.Builder
	b.WriteString(story)
	b.WriteString(surveyHeader)
	for i, a := range answers {
		var text string
		switch bq, ok := c.catalog.BankQuestionAt(i); {
		case i < len(qs):
			text = qs[i].Text
		case ok:
			text = bq.Text
		default:
			text = fmt.Sprintf("Question %d", i+1)
		}
		answer := noAnswer
		if a != nil && *a != "" {
			answer = *a
		}
		fmt.Fprintf(&b, "%d. %s → %s\n", i+1, text, answer)
	}
	return b.String()
}

// Clear resets the session to Idle.
func (c *Controller) Clear(ctx context.Context, id string) error {
	unlock := c.locks.Lock(id)
	defer unlock()

	if err := c.store.Delete(ctx, id); err != nil {
		c.record("clear", err)
		return fmt.Errorf("clear session: %w", err)
	}
	c.record("clear", nil)
	c.logger.Info().Str("session", id).Msg("session cleared")
	return nil
}

// Session returns the current state; unknown ids are Idle.
func (c *Controller) Session(ctx context.Context, id string) (*Session, error) {
	unlock := c.locks.Lock(id)
	defer unlock()
	return c.load(ctx, id)
}
