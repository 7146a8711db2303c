package intake

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZayedOfficial/truthshield/internal/apperr"
	"github.com/ZayedOfficial/truthshield/internal/clinical"
)

type spySynth struct {
	mu    sync.Mutex
	calls int
	out   []clinical.Question
}

func (s *spySynth) Generate(ctx context.Context, narrative string, count int) []clinical.Question {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.out != nil {
		return s.out
	}
	qs := make([]clinical.Question, count)
	for i := range qs {
		qs[i] = clinical.Question{Text: fmt.Sprintf("Generated %d?", i+1), Options: []string{"Yes", "No"}}
	}
	return qs
}

func newController(t *testing.T) (*Controller, *spySynth, *clinical.Catalog) {
	t.Helper()
	catalog := clinical.MustLoad()
	synth := &spySynth{}
	return NewController(NewMemoryStore(0), synth, catalog, 10, zerolog.Nop()), synth, catalog
}

func strp(s string) *string { return &s }

func TestSubmitStoryPersonalizes(t *testing.T) {
	c, synth, _ := newController(t)
	ctx := context.Background()

	res, err := c.SubmitStory(ctx, "s1", "I have not been sleeping")
	require.NoError(t, err)
	assert.Len(t, res.Questions, 10)
	assert.Equal(t, 1, synth.calls)
	assert.Equal(t, StateStoryPersonalized, res.Session.State)
	assert.Contains(t, res.Message, "10-point diagnostic survey")

	s, err := c.Session(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "I have not been sleeping", s.Story)
	assert.Len(t, s.Questions, 10)
}

func TestSubmitStoryOverwritesQuestions(t *testing.T) {
	c, synth, _ := newController(t)
	ctx := context.Background()

	_, err := c.SubmitStory(ctx, "s1", "first")
	require.NoError(t, err)

	synth.out = []clinical.Question{{Text: "Only one?", Options: []string{"a", "b"}}}
	res, err := c.SubmitStory(ctx, "s1", "second")
	require.NoError(t, err)
	assert.Equal(t, synth.out, res.Session.Questions)

	s, err := c.Session(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, s.Questions, 1)
	assert.Equal(t, "second", s.Story)
}

func TestSubmitStoryRejectsBlank(t *testing.T) {
	c, synth, _ := newController(t)
	ctx := context.Background()

	for _, story := range []string{"", "   ", "\n\t"} {
		_, err := c.SubmitStory(ctx, "s1", story)
		assert.True(t, errors.Is(err, apperr.ErrValidation))
	}
	assert.Equal(t, 0, synth.calls)

	s, err := c.Session(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, StateIdle, s.State)
}

func TestSubmitFinalCombinesAnswers(t *testing.T) {
	c, synth, _ := newController(t)
	ctx := context.Background()
	synth.out = []clinical.Question{
		{Text: "Do you feel safe?", Options: []string{"Yes", "No"}},
		{Text: "Any pain?", Options: []string{"Yes", "No"}},
	}

	_, err := c.SubmitStory(ctx, "s1", "story")
	require.NoError(t, err)

	res, err := c.SubmitFinal(ctx, "s1", "My story", []*string{strp("No"), nil, strp("")})
	require.NoError(t, err)

	bank := clinical.MustLoad().Bank()
	want := "My story\n\n--- STRUCTURED CLINICAL SURVEY ---\n" +
		"1. Do you feel safe? → No\n" +
		"2. Any pain? → No answer\n" +
		"3. " + bank[2].Text + " → No answer\n"
	assert.Equal(t, want, res.Combined)
	assert.Equal(t, StateFinalSubmitted, res.Session.State)
	assert.Equal(t, finalMessage, res.Message)
}

func TestSubmitFinalLabelsBeyondBank(t *testing.T) {
	c, synth, catalog := newController(t)
	synth.out = []clinical.Question{}
	ctx := context.Background()

	_, err := c.SubmitStory(ctx, "s1", "story")
	require.NoError(t, err)

	n := len(catalog.Bank()) + 2
	answers := make([]*string, n)
	res, err := c.SubmitFinal(ctx, "s1", "story", answers)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSuffix(res.Combined, "\n"), "\n")
	assert.Equal(t, fmt.Sprintf("%d. Question %d → No answer", n, n), lines[len(lines)-1])
}

func TestSubmitFinalRejectsBlankAndLeavesState(t *testing.T) {
	c, _, _ := newController(t)
	ctx := context.Background()

	_, err := c.SubmitStory(ctx, "s1", "story")
	require.NoError(t, err)

	_, err = c.SubmitFinal(ctx, "s1", "  ", nil)
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	s, err := c.Session(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, StateStoryPersonalized, s.State)
	assert.Empty(t, s.Combined)
}

func TestInvalidTransitions(t *testing.T) {
	c, _, _ := newController(t)
	ctx := context.Background()

	_, err := c.SubmitFinal(ctx, "idle", "story", nil)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = c.SubmitStory(ctx, "done", "story")
	require.NoError(t, err)
	_, err = c.SubmitFinal(ctx, "done", "story", nil)
	require.NoError(t, err)

	_, err = c.SubmitStory(ctx, "done", "again")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = c.SubmitFinal(ctx, "done", "again", nil)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = c.LoadScenario(ctx, "done", "cyberbullying")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	s, err := c.Session(ctx, "done")
	require.NoError(t, err)
	assert.Equal(t, StateFinalSubmitted, s.State)
	assert.Equal(t, "story", s.Story)
}

func TestClearResetsToIdle(t *testing.T) {
	c, _, _ := newController(t)
	ctx := context.Background()

	_, err := c.SubmitStory(ctx, "s1", "story")
	require.NoError(t, err)
	_, err = c.SubmitFinal(ctx, "s1", "story", nil)
	require.NoError(t, err)

	require.NoError(t, c.Clear(ctx, "s1"))
	s, err := c.Session(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, StateIdle, s.State)
	assert.Empty(t, s.Questions)

	_, err = c.SubmitStory(ctx, "s1", "new story")
	assert.NoError(t, err)
}

func TestLoadScenario(t *testing.T) {
	c, synth, catalog := newController(t)
	ctx := context.Background()

	res, err := c.LoadScenario(ctx, "s1", "veteran_trauma")
	require.NoError(t, err)
	sc, _ := catalog.Scenario("veteran_trauma")

	assert.Equal(t, 0, synth.calls)
	assert.Equal(t, StateStoryPersonalized, res.Session.State)
	assert.Equal(t, sc.Survey, res.Session.Story)
	assert.Equal(t, "veteran_trauma", res.Session.Scenario)
	require.Len(t, res.Session.Questions, 10)
	assert.Equal(t, clinical.ScenarioOptions, res.Session.Questions[0].Options)

	_, err = c.LoadScenario(ctx, "s1", "nope")
	assert.ErrorIs(t, err, clinical.ErrScenarioNotFound)
}

func TestSessionsAreIndependent(t *testing.T) {
	c, _, _ := newController(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("s%d", i%4)
			_, _ = c.SubmitStory(ctx, id, fmt.Sprintf("story %d", i))
		}(i)
	}
	wg.Wait()

	for i := 0; i < 4; i++ {
		s, err := c.Session(ctx, fmt.Sprintf("s%d", i))
		require.NoError(t, err)
		assert.Equal(t, StateStoryPersonalized, s.State)
		assert.Len(t, s.Questions, 10)
	}
	assert.Equal(t, 0, c.locks.size())
}

func TestUpdatedAtUsesClock(t *testing.T) {
	c, _, _ := newController(t)
	at := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return at }

	res, err := c.SubmitStory(context.Background(), "s1", "story")
	require.NoError(t, err)
	assert.Equal(t, at, res.Session.UpdatedAt)
}
