// Package mcq turns a patient narrative into a fixed number of
// multiple-choice screening questions, using the language model when one is
// loaded and the static question bank otherwise.
package mcq

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ZayedOfficial/truthshield/internal/clinical"
	"github.com/ZayedOfficial/truthshield/internal/engine"
	"github.com/ZayedOfficial/truthshield/internal/metrics"
)

const (
	// DefaultCount is the size of the personalized survey.
	DefaultCount = 10

	maxTokens = 600
)

const generationPrompt = `You are a clinical psychometrician. Based on the following patient story, generate EXACTLY %[1]d deep clinical questions to identify masked truths or discrepancies.

## Patient Story
%[2]s

## Formatting Requirements:
1. Generate EXACTLY %[1]d questions for "crystal clear" clinical clarity.
2. For each question, provide 3 clinical options.
3. Be EXTREMELY CONCISE but clinically rigorous.
4. Format: EXACTLY one question per line.
5. Format per line: [Number]. [Question] | [Opt1], [Opt2], [Opt3]

## Example:
1. How is your appetite? | Normal, Reduced, Increased
2. Do you feel safe at home? | Yes, No, Uncertain

Generate %[1]d SHORT clinical MCQs now.`

// Model is what the synthesizer needs from the engine.
type Model interface {
	engine.Generator
	Available() bool
}

// Synthesizer is stateless; the caller owns the questions it returns.
type Synthesizer struct {
	model  Model
	bank   []clinical.BankQuestion
	logger zerolog.Logger
}

func NewSynthesizer(model Model, bank []clinical.BankQuestion, logger zerolog.Logger) *Synthesizer {
	return &Synthesizer{
		model:  model,
		bank:   bank,
		logger: logger.With().Str("component", "mcq").Logger(),
	}
}

// Prompt renders the generation prompt for a narrative.
func Prompt(narrative string, count int) string {
	return fmt.Sprintf(generationPrompt, count, narrative)
}

// Generate returns count questions: parsed model output first, then bank
// questions in bank order, skipping texts already present. The result is
// shorter than count only when model output and bank together run out.
// Model failures are logged and never returned.
func (s *Synthesizer) Generate(ctx context.Context, narrative string, count int) []clinical.Question {
	if count <= 0 {
		return nil
	}

	out := s.fromModel(ctx, narrative, count)
	parsed := len(out)

	for _, b := range s.bank {
		if len(out) >= count {
			break
		}
		if containsText(out, b.Text) {
			continue
		}
		out = append(out, b.Question())
	}

	metrics.QuestionsGenerated.WithLabelValues("model").Add(float64(parsed))
	metrics.QuestionsGenerated.WithLabelValues("fallback").Add(float64(len(out) - parsed))
	s.logger.Debug().Int("parsed", parsed).Int("padded", len(out)-parsed).Int("requested", count).Msg("survey generated")
	return out
}

func (s *Synthesizer) fromModel(ctx context.Context, narrative string, count int) (out []clinical.Question) {
	if s.model == nil || !s.model.Available() {
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Msg("question generation panicked, using fallback bank")
			out = nil
		}
	}()

	s.logger.Info().Int("count", count).Str("story", preview(narrative, 50)).Msg("generating personalized questions")
	system := fmt.Sprintf("You are a clinical psychometrician. Generate exactly %d nuanced questions. One per line.", count)
	raw, err := s.model.Generate(ctx, Prompt(narrative, count), system, maxTokens)
	if err != nil {
		outcome := metrics.OutcomeError
		if errors.Is(err, engine.ErrUnavailable) {
			outcome = metrics.OutcomeUnavailable
		}
		metrics.GeneratorCalls.WithLabelValues("mcq", outcome).Inc()
		s.logger.Warn().Err(err).Msg("question generation failed, using fallback bank")
		return nil
	}
	metrics.GeneratorCalls.WithLabelValues("mcq", metrics.OutcomeOK).Inc()

	out = Parse(raw, count)
	s.logger.Info().Int("chars", len(raw)).Int("parsed", len(out)).Msg("received model response")
	return out
}

func containsText(qs []clinical.Question, text string) bool {
	for _, q := range qs {
		if q.Text == text {
			return true
		}
	}
	return false
}

func preview(s string, n int) string {
	s = strings.TrimSpace(s)
	if r := []rune(s); len(r) > n {
		return string(r[:n]) + "..."
	}
	return s
}
