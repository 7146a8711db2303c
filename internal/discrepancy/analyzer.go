// Package discrepancy compares what a patient said anonymously with what the
// clinical notes record. In simulation mode the comparison is a keyword match
// against the scenario table; otherwise the loaded model writes the report.
package discrepancy

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/ZayedOfficial/truthshield/internal/apperr"
	"github.com/ZayedOfficial/truthshield/internal/clinical"
	"github.com/ZayedOfficial/truthshield/internal/engine"
	"github.com/ZayedOfficial/truthshield/internal/fhir"
	"github.com/ZayedOfficial/truthshield/internal/metrics"
)

const (
	maxTokens = 200

	criticalMarker = "CRITICAL"

	engineLabel = "MedGemma 4B"

	branchSimulation  = "simulation"
	branchLive        = "live"
	branchPlaceholder = "placeholder"

	missingInputMessage = "Please provide both the anonymous survey responses and the EHR clinical notes to run the analysis."
)

// Model is what the analyzer needs from the engine.
type Model interface {
	engine.Generator
	Available() bool
	Status() engine.Status
}

type Request struct {
	Survey     string    `json:"survey"`
	Notes      string    `json:"notes"`
	Age        string    `json:"age"`
	VisitType  string    `json:"visitType"`
	Simulation bool      `json:"simulation"`
	Answers    []*string `json:"answers"`
}

type Result struct {
	ReportText  string        `json:"report"`
	ReportHTML  string        `json:"reportHtml"`
	UsedModel   bool          `json:"usedModel"`
	Elapsed     time.Duration `json:"elapsed"`
	ScenarioID  string        `json:"scenarioId,omitempty"`
	Critical    bool          `json:"critical"`
	Engine      string        `json:"engine"`
	Bundle      *fhir.Bundle  `json:"bundle"`
	GeneratedAt time.Time     `json:"generatedAt"`
}

type Analyzer struct {
	catalog *clinical.Catalog
	model   Model
	md      goldmark.Markdown
	logger  zerolog.Logger
	now     func() time.Time
}

func NewAnalyzer(catalog *clinical.Catalog, model Model, logger zerolog.Logger) *Analyzer {
	return &Analyzer{
		catalog: catalog,
		model:   model,
		md:      goldmark.New(goldmark.WithExtensions(extension.GFM)),
		logger:  logger.With().Str("component", "discrepancy").Logger(),
		now:     time.Now,
	}
}

// Analyze produces one report. Only missing input is an error; model
// trouble degrades to the placeholder report.
func (a *Analyzer) Analyze(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Survey) == "" || strings.TrimSpace(req.Notes) == "" {
		field := "survey"
		if strings.TrimSpace(req.Survey) != "" {
			field = "notes"
		}
		return nil, apperr.Validation(field, missingInputMessage)
	}

	start := a.now()
	res := &Result{}
	branch := branchPlaceholder

	switch {
	case req.Simulation:
		branch = branchSimulation
		res.ScenarioID = a.catalog.Match(req.Survey, req.Notes)
		res.ReportText = a.catalog.Report(res.ScenarioID)
		res.Engine = engineLabel + " (Simulation Engine)"
	case a.model != nil && a.model.Available():
		res.Engine = engineLabel + " (" + a.model.Status().ModelName + ")"
		text, err := a.model.Generate(ctx, Prompt(req.Survey, req.Notes, req.Answers), systemPrompt, maxTokens)
		if err != nil {
			outcome := metrics.OutcomeError
			if errors.Is(err, engine.ErrUnavailable) {
				outcome = metrics.OutcomeUnavailable
			}
			metrics.GeneratorCalls.WithLabelValues("analysis", outcome).Inc()
			a.logger.Warn().Err(err).Msg("analysis generation failed")
			break
		}
		metrics.GeneratorCalls.WithLabelValues("analysis", metrics.OutcomeOK).Inc()
		branch = branchLive
		res.ReportText = text
		res.UsedModel = true
	}

	if res.ReportText == "" && !res.UsedModel {
		res.ReportText = Placeholder
	}
	if res.Engine == "" {
		res.Engine = engineLabel
	}

	res.Critical = strings.Contains(res.ReportText, criticalMarker)
	res.ReportHTML = a.render(res.ReportText)
	res.GeneratedAt = a.now().UTC()
	res.Bundle = fhir.NewAnalysisBundle(fhir.Input{
		Age:       req.Age,
		VisitType: req.VisitType,
		Report:    res.ReportText,
		Critical:  res.Critical,
		Answers:   flatten(req.Answers),
	}, res.GeneratedAt)
	if err := res.Bundle.Validate(); err != nil {
		metrics.BundleValidationFailures.Inc()
		a.logger.Error().Err(err).Str("bundle_id", res.Bundle.ID).Msg("analysis bundle failed validation")
	}
	res.Elapsed = a.now().Sub(start)

	metrics.Analyses.WithLabelValues(branch).Inc()
	metrics.AnalysisDuration.WithLabelValues(branch).Observe(res.Elapsed.Seconds())
	a.logger.Info().
		Str("branch", branch).
		Str("scenario", res.ScenarioID).
		Bool("critical", res.Critical).
		Dur("elapsed", res.Elapsed).
		Msg("analysis complete")
	return res, nil
}

func (a *Analyzer) render(md string) string {
	var buf bytes.Buffer
	if err := a.md.Convert([]byte(md), &buf); err != nil {
		a.logger.Warn().Err(err).Msg("render report")
		return ""
	}
	return buf.String()
}

func flatten(answers []*string) []string {
	out := make([]string, len(answers))
	for i, a := range answers {
		if a != nil {
			out[i] = *a
		}
	}
	return out
}
