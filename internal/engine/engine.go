// Package engine owns the handle to the language model. The engine starts in
// simulation mode and only goes live after a successful Load against the
// configured model server; analysis and question generation consult it on
// every call instead of reading process-wide globals.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrUnavailable means no model is loaded. Callers treat it as a mode, not a
// failure.
var ErrUnavailable = errors.New("engine: generator unavailable")

// Generator produces free text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt, system string, maxTokens int) (string, error)
}

// Client is a model backend the engine can load and drive.
type Client interface {
	Generator
	// Ping checks the backend and returns the name of the model it serves.
	Ping(ctx context.Context) (string, error)
}

// Status is a snapshot of the engine for the dashboard badge.
type Status struct {
	Simulation bool   `json:"simulation"`
	ModelName  string `json:"modelName"`
	LoadError  string `json:"loadError,omitempty"`
	LoadedAt   string `json:"loadedAt,omitempty"`
}

const simulationName = "None (Simulation Active)"

// Engine is safe for concurrent use.
type Engine struct {
	client  Client
	timeout time.Duration
	logger  zerolog.Logger

	mu         sync.RWMutex
	simulation bool
	modelName  string
	loadError  string
	loadedAt   time.Time
}

type Option func(*Engine)

// WithTimeout bounds every generator call.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger.With().Str("component", "engine").Logger()
	}
}

// New returns an engine in simulation mode. client may be nil, in which
// case Load always fails and the engine stays in simulation.
func New(client Client, opts ...Option) *Engine {
	e := &Engine{
		client:     client,
		timeout:    60 * time.Second,
		logger:     zerolog.Nop(),
		simulation: true,
		modelName:  simulationName,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Load (re)connects to the model server. On success the engine goes live;
// on failure it stays in simulation mode and remembers why.
func (e *Engine) Load(ctx context.Context) error {
	if e.client == nil {
		err := errors.New("no model endpoint configured")
		e.setFailed(err)
		return err
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	name, err := e.client.Ping(ctx)
	if err != nil {
		err = fmt.Errorf("load model: %w", err)
		e.setFailed(err)
		e.logger.Warn().Err(err).Msg("engine standby, simulation mode active")
		return err
	}

	e.mu.Lock()
	e.simulation = false
	e.modelName = name
	e.loadError = ""
	e.loadedAt = time.Now().UTC()
	e.mu.Unlock()

	e.logger.Info().Str("model", name).Dur("elapsed", time.Since(start)).Msg("engine ready")
	return nil
}

func (e *Engine) setFailed(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.simulation = true
	e.modelName = simulationName
	e.loadError = err.Error()
}

// Available reports whether a model is loaded.
func (e *Engine) Available() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.simulation
}

func (e *Engine) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s := Status{
		Simulation: e.simulation,
		ModelName:  e.modelName,
		LoadError:  e.loadError,
	}
	if !e.loadedAt.IsZero() && !e.simulation {
		s.LoadedAt = e.loadedAt.Format(time.RFC3339)
	}
	return s
}

// Generate runs the loaded model under the engine timeout. It returns
// ErrUnavailable in simulation mode.
func (e *Engine) Generate(ctx context.Context, prompt, system string, maxTokens int) (string, error) {
	if !e.Available() {
		return "", ErrUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	out, err := e.client.Generate(ctx, prompt, system, maxTokens)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("generate: timed out after %s: %w", e.timeout, err)
		}
		return "", fmt.Errorf("generate: %w", err)
	}
	return out, nil
}
