package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/afero"

	"github.com/roach88/nopia/internal/compiler"
	"github.com/roach88/nopia/internal/diag"
	"github.com/roach88/nopia/internal/pipeline"
	"github.com/roach88/nopia/internal/store"
)

// Harness is the scenario execution engine. Steps of one scenario share an
// in-memory image store, so a later step sees the images earlier steps
// emitted exactly as a separate compiler run would.
type Harness struct {
	fs      afero.Fs
	store   *store.Store
	logger  *slog.Logger
	workers int
}

// Option configures a Harness.
type Option func(*Harness)

// WithWorkers sets the pipeline's discovery workers.
func WithWorkers(n int) Option {
	return func(h *Harness) {
		h.workers = n
	}
}

// WithLogger sets the logger. Defaults to a discarding logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) {
		h.logger = l
	}
}

// Run executes a scenario and evaluates its assertions. Each run uses a
// fresh in-memory store for isolation.
func Run(ctx context.Context, fs afero.Fs, scenario *Scenario, opts ...Option) (*Result, error) {
	h, err := newHarness(fs, opts...)
	if err != nil {
		return nil, err
	}
	defer h.close()

	result, err := h.run(ctx, scenario)
	if err != nil {
		return nil, err
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func newHarness(fs afero.Fs, opts ...Option) (*Harness, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	h := &Harness{
		fs:     fs,
		store:  st,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

func (h *Harness) close() error {
	return h.store.Close()
}

// run executes the steps in order without evaluating assertions.
func (h *Harness) run(ctx context.Context, scenario *Scenario) (*Result, error) {
	result := NewResult()
	for i, step := range scenario.Steps {
		sr, err := h.executeStep(ctx, step)
		if err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, step.Description, err)
		}
		result.Steps = append(result.Steps, sr)
		h.logger.Info("step completed",
			"step", i,
			"module", sr.Plan.Name,
			"local_types", len(sr.Plan.LocalTypes),
			"diagnostics", len(sr.Plan.Diagnostics),
			"written", sr.Written,
		)
	}
	return result, nil
}

// executeStep builds and plans one compilation and emits its image if asked.
func (h *Harness) executeStep(ctx context.Context, step Step) (StepResult, error) {
	comp, err := h.compilation(ctx, step)
	if err != nil {
		return StepResult{}, err
	}

	popts := []pipeline.Option{pipeline.WithLogger(h.logger)}
	if h.workers > 0 {
		popts = append(popts, pipeline.WithWorkers(h.workers))
	}
	plan, err := pipeline.Run(ctx, comp, popts...)
	if err != nil {
		return StepResult{}, err
	}

	sr := StepResult{Description: step.Description, Plan: plan}
	if step.Emit && plan.Emittable {
		if sr.Written, err = h.store.WriteImage(ctx, plan.Image(), plan.Hash); err != nil {
			return StepResult{}, err
		}
	}
	return sr, nil
}

func (h *Harness) compilation(ctx context.Context, step Step) (*pipeline.Compilation, error) {
	d, err := compiler.Load(h.fs, step.Description)
	if err != nil {
		return nil, err
	}
	comp, err := compiler.Build(d)
	if err != nil {
		return nil, err
	}
	if step.Mode != "" {
		comp.Mode = diag.BuildMode(step.Mode)
	}
	for _, name := range step.Refs {
		c, err := h.store.ReadCompiledModule(ctx, name)
		if err != nil {
			return nil, err
		}
		comp.Compiled = append(comp.Compiled, c)
	}
	if errs := compiler.CheckOrigins(comp); len(errs) > 0 {
		return nil, compiler.ValidationErrors(errs)
	}
	return comp, nil
}
