// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sampler fits disk models to interferometric data with an
// affine-invariant ensemble MCMC sampler.
//
// The engine advances an ensemble of walkers with the Goodman-Weare
// stretch move, evaluating likelihoods on a bounded worker pool. All
// randomness is drawn on the coordinator before workers run, so a given
// seed reproduces the chain bit-for-bit at any worker count.
package sampler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"runtime"
	"slices"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/ppdfit/services/fit/likelihood"
)

// State describes the engine lifecycle.
type State int32

const (
	// StateInitializing means the walker ball is being placed.
	StateInitializing State = iota
	// StateRunning means iterations are advancing.
	StateRunning
	// StateConverged means the convergence criterion was met.
	StateConverged
	// StateBudgetExhausted means MaxIterations was reached first.
	StateBudgetExhausted
	// StateFailed means the run aborted (stall or evaluation failure).
	StateFailed
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateRunning:
		return "running"
	case StateConverged:
		return "converged"
	case StateBudgetExhausted:
		return "budget_exhausted"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// MarshalJSON serializes the state by name.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON parses a state name.
func (s *State) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	for _, candidate := range []State{StateInitializing, StateRunning, StateConverged, StateBudgetExhausted, StateFailed} {
		if candidate.String() == name {
			*s = candidate
			return nil
		}
	}
	return fmt.Errorf("%w: unknown state %q", ErrConfiguration, name)
}

// Result summarizes a finished run.
type Result struct {
	// RunID identifies the run.
	RunID string `json:"run_id"`

	// State is the terminal engine state.
	State State `json:"state"`

	// Iterations is the number of completed iterations.
	Iterations int `json:"iterations"`

	// FreeNames are the namespaced parameter names, in vector order.
	FreeNames []string `json:"free_names"`

	// BestVector is the highest-posterior sample.
	BestVector []float64 `json:"best_vector"`

	// BestLogProb is its log posterior.
	BestLogProb float64 `json:"best_log_prob"`

	// PosteriorMean is the per-parameter mean over the post-burn-in
	// chain, pooled across walkers. Nil when burn-in left no samples.
	PosteriorMean []float64 `json:"posterior_mean,omitempty"`

	// Diagnostics is the last computed diagnostic summary. Zero when the
	// chain never grew long enough to diagnose.
	Diagnostics Diagnostics `json:"diagnostics"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithCheckpointStore sets the snapshot store used when checkpointing is
// enabled in the configuration.
func WithCheckpointStore(store CheckpointStore) Option {
	return func(e *Engine) { e.store = store }
}

// Engine runs the ensemble sampler.
//
// Thread Safety: Run must be called from a single goroutine. State,
// Chain and RunID are safe to call concurrently with Run.
type Engine struct {
	cfg    FitConfig
	eval   *likelihood.Evaluator
	move   *StretchMove
	chain  *Chain
	src    *rand.PCG
	rng    *rand.Rand
	evals  []*likelihood.Evaluator
	logger *slog.Logger
	tracer *FitTracer
	metric *FitMetrics
	store  CheckpointStore

	runID    string
	state    atomic.Int32
	finished bool

	// live ensemble, coordinator-owned
	dim     int
	pos     []float64 // walkers*dim
	lp      []float64 // walkers
	prevTau float64
	diag    Diagnostics
	hasDiag bool
}

// NewEngine creates an engine for a fresh run.
//
// Inputs:
//   - eval: Likelihood evaluator. The engine clones it per worker; the
//     original's current parameter values seed the walker ball.
//   - cfg: Sampler configuration.
//   - opts: Optional logger and checkpoint store.
//
// Outputs:
//   - *Engine: Ready engine.
//   - error: ErrConfiguration for invalid settings, including an
//     ensemble smaller than twice the search dimension.
func NewEngine(eval *likelihood.Evaluator, cfg FitConfig, opts ...Option) (*Engine, error) {
	if eval == nil {
		return nil, fmt.Errorf("%w: nil evaluator", ErrConfiguration)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	dim := eval.Dim()
	if cfg.Run.Walkers <= 2*dim {
		return nil, fmt.Errorf("%w: %d walkers for dimension %d, need more than %d",
			ErrConfiguration, cfg.Run.Walkers, dim, 2*dim)
	}
	move, err := NewStretchMove(cfg.Move.StretchScale)
	if err != nil {
		return nil, err
	}

	src := rand.NewPCG(cfg.Run.Seed, cfg.Run.Seed^0x9e3779b97f4a7c15)
	e := &Engine{
		cfg:    cfg,
		eval:   eval,
		move:   move,
		chain:  NewChain(cfg.Run.Walkers, dim),
		src:    src,
		rng:    rand.New(src),
		logger: slog.Default(),
		runID:  uuid.NewString(),
		dim:    dim,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.tracer = NewFitTracer(e.logger, cfg.Observability)
	e.metric = NewFitMetrics(e.logger, cfg.Observability)
	e.buildWorkers()
	return e, nil
}

// NewEngineFromSnapshot creates an engine that resumes a checkpointed
// run: chain, ensemble and random stream continue exactly where the
// snapshot left off.
//
// Inputs:
//   - eval: Evaluator over the same model, grid and data as the
//     original run. Its free-parameter names must match the snapshot.
//   - snap: Snapshot to resume from.
//   - opts: Optional logger and checkpoint store.
//
// Outputs:
//   - *Engine: Ready engine.
//   - error: ErrConfiguration on shape mismatch or corrupt RNG state.
func NewEngineFromSnapshot(eval *likelihood.Evaluator, snap *Snapshot, opts ...Option) (*Engine, error) {
	if snap == nil {
		return nil, fmt.Errorf("%w: nil snapshot", ErrConfiguration)
	}
	e, err := NewEngine(eval, snap.Config, opts...)
	if err != nil {
		return nil, err
	}
	if !slices.Equal(snap.FreeNames, eval.FreeNames()) {
		return nil, fmt.Errorf("%w: snapshot parameters %v do not match evaluator %v",
			ErrConfiguration, snap.FreeNames, eval.FreeNames())
	}
	chain, err := NewChainFromState(snap.Chain)
	if err != nil {
		return nil, err
	}
	if chain.Walkers() != snap.Config.Run.Walkers || chain.Dim() != eval.Dim() {
		return nil, fmt.Errorf("%w: snapshot chain shape %dx%d", ErrConfiguration, chain.Walkers(), chain.Dim())
	}
	if err := e.src.UnmarshalBinary(snap.RNGState); err != nil {
		return nil, fmt.Errorf("%w: restore rng: %v", ErrConfiguration, err)
	}
	e.chain = chain
	e.runID = snap.RunID
	e.prevTau = snap.PrevMaxTau
	if chain.Len() > 0 {
		e.pos, e.lp, err = chain.Last()
		if err != nil {
			return nil, err
		}
	}
	return e, nil
}

func (e *Engine) buildWorkers() {
	n := e.cfg.Parallel.Workers
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}
	if n > e.cfg.Run.Walkers/2 {
		n = e.cfg.Run.Walkers / 2
	}
	e.evals = make([]*likelihood.Evaluator, n)
	for i := range e.evals {
		e.evals[i] = e.eval.Clone()
	}
}

// RunID returns the run identifier.
func (e *Engine) RunID() string { return e.runID }

// State returns the current engine state.
func (e *Engine) State() State { return State(e.state.Load()) }

// Chain returns the chain. Safe to read while the engine runs.
func (e *Engine) Chain() *Chain { return e.chain }

func (e *Engine) setState(s State) { e.state.Store(int32(s)) }

// Run advances the ensemble until convergence, iteration budget
// exhaustion, or failure.
//
// Cancellation is honored between iterations and inside likelihood
// evaluations; the chain only ever contains complete iterations, and a
// final checkpoint is flushed before returning.
//
// Outputs:
//   - *Result: Run summary. Non-nil whenever at least initialization
//     succeeded, including on cancellation.
//   - error: ErrInitStall, ErrSamplerStall, context errors, or
//     evaluator failures.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	if e.finished {
		return nil, ErrRunFinished
	}
	e.finished = true

	ctx, span := e.tracer.StartRun(ctx, e.runID, e.cfg, e.dim)
	result, err := e.run(ctx)
	e.tracer.EndRun(span, result, err)
	return result, err
}

func (e *Engine) run(ctx context.Context) (*Result, error) {
	if e.pos == nil {
		e.setState(StateInitializing)
		if err := e.initializeWalkers(ctx); err != nil {
			e.setState(StateFailed)
			return nil, err
		}
	}
	e.setState(StateRunning)

	walkers := e.cfg.Run.Walkers
	half := walkers / 2
	newPos := make([]float64, walkers*e.dim)
	newLP := make([]float64, walkers)
	draws := make([]stretchDraw, walkers)
	accepted := make([]bool, walkers)
	stall := 0

	for iter := e.chain.Len(); iter < e.cfg.Run.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			e.flushCheckpoint(ctx)
			return e.result(), err
		}
		start := time.Now()
		nAccepted := 0
		for w := range accepted {
			accepted[w] = false
		}

		// Two half-ensemble updates per iteration. Every draw happens
		// here on the coordinator, in walker order, before workers see
		// the proposals.
		for h := 0; h < 2; h++ {
			lo, hi := h*half, (h+1)*half
			clo := (1 - h) * half
			for w := lo; w < hi; w++ {
				draws[w] = e.move.draw(e.rng, half)
				partner := (clo + draws[w].partner) * e.dim
				e.move.propose(
					newPos[w*e.dim:(w+1)*e.dim],
					e.pos[w*e.dim:(w+1)*e.dim],
					e.pos[partner:partner+e.dim],
					draws[w].z,
				)
			}
			if err := e.evalBatch(ctx, newPos, newLP, lo, hi); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					e.flushCheckpoint(ctx)
					return e.result(), err
				}
				e.setState(StateFailed)
				e.flushCheckpoint(ctx)
				return e.result(), fmt.Errorf("iteration %d: %w", iter, err)
			}
			for w := lo; w < hi; w++ {
				logr := e.move.logAcceptRatio(e.dim, draws[w].z, newLP[w], e.lp[w])
				if math.Log(draws[w].u) < logr {
					copy(e.pos[w*e.dim:(w+1)*e.dim], newPos[w*e.dim:(w+1)*e.dim])
					e.lp[w] = newLP[w]
					accepted[w] = true
					nAccepted++
				}
			}
		}

		e.chain.Append(e.pos, e.lp, accepted)
		e.metric.RecordIteration(ctx, nAccepted, walkers, time.Since(start))

		if nAccepted == 0 {
			stall++
			if stall >= e.cfg.Run.StallWindow {
				e.setState(StateFailed)
				e.flushCheckpoint(ctx)
				return e.result(), fmt.Errorf("%w: %d iterations without acceptance", ErrSamplerStall, stall)
			}
		} else {
			stall = 0
		}

		done := e.chain.Len()
		if e.cfg.Checkpoint.Enabled && e.store != nil && done%e.cfg.Checkpoint.Interval == 0 {
			err := e.saveCheckpoint(ctx)
			e.tracer.TraceCheckpoint(ctx, done, err)
		}

		if ci := e.cfg.Convergence.CheckInterval; ci > 0 && done%ci == 0 {
			if e.checkConvergence(ctx) {
				e.setState(StateConverged)
				e.flushCheckpoint(ctx)
				return e.result(), nil
			}
		}
	}

	e.setState(StateBudgetExhausted)
	e.flushCheckpoint(ctx)
	return e.result(), nil
}

// initializeWalkers places the ensemble in a Gaussian ball around the
// evaluator's current parameter vector, redrawing any walker whose
// position scores -Inf.
func (e *Engine) initializeWalkers(ctx context.Context) error {
	center := e.eval.InitialVector()
	lo, hi := e.eval.Bounds()
	walkers := e.cfg.Run.Walkers

	e.pos = make([]float64, walkers*e.dim)
	e.lp = make([]float64, walkers)
	pending := make([]int, walkers)
	for w := range pending {
		pending[w] = w
	}

	for attempt := 0; attempt < e.cfg.Run.MaxInitRetries && len(pending) > 0; attempt++ {
		for _, w := range pending {
			for d := 0; d < e.dim; d++ {
				span := hi[d] - lo[d]
				v := center[d] + e.rng.NormFloat64()*e.cfg.Run.InitBallScale*span
				if v < lo[d] {
					v = lo[d]
				} else if v > hi[d] {
					v = hi[d]
				}
				e.pos[w*e.dim+d] = v
			}
		}
		if err := e.evalPending(ctx, pending); err != nil {
			return err
		}
		kept := pending[:0]
		for _, w := range pending {
			if math.IsInf(e.lp[w], -1) {
				kept = append(kept, w)
			}
		}
		pending = kept
	}
	if len(pending) > 0 {
		return fmt.Errorf("%w: %d walkers after %d attempts", ErrInitStall, len(pending), e.cfg.Run.MaxInitRetries)
	}
	e.logger.Info("walker ball initialized",
		slog.String("run_id", e.runID),
		slog.Int("walkers", walkers),
		slog.Int("dim", e.dim),
	)
	return nil
}

// evalBatch scores proposals for walkers in [lo, hi) on the worker pool.
// Results land at fixed indices, so scheduling cannot reorder them.
func (e *Engine) evalBatch(ctx context.Context, vecs []float64, out []float64, lo, hi int) error {
	g, gctx := errgroup.WithContext(ctx)
	jobs := make(chan int)
	for _, ev := range e.evals {
		g.Go(func() error {
			for w := range jobs {
				lp, err := ev.LogPosterior(gctx, vecs[w*e.dim:(w+1)*e.dim])
				if err != nil {
					return err
				}
				out[w] = lp
			}
			return nil
		})
	}
	g.Go(func() error {
		defer close(jobs)
		for w := lo; w < hi; w++ {
			select {
			case jobs <- w:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})
	return g.Wait()
}

func (e *Engine) evalPending(ctx context.Context, pending []int) error {
	g, gctx := errgroup.WithContext(ctx)
	jobs := make(chan int)
	for _, ev := range e.evals {
		g.Go(func() error {
			for w := range jobs {
				lp, err := ev.LogPosterior(gctx, e.pos[w*e.dim:(w+1)*e.dim])
				if err != nil {
					return err
				}
				e.lp[w] = lp
			}
			return nil
		})
	}
	g.Go(func() error {
		defer close(jobs)
		for _, w := range pending {
			select {
			case jobs <- w:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})
	return g.Wait()
}

func (e *Engine) checkConvergence(ctx context.Context) bool {
	d, err := ComputeDiagnostics(e.chain, e.cfg.Convergence, e.prevTau)
	if err != nil {
		// Too short to diagnose yet.
		return false
	}
	e.diag = d
	e.hasDiag = true
	e.prevTau = d.MaxAutocorrTime
	e.tracer.TraceConvergenceCheck(ctx, d)
	return d.Converged
}

func (e *Engine) saveCheckpoint(ctx context.Context) error {
	if e.store == nil {
		return nil
	}
	rngState, err := e.src.MarshalBinary()
	if err != nil {
		return fmt.Errorf("marshal rng: %w", err)
	}
	snap := &Snapshot{
		RunID:      e.runID,
		CreatedAt:  time.Now().UTC(),
		Iteration:  e.chain.Len(),
		State:      e.State().String(),
		Config:     e.cfg,
		FreeNames:  e.eval.FreeNames(),
		Chain:      e.chain.State(),
		RNGState:   rngState,
		PrevMaxTau: e.prevTau,
	}
	if err := e.store.SaveSnapshot(context.WithoutCancel(ctx), snap); err != nil {
		return err
	}
	e.metric.RecordCheckpoint(ctx)
	return nil
}

// flushCheckpoint writes a terminal snapshot, logging rather than
// propagating failures so they cannot mask the run outcome.
func (e *Engine) flushCheckpoint(ctx context.Context) {
	if !e.cfg.Checkpoint.Enabled || e.store == nil || e.chain.Len() == 0 {
		return
	}
	if err := e.saveCheckpoint(ctx); err != nil {
		e.logger.Warn("final checkpoint failed",
			slog.String("run_id", e.runID),
			slog.String("error", err.Error()),
		)
	}
}

func (e *Engine) result() *Result {
	r := &Result{
		RunID:      e.runID,
		State:      e.State(),
		Iterations: e.chain.Len(),
		FreeNames:  e.eval.FreeNames(),
	}
	if best, lp, err := e.chain.Best(); err == nil {
		r.BestVector = best
		r.BestLogProb = lp
	} else {
		r.BestLogProb = math.Inf(-1)
	}
	burn := int(e.cfg.Run.BurnInFraction * float64(e.chain.Len()))
	if mean, err := e.chain.PosteriorMean(burn); err == nil {
		r.PosteriorMean = mean
	}
	if e.hasDiag {
		r.Diagnostics = e.diag
	} else if d, err := ComputeDiagnostics(e.chain, e.cfg.Convergence, e.prevTau); err == nil {
		r.Diagnostics = d
	}
	return r
}
