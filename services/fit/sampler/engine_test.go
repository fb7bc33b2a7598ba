// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sampler

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/AleutianAI/ppdfit/services/fit/data"
	"github.com/AleutianAI/ppdfit/services/fit/grid"
	"github.com/AleutianAI/ppdfit/services/fit/likelihood"
	"github.com/AleutianAI/ppdfit/services/fit/model"
	"github.com/AleutianAI/ppdfit/services/fit/transform"
)

const testWavelength = 10e-6

// memStore is an in-memory CheckpointStore for engine tests.
type memStore struct {
	mu    sync.Mutex
	snaps map[string]*Snapshot
	saves int
}

func newMemStore() *memStore {
	return &memStore{snaps: make(map[string]*Snapshot)}
}

func (s *memStore) SaveSnapshot(_ context.Context, snap *Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Round-trip through the wire format so tests cover it too.
	raw, err := snap.Encode()
	if err != nil {
		return err
	}
	decoded, err := DecodeSnapshot(raw)
	if err != nil {
		return err
	}
	s.snaps[snap.RunID] = decoded
	s.saves++
	return nil
}

func (s *memStore) LoadSnapshot(_ context.Context, runID string) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snaps[runID]
	if !ok {
		return nil, ErrNoChain
	}
	return snap, nil
}

// ringGrid is the imaging grid the engine tests share: 24 mas field at
// half a milliarcsecond per pixel.
func ringGrid(t *testing.T) *grid.Grid {
	t.Helper()
	g, err := grid.New(24, 48)
	require.NoError(t, err)
	return g
}

// ringTemplates lays out the (u,v) coverage the engine tests fit
// against: total flux, visibilities on two position angles of baselines
// long enough to resolve a milliarcsecond-scale ring at 10 um, squared
// visibilities on a third angle, and one closure triangle.
func ringTemplates(t *testing.T) []data.Sample {
	t.Helper()
	uvAt := func(bxM, byM float64) grid.UVPoint {
		uv, err := grid.UVFromBaseline(bxM, byM, testWavelength)
		require.NoError(t, err)
		return uv
	}
	samples := []data.Sample{
		{Kind: data.KindFlux, Wavelength: testWavelength, Value: 1, Sigma: 0.05},
	}
	for _, bl := range []float64{100, 200, 300, 400} {
		samples = append(samples,
			data.Sample{Kind: data.KindVis, UV: uvAt(bl, 0), Wavelength: testWavelength, Value: 0.5, Sigma: 0.02},
			data.Sample{Kind: data.KindVis, UV: uvAt(0, bl), Wavelength: testWavelength, Value: 0.5, Sigma: 0.02},
		)
	}
	for _, bl := range []float64{150, 350} {
		d := bl / math.Sqrt2
		samples = append(samples, data.Sample{
			Kind: data.KindVis2, UV: uvAt(d, d), Wavelength: testWavelength, Value: 0.25, Sigma: 0.02,
		})
	}
	u1, u2 := uvAt(200, 0), uvAt(0, 300)
	samples = append(samples, data.Sample{
		Kind:       data.KindClosurePhase,
		Triangle:   [3]grid.UVPoint{u1, u2, u1.Add(u2)},
		Wavelength: testWavelength,
		Value:      0,
		Sigma:      1.0,
	})
	return samples
}

// ringEvaluator builds an evaluator over noisy data synthesized from a
// ring of the given truth radius, with the model started at startRadius.
func ringEvaluator(t *testing.T, truthRadius, startRadius float64) *likelihood.Evaluator {
	t.Helper()
	g := ringGrid(t)
	templates := ringTemplates(t)

	truthSet, err := model.NewRingParams(truthRadius, 0.5, 1.0)
	require.NoError(t, err)
	truth, err := model.NewComposite(model.NewRing(truthSet))
	require.NoError(t, err)
	truthEval, err := likelihood.New(truth, g, mustDataset(t, templates), transform.Direct{}, likelihood.Config{}, nil)
	require.NoError(t, err)

	ds, err := likelihood.Synthesize(context.Background(), truthEval, templates, rand.New(rand.NewPCG(101, 103)))
	require.NoError(t, err)

	startSet, err := model.NewRingParams(startRadius, 0.5, 1.0)
	require.NoError(t, err)
	start, err := model.NewComposite(model.NewRing(startSet))
	require.NoError(t, err)
	ev, err := likelihood.New(start, g, ds, transform.Direct{}, likelihood.Config{}, nil)
	require.NoError(t, err)
	return ev
}

func mustDataset(t *testing.T, samples []data.Sample) *data.Dataset {
	t.Helper()
	ds, err := data.New(samples)
	require.NoError(t, err)
	return ds
}

func quickConfig(iterations int) FitConfig {
	cfg := DefaultFitConfig()
	cfg.Run.Walkers = 16
	cfg.Run.MaxIterations = iterations
	cfg.Run.Seed = 7
	cfg.Convergence.CheckInterval = 0
	cfg.Observability.TracingEnabled = false
	cfg.Observability.MetricsEnabled = false
	return cfg
}

func TestNewEngine_Validation(t *testing.T) {
	ev := ringEvaluator(t, 2.0, 2.0)

	_, err := NewEngine(nil, quickConfig(10))
	assert.ErrorIs(t, err, ErrConfiguration)

	cfg := quickConfig(10)
	cfg.Run.Walkers = 2 // < 4
	_, err = NewEngine(ev, cfg)
	assert.ErrorIs(t, err, ErrConfiguration)

	cfg = quickConfig(10)
	cfg.Run.Walkers = 4 // exactly twice the 2-dim search space
	_, err = NewEngine(ev, cfg)
	assert.ErrorIs(t, err, ErrConfiguration, "ensemble must exceed twice the dimension")

	cfg = quickConfig(10)
	cfg.Move.StretchScale = 0.5
	_, err = NewEngine(ev, cfg)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestEngine_RunExhaustsBudget(t *testing.T) {
	ev := ringEvaluator(t, 2.0, 2.0)
	eng, err := NewEngine(ev, quickConfig(25))
	require.NoError(t, err)

	result, err := eng.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateBudgetExhausted, result.State)
	assert.Equal(t, 25, result.Iterations)
	assert.Equal(t, 25, eng.Chain().Len())
	assert.Equal(t, []string{"c1_ring_radius", "c1_ring_pa"}, result.FreeNames)
	assert.False(t, math.IsInf(result.BestLogProb, -1))

	// A finished engine refuses to run again.
	_, err = eng.Run(context.Background())
	assert.ErrorIs(t, err, ErrRunFinished)
}

func TestEngine_SameSeedReproducibleAcrossWorkerCounts(t *testing.T) {
	run := func(workers int) ChainState {
		ev := ringEvaluator(t, 2.0, 2.0)
		cfg := quickConfig(30)
		cfg.Parallel.Workers = workers
		eng, err := NewEngine(ev, cfg)
		require.NoError(t, err)
		_, err = eng.Run(context.Background())
		require.NoError(t, err)
		return eng.Chain().State()
	}

	serial := run(1)
	parallel := run(4)
	assert.Equal(t, serial.Positions, parallel.Positions,
		"pre-drawn randomness makes chains independent of scheduling")
	assert.Equal(t, serial.LogProb, parallel.LogProb)
	assert.Equal(t, serial.Accepts, parallel.Accepts)
}

func TestEngine_RecoversRingRadius(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping sampling run in short mode")
	}
	const truth = 2.0
	ev := ringEvaluator(t, truth, 2.5)
	cfg := quickConfig(500)
	cfg.Run.Walkers = 20
	eng, err := NewEngine(ev, cfg)
	require.NoError(t, err)

	result, err := eng.Run(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, result.BestVector)
	require.NotEmpty(t, result.PosteriorMean)

	// Propagate the injected noise onto the radius: a central-difference
	// sensitivity of every synthetic observable, combined in quadrature.
	// The gridded brightness quantizes the radius at the pixel scale, so
	// that is the tolerance floor.
	g := ringGrid(t)
	step := g.PixelScale() / 2
	ctx := context.Background()
	plus, err := ev.Synthetic(ctx, []float64{truth + step, 0})
	require.NoError(t, err)
	minus, err := ev.Synthetic(ctx, []float64{truth - step, 0})
	require.NoError(t, err)
	var info float64
	for i, s := range ringTemplates(t) {
		d := (plus[i] - minus[i]) / (2 * step)
		info += (d / s.Sigma) * (d / s.Sigma)
	}
	require.Positive(t, info)
	tol := 3/math.Sqrt(info) + g.PixelScale()

	assert.InDelta(t, truth, result.BestVector[0], tol,
		"best sample should sit near the truth radius")
	assert.InDelta(t, truth, result.PosteriorMean[0], tol,
		"post-burn-in mean should sit near the truth radius")

	af := eng.Chain().AcceptanceFraction()
	var mean float64
	for _, f := range af {
		mean += f
	}
	mean /= float64(len(af))
	assert.Greater(t, mean, 0.05, "sampler should be accepting proposals")
}

func TestEngine_CheckpointAndResumeMatchesUninterrupted(t *testing.T) {
	const total, interruptAt = 40, 20

	full := func() ChainState {
		ev := ringEvaluator(t, 2.0, 2.0)
		eng, err := NewEngine(ev, quickConfig(total))
		require.NoError(t, err)
		_, err = eng.Run(context.Background())
		require.NoError(t, err)
		return eng.Chain().State()
	}()

	// Interrupted run: stop at 20 iterations with a checkpoint saved.
	store := newMemStore()
	ev := ringEvaluator(t, 2.0, 2.0)
	cfg := quickConfig(interruptAt)
	cfg.Checkpoint.Enabled = true
	cfg.Checkpoint.Interval = 10
	eng, err := NewEngine(ev, cfg, WithCheckpointStore(store))
	require.NoError(t, err)
	_, err = eng.Run(context.Background())
	require.NoError(t, err)
	require.GreaterOrEqual(t, store.saves, 2)

	snap, err := store.LoadSnapshot(context.Background(), eng.RunID())
	require.NoError(t, err)
	require.Equal(t, interruptAt, snap.Iteration)

	// Resume with a larger budget and finish the run.
	snap.Config.Run.MaxIterations = total
	resumedEval := ringEvaluator(t, 2.0, 2.0)
	resumed, err := NewEngineFromSnapshot(resumedEval, snap, WithCheckpointStore(store))
	require.NoError(t, err)
	assert.Equal(t, eng.RunID(), resumed.RunID())
	_, err = resumed.Run(context.Background())
	require.NoError(t, err)

	got := resumed.Chain().State()
	assert.Equal(t, full.Positions, got.Positions,
		"resumed chain must match the uninterrupted run")
	assert.Equal(t, full.LogProb, got.LogProb)
}

func TestNewEngineFromSnapshot_ParameterMismatch(t *testing.T) {
	store := newMemStore()
	ev := ringEvaluator(t, 2.0, 2.0)
	cfg := quickConfig(10)
	cfg.Checkpoint.Enabled = true
	cfg.Checkpoint.Interval = 5
	eng, err := NewEngine(ev, cfg, WithCheckpointStore(store))
	require.NoError(t, err)
	_, err = eng.Run(context.Background())
	require.NoError(t, err)

	snap, err := store.LoadSnapshot(context.Background(), eng.RunID())
	require.NoError(t, err)
	snap.FreeNames = []string{"c1_disk_rin", "c1_disk_q"}

	_, err = NewEngineFromSnapshot(ringEvaluator(t, 2.0, 2.0), snap)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestEngine_StallFailsRunAndFlushesCheckpoint(t *testing.T) {
	store := newMemStore()
	ev := ringEvaluator(t, 2.0, 2.0)
	cfg := quickConfig(10)
	cfg.Checkpoint.Enabled = true
	cfg.Checkpoint.Interval = 5
	eng, err := NewEngine(ev, cfg, WithCheckpointStore(store))
	require.NoError(t, err)
	_, err = eng.Run(context.Background())
	require.NoError(t, err)

	snap, err := store.LoadSnapshot(context.Background(), eng.RunID())
	require.NoError(t, err)
	require.Equal(t, 10, snap.Iteration)

	// Resume against recorded log posteriors no vector can reach: every
	// proposal scores astronomically below the restored ensemble, so
	// nothing is ever accepted and the stall window must trip.
	for i := range snap.Chain.LogProb {
		snap.Chain.LogProb[i] = 1e6
	}
	snap.Config.Run.MaxIterations = 50
	snap.Config.Run.StallWindow = 3

	resumed, err := NewEngineFromSnapshot(ringEvaluator(t, 2.0, 2.0), snap, WithCheckpointStore(store))
	require.NoError(t, err)
	result, err := resumed.Run(context.Background())
	require.ErrorIs(t, err, ErrSamplerStall)
	assert.Equal(t, StateFailed, resumed.State())
	require.NotNil(t, result)
	assert.Equal(t, StateFailed, result.State)
	assert.Equal(t, snap.Iteration+3, result.Iterations,
		"the stalled iterations still land in the chain")

	// The failure path flushes a terminal snapshot so the run can be
	// inspected and resumed.
	final, err := store.LoadSnapshot(context.Background(), resumed.RunID())
	require.NoError(t, err)
	assert.Equal(t, snap.Iteration+3, final.Iteration)
	assert.Equal(t, StateFailed.String(), final.State)
}

var errBackendDown = errors.New("visibility backend unavailable")

// flakyTransform evaluates like Direct until its call budget runs out,
// then errors on every call. Clones share the counter.
type flakyTransform struct {
	failAfter int64
	calls     *atomic.Int64
}

func (f flakyTransform) Visibilities(ctx context.Context, b *mat.Dense, g *grid.Grid, uv []grid.UVPoint) ([]complex128, error) {
	if f.calls.Add(1) > f.failAfter {
		return nil, errBackendDown
	}
	return transform.Direct{}.Visibilities(ctx, b, g, uv)
}

func TestEngine_EvaluatorFailureFailsRunAndFlushes(t *testing.T) {
	g := ringGrid(t)
	templates := ringTemplates(t)

	truthSet, err := model.NewRingParams(2.0, 0.5, 1.0)
	require.NoError(t, err)
	truth, err := model.NewComposite(model.NewRing(truthSet))
	require.NoError(t, err)
	truthEval, err := likelihood.New(truth, g, mustDataset(t, templates), transform.Direct{}, likelihood.Config{}, nil)
	require.NoError(t, err)
	ds, err := likelihood.Synthesize(context.Background(), truthEval, templates, rand.New(rand.NewPCG(101, 103)))
	require.NoError(t, err)

	// One transform call per evaluation: 16 for the walker ball, 16 per
	// iteration, then the backend dies partway through iteration 1.
	startSet, err := model.NewRingParams(2.0, 0.5, 1.0)
	require.NoError(t, err)
	start, err := model.NewComposite(model.NewRing(startSet))
	require.NoError(t, err)
	tr := flakyTransform{failAfter: 40, calls: new(atomic.Int64)}
	ev, err := likelihood.New(start, g, ds, tr, likelihood.Config{}, nil)
	require.NoError(t, err)

	store := newMemStore()
	cfg := quickConfig(50)
	cfg.Checkpoint.Enabled = true
	cfg.Checkpoint.Interval = 1000 // only the terminal flush writes
	eng, err := NewEngine(ev, cfg, WithCheckpointStore(store))
	require.NoError(t, err)

	result, err := eng.Run(context.Background())
	require.ErrorIs(t, err, errBackendDown)
	assert.Equal(t, StateFailed, eng.State())
	require.NotNil(t, result)
	assert.Equal(t, StateFailed, result.State)
	require.Positive(t, result.Iterations, "completed iterations survive the failure")

	snap, err := store.LoadSnapshot(context.Background(), eng.RunID())
	require.NoError(t, err, "the failure path must flush a snapshot")
	assert.Equal(t, result.Iterations, snap.Iteration)
	assert.Equal(t, StateFailed.String(), snap.State)
}

func TestEngine_CancelledBeforeStart(t *testing.T) {
	ev := ringEvaluator(t, 2.0, 2.0)
	eng, err := NewEngine(ev, quickConfig(100))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = eng.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEngine_InitStallOnHostileStart(t *testing.T) {
	// A disk model whose fixed outer radius sits below the entire inner
	// radius prior: every draw is invalid geometry, so initialization
	// must give up with ErrInitStall.
	g, err := grid.New(32, 32)
	require.NoError(t, err)
	uv, err := grid.UVFromBaseline(20, 10, testWavelength)
	require.NoError(t, err)
	ds := mustDataset(t, []data.Sample{
		{Kind: data.KindVis, UV: uv, Wavelength: testWavelength, Value: 0.5, Sigma: 0.02},
	})

	set, err := model.NewPowerLawDiskParams(5.0, 8.0, 0.5, 0.3)
	require.NoError(t, err)
	require.NoError(t, set.SetValue("rout", 0.11)) // below rin's whole prior reach at 5.0
	m, err := model.NewComposite(model.NewPowerLawDisk(set))
	require.NoError(t, err)
	ev, err := likelihood.New(m, g, ds, transform.Direct{}, likelihood.Config{}, nil)
	require.NoError(t, err)

	cfg := quickConfig(10)
	cfg.Run.MaxInitRetries = 3
	eng, err := NewEngine(ev, cfg)
	require.NoError(t, err)

	_, err = eng.Run(context.Background())
	assert.ErrorIs(t, err, ErrInitStall)
	assert.Equal(t, StateFailed, eng.State())
}
