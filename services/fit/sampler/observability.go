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
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const samplerTracerName = "ppdfit.sampler"

// FitTracer provides OpenTelemetry tracing for sampler runs.
//
// Thread Safety: Safe for concurrent use.
type FitTracer struct {
	tracer  trace.Tracer
	logger  *slog.Logger
	enabled bool
}

// NewFitTracer creates a new tracer.
//
// Inputs:
//   - logger: Logger for structured logging (can be nil for default).
//   - config: Observability configuration.
//
// Outputs:
//   - *FitTracer: Tracer instance.
func NewFitTracer(logger *slog.Logger, config ObservabilityConfig) *FitTracer {
	if logger == nil {
		logger = slog.Default()
	}
	return &FitTracer{
		tracer:  otel.Tracer(samplerTracerName),
		logger:  logger,
		enabled: config.TracingEnabled,
	}
}

// StartRun starts a span for an entire sampler run.
//
// Outputs:
//   - context.Context: Context with span.
//   - trace.Span: The created span (noop if tracing disabled).
func (t *FitTracer) StartRun(ctx context.Context, runID string, cfg FitConfig, dim int) (context.Context, trace.Span) {
	if !t.enabled {
		return ctx, noop.Span{}
	}

	ctx, span := t.tracer.Start(ctx, "sampler.run",
		trace.WithAttributes(
			attribute.String("sampler.run_id", runID),
			attribute.Int("sampler.walkers", cfg.Run.Walkers),
			attribute.Int("sampler.dim", dim),
			attribute.Int("sampler.max_iterations", cfg.Run.MaxIterations),
			attribute.Float64("sampler.stretch_scale", cfg.Move.StretchScale),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)

	t.logger.InfoContext(ctx, "sampler run started",
		slog.String("run_id", runID),
		slog.Int("walkers", cfg.Run.Walkers),
		slog.Int("dim", dim),
		slog.Int("max_iterations", cfg.Run.MaxIterations),
	)

	return ctx, span
}

// EndRun completes the run span.
func (t *FitTracer) EndRun(span trace.Span, result *Result, err error) {
	if span == nil {
		return
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	if result != nil {
		span.SetAttributes(
			attribute.String("sampler.result.state", result.State.String()),
			attribute.Int("sampler.result.iterations", result.Iterations),
			attribute.Float64("sampler.result.best_log_prob", result.BestLogProb),
			attribute.Float64("sampler.result.mean_acceptance", result.Diagnostics.MeanAcceptance),
		)
	}

	span.End()

	if result != nil {
		t.logger.Info("sampler run completed",
			slog.String("state", result.State.String()),
			slog.Int("iterations", result.Iterations),
			slog.Float64("best_log_prob", result.BestLogProb),
		)
	}
}

// TraceConvergenceCheck records a convergence check event on the run span.
func (t *FitTracer) TraceConvergenceCheck(ctx context.Context, d Diagnostics) {
	span := trace.SpanFromContext(ctx)
	if span != nil {
		span.AddEvent("convergence_check",
			trace.WithAttributes(
				attribute.Int("iterations", d.Iterations),
				attribute.Float64("max_autocorr_time", d.MaxAutocorrTime),
				attribute.Float64("mean_acceptance", d.MeanAcceptance),
				attribute.Bool("converged", d.Converged),
			),
		)
	}

	t.logger.Debug("convergence check",
		slog.Int("iterations", d.Iterations),
		slog.Float64("max_autocorr_time", d.MaxAutocorrTime),
		slog.Float64("mean_acceptance", d.MeanAcceptance),
		slog.Bool("converged", d.Converged),
	)
}

// TraceCheckpoint records a checkpoint event on the run span.
func (t *FitTracer) TraceCheckpoint(ctx context.Context, iteration int, err error) {
	span := trace.SpanFromContext(ctx)
	if span != nil {
		attrs := []attribute.KeyValue{attribute.Int("iteration", iteration)}
		if err != nil {
			attrs = append(attrs, attribute.String("error", err.Error()))
		}
		span.AddEvent("checkpoint", trace.WithAttributes(attrs...))
	}

	if err != nil {
		t.logger.Warn("checkpoint failed",
			slog.Int("iteration", iteration),
			slog.String("error", err.Error()),
		)
		return
	}
	t.logger.Debug("checkpoint saved", slog.Int("iteration", iteration))
}

// FitMetrics records sampler metrics through the OpenTelemetry metric API.
//
// Thread Safety: Safe for concurrent use.
type FitMetrics struct {
	enabled     bool
	iterations  metric.Int64Counter
	accepted    metric.Int64Counter
	proposed    metric.Int64Counter
	checkpoints metric.Int64Counter
	iterTime    metric.Float64Histogram
}

// NewFitMetrics creates the sampler instrument set.
//
// Outputs:
//   - *FitMetrics: Metrics instance. Instruments that fail to register
//     are logged and skipped.
func NewFitMetrics(logger *slog.Logger, config ObservabilityConfig) *FitMetrics {
	m := &FitMetrics{enabled: config.MetricsEnabled}
	if !m.enabled {
		return m
	}
	if logger == nil {
		logger = slog.Default()
	}
	meter := otel.Meter(samplerTracerName)

	var err error
	m.iterations, err = meter.Int64Counter("sampler.iterations",
		metric.WithDescription("Completed ensemble iterations"))
	if err != nil {
		logger.Warn("register sampler.iterations", slog.String("error", err.Error()))
	}
	m.accepted, err = meter.Int64Counter("sampler.proposals.accepted",
		metric.WithDescription("Accepted walker proposals"))
	if err != nil {
		logger.Warn("register sampler.proposals.accepted", slog.String("error", err.Error()))
	}
	m.proposed, err = meter.Int64Counter("sampler.proposals.total",
		metric.WithDescription("Total walker proposals"))
	if err != nil {
		logger.Warn("register sampler.proposals.total", slog.String("error", err.Error()))
	}
	m.checkpoints, err = meter.Int64Counter("sampler.checkpoints",
		metric.WithDescription("Checkpoint snapshots written"))
	if err != nil {
		logger.Warn("register sampler.checkpoints", slog.String("error", err.Error()))
	}
	m.iterTime, err = meter.Float64Histogram("sampler.iteration.duration",
		metric.WithDescription("Wall time per ensemble iteration"),
		metric.WithUnit("s"))
	if err != nil {
		logger.Warn("register sampler.iteration.duration", slog.String("error", err.Error()))
	}
	return m
}

// RecordIteration records one completed iteration.
func (m *FitMetrics) RecordIteration(ctx context.Context, accepted, walkers int, elapsed time.Duration) {
	if !m.enabled {
		return
	}
	if m.iterations != nil {
		m.iterations.Add(ctx, 1)
	}
	if m.accepted != nil {
		m.accepted.Add(ctx, int64(accepted))
	}
	if m.proposed != nil {
		m.proposed.Add(ctx, int64(walkers))
	}
	if m.iterTime != nil {
		m.iterTime.Record(ctx, elapsed.Seconds())
	}
}

// RecordCheckpoint records one written snapshot.
func (m *FitMetrics) RecordCheckpoint(ctx context.Context) {
	if !m.enabled || m.checkpoints == nil {
		return
	}
	m.checkpoints.Add(ctx, 1)
}
