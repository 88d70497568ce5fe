// SPDX-License-Identifier: Apache-2.0
// Package telemetry provides observability for Strategos workflow runs.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/amontoro/strategos/pkg/errors"
)

// WorkflowMetrics tracks run and step outcomes for production monitoring.
type WorkflowMetrics struct {
	// runCounter tracks workflow runs by playbook and final status
	runCounter metric.Int64Counter

	// stepCounter tracks executed steps by type and status
	stepCounter metric.Int64Counter

	// stepDuration tracks step wall time in seconds by type
	stepDuration metric.Float64Histogram

	// errorCounter tracks errors by code and step type
	errorCounter metric.Int64Counter
}

// NewWorkflowMetrics creates a workflow metrics tracker with OTEL meters.
func NewWorkflowMetrics() (*WorkflowMetrics, error) {
	meter := otel.Meter("strategos/workflow")

	runCounter, err := meter.Int64Counter(
		"strategos.workflow.runs",
		metric.WithDescription("Workflow runs by playbook and status"),
	)
	if err != nil {
		return nil, err
	}

	stepCounter, err := meter.Int64Counter(
		"strategos.workflow.steps",
		metric.WithDescription("Executed steps by type and status"),
	)
	if err != nil {
		return nil, err
	}

	stepDuration, err := meter.Float64Histogram(
		"strategos.workflow.step.duration",
		metric.WithDescription("Step duration in seconds by type"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	errorCounter, err := meter.Int64Counter(
		"strategos.workflow.errors",
		metric.WithDescription("Workflow errors by code and step type"),
	)
	if err != nil {
		return nil, err
	}

	return &WorkflowMetrics{
		runCounter:   runCounter,
		stepCounter:  stepCounter,
		stepDuration: stepDuration,
		errorCounter: errorCounter,
	}, nil
}

// RecordRun increments the run counter for the given playbook and status.
func (wm *WorkflowMetrics) RecordRun(ctx context.Context, playbook, status string) {
	if wm == nil {
		return
	}
	wm.runCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("playbook", playbook),
			attribute.String("status", status),
		),
	)
}

// RecordStep records one executed step and its duration.
func (wm *WorkflowMetrics) RecordStep(ctx context.Context, stepType, status string, elapsed time.Duration) {
	if wm == nil {
		return
	}
	wm.stepCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("step.type", stepType),
			attribute.String("status", status),
		),
	)
	wm.stepDuration.Record(ctx, elapsed.Seconds(),
		metric.WithAttributes(
			attribute.String("step.type", stepType),
		),
	)
}

// RecordError increments the error counter for the given error and step type.
func (wm *WorkflowMetrics) RecordError(ctx context.Context, err error, stepType string) {
	if wm == nil || err == nil {
		return
	}
	code := "UNKNOWN"
	recoverable := "unknown"
	if se, ok := err.(*errors.StrategosError); ok {
		code = string(se.Code)
		recoverable = se.RecoverableString()
	}
	wm.errorCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("error.code", code),
			attribute.String("step.type", stepType),
			attribute.String("recoverable", recoverable),
		),
	)
}
