package instrumentation

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys
const (
	attrStatus    = "status"
	attrSource    = "source"
	attrAction    = "action"
	attrBackend   = "backend"
	attrOperation = "operation"
	attrTool      = "tool"
	attrAccount   = "account"
)

// Metrics provides methods for recording observability metrics.
// A nil *Metrics or a zero Metrics records nothing.
type Metrics struct {
	// Reconciliation metrics
	scansTotal          metric.Int64Counter
	scanDuration        metric.Float64Histogram
	mutationsTotal      metric.Int64Counter
	overridesPending    metric.Int64UpDownCounter
	digestRegenerations metric.Int64Counter
	notificationsTotal  metric.Int64Counter
	activeSessions      metric.Int64UpDownCounter

	// Backend metrics
	backendOperationsTotal   metric.Int64Counter
	backendOperationDuration metric.Float64Histogram

	// MCP Tool metrics
	toolInvocationsTotal metric.Int64Counter
	toolDuration         metric.Float64Histogram

	// detailedLabels controls whether high-cardinality labels are included
	detailedLabels bool
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
func NewMetrics(meter metric.Meter, detailedLabels bool) (*Metrics, error) {
	m := &Metrics{
		detailedLabels: detailedLabels,
	}

	var err error

	m.scansTotal, err = meter.Int64Counter(
		"scans_total",
		metric.WithDescription("Total number of snapshot loads by source and status"),
		metric.WithUnit("{scan}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scans_total counter: %w", err)
	}

	m.scanDuration, err = meter.Float64Histogram(
		scanDurationMetric,
		metric.WithDescription("Snapshot load duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(DefaultScanBuckets...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scan_duration_seconds histogram: %w", err)
	}

	m.mutationsTotal, err = meter.Int64Counter(
		"mutations_total",
		metric.WithDescription("Total number of optimistic mutations by action and outcome"),
		metric.WithUnit("{mutation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mutations_total counter: %w", err)
	}

	m.overridesPending, err = meter.Int64UpDownCounter(
		"overrides_pending",
		metric.WithDescription("Number of optimistic overrides awaiting backend confirmation"),
		metric.WithUnit("{override}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create overrides_pending gauge: %w", err)
	}

	m.digestRegenerations, err = meter.Int64Counter(
		"digest_regenerations_total",
		metric.WithDescription("Total number of digest regeneration attempts by status"),
		metric.WithUnit("{regeneration}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create digest_regenerations_total counter: %w", err)
	}

	m.notificationsTotal, err = meter.Int64Counter(
		"notifications_total",
		metric.WithDescription("Total number of user notifications by kind"),
		metric.WithUnit("{notification}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create notifications_total counter: %w", err)
	}

	m.activeSessions, err = meter.Int64UpDownCounter(
		"active_sessions",
		metric.WithDescription("Number of open mailbox sessions"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create active_sessions gauge: %w", err)
	}

	m.backendOperationsTotal, err = meter.Int64Counter(
		"backend_operations_total",
		metric.WithDescription("Total number of mailbox backend operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create backend_operations_total counter: %w", err)
	}

	m.backendOperationDuration, err = meter.Float64Histogram(
		"backend_operation_duration_seconds",
		metric.WithDescription("Mailbox backend operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create backend_operation_duration_seconds histogram: %w", err)
	}

	m.toolInvocationsTotal, err = meter.Int64Counter(
		"mcp_tool_invocations_total",
		metric.WithDescription("Total number of MCP tool invocations"),
		metric.WithUnit("{invocation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_tool_invocations_total counter: %w", err)
	}

	m.toolDuration, err = meter.Float64Histogram(
		"mcp_tool_duration_seconds",
		metric.WithDescription("MCP tool execution duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_tool_duration_seconds histogram: %w", err)
	}

	return m, nil
}

// RecordScan records a snapshot load. source is "cache" or "scan"; status is
// one of StatusSuccess, StatusError, StatusProcessing or StatusStale.
func (m *Metrics) RecordScan(ctx context.Context, source, status string, duration time.Duration) {
	if m == nil || m.scansTotal == nil || m.scanDuration == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String(attrSource, source),
		attribute.String(attrStatus, status),
	)
	m.scansTotal.Add(ctx, 1, attrs)
	m.scanDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordMutation records the outcome of an optimistic mutation.
// status is StatusRequested, StatusConfirmed or StatusFailed.
func (m *Metrics) RecordMutation(ctx context.Context, action, status string) {
	if m == nil || m.mutationsTotal == nil {
		return
	}

	m.mutationsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrAction, action),
		attribute.String(attrStatus, status),
	))
}

// AddPendingOverrides adjusts the pending overrides gauge by delta.
func (m *Metrics) AddPendingOverrides(ctx context.Context, delta int64) {
	if m == nil || m.overridesPending == nil || delta == 0 {
		return
	}
	m.overridesPending.Add(ctx, delta)
}

// RecordDigestRegeneration records a digest regeneration attempt.
func (m *Metrics) RecordDigestRegeneration(ctx context.Context, status string) {
	if m == nil || m.digestRegenerations == nil {
		return
	}
	m.digestRegenerations.Add(ctx, 1, metric.WithAttributes(attribute.String(attrStatus, status)))
}

// RecordNotification records a user notification of the given kind.
func (m *Metrics) RecordNotification(ctx context.Context, kind string) {
	if m == nil || m.notificationsTotal == nil {
		return
	}
	m.notificationsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordBackendOperation records a mailbox backend call.
//
// Parameters:
//   - backend: BackendHTTP or BackendGmail
//   - operation: operation name (scan, cached, archive, unsubscribe, ...)
//   - status: StatusSuccess or StatusError
//   - duration: time taken for the call
func (m *Metrics) RecordBackendOperation(ctx context.Context, backend, operation, status string, duration time.Duration) {
	if m == nil || m.backendOperationsTotal == nil || m.backendOperationDuration == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String(attrBackend, backend),
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	)
	m.backendOperationsTotal.Add(ctx, 1, attrs)
	m.backendOperationDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordToolInvocation records an MCP tool invocation with tool name, status, and duration.
func (m *Metrics) RecordToolInvocation(ctx context.Context, toolName, status string, duration time.Duration) {
	m.RecordToolInvocationWithAccount(ctx, toolName, status, "", duration)
}

// RecordToolInvocationWithAccount records an MCP tool invocation. The account
// label is only added when detailed labels are enabled.
func (m *Metrics) RecordToolInvocationWithAccount(ctx context.Context, toolName, status, account string, duration time.Duration) {
	if m == nil || m.toolInvocationsTotal == nil || m.toolDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrTool, toolName),
		attribute.String(attrStatus, status),
	}
	if m.detailedLabels && account != "" {
		attrs = append(attrs, attribute.String(attrAccount, account))
	}

	m.toolInvocationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.toolDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// IncrementActiveSessions increments the open sessions gauge.
func (m *Metrics) IncrementActiveSessions(ctx context.Context) {
	if m == nil || m.activeSessions == nil {
		return
	}
	m.activeSessions.Add(ctx, 1)
}

// DecrementActiveSessions decrements the open sessions gauge.
func (m *Metrics) DecrementActiveSessions(ctx context.Context) {
	if m == nil || m.activeSessions == nil {
		return
	}
	m.activeSessions.Add(ctx, -1)
}
