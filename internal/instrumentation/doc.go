// Package instrumentation provides OpenTelemetry metrics and tracing for the
// inboxdigest engine and its MCP server.
//
// # Metrics
//
// Reconciliation:
//   - scans_total / scan_duration_seconds: snapshot loads by source (cache, scan) and status
//   - mutations_total: optimistic mutations by action and outcome
//   - overrides_pending: overrides awaiting backend confirmation
//   - digest_regenerations_total: digest regeneration attempts by status
//   - notifications_total: user notifications by kind
//   - active_sessions: open mailbox sessions
//
// Backends:
//   - backend_operations_total / backend_operation_duration_seconds
//
// MCP tools:
//   - mcp_tool_invocations_total / mcp_tool_duration_seconds
//
// # Tracing
//
// Spans are created for tool invocations (tool.<name>) and backend calls
// (backend.<operation>).
//
// # Configuration
//
// DefaultConfig reads:
//   - INBOXDIGEST_TELEMETRY_ENABLED (default: true)
//   - INBOXDIGEST_METRICS_EXPORTER: prometheus, otlp, stdout (default: prometheus)
//   - INBOXDIGEST_TRACING_EXPORTER: otlp, stdout, none (default: none)
//   - INBOXDIGEST_SCAN_BUCKETS: comma-separated scan_duration_seconds boundaries
//   - INBOXDIGEST_METRICS_DETAILED_LABELS, INBOXDIGEST_AUDIT_ENABLED, INBOXDIGEST_AUDIT_INCLUDE_PII
//   - OTEL_EXPORTER_OTLP_ENDPOINT, OTEL_EXPORTER_OTLP_INSECURE, OTEL_METRIC_EXPORT_INTERVAL
//   - OTEL_TRACES_SAMPLER_ARG, OTEL_SERVICE_NAME
//
// The telemetry resource carries inboxdigest.backend naming the mailbox
// backend in use.
//
// A nil *Metrics is valid and records nothing, so components can take one
// optionally.
package instrumentation
