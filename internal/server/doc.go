// Package server hosts the long-lived parts of the MCP server.
//
// ServerContext owns one session.Session per mailbox account. Sessions are
// opened on first use through a SessionFactory, replaced when their backend
// login expired, and closed after an idle timeout or on Shutdown. Each
// account also gets a bounded notification buffer that the
// mailbox_notifications tool drains.
//
// MetricsServer exposes Prometheus metrics and the HealthChecker endpoints
// (/healthz, /readyz, /healthz/detailed) on a dedicated port.
package server
