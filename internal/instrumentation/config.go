package instrumentation

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/teemow/inboxdigest/internal/logging"
)

// Environment variables read by DefaultConfig. The OTEL_ ones follow the
// OpenTelemetry conventions.
const (
	EnvEnabled          = "INBOXDIGEST_TELEMETRY_ENABLED"
	EnvMetricsExporter  = "INBOXDIGEST_METRICS_EXPORTER"
	EnvTracingExporter  = "INBOXDIGEST_TRACING_EXPORTER"
	EnvScanBuckets      = "INBOXDIGEST_SCAN_BUCKETS"
	EnvDetailedLabels   = "INBOXDIGEST_METRICS_DETAILED_LABELS"
	EnvAuditEnabled     = "INBOXDIGEST_AUDIT_ENABLED"
	EnvAuditIncludePII  = "INBOXDIGEST_AUDIT_INCLUDE_PII"
	EnvServiceName      = "OTEL_SERVICE_NAME"
	EnvOTLPEndpoint     = "OTEL_EXPORTER_OTLP_ENDPOINT"
	EnvOTLPInsecure     = "OTEL_EXPORTER_OTLP_INSECURE"
	EnvSamplingRate     = "OTEL_TRACES_SAMPLER_ARG"
	EnvMetricExportTime = "OTEL_METRIC_EXPORT_INTERVAL"
)

// DefaultServiceName names the service in telemetry resources.
const DefaultServiceName = "inboxdigest"

// DefaultScanBuckets are the scan_duration_seconds boundaries. A cache read
// lands in the first buckets, a full inbox scan in the last ones.
var DefaultScanBuckets = []float64{0.05, 0.25, 1, 5, 15, 30, 60, 120, 300, 600}

// Config configures metrics, tracing and audit logging of the mailbox
// server.
type Config struct {
	ServiceName    string
	ServiceVersion string
	// Backend is recorded on the telemetry resource as inboxdigest.backend.
	Backend string

	// Enabled turns metrics and tracing on. Audit logging is configured
	// separately.
	Enabled bool

	// MetricsExporter is prometheus, otlp or stdout.
	MetricsExporter string
	// TracingExporter is otlp, stdout or none.
	TracingExporter string

	// OTLPEndpoint is host:port of the collector, without scheme.
	OTLPEndpoint string
	OTLPInsecure bool

	// ExportInterval is the push interval of the otlp and stdout metric
	// readers. Zero uses the SDK default.
	ExportInterval time.Duration

	TraceSamplingRate float64

	// ScanBuckets overrides the scan_duration_seconds histogram boundaries.
	ScanBuckets []float64

	// DetailedLabels adds the account label to tool metrics.
	DetailedLabels bool

	Audit AuditLoggingConfig
}

// AuditLoggingConfig configures the tool audit log.
type AuditLoggingConfig struct {
	Enabled bool

	// IncludePII logs raw entity identifiers (sender addresses) instead of
	// their hashes.
	IncludePII bool
}

// DefaultConfig reads the configuration from the process environment.
func DefaultConfig() Config {
	return ConfigFromEnv(os.Getenv)
}

// ConfigFromEnv builds a Config from getenv. Unparsable values fall back to
// their defaults.
func ConfigFromEnv(getenv func(string) string) Config {
	env := envReader(getenv)
	return Config{
		ServiceName:       env.str(EnvServiceName, DefaultServiceName),
		ServiceVersion:    "unknown",
		Enabled:           env.boolean(EnvEnabled, true),
		MetricsExporter:   env.str(EnvMetricsExporter, ExporterPrometheus),
		TracingExporter:   env.str(EnvTracingExporter, ExporterNone),
		OTLPEndpoint:      env.str(EnvOTLPEndpoint, ""),
		OTLPInsecure:      env.boolean(EnvOTLPInsecure, false),
		ExportInterval:    env.millis(EnvMetricExportTime, 0),
		TraceSamplingRate: env.float(EnvSamplingRate, 0.1),
		ScanBuckets:       env.buckets(EnvScanBuckets, DefaultScanBuckets),
		DetailedLabels:    env.boolean(EnvDetailedLabels, false),
		Audit: AuditLoggingConfig{
			Enabled:    env.boolean(EnvAuditEnabled, true),
			IncludePII: env.boolean(EnvAuditIncludePII, false),
		},
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if c.TraceSamplingRate < 0 || c.TraceSamplingRate > 1 {
		errs = append(errs, fmt.Errorf("trace sampling rate must be between 0.0 and 1.0, got %g", c.TraceSamplingRate))
	}
	switch c.MetricsExporter {
	case "", ExporterPrometheus, ExporterOTLP, ExporterStdout:
	default:
		errs = append(errs, fmt.Errorf("invalid metrics exporter %q, must be one of: prometheus, otlp, stdout", c.MetricsExporter))
	}
	switch c.TracingExporter {
	case "", ExporterOTLP, ExporterStdout, ExporterNone:
	default:
		errs = append(errs, fmt.Errorf("invalid tracing exporter %q, must be one of: otlp, stdout, none", c.TracingExporter))
	}
	if c.OTLPEndpoint == "" && (c.MetricsExporter == ExporterOTLP || c.TracingExporter == ExporterOTLP) {
		errs = append(errs, fmt.Errorf("OTLP endpoint is required for the otlp exporter; set %s", EnvOTLPEndpoint))
	}
	if c.ExportInterval < 0 {
		errs = append(errs, fmt.Errorf("metric export interval must not be negative, got %s", c.ExportInterval))
	}
	if !validBuckets(c.ScanBuckets) {
		errs = append(errs, fmt.Errorf("scan buckets must be positive and strictly increasing, got %v", c.ScanBuckets))
	}
	return errors.Join(errs...)
}

func (c Config) withDefaults() Config {
	if c.ServiceName == "" {
		c.ServiceName = DefaultServiceName
	}
	if c.MetricsExporter == "" {
		c.MetricsExporter = ExporterPrometheus
	}
	if c.TracingExporter == "" {
		c.TracingExporter = ExporterNone
	}
	if len(c.ScanBuckets) == 0 {
		c.ScanBuckets = DefaultScanBuckets
	}
	return c
}

func validBuckets(b []float64) bool {
	for i, v := range b {
		if v <= 0 || (i > 0 && v <= b[i-1]) {
			return false
		}
	}
	return true
}

type envReader func(string) string

func (e envReader) str(key, def string) string {
	if v := strings.TrimSpace(e(key)); v != "" {
		return v
	}
	return def
}

func (e envReader) boolean(key string, def bool) bool {
	if v, err := strconv.ParseBool(e.str(key, "")); err == nil {
		return v
	}
	return def
}

func (e envReader) float(key string, def float64) float64 {
	if v, err := strconv.ParseFloat(e.str(key, ""), 64); err == nil {
		return v
	}
	return def
}

func (e envReader) millis(key string, def time.Duration) time.Duration {
	if v, err := strconv.Atoi(e.str(key, "")); err == nil && v >= 0 {
		return time.Duration(v) * time.Millisecond
	}
	return def
}

// buckets parses a comma-separated list of seconds.
func (e envReader) buckets(key string, def []float64) []float64 {
	raw := e.str(key, "")
	if raw == "" {
		return slices.Clone(def)
	}
	var out []float64
	for _, part := range strings.Split(raw, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return slices.Clone(def)
		}
		out = append(out, v)
	}
	if !validBuckets(out) {
		return slices.Clone(def)
	}
	return out
}

// Constants for metric label values.
const (
	// Status values
	StatusSuccess    = logging.StatusSuccess
	StatusError      = logging.StatusError
	StatusUnknown    = "unknown"
	StatusProcessing = "processing"
	StatusStale      = "stale"
	StatusRequested  = "requested"
	StatusConfirmed  = "confirmed"
	StatusFailed     = "failed"
	StatusLimited    = "rate_limited"

	// Snapshot sources
	SourceCache = "cache"
	SourceScan  = "scan"

	// Mailbox backends
	BackendHTTP  = "httpapi"
	BackendGmail = "gmail"

	// Exporter types
	ExporterPrometheus = "prometheus"
	ExporterOTLP       = "otlp"
	ExporterStdout     = "stdout"
	ExporterNone       = "none"
)
