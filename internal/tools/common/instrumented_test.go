package common

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/teemow/inboxdigest/internal/instrumentation"
)

type fakeInstrumentation struct {
	metrics *instrumentation.Metrics
	audit   *instrumentation.AuditLogger
}

func (f fakeInstrumentation) Metrics() *instrumentation.Metrics         { return f.metrics }
func (f fakeInstrumentation) AuditLogger() *instrumentation.AuditLogger { return f.audit }

func newInstrumentation(t *testing.T, out *bytes.Buffer) fakeInstrumentation {
	t.Helper()
	metrics, err := instrumentation.NewMetrics(noop.NewMeterProvider().Meter("test"), false)
	if err != nil {
		t.Fatalf("failed to create metrics: %v", err)
	}
	return fakeInstrumentation{
		metrics: metrics,
		audit:   instrumentation.NewAuditLogger(slog.New(slog.NewTextHandler(out, nil))),
	}
}

func request(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func TestInstrumentedToolHandler_NoInstrumentation(t *testing.T) {
	called := false
	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		called = true
		return mcp.NewToolResultText("success"), nil
	}

	wrapped := InstrumentedToolHandler("test_tool", "test", fakeInstrumentation{}, handler)
	result, err := wrapped(context.Background(), mcp.CallToolRequest{})
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if !called {
		t.Error("expected handler to be called")
	}
	if result == nil {
		t.Error("expected result, got nil")
	}
}

func TestInstrumentedToolHandler_Success(t *testing.T) {
	var out bytes.Buffer
	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultText("success"), nil
	}

	wrapped := InstrumentedToolHandler("mailbox_archive", "archive", newInstrumentation(t, &out), handler)
	_, err := wrapped(context.Background(), request(map[string]any{
		"account": "work",
		"ids":     []any{"m1", "m2"},
	}))
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}

	line := out.String()
	if !strings.Contains(line, "tool_executed") {
		t.Errorf("expected audit entry, got %q", line)
	}
	if !strings.Contains(line, "mailbox_archive") {
		t.Errorf("expected tool name in audit entry, got %q", line)
	}
	if strings.Contains(line, "m1") {
		t.Errorf("entity IDs must not be logged without PII opt-in, got %q", line)
	}
}

func TestInstrumentedToolHandler_Error(t *testing.T) {
	var out bytes.Buffer
	expectedErr := errors.New("test error")
	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return nil, expectedErr
	}

	wrapped := InstrumentedToolHandler("test_tool", "test", newInstrumentation(t, &out), handler)
	_, err := wrapped(context.Background(), mcp.CallToolRequest{})
	if !errors.Is(err, expectedErr) {
		t.Errorf("expected error %v, got %v", expectedErr, err)
	}
	if !strings.Contains(out.String(), "tool_failed") {
		t.Errorf("expected failure audit entry, got %q", out.String())
	}
}

func TestInstrumentedToolHandler_ErrorResult(t *testing.T) {
	var out bytes.Buffer
	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultError("error message"), nil
	}

	wrapped := InstrumentedToolHandler("test_tool", "test", newInstrumentation(t, &out), handler)
	result, err := wrapped(context.Background(), mcp.CallToolRequest{})
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if result == nil || !result.IsError {
		t.Fatal("expected an error result")
	}
	if !strings.Contains(out.String(), "tool_failed") {
		t.Errorf("expected failure audit entry, got %q", out.String())
	}
}

func TestEntities(t *testing.T) {
	got := entities(map[string]any{
		"id":        "m1",
		"addresses": []any{"a@x.io", "", 3, "b@x.io"},
		"label":     "Later",
	})
	want := []string{"m1", "a@x.io", "b@x.io"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("entities() = %v, want %v", got, want)
	}
}
