package instrumentation

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestToolInvocation_Status(t *testing.T) {
	ti := NewToolInvocation("mailbox_archive")
	if ti.Status() != StatusError {
		t.Errorf("Status() = %q, want %q", ti.Status(), StatusError)
	}

	ti.CompleteSuccess()
	if ti.Status() != StatusSuccess {
		t.Errorf("Status() = %q, want %q", ti.Status(), StatusSuccess)
	}
}

func TestToolInvocation_CompleteWithError(t *testing.T) {
	ti := NewToolInvocation("mailbox_archive").CompleteWithError(errors.New("boom"))

	if ti.Success {
		t.Error("expected Success to be false")
	}
	if ti.Error != "boom" {
		t.Errorf("Error = %q, want %q", ti.Error, "boom")
	}
}

func TestToolInvocation_LogAttrsHideEntities(t *testing.T) {
	ti := NewToolInvocation("subscription_unsubscribe").
		WithAccount("default").
		WithOperation("unsubscribe").
		WithEntities("news@example.com")
	ti.CompleteSuccess()

	for _, attr := range ti.LogAttrs() {
		if strings.Contains(attr.Value.String(), "news@example.com") {
			t.Errorf("LogAttrs leaked entity in %q", attr.Key)
		}
	}

	found := false
	for _, attr := range ti.LogAuditAttrs() {
		if attr.Key == "entities" {
			found = true
		}
	}
	if !found {
		t.Error("expected entities in LogAuditAttrs")
	}
}

func TestAuditLogger_LogToolInvocation(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	al := NewAuditLogger(logger)
	al.LogToolInvocation(NewToolInvocation("mailbox_scan").CompleteSuccess())
	al.LogToolInvocation(NewToolInvocation("mailbox_star").CompleteWithError(errors.New("nope")))

	out := buf.String()
	if !strings.Contains(out, "tool_executed") {
		t.Errorf("expected tool_executed in output, got %q", out)
	}
	if !strings.Contains(out, "tool_failed") {
		t.Errorf("expected tool_failed in output, got %q", out)
	}
}

func TestAuditLogger_Disabled(t *testing.T) {
	var buf bytes.Buffer
	al := NewAuditLoggerWithConfig(slog.New(slog.NewTextHandler(&buf, nil)), AuditLoggingConfig{Enabled: false})
	al.LogToolInvocation(NewToolInvocation("mailbox_scan").CompleteSuccess())

	if buf.Len() != 0 {
		t.Errorf("expected no output, got %q", buf.String())
	}

	var nilLogger *AuditLogger
	nilLogger.LogToolInvocation(NewToolInvocation("mailbox_scan"))
}
