package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf, "json", slog.LevelInfo).Info("hello", Account("work"))
	if !strings.HasPrefix(buf.String(), "{") {
		t.Errorf("expected JSON output, got %q", buf.String())
	}

	buf.Reset()
	logger := NewLogger(&buf, "text", slog.LevelWarn)
	logger.Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("expected info to be filtered at warn level, got %q", buf.String())
	}
	logger.Warn("shown")
	if !strings.Contains(buf.String(), "msg=shown") {
		t.Errorf("expected text output, got %q", buf.String())
	}
}

func TestWithHelpers(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "text", slog.LevelInfo)

	WithBackend(WithAccount(WithOperation(logger, "scan"), "work"), "httpapi").Info("done")

	out := buf.String()
	for _, want := range []string{"operation=scan", "account=work", "backend=httpapi"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in %q", want, out)
		}
	}
}

func TestAttrs(t *testing.T) {
	tests := []struct {
		attr slog.Attr
		key  string
		want string
	}{
		{Operation("archive"), KeyOperation, "archive"},
		{Account("work"), KeyAccount, "work"},
		{Tool("mailbox_scan"), KeyTool, "mailbox_scan"},
		{Status(StatusSuccess), KeyStatus, "success"},
		{Entity("m1"), KeyEntity, "m1"},
		{Override("o1"), KeyOverride, "o1"},
		{Generation(7), KeyGeneration, "7"},
	}

	for _, tt := range tests {
		if tt.attr.Key != tt.key {
			t.Errorf("key = %q, want %q", tt.attr.Key, tt.key)
		}
		if tt.attr.Value.String() != tt.want {
			t.Errorf("value = %q, want %q", tt.attr.Value.String(), tt.want)
		}
	}
}

func TestErr(t *testing.T) {
	attr := Err(errors.New("boom"))
	if attr.Key != KeyError || attr.Value.String() != "boom" {
		t.Errorf("Err = %v", attr)
	}

	var buf bytes.Buffer
	NewLogger(&buf, "text", slog.LevelInfo).Info("ok", Err(nil))
	if strings.Contains(buf.String(), "error") {
		t.Errorf("nil error should be omitted, got %q", buf.String())
	}
}

func TestAnonymizeEmail(t *testing.T) {
	a := AnonymizeEmail("News@Example.com")
	b := AnonymizeEmail("news@example.com")

	if a != b {
		t.Errorf("expected case-insensitive hash, got %q and %q", a, b)
	}
	if !strings.HasPrefix(a, "sender:") || len(a) != len("sender:")+16 {
		t.Errorf("unexpected format %q", a)
	}
	if strings.Contains(a, "example") {
		t.Errorf("hash leaks address: %q", a)
	}
	if AnonymizeEmail("") != "" {
		t.Error("expected empty hash for empty address")
	}
	if AnonymizeEmail("a@example.com") == AnonymizeEmail("b@example.com") {
		t.Error("different addresses must hash differently")
	}
}

func TestSender(t *testing.T) {
	attr := Sender("news@example.com")
	if attr.Key != KeySender {
		t.Errorf("key = %q, want %q", attr.Key, KeySender)
	}
	if attr.Value.String() != AnonymizeEmail("news@example.com") {
		t.Errorf("value = %q", attr.Value.String())
	}
}

func TestSanitizeToken(t *testing.T) {
	if got := SanitizeToken(""); got != "<empty>" {
		t.Errorf("SanitizeToken(\"\") = %q", got)
	}
	if got := SanitizeToken("secret-cookie"); got != "[token:13 chars]" {
		t.Errorf("SanitizeToken = %q", got)
	}
}

func TestDomain(t *testing.T) {
	tests := map[string]string{
		"news@Example.com": "example.com",
		"invalid":          "",
		"":                 "",
		"a@b@c":            "",
	}
	for in, want := range tests {
		if got := ExtractDomain(in); got != want {
			t.Errorf("ExtractDomain(%q) = %q, want %q", in, got, want)
		}
	}

	if attr := Domain("x@example.com"); attr.Value.String() != "example.com" {
		t.Errorf("Domain = %q", attr.Value.String())
	}
}
