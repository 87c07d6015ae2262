package cmd

import (
	"bytes"
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/teemow/inboxdigest/internal/mailbox"
	"github.com/teemow/inboxdigest/internal/reconcile"
)

func TestBackendOptionsResolve(t *testing.T) {
	tests := []struct {
		name     string
		opts     backendOptions
		env      map[string]string
		wantKind string
		wantURL  string
		wantErr  string
	}{
		{
			name:     "http from flags",
			opts:     backendOptions{apiURL: "https://dash.example"},
			wantKind: backendHTTP,
			wantURL:  "https://dash.example",
		},
		{
			name:     "env fallback",
			env:      map[string]string{EnvAPIURL: "https://env.example", EnvBackend: "http"},
			wantKind: backendHTTP,
			wantURL:  "https://env.example",
		},
		{
			name:     "flag wins over env",
			opts:     backendOptions{apiURL: "https://flag.example"},
			env:      map[string]string{EnvAPIURL: "https://env.example"},
			wantKind: backendHTTP,
			wantURL:  "https://flag.example",
		},
		{
			name:    "http without url",
			wantErr: "needs --api-url",
		},
		{
			name:     "gmail needs no url",
			opts:     backendOptions{kind: backendGmail},
			wantKind: backendGmail,
		},
		{
			name:    "unknown backend",
			opts:    backendOptions{kind: "imap"},
			wantErr: "unsupported backend",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvAPIURL, "")
			t.Setenv(EnvBackend, "")
			t.Setenv(EnvSessionCookie, "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			opts := tt.opts
			err := opts.resolve()
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("resolve() error = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("resolve() unexpected error: %v", err)
			}
			if opts.kind != tt.wantKind {
				t.Errorf("kind = %q, want %q", opts.kind, tt.wantKind)
			}
			if opts.apiURL != tt.wantURL {
				t.Errorf("apiURL = %q, want %q", opts.apiURL, tt.wantURL)
			}
		})
	}
}

func TestServeOptionsResolveEnv(t *testing.T) {
	t.Setenv("METRICS_ENABLED", "false")
	t.Setenv("METRICS_ADDR", ":9191")
	t.Setenv("NATS_URL", "nats://localhost:4222")

	opts := serveOptions{transport: transportStdio, metricsEnabled: true, metricsAddr: ":9090"}
	if err := opts.resolveEnv(); err != nil {
		t.Fatalf("resolveEnv() unexpected error: %v", err)
	}
	if opts.metricsEnabled {
		t.Error("metrics should be disabled by METRICS_ENABLED=false")
	}
	if opts.metricsAddr != ":9191" {
		t.Errorf("metricsAddr = %q, want :9191", opts.metricsAddr)
	}
	if opts.natsURL != "nats://localhost:4222" {
		t.Errorf("natsURL = %q", opts.natsURL)
	}

	opts.transport = "sse"
	if err := opts.resolveEnv(); err == nil {
		t.Error("expected an error for an unsupported transport")
	}
}

func TestBackendPoolReusesBackends(t *testing.T) {
	opts := &backendOptions{kind: backendHTTP, apiURL: "https://dash.example", cookieName: "session"}
	pool := newBackendPool(opts, nil, nil)
	defer pool.Close()

	first, err := pool.SessionConfig(context.Background(), "work")
	if err != nil {
		t.Fatalf("SessionConfig() unexpected error: %v", err)
	}
	if first.Account != "work" {
		t.Errorf("Account = %q, want work", first.Account)
	}
	if first.Mailbox == nil || first.Summarizer == nil {
		t.Fatal("http backend should serve as mailbox and summarizer")
	}
	if err := first.Validate(); err != nil {
		t.Errorf("config should be valid: %v", err)
	}

	second, err := pool.SessionConfig(context.Background(), "work")
	if err != nil {
		t.Fatalf("SessionConfig() unexpected error: %v", err)
	}
	if first.Mailbox != second.Mailbox {
		t.Error("a reopened session should reuse the account's backend")
	}
	if err := pool.Close(); err != nil {
		t.Errorf("Close() unexpected error: %v", err)
	}
}

func TestSessionConfigLoadsPolicy(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/policy.yaml"
	if err := writeFile(path, "paid:\n  - sponsorship\n"); err != nil {
		t.Fatal(err)
	}

	opts := &backendOptions{kind: backendHTTP, apiURL: "https://dash.example", policy: path}
	pool := newBackendPool(opts, nil, nil)
	defer pool.Close()

	cfg, err := pool.SessionConfig(context.Background(), "default")
	if err != nil {
		t.Fatalf("SessionConfig() unexpected error: %v", err)
	}
	if cfg.Classifier == nil {
		t.Fatal("expected a classifier from the policy file")
	}
	if got := cfg.Classifier.Classify("Your sponsorship", ""); got != mailbox.CategoryPaid {
		t.Errorf("Classify() = %q, want %q", got, mailbox.CategoryPaid)
	}

	opts.policy = dir + "/missing.yaml"
	if _, err := newBackendPool(opts, nil, nil).SessionConfig(context.Background(), "other"); err == nil {
		t.Error("expected an error for a missing policy file")
	}
}

func TestPrintView(t *testing.T) {
	seen := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	v := reconcile.View{
		Source:    mailbox.SourceScan,
		FetchedAt: seen,
		Subscriptions: []mailbox.Subscription{
			{Address: "news@acme.io", Category: mailbox.CategoryFree, Status: mailbox.StatusActive, MessageCount: 3, LastSeen: seen},
		},
		Stats: reconcile.Stats{Subscriptions: 1, Active: 1, Messages: 3, Unread: 2},
	}

	var buf bytes.Buffer
	printView(&buf, v)
	out := buf.String()

	for _, want := range []string{"Source: scan", "Messages: 3 (unread 2", "Subscriptions: 1 (active 1", "news@acme.io", "2026-03-14"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestGetCategoryFromToolName(t *testing.T) {
	tests := map[string]string{
		"mailbox_archive":          "Mailbox Tools",
		"subscription_unsubscribe": "Subscription Tools",
		"digest_get":               "Digest Tools",
		"unknown":                  "Other",
	}
	for name, want := range tests {
		if got := getCategoryFromToolName(name); got != want {
			t.Errorf("getCategoryFromToolName(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestToolsMarkdown(t *testing.T) {
	md, err := toolsMarkdown()
	if err != nil {
		t.Fatalf("toolsMarkdown() unexpected error: %v", err)
	}
	for _, want := range []string{"## Mailbox Tools", "### mailbox_archive", "### subscription_unsubscribe", "### digest_regenerate", "### google_save_auth_code", "- `ids` (required)"} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q", want)
		}
	}
}

func TestVersionCmd(t *testing.T) {
	SetVersion("1.2.3")
	defer SetVersion("dev")

	cmd := newVersionCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.Run(cmd, nil)
	if got := buf.String(); got != "inboxdigest version 1.2.3\n" {
		t.Errorf("version output = %q", got)
	}
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o600)
}
