package google_tools

import (
	"context"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"golang.org/x/oauth2"

	"github.com/teemow/inboxdigest/internal/instrumentation"
)

type noInstrumentation struct{}

func (noInstrumentation) Metrics() *instrumentation.Metrics         { return nil }
func (noInstrumentation) AuditLogger() *instrumentation.AuditLogger { return nil }

func testConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:    "client-id",
		RedirectURL: "urn:ietf:wg:oauth:2.0:oob",
		Endpoint:    oauth2.Endpoint{AuthURL: "https://accounts.example/auth", TokenURL: "https://accounts.example/token"},
	}
}

func textOf(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if result == nil || len(result.Content) == 0 {
		t.Fatal("empty result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", result.Content[0])
	}
	return tc.Text
}

func TestRegisterGoogleTools(t *testing.T) {
	s := mcpserver.NewMCPServer("test-server", "1.0.0", mcpserver.WithToolCapabilities(true))

	if err := RegisterGoogleTools(s, noInstrumentation{}, Authorizer{}); err == nil {
		t.Error("expected an error without an OAuth config")
	}
	if err := RegisterGoogleTools(s, noInstrumentation{}, Authorizer{Config: testConfig()}); err != nil {
		t.Fatalf("RegisterGoogleTools() unexpected error: %v", err)
	}

	tools := s.ListTools()
	for _, name := range []string{"google_get_auth_url", "google_save_auth_code"} {
		if _, ok := tools[name]; !ok {
			t.Errorf("tool %s not registered", name)
		}
	}
}

func TestHandleGetAuthURL(t *testing.T) {
	var req mcp.CallToolRequest
	req.Params.Arguments = map[string]any{"account": "work"}

	result, err := handleGetAuthURL(context.Background(), req, Authorizer{Config: testConfig()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	text := textOf(t, result)
	if !strings.Contains(text, `account "work"`) {
		t.Errorf("result does not name the account: %s", text)
	}
	if !strings.Contains(text, "https://accounts.example/auth?") || !strings.Contains(text, "access_type=offline") {
		t.Errorf("result does not contain an offline consent URL: %s", text)
	}
}

func TestHandleSaveAuthCodeRejectsBadInput(t *testing.T) {
	called := false
	auth := Authorizer{Config: testConfig(), OnAuthorized: func(string) { called = true }}

	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{name: "missing code", args: map[string]any{}, want: "Invalid authorization code"},
		{name: "redirect without code", args: map[string]any{"authCode": "https://localhost/?state=x"}, want: "Invalid authorization code"},
		{name: "bad account", args: map[string]any{"account": "../etc", "authCode": "abc"}, want: "Failed to save authorization code"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req mcp.CallToolRequest
			req.Params.Arguments = tt.args

			result, err := handleSaveAuthCode(context.Background(), req, auth)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !result.IsError {
				t.Fatal("expected an error result")
			}
			if text := textOf(t, result); !strings.Contains(text, tt.want) {
				t.Errorf("result = %q, want it to contain %q", text, tt.want)
			}
		})
	}
	if called {
		t.Error("OnAuthorized must not run when saving fails")
	}
}
