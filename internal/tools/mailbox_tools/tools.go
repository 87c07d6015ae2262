package mailbox_tools

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/inboxdigest/internal/backend"
	"github.com/teemow/inboxdigest/internal/digest"
	"github.com/teemow/inboxdigest/internal/server"
	"github.com/teemow/inboxdigest/internal/session"
	"github.com/teemow/inboxdigest/internal/tools/common"
)

// RegisterMailboxTools registers all mailbox tools. Mutating tools are
// skipped when readOnly is set.
func RegisterMailboxTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	if err := RegisterViewTools(s, sc); err != nil {
		return fmt.Errorf("failed to register view tools: %w", err)
	}
	if err := RegisterDigestTools(s, sc); err != nil {
		return fmt.Errorf("failed to register digest tools: %w", err)
	}
	if readOnly {
		return nil
	}
	if err := RegisterMessageTools(s, sc); err != nil {
		return fmt.Errorf("failed to register message tools: %w", err)
	}
	if err := RegisterSubscriptionTools(s, sc); err != nil {
		return fmt.Errorf("failed to register subscription tools: %w", err)
	}
	return nil
}

func accountOption() mcp.ToolOption {
	return mcp.WithString("account",
		mcp.Description("Account name (default: 'default'). Used to manage multiple mailboxes."),
	)
}

// sessionFor returns the session selected by the request's account argument.
func sessionFor(request mcp.CallToolRequest, sc *server.ServerContext) (*session.Session, *mcp.CallToolResult) {
	s, err := sc.Session(common.AccountFromArgs(request.GetArguments()))
	if err != nil {
		return nil, mcp.NewToolResultError(fmt.Sprintf("Failed to open mailbox session: %v", err))
	}
	return s, nil
}

// errorResult turns an engine error into a message meant for the user.
func errorResult(action string, err error) *mcp.CallToolResult {
	var rl *backend.RateLimitedError
	switch {
	case errors.Is(err, backend.ErrSessionExpired):
		return mcp.NewToolResultError("Your mailbox session has expired. Please sign in again.")
	case errors.As(err, &rl):
		return mcp.NewToolResultError(fmt.Sprintf("Failed to %s: %s", action, rl.Error()))
	case errors.Is(err, digest.ErrNoSummarizer):
		return mcp.NewToolResultError("No digest service is configured for this mailbox.")
	case errors.Is(err, backend.ErrUnavailable):
		return mcp.NewToolResultError("The mailbox is unavailable right now. Please try again later.")
	}
	return mcp.NewToolResultError(fmt.Sprintf("Failed to %s: %v", action, err))
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}
