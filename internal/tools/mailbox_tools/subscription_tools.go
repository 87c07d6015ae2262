package mailbox_tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/inboxdigest/internal/server"
	"github.com/teemow/inboxdigest/internal/session"
	"github.com/teemow/inboxdigest/internal/tools/batch"
	"github.com/teemow/inboxdigest/internal/tools/common"
)

// RegisterSubscriptionTools registers the unsubscribe and resubscribe tools.
func RegisterSubscriptionTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	unsubscribeTool := mcp.NewTool("subscription_unsubscribe",
		mcp.WithDescription("Unsubscribe from one or more senders. The subscription shows as unsubscribed immediately; failures are reported by mailbox_notifications."),
		accountOption(),
		mcp.WithString("addresses",
			mcp.Required(),
			mcp.Description("Sender address (string) or array of sender addresses"),
		),
	)
	s.AddTool(unsubscribeTool, common.InstrumentedToolHandler("subscription_unsubscribe", session.ActionUnsubscribe, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleSubscriptionAction(ctx, request, sc, (*session.Session).UnsubscribeMany)
		}))

	resubscribeTool := mcp.NewTool("subscription_resubscribe",
		mcp.WithDescription("Mark one or more senders as active again"),
		accountOption(),
		mcp.WithString("addresses",
			mcp.Required(),
			mcp.Description("Sender address (string) or array of sender addresses"),
		),
	)
	s.AddTool(resubscribeTool, common.InstrumentedToolHandler("subscription_resubscribe", session.ActionResubscribe, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleSubscriptionAction(ctx, request, sc, (*session.Session).ResubscribeMany)
		}))

	return nil
}

func handleSubscriptionAction(
	ctx context.Context,
	request mcp.CallToolRequest,
	sc *server.ServerContext,
	apply func(s *session.Session, ctx context.Context, addresses []string) []session.ActionResult,
) (*mcp.CallToolResult, error) {
	addresses, err := batch.ParseStringOrArray(request.GetArguments()["addresses"], "addresses")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	s, errResult := sessionFor(request, sc)
	if errResult != nil {
		return errResult, nil
	}
	return batchResult(batch.FromActionResults(apply(s, ctx, addresses))), nil
}
