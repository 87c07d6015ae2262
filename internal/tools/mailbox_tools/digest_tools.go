package mailbox_tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/inboxdigest/internal/server"
	"github.com/teemow/inboxdigest/internal/tools/common"
)

// RegisterDigestTools registers the digest tools.
func RegisterDigestTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	getTool := mcp.NewTool("digest_get",
		mcp.WithDescription("Return the current AI digest of recent mail"),
		accountOption(),
	)
	s.AddTool(getTool, common.InstrumentedToolHandler("digest_get", "digest", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleGetDigest(ctx, request, sc)
		}))

	regenerateTool := mcp.NewTool("digest_regenerate",
		mcp.WithDescription("Regenerate the AI digest from the messages of the last 24 hours. Limited to one regeneration per minute."),
		accountOption(),
	)
	s.AddTool(regenerateTool, common.InstrumentedToolHandler("digest_regenerate", "regenerate", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleRegenerateDigest(ctx, request, sc)
		}))

	return nil
}

func handleGetDigest(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	s, errResult := sessionFor(request, sc)
	if errResult != nil {
		return errResult, nil
	}
	d, err := s.Digest(ctx)
	if err != nil {
		return errorResult("get digest", err), nil
	}
	if d.Text == "" {
		return mcp.NewToolResultText("No digest has been generated yet."), nil
	}
	return mcp.NewToolResultText(d.Text), nil
}

func handleRegenerateDigest(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	s, errResult := sessionFor(request, sc)
	if errResult != nil {
		return errResult, nil
	}
	sum, err := s.RegenerateDigest(ctx)
	if err != nil {
		return errorResult("regenerate digest", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s\n\n(Generated from %d recent messages.)", sum.Text, sum.Messages)), nil
}
