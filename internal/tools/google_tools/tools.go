package google_tools

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"golang.org/x/oauth2"

	"github.com/teemow/inboxdigest/internal/google"
	"github.com/teemow/inboxdigest/internal/tools/common"
)

// Authorizer holds what the OAuth tools need.
type Authorizer struct {
	Config *oauth2.Config
	// OnAuthorized, when set, is called after a token was saved so that
	// cached clients for the account can be dropped.
	OnAuthorized func(account string)
}

// RegisterGoogleTools registers the OAuth tools with the MCP server.
func RegisterGoogleTools(s *mcpserver.MCPServer, sc common.Instrumentation, auth Authorizer) error {
	if auth.Config == nil {
		return fmt.Errorf("google OAuth config is required")
	}

	getAuthURLTool := mcp.NewTool("google_get_auth_url",
		mcp.WithDescription("Get the OAuth URL to authorize Gmail access for a specific account"),
		mcp.WithString("account",
			mcp.Description("Account name (default: 'default'). Used to manage multiple mailboxes."),
		),
	)
	s.AddTool(getAuthURLTool, common.InstrumentedToolHandler("google_get_auth_url", "auth", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleGetAuthURL(ctx, request, auth)
		}))

	saveAuthCodeTool := mcp.NewTool("google_save_auth_code",
		mcp.WithDescription("Save the OAuth authorization code to complete Gmail authorization for a specific account"),
		mcp.WithString("account",
			mcp.Description("Account name (default: 'default'). Used to manage multiple mailboxes."),
		),
		mcp.WithString("authCode",
			mcp.Required(),
			mcp.Description("The authorization code from Google OAuth, or the full redirect URL"),
		),
	)
	s.AddTool(saveAuthCodeTool, common.InstrumentedToolHandler("google_save_auth_code", "auth", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleSaveAuthCode(ctx, request, auth)
		}))

	return nil
}

func handleGetAuthURL(ctx context.Context, request mcp.CallToolRequest, auth Authorizer) (*mcp.CallToolResult, error) {
	account := common.AccountFromArgs(request.GetArguments())
	authURL := google.GetAuthURL(auth.Config, uuid.NewString())

	result := fmt.Sprintf(`To authorize Gmail access for account "%s":

1. Visit this URL in your browser:
   %s

2. Sign in with your Google account
3. Grant access to Gmail
4. Copy the authorization code

5. Call the google_save_auth_code tool with the code and account name to complete authentication`, account, authURL)

	return mcp.NewToolResultText(result), nil
}

func handleSaveAuthCode(ctx context.Context, request mcp.CallToolRequest, auth Authorizer) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	account := common.AccountFromArgs(args)

	code, err := google.ExtractCode(common.StringArg(args, "authCode"))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid authorization code: %v", err)), nil
	}

	if err := google.SaveTokenForAccount(ctx, auth.Config, account, code); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to save authorization code for account %s: %v", account, err)), nil
	}
	if auth.OnAuthorized != nil {
		auth.OnAuthorized(account)
	}

	return mcp.NewToolResultText(fmt.Sprintf("Authorization successful for account '%s'. The mailbox tools can now use this account.", account)), nil
}
