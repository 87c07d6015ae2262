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

// messageAction applies one action to one message and returns the
// override ID.
type messageAction func(ctx context.Context, s *session.Session, id, label string) (string, error)

type messageTool struct {
	name        string
	action      string
	description string
	withLabel   bool
	apply       messageAction
}

var messageTools = []messageTool{
	{
		name:        "mailbox_archive",
		action:      session.ActionArchive,
		description: "Archive one or more messages by removing them from the inbox, optionally filing them under a label",
		withLabel:   true,
		apply: func(ctx context.Context, s *session.Session, id, label string) (string, error) {
			return s.Archive(ctx, id, label)
		},
	},
	{
		name:        "mailbox_unarchive",
		action:      session.ActionUnarchive,
		description: "Move one or more archived messages back to the inbox, optionally removing a label",
		withLabel:   true,
		apply: func(ctx context.Context, s *session.Session, id, label string) (string, error) {
			return s.Unarchive(ctx, id, label)
		},
	},
	{
		name:        "mailbox_star",
		action:      session.ActionStar,
		description: "Star one or more messages",
		apply: func(ctx context.Context, s *session.Session, id, _ string) (string, error) {
			return s.Star(ctx, id)
		},
	},
	{
		name:        "mailbox_unstar",
		action:      session.ActionUnstar,
		description: "Remove the star from one or more messages",
		apply: func(ctx context.Context, s *session.Session, id, _ string) (string, error) {
			return s.Unstar(ctx, id)
		},
	},
	{
		name:        "mailbox_delete",
		action:      session.ActionDelete,
		description: "Move one or more messages to the trash",
		apply: func(ctx context.Context, s *session.Session, id, _ string) (string, error) {
			return s.Delete(ctx, id)
		},
	},
}

// RegisterMessageTools registers the message mutation tools.
func RegisterMessageTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	for _, mt := range messageTools {
		opts := []mcp.ToolOption{
			mcp.WithDescription(mt.description + ". Changes show immediately; failures are reported by mailbox_notifications."),
			accountOption(),
			mcp.WithString("ids",
				mcp.Required(),
				mcp.Description("Message ID (string) or array of message IDs"),
			),
		}
		if mt.withLabel {
			opts = append(opts, mcp.WithString("label",
				mcp.Description("User label to add on archive or remove on unarchive"),
			))
		}

		s.AddTool(mcp.NewTool(mt.name, opts...), common.InstrumentedToolHandler(mt.name, mt.action, sc,
			func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				return handleMessageAction(ctx, request, sc, mt.apply)
			}))
	}
	return nil
}

func handleMessageAction(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext, apply messageAction) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	ids, err := batch.ParseStringOrArray(args["ids"], "ids")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	label := common.StringArg(args, "label")

	s, errResult := sessionFor(request, sc)
	if errResult != nil {
		return errResult, nil
	}

	results := make([]batch.Result, 0, len(ids))
	for _, id := range ids {
		overrideID, err := apply(ctx, s, id, label)
		if err != nil {
			results = append(results, batch.NewErrorResult(id, err))
			continue
		}
		results = append(results, batch.Result{ID: id, Status: batch.StatusAccepted, OverrideID: overrideID})
	}
	return batchResult(results), nil
}

// batchResult formats results; the call counts as failed only when no item
// was accepted.
func batchResult(results []batch.Result) *mcp.CallToolResult {
	text := batch.FormatResults(results)
	if batch.Summarize(results).Accepted == 0 {
		return mcp.NewToolResultError(text)
	}
	return mcp.NewToolResultText(text)
}
