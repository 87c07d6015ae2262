package mailbox_tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/inboxdigest/internal/identity"
	"github.com/teemow/inboxdigest/internal/mailbox"
	"github.com/teemow/inboxdigest/internal/reconcile"
	"github.com/teemow/inboxdigest/internal/server"
	"github.com/teemow/inboxdigest/internal/tools/common"
)

const defaultListLimit = 50

// Status is the view without its entities.
type Status struct {
	Account          string                 `json:"account"`
	Source           mailbox.SnapshotSource `json:"source,omitempty"`
	FetchedAt        *time.Time             `json:"fetchedAt,omitempty"`
	Processing       bool                   `json:"processing"`
	Scanning         bool                   `json:"scanning"`
	PendingOverrides int                    `json:"pendingOverrides"`
	Stats            reconcile.Stats        `json:"stats"`
	Error            string                 `json:"error,omitempty"`
}

func statusOf(account string, v reconcile.View) Status {
	st := Status{
		Account:          account,
		Source:           v.Source,
		Processing:       v.Processing,
		Scanning:         v.Scanning,
		PendingOverrides: v.PendingOverrides,
		Stats:            v.Stats,
	}
	if !v.FetchedAt.IsZero() {
		t := v.FetchedAt
		st.FetchedAt = &t
	}
	if v.Err != nil {
		st.Error = v.Err.Error()
	}
	return st
}

// MessageSummary is one message as listed by mailbox_list_messages.
type MessageSummary struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	Subject   string    `json:"subject"`
	Snippet   string    `json:"snippet,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Labels    []string  `json:"labels,omitempty"`
	Archived  bool      `json:"archived"`
	Starred   bool      `json:"starred"`
	Read      bool      `json:"read"`
}

// RegisterViewTools registers the read-only tools.
func RegisterViewTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	statusTool := mcp.NewTool("mailbox_status",
		mcp.WithDescription("Show where the current mailbox view comes from (cache or scan), whether a scan is running, and subscription and message counts"),
		accountOption(),
	)
	s.AddTool(statusTool, common.InstrumentedToolHandler("mailbox_status", "view", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleStatus(ctx, request, sc)
		}))

	scanTool := mcp.NewTool("mailbox_scan",
		mcp.WithDescription("Run an authoritative re-scan of the mailbox and wait for it. Concurrent requests share one scan."),
		accountOption(),
	)
	s.AddTool(scanTool, common.InstrumentedToolHandler("mailbox_scan", "scan", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleScan(ctx, request, sc)
		}))

	refreshTool := mcp.NewTool("mailbox_refresh",
		mcp.WithDescription("Reload the cached snapshot. Scans only when the backend has no cache yet."),
		accountOption(),
	)
	s.AddTool(refreshTool, common.InstrumentedToolHandler("mailbox_refresh", "refresh", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleRefresh(ctx, request, sc)
		}))

	listMessagesTool := mcp.NewTool("mailbox_list_messages",
		mcp.WithDescription("List messages of the reconciled view, newest first, including pending local changes"),
		accountOption(),
		mcp.WithString("sender",
			mcp.Description("Only messages from this sender address"),
		),
		mcp.WithString("label",
			mcp.Description("Only messages carrying this label"),
		),
		mcp.WithBoolean("includeArchived",
			mcp.Description("Include messages that are no longer in the inbox (default: false)"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of messages to return (default: 50)"),
		),
	)
	s.AddTool(listMessagesTool, common.InstrumentedToolHandler("mailbox_list_messages", "view", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleListMessages(ctx, request, sc)
		}))

	listSubscriptionsTool := mcp.NewTool("mailbox_list_subscriptions",
		mcp.WithDescription("List subscriptions (one per sender address) with category and unsubscribe status"),
		accountOption(),
		mcp.WithString("category",
			mcp.Description("Only this category"),
			mcp.Enum(categoryNames()...),
		),
		mcp.WithString("status",
			mcp.Description("Only this status"),
			mcp.Enum(string(mailbox.StatusActive), string(mailbox.StatusUnsubscribed), string(mailbox.StatusProcessing)),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of subscriptions to return (default: 50)"),
		),
	)
	s.AddTool(listSubscriptionsTool, common.InstrumentedToolHandler("mailbox_list_subscriptions", "view", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleListSubscriptions(ctx, request, sc)
		}))

	listLabelsTool := mcp.NewTool("mailbox_list_labels",
		mcp.WithDescription("List the user labels that messages can be archived under"),
		accountOption(),
	)
	s.AddTool(listLabelsTool, common.InstrumentedToolHandler("mailbox_list_labels", "labels", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleListLabels(ctx, request, sc)
		}))

	notificationsTool := mcp.NewTool("mailbox_notifications",
		mcp.WithDescription("Return and clear the pending notifications: failed changes that were rolled back, failed scans, expired sessions and digest updates"),
		accountOption(),
	)
	s.AddTool(notificationsTool, common.InstrumentedToolHandler("mailbox_notifications", "notifications", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleNotifications(ctx, request, sc)
		}))

	return nil
}

func categoryNames() []string {
	out := make([]string, 0, len(mailbox.Categories))
	for _, c := range mailbox.Categories {
		out = append(out, string(c))
	}
	return out
}

func handleStatus(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	s, errResult := sessionFor(request, sc)
	if errResult != nil {
		return errResult, nil
	}
	return jsonResult(statusOf(s.Account(), s.View()))
}

func handleScan(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	s, errResult := sessionFor(request, sc)
	if errResult != nil {
		return errResult, nil
	}
	v, err := s.Scan(ctx)
	if err != nil {
		return errorResult("scan mailbox", err), nil
	}
	return jsonResult(statusOf(s.Account(), v))
}

func handleRefresh(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	s, errResult := sessionFor(request, sc)
	if errResult != nil {
		return errResult, nil
	}
	v, err := s.Refresh(ctx)
	if err != nil {
		return errorResult("refresh mailbox", err), nil
	}
	return jsonResult(statusOf(s.Account(), v))
}

func handleListMessages(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	s, errResult := sessionFor(request, sc)
	if errResult != nil {
		return errResult, nil
	}

	args := request.GetArguments()
	sender := identity.NormalizeAddress(common.StringArg(args, "sender"))
	label := common.StringArg(args, "label")
	includeArchived := common.BoolArg(args, "includeArchived", false)
	limit := common.IntArg(args, "limit", defaultListLimit)

	v := s.View()
	if v.Err != nil {
		return errorResult("list messages", v.Err), nil
	}

	out := make([]MessageSummary, 0, min(limit, len(v.Messages)))
	for _, m := range v.Messages {
		if len(out) >= limit {
			break
		}
		switch {
		case sender != "" && identity.NormalizeAddress(m.SenderAddress) != sender:
			continue
		case label != "" && !m.HasLabel(label):
			continue
		case !includeArchived && m.Archived():
			continue
		}
		out = append(out, MessageSummary{
			ID:        m.ID,
			From:      formatSender(m),
			Subject:   m.Subject,
			Snippet:   m.Snippet,
			Timestamp: m.Timestamp,
			Labels:    m.Labels,
			Archived:  m.Archived(),
			Starred:   m.Starred(),
			Read:      m.Read(),
		})
	}
	return jsonResult(out)
}

func formatSender(m mailbox.RawMessage) string {
	if m.SenderName == "" || strings.EqualFold(m.SenderName, m.SenderAddress) {
		return m.SenderAddress
	}
	return fmt.Sprintf("%s <%s>", m.SenderName, m.SenderAddress)
}

func handleListSubscriptions(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	s, errResult := sessionFor(request, sc)
	if errResult != nil {
		return errResult, nil
	}

	args := request.GetArguments()
	var category mailbox.Category
	if name := common.StringArg(args, "category"); name != "" {
		c, ok := mailbox.ParseCategory(name)
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("Unknown category %q", name)), nil
		}
		category = c
	}
	status := mailbox.SubscriptionStatus(common.StringArg(args, "status"))
	if status != "" && !status.Valid() {
		return mcp.NewToolResultError(fmt.Sprintf("Unknown status %q", status)), nil
	}
	limit := common.IntArg(args, "limit", defaultListLimit)

	v := s.View()
	if v.Err != nil {
		return errorResult("list subscriptions", v.Err), nil
	}

	out := make([]mailbox.Subscription, 0, min(limit, len(v.Subscriptions)))
	for _, sub := range v.Subscriptions {
		if len(out) >= limit {
			break
		}
		if (category != "" && sub.Category != category) || (status != "" && sub.Status != status) {
			continue
		}
		out = append(out, sub)
	}
	return jsonResult(out)
}

func handleListLabels(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	s, errResult := sessionFor(request, sc)
	if errResult != nil {
		return errResult, nil
	}
	labels, err := s.Labels(ctx)
	if err != nil {
		return errorResult("list labels", err), nil
	}
	if len(labels) == 0 {
		return mcp.NewToolResultText("No user labels found."), nil
	}
	return mcp.NewToolResultText(strings.Join(labels, "\n")), nil
}

func handleNotifications(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	notes := sc.Notifications(common.AccountFromArgs(request.GetArguments()))
	if len(notes) == 0 {
		return mcp.NewToolResultText("No new notifications."), nil
	}
	return jsonResult(notes)
}
