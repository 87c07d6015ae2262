package common

import (
	"context"
	"errors"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/teemow/inboxdigest/internal/instrumentation"
)

// Instrumentation is what InstrumentedToolHandler needs from the server
// context. Either return value may be nil.
type Instrumentation interface {
	Metrics() *instrumentation.Metrics
	AuditLogger() *instrumentation.AuditLogger
}

var errToolResult = errors.New("tool returned an error result")

// entityArgs are the argument names whose values identify touched entities.
var entityArgs = []string{"id", "ids", "address", "addresses"}

// InstrumentedToolHandler wraps a tool handler with a tool span, metrics and
// audit logging. operation names the engine operation the tool maps onto.
//
//	s.AddTool(tool, common.InstrumentedToolHandler("mailbox_archive", "archive", sc, handler))
func InstrumentedToolHandler(
	toolName string,
	operation string,
	sc Instrumentation,
	handler server.ToolHandlerFunc,
) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (result *mcp.CallToolResult, err error) {
		args := request.GetArguments()
		account := AccountFromArgs(args)
		ids := entities(args)

		ctx, span := instrumentation.StartToolSpan(ctx, toolName, instrumentation.NewSpanAttributeBuilder().
			WithAccount(account).
			WithEntityCount(len(ids)).
			Build()...)
		defer func() {
			if err == nil && result != nil && result.IsError {
				instrumentation.EndSpan(span, errToolResult)
				return
			}
			instrumentation.EndSpan(span, err)
		}()

		metrics := sc.Metrics()
		auditLogger := sc.AuditLogger()
		if metrics == nil && auditLogger == nil {
			return handler(ctx, request)
		}

		start := time.Now()
		invocation := instrumentation.NewToolInvocation(toolName).
			WithSpanContext(ctx).
			WithOperation(operation).
			WithAccount(account).
			WithEntities(ids...)

		result, err = handler(ctx, request)

		status := instrumentation.StatusSuccess
		switch {
		case err != nil:
			status = instrumentation.StatusError
			invocation.CompleteWithError(err)
		case result != nil && result.IsError:
			status = instrumentation.StatusError
			invocation.Complete(false, nil)
		default:
			invocation.CompleteSuccess()
		}

		metrics.RecordToolInvocationWithAccount(ctx, toolName, status, account, time.Since(start))
		auditLogger.LogToolInvocation(invocation)
		return result, err
	}
}

func entities(args map[string]any) []string {
	var out []string
	for _, name := range entityArgs {
		switch v := args[name].(type) {
		case string:
			if v != "" {
				out = append(out, v)
			}
		case []any:
			for _, item := range v {
				if s, ok := item.(string); ok && s != "" {
					out = append(out, s)
				}
			}
		}
	}
	return out
}
