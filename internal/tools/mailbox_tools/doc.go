// Package mailbox_tools exposes a reconciled mailbox session as MCP tools.
//
// Every tool takes an optional "account" argument selecting the session.
// Read tools return JSON views; mutation tools return as soon as the
// optimistic change is in place and report backend failures later through
// mailbox_notifications.
package mailbox_tools
