// Package events provides sinks for session notifications.
//
// A Log notifier writes each notification to a slog.Logger, a Buffer keeps
// the most recent ones for clients that poll (the MCP mailbox_notifications
// tool), and a Publisher forwards them to NATS JetStream on the subject
// inboxdigest.<account>.<kind>. All of them implement session.Notifier and
// can be combined freely in session.Config.Notifiers.
package events
