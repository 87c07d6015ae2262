// Package gmailapi implements backend.Mailbox directly against the Gmail API.
//
// A scan lists the messages matching the configured query (in:inbox by
// default) and fetches their metadata headers. Each completed scan is
// written to a SQLite cache, which GetCachedSnapshot serves on the next
// start. Subscription state has no Gmail equivalent, so unsubscribe and
// resubscribe are recorded as local markers in the same database after the
// List-Unsubscribe link has been followed.
package gmailapi
