// Package httpapi implements backend.Mailbox and backend.Summarizer against
// the dashboard's JSON API.
//
// Endpoints:
//
//	GET    /api/user/emails/cached         last completed scan, or {cached:false}
//	GET    /api/user/emails/scan           authoritative re-scan
//	POST   /api/user/emails/{id}/archive   {"label": "..."}
//	POST   /api/user/emails/{id}/unarchive {"label": "..."}
//	POST   /api/user/emails/{id}/star
//	POST   /api/user/emails/{id}/unstar
//	DELETE /api/user/emails/{id}
//	POST   /api/user/unsubscribe           {"email", "messageId", "lastSeen"}
//	POST   /api/user/resubscribe           {"email", "lastSeen"}
//	GET    /api/user/gmail-labels
//	GET    /api/ai/summary
//	POST   /api/ai/summary/generate        {"emails": [...]}
//
// Status codes map onto the backend error taxonomy: 401 and 403 become
// backend.ErrSessionExpired, 429 a *backend.RateLimitedError honoring
// Retry-After, 5xx and transport failures a *backend.TransientError. A body
// that cannot be decoded yields backend.ErrMalformedPayload; a single
// malformed message inside an otherwise valid list is dropped and logged.
package httpapi
