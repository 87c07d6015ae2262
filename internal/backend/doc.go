// Package backend defines the interfaces the reconciliation engine consumes
// and the error taxonomy shared by every implementation.
//
// Implementations live in subpackages: httpapi talks to the dashboard's JSON
// API, gmailapi talks to Gmail directly and keeps its own snapshot cache.
//
// Errors returned by implementations must be classifiable with errors.Is and
// errors.As against the values in this package:
//
//	ErrSessionExpired    authentication failed; the session must end
//	ErrMalformedPayload  a response body could not be decoded
//	ErrUnavailable       no data could be obtained at all
//	*TransientError      a retryable failure (5xx, transport)
//	*RateLimitedError    the server asked to retry after a delay
package backend
