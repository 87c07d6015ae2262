// Package google manages OAuth2 credentials for the Gmail backend.
//
// Tokens are stored per account as JSON files under the user cache directory
// (~/.cache/inboxdigest/google-<account>.token on Linux). Refreshed tokens are
// written back so that a long-running server keeps working after the access
// token expires.
package google
