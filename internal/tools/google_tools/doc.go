// Package google_tools provides MCP tools for authorizing the Gmail backend.
//
// The tools are registered only when the server runs against Gmail:
//  1. google_get_auth_url returns the consent URL for an account
//  2. The user grants access and copies the code
//  3. google_save_auth_code exchanges the code and stores the token
//
// The next mailbox tool call for the account opens a fresh session with the
// new token, which is refreshed automatically from then on.
package google_tools
