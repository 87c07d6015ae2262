// Package cmd implements the command-line interface for inboxdigest.
//
// This package provides the following commands:
//   - scan: Load the cache, re-scan and list subscriptions
//   - digest: Print or regenerate the AI digest of recent mail
//   - labels: List the user labels available for archiving
//   - auth: Authorize Gmail access for the gmail backend
//   - serve: Start the MCP server to provide tools for AI assistants
//   - version: Display version information
//   - generate-docs: Generate markdown documentation for all MCP tools
package cmd
