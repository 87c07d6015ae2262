// Package batch supports MCP tools that act on several entities at once.
//
// It parses parameters that accept a single ID or an array of IDs, converts
// session bulk results, and formats them so that partial failures are
// reported per item.
package batch
