// Package common holds helpers shared by the MCP tool packages: argument
// parsing and the instrumented handler wrapper that records tool metrics and
// audit log entries.
package common
