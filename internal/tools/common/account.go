package common

import (
	"strings"

	"github.com/teemow/inboxdigest/internal/session"
)

// AccountFromArgs returns the "account" argument, or the default account
// when it is missing, empty or not a string.
func AccountFromArgs(args map[string]any) string {
	if account, ok := args["account"].(string); ok {
		if account = strings.TrimSpace(account); account != "" {
			return account
		}
	}
	return session.DefaultAccount
}

// StringArg returns a trimmed string argument, or "" if absent.
func StringArg(args map[string]any, name string) string {
	v, _ := args[name].(string)
	return strings.TrimSpace(v)
}

// BoolArg returns a boolean argument, or def if absent.
func BoolArg(args map[string]any, name string, def bool) bool {
	if v, ok := args[name].(bool); ok {
		return v
	}
	return def
}

// IntArg returns a numeric argument as int, or def if absent. JSON numbers
// arrive as float64.
func IntArg(args map[string]any, name string, def int) int {
	switch v := args[name].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return def
}
