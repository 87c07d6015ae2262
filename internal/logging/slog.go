package logging

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Common log attribute keys.
const (
	KeyOperation  = "operation"
	KeyService    = "service"
	KeyAccount    = "account"
	KeyBackend    = "backend"
	KeySender     = "sender_hash"
	KeyEntity     = "entity_id"
	KeyOverride   = "override_id"
	KeyGeneration = "generation"
	KeyDuration   = "duration"
	KeyStatus     = "status"
	KeyError      = "error"
	KeyTool       = "tool"
)

// Status values, shared with the metric labels in instrumentation.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// NewLogger returns a text or JSON logger writing to w at the given level.
func NewLogger(w io.Writer, format string, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// WithOperation returns a logger with the operation attribute set.
func WithOperation(logger *slog.Logger, operation string) *slog.Logger {
	return logger.With(slog.String(KeyOperation, operation))
}

// WithService returns a logger with the service attribute set.
func WithService(logger *slog.Logger, service string) *slog.Logger {
	return logger.With(slog.String(KeyService, service))
}

// WithAccount returns a logger with the account attribute set.
func WithAccount(logger *slog.Logger, account string) *slog.Logger {
	return logger.With(slog.String(KeyAccount, account))
}

// WithBackend returns a logger with the backend attribute set.
func WithBackend(logger *slog.Logger, backend string) *slog.Logger {
	return logger.With(slog.String(KeyBackend, backend))
}

// Operation returns a slog attribute for the operation name.
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// Account returns a slog attribute for the account name.
func Account(account string) slog.Attr {
	return slog.String(KeyAccount, account)
}

// Tool returns a slog attribute for the tool name.
func Tool(tool string) slog.Attr {
	return slog.String(KeyTool, tool)
}

// Status returns a slog attribute for the status.
func Status(status string) slog.Attr {
	return slog.String(KeyStatus, status)
}

// Entity returns a slog attribute for a message ID.
func Entity(id string) slog.Attr {
	return slog.String(KeyEntity, id)
}

// Override returns a slog attribute for an override ID.
func Override(id string) slog.Attr {
	return slog.String(KeyOverride, id)
}

// Generation returns a slog attribute for a scan generation.
func Generation(gen uint64) slog.Attr {
	return slog.Uint64(KeyGeneration, gen)
}

// Err returns a slog attribute for an error.
// If err is nil, returns an empty Group attribute that slog omits, so
// Err(maybeNilErr) is always safe to pass.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Group("")
	}
	return slog.String(KeyError, err.Error())
}

// AnonymizeEmail returns a hashed representation of an email address. Sender
// addresses are PII and are only ever logged in this form.
func AnonymizeEmail(email string) string {
	if email == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(strings.ToLower(email)))
	return "sender:" + hex.EncodeToString(hash[:8])
}

// Sender returns a slog attribute with the anonymized sender address.
//
//	logger.Info("unsubscribed", logging.Sender(sub.Address))
func Sender(address string) slog.Attr {
	return slog.String(KeySender, AnonymizeEmail(address))
}

// SanitizeToken returns a length indicator for a secret such as a session
// cookie, without exposing any of its content.
func SanitizeToken(token string) string {
	if token == "" {
		return "<empty>"
	}
	return fmt.Sprintf("[token:%d chars]", len(token))
}

// ExtractDomain extracts the domain part from an email address.
func ExtractDomain(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return ""
	}
	return strings.ToLower(parts[1])
}

// Domain returns a slog attribute for the sender domain, which has lower
// cardinality and less PII than the full address.
func Domain(email string) slog.Attr {
	return slog.String("sender_domain", ExtractDomain(email))
}
