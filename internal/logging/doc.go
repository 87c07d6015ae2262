// Package logging provides structured logging helpers on top of log/slog.
//
// It fixes attribute names used across the engine and keeps sender addresses
// out of logs: addresses are logged through Sender, which hashes them, or
// Domain, which keeps only the domain.
//
//	logger := logging.WithOperation(slog.Default(), "unsubscribe")
//	logger.Info("unsubscribe confirmed", logging.Sender(addr), logging.Status(logging.StatusSuccess))
package logging
