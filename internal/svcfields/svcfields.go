// Package svcfields holds the structured log keys shared across stockd
// subsystems so log queries work the same for HTTP, MCP and storage lines.
package svcfields

import (
	"strings"

	"pkt.systems/pslog"
)

// Canonical log keys.
const (
	SubsystemKey = pslog.TrustedString("sys")
	RequestIDKey = pslog.TrustedString("req_id")
	TransportKey = pslog.TrustedString("transport")
	StockIDKey   = pslog.TrustedString("stock_id")
	SymbolKey    = pslog.TrustedString("symbol")
)

// Subsystem joins non-empty parts with dots.
func Subsystem(parts ...string) string {
	filtered := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.Trim(part, ". "); part != "" {
			filtered = append(filtered, part)
		}
	}
	return strings.Join(filtered, ".")
}

// WithSubsystem attaches a subsystem tag to every log entry.
func WithSubsystem(logger pslog.Logger, subsystem string) pslog.Logger {
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	subsystem = strings.Trim(subsystem, ". ")
	if subsystem == "" {
		return logger
	}
	return logger.With(SubsystemKey, subsystem)
}

// WithTransport tags logger with the surface ("http" or "mcp") a request
// arrived on.
func WithTransport(logger pslog.Logger, transport string) pslog.Logger {
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	return logger.With(TransportKey, transport)
}
