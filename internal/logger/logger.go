// Package logger builds the process slog.Logger and provides attribute
// helpers that keep log call sites short.
package logger

import (
	"io"
	"log/slog"
	"strings"
)

// New returns a logger writing to w. format is "json" or "text"; level is
// one of debug, info, warn, error. Unknown values fall back to text/info.
func New(w io.Writer, format, level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// ParseLevel maps a level name to a slog.Level, defaulting to Info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// OrDefault returns l, or slog.Default() when l is nil.
func OrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}

// Error returns an "error" attribute, or an empty attribute for nil so
// callers can pass it unconditionally.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// SessionID tags a log line with a session token.
func SessionID(id string) slog.Attr {
	return slog.String("session_id", id)
}

// VenueID tags a log line with a venue id.
func VenueID(id string) slog.Attr {
	return slog.String("venue_id", id)
}

// Remote tags a log line with the peer address.
func Remote(addr string) slog.Attr {
	return slog.String("remote", addr)
}

// Event tags a log line with a wire event name.
func Event(name string) slog.Attr {
	return slog.String("event", name)
}
