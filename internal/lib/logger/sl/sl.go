// Package sl holds small helpers for log/slog attributes.
package sl

import "log/slog"

// Err renders an error as a standard "error" attribute.
func Err(err error) slog.Attr {
	return slog.Attr{
		Key:   "error",
		Value: slog.StringValue(err.Error()),
	}
}

// Op tags a log record with the operation that produced it.
func Op(op string) slog.Attr {
	return slog.Attr{
		Key:   "op",
		Value: slog.StringValue(op),
	}
}
