package app

import (
	"io"
	"log/slog"
	"os"
)

// NewLogger creates a structured logger writing slog text lines to w
// (stderr when nil).
func NewLogger(w io.Writer) *SlogAdapter {
	if w == nil {
		w = os.Stderr
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo})
	return &SlogAdapter{l: slog.New(handler)}
}

// SlogAdapter wraps *slog.Logger to satisfy the gcd.Logger interface.
type SlogAdapter struct {
	l *slog.Logger
}

func (a *SlogAdapter) Debug(msg string, args ...any) { a.l.Debug(msg, args...) }
func (a *SlogAdapter) Info(msg string, args ...any)  { a.l.Info(msg, args...) }
func (a *SlogAdapter) Warn(msg string, args ...any)  { a.l.Warn(msg, args...) }
func (a *SlogAdapter) Error(msg string, args ...any) { a.l.Error(msg, args...) }
