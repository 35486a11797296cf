package preview

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

// NewLogger returns a logger that writes to f with colorized output if f is
// a terminal. The worker binary passes os.Stderr here: its stdout carries
// the command protocol and must stay clean.
func NewLogger(f *os.File) *slog.Logger {
	return NewLeveledLogger(f, slog.LevelInfo)
}

// NewLeveledLogger is NewLogger with an explicit minimum level.
func NewLeveledLogger(f *os.File, level slog.Level) *slog.Logger {
	return slog.New(tint.NewHandler(f, &tint.Options{
		Level:      level,
		TimeFormat: time.RFC3339,
		NoColor:    !isatty.IsTerminal(f.Fd()),
	}))
}

// NewJSONLogger returns a logger that writes to w in JSON format.
func NewJSONLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, nil))
}
