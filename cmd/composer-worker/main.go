// The composer-worker binary is the preview worker process. It reads
// newline-delimited JSON commands on stdin, answers each with exactly one
// response on stdout, and logs to stderr so the protocol channel stays
// clean. It takes no required arguments: the controller launches it and owns
// its lifetime.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	preview "github.com/cenmir/composer-preview"
	"github.com/cenmir/composer-preview/worker"
)

func main() {
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := preview.NewLeveledLogger(os.Stderr, level)

	w := worker.New(worker.Options{Logger: logger})
	if err := w.Run(context.Background(), os.Stdin, os.Stdout); err != nil {
		logger.Error("worker failed", "error", err)
		os.Exit(1)
	}
}
