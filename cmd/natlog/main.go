package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	clientcmd "github.com/rzbill/natlog/internal/cmd/client"
	logpkg "github.com/rzbill/natlog/pkg/log"
)

func main() {
	// Respect NATLOG_LOG_LEVEL for CLI output
	level := os.Getenv("NATLOG_LOG_LEVEL")
	parsed, err := logpkg.ParseLevel(level)
	if err != nil || level == "" {
		parsed = logpkg.InfoLevel
	}
	logger := logpkg.NewLogger(
		logpkg.WithLevel(parsed),
		logpkg.WithFormatter(&logpkg.TextFormatter{}),
		logpkg.WithOutput(logpkg.NewConsoleOutput()),
	)

	// Redirect standard library logs (used by Pebble) to our logger
	logpkg.RedirectStdLog(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rootCmd := clientcmd.NewRoot(logger)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
