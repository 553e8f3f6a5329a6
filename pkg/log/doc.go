// Package log provides natlog's structured logging facade and utilities.
//
// # Overview
//
// The package exposes a small Logger interface with leveled methods and a
// simple Field type for structured context. Internally it is backed by Go's
// standard library slog via a custom handler that preserves the
// formatter/outputs pipeline. This keeps output consistent across the
// codebase while allowing slog ecosystem interop.
//
// Quick start
//
//	l := log.NewLogger(
//	    log.WithLevel(log.InfoLevel),
//	    log.WithFormatter(&log.TextFormatter{}),
//	    log.WithOutput(log.NewConsoleOutput()),
//	)
//	l = l.With(log.Component("executor"), log.Str("group", "orders"))
//	l.Info("partition started", log.Int("partition", 3))
//
// # Interop
//
// To integrate with libraries expecting *log.Logger (Pebble's logger hooks,
// for example), use RedirectStdLog or ToStdLogger.
package log
