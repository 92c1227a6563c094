// Package logger builds the application's root slog.Logger and carries
// request-scoped loggers through context.Context.
//
// Output is JSON on stdout by default, or colored console text through tint.
// Records can additionally be forwarded to a Fluent Bit agent.
package logger
