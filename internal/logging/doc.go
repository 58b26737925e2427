// Package logging assembles structured slog loggers and formatting helpers used
// across omrbook packages.
//
// It owns the console/JSON handlers, centralizes level and output plumbing, and
// exposes context-aware helpers so book, sheet, and step code can tag log lines
// with the book radix, sheet number, step name, and correlation ID. The package
// also provides a no-op logger for tests and wiring code that cannot fail.
package logging
