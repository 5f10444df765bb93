// Package logging assembles structured slog loggers and formatting helpers used
// across devmirror components.
//
// It owns the configurable console/JSON handlers, the optional JSON file tee,
// and the session_id stamping applied to every record. Context helpers tag log
// lines with the device a goroutine is working on, and the package provides a
// no-op logger for tests and wiring code that cannot fail.
//
// Prefer these constructors over hand-rolled slog setup so every component
// emits records with the same shape.
package logging
