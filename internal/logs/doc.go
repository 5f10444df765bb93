// Package logs reads the JSON log file written when logging.file is set.
//
// It returns the last N lines with bounded memory, follows appended lines by
// polling offsets, and decodes records so the CLI can filter by device and
// level. Follow survives truncation by restarting at offset zero.
package logs
