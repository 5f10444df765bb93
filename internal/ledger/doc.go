// Package ledger keeps an in-memory journal of device lifecycle events for the
// current run.
//
// Events are stored in a private SQLite database opened on ":memory:" so the
// history command can filter and order them with SQL. Nothing is written to
// disk and the journal disappears when the process exits.
package ledger
