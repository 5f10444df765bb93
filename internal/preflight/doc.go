// Package preflight provides readiness checks for the binaries, paths and
// services that devmirror depends on.
//
// These checks run in two contexts:
//   - The daemon calls CheckSystemDeps and RunAll at startup and logs a
//     warning for every failed entry before it launches the poller.
//   - The CLI "devmirror status" command uses the individual check functions
//     (CheckSystemDeps, CheckNotificationsFromConfig) to display health.
//
// Each check is gated by its config toggle -- disabled features are skipped.
package preflight
