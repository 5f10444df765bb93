// Package mirror starts and stops the per-device mirroring process.
//
// A Launcher turns a device identifier into a running Process: it builds the
// command line from configuration, places the child in its own process group,
// discards stdout and forwards stderr lines to the debug log. Kill terminates
// the whole group with SIGTERM and escalates to SIGKILL after the configured
// timeout. Killing a process that already exited succeeds.
package mirror
