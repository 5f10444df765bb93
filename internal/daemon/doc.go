// Package daemon coordinates the long-running devmirror process.
//
// It wires configuration, the discovery poller, the hotplug watcher, the
// supervisor, the operator shell and the IPC server into a single lifecycle
// with flock-based locking to prevent multiple instances. Two supervisors on
// one host would fight over the same devices.
//
// Keep orchestration logic here: reconciliation lives in the supervisor and
// device listing in discovery, while the daemon focuses on startup, shutdown,
// and high level coordination.
package daemon
