// Package ipc exposes a running supervisor over JSON-RPC on a Unix socket and
// ships the matching client used by the CLI.
//
// It owns socket lifecycle management and the request/response DTOs. The
// server forwards each call to a Target, which the daemon backs with the
// supervisor's control channel, so requests from a second terminal are ordered
// with operator commands typed on stdin.
package ipc
