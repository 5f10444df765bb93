// Package main hosts the devmirror CLI entrypoint and command graph.
//
// Running devmirror with no subcommand starts the supervisor in the
// foreground with the operator shell on stdin. The remaining commands talk to
// that running process over its Unix socket from a second terminal, or
// inspect local configuration and dependencies.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
