// Package supervisor owns the mapping from attached device to mirror process.
//
// A single goroutine (Run) consumes device sets from the discovery mailbox,
// operator requests from the control channel, and exit notices from running
// mirrors, handling exactly one per wake-up. It spawns mirrors for new devices,
// kills mirrors for departed ones, restarts on request, and kills everything on
// Quit or context cancellation. Because only Run touches the process map, it
// needs no locking; callers interact through Devices, Restart, Quit and History,
// which exchange messages with the loop.
package supervisor
