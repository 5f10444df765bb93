// Package discovery finds attached devices by polling an external listing tool.
//
// The Poller runs the configured query on a fixed cadence, parses the text into
// a DeviceSet, and publishes changed sets to a single-slot Mailbox that the
// supervisor drains. A HotplugWatcher listens for USB uevents over netlink and
// nudges the poller so attach and detach are noticed without waiting a full
// interval. StartBackend launches the listing tool's server before polling.
package discovery
