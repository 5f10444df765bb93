// Package notifications delivers device events via ntfy.
//
// The ntfy implementation posts to the topic URL configured under
// [notifications] and degrades to a no-op when no topic is set. Device
// attach/detach and mirror failure messages can be toggled independently.
// Callers depend only on the Service interface.
package notifications
