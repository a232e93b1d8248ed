// Package notifications publishes job lifecycle events to an ntfy topic when
// one is configured, and silently does nothing otherwise.
package notifications
