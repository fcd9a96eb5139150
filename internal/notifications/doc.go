// Package notifications pushes scan events to ntfy.
//
// The ntfy-backed Service doubles as a gate.Announcer so confident results are
// pushed alongside the terminal announcement. When no topic is configured a
// no-op implementation is returned.
package notifications
