// Package api defines the JSON payloads served over the daemon's HTTP
// surface and the thin read/submit service behind it. The service never
// drives state transitions; it enqueues pending jobs and reads from the
// job store and the event ledger.
package api
