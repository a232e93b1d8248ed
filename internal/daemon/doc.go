// Package daemon hosts the long-running service: it enforces single-instance
// execution with a lock file, runs the workflow manager and the retention
// sweeper, and serves the HTTP API the CLI talks to.
package daemon
