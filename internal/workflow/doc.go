// Package workflow drives jobs through the pipeline: code generation,
// rendering, frame-level verification, and the bounded repair loop. A small
// worker pool claims pending jobs from the store; each worker owns one job
// end-to-end.
package workflow
