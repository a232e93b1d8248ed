// Package render drives the manim subprocess: it selects quality presets,
// disables renderer caching so every animation event emits a partial file,
// locates the produced MP4, and classifies failures for the orchestrator.
package render
