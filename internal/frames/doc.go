// Package frames extracts one representative still per declared animation
// event from a rendered video. Sampling is timestamp based: the source
// timeline decides where to seek, so hash-deduplicated partial files never
// hide repeated events.
package frames
