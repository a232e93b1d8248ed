// Package ffprobe shells out to ffprobe and exposes the container metadata
// the pipeline cares about: duration, resolution, and stream layout of a
// rendered video.
package ffprobe
