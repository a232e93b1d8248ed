// Package vision sends sampled frames to a multimodal model and turns its
// responses into structured issue reports. Batches are analyzed with bounded
// concurrency and a forgiving response parser, so one bad batch degrades the
// verdict instead of failing the job.
package vision
