// Package cleanup reclaims per-job artifacts: scene files, media subtrees,
// and expired job records past the completed-job retention window.
package cleanup
