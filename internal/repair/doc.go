// Package repair builds a correction brief from visual issues, asks the
// code-edit model for a replacement scene file, and statically validates the
// candidate before the orchestrator risks a re-render on it.
package repair
