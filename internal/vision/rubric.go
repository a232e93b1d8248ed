package vision

import (
	"fmt"
	"strings"

	"scenesmith/internal/frames"
)

const rubricSystemPrompt = `You are a meticulous reviewer of rendered educational animations. You receive still frames sampled from a video, one per animation step, and report visual defects.

Defect categories:
- overlap: two or more elements occlude each other so content is obscured
- crowding: too many elements packed together, layout feels cluttered
- off-frame: an element is partially or fully outside the visible frame
- illegible: text too small, low contrast, or cut off
- stale-element: an element from an earlier step lingers where new content appears
- other: any visual defect not covered above

Respond with JSON only: an object {"issues": [...]} where each issue is
{"frame_index": <int>, "severity": "low"|"medium"|"high", "kind": <category>, "description": <string>, "suggested_fix": <string, optional>}.
Use the global frame indices given in the prompt. Report an empty issues list when the frames look clean. Do not invent issues.`

// batchUserPrompt lists each attached frame with its global index and sample
// time so the model can reference frames the way the pipeline does.
func batchUserPrompt(batch []frames.Frame) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Review the following %d frames from one animation. Frames are attached in order.\n", len(batch))
	for _, frame := range batch {
		fmt.Fprintf(&b, "- frame_index %d, sampled at %.2fs", frame.EventIndex, frame.SampleTime)
		if frame.Placeholder {
			b.WriteString(" (extraction placeholder, ignore)")
		}
		b.WriteString("\n")
	}
	b.WriteString("\nReport every visual defect you can see using the JSON schema from your instructions.")
	return b.String()
}
