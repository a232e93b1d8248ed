package repair

import (
	"fmt"
	"sort"
	"strings"

	"scenesmith/internal/jobstore"
)

// buildBrief turns the issue list into one repair instruction block, grouped
// by frame so the model sees each moment of the video once.
func buildBrief(issues []jobstore.IssueReport) string {
	byFrame := make(map[int][]jobstore.IssueReport)
	for _, issue := range issues {
		byFrame[issue.FrameIndex] = append(byFrame[issue.FrameIndex], issue)
	}
	frameIndices := make([]int, 0, len(byFrame))
	for index := range byFrame {
		frameIndices = append(frameIndices, index)
	}
	sort.Ints(frameIndices)

	var b strings.Builder
	fmt.Fprintf(&b, "Visual review found %d issue(s) across %d animation step(s):\n\n", len(issues), len(frameIndices))
	for _, index := range frameIndices {
		fmt.Fprintf(&b, "Animation step %d:\n", index)
		for _, issue := range byFrame[index] {
			fmt.Fprintf(&b, "- [%s/%s] %s", issue.Severity, issue.Kind, issue.Description)
			if issue.SuggestedFix != "" {
				fmt.Fprintf(&b, " (suggested fix: %s)", issue.SuggestedFix)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}

const repairSystemPrompt = `You are an expert Manim Community Edition animator fixing visual defects in an existing scene file.

Rules:
- Output ONLY the complete corrected Python file. No explanations, no Markdown fences.
- Keep the same scene class name and overall structure.
- Fix every listed issue with the smallest change that resolves it.
- Do not remove animation steps unless an issue explicitly calls for it.
- Keep every element inside the visible frame and clear stale elements before reusing screen space.`

func repairUserPrompt(source, brief string) string {
	var b strings.Builder
	b.WriteString("Current scene file:\n\n")
	b.WriteString(source)
	b.WriteString("\n\n")
	b.WriteString(brief)
	b.WriteString("Produce the complete corrected file.")
	return b.String()
}
