package vision

import (
	"encoding/json"
	"errors"
	"strings"

	"scenesmith/internal/jobstore"
	"scenesmith/internal/services/llm"
)

type rawIssue struct {
	FrameIndex   int    `json:"frame_index"`
	Severity     string `json:"severity"`
	Kind         string `json:"kind"`
	Description  string `json:"description"`
	SuggestedFix string `json:"suggested_fix"`
}

type issueEnvelope struct {
	Issues []rawIssue `json:"issues"`
}

// cleanResponseMarkers short-circuit the free-text fallback: a model saying
// any of these found nothing wrong.
var cleanResponseMarkers = []string{
	"no issue",
	"no defect",
	"no visual",
	"looks good",
	"looks clean",
}

// parseIssues decodes a model response using four strategies in order:
// strict JSON, lenient JSON tolerating fences and prose, balanced-array
// extraction, and finally a single synthesized issue from free text. An
// unusable response returns an error so the batch records a diagnostic note.
func parseIssues(content string, firstFrameIndex int) ([]rawIssue, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return nil, errors.New("empty response")
	}

	if issues, ok := strictParse(trimmed); ok {
		return issues, nil
	}

	var envelope issueEnvelope
	if err := llm.DecodeLLMJSON(trimmed, &envelope); err == nil && envelope.Issues != nil {
		return envelope.Issues, nil
	}
	var list []rawIssue
	if err := llm.DecodeLLMJSON(trimmed, &list); err == nil {
		return list, nil
	}

	if region := llm.ExtractJSONArray(trimmed); region != "" {
		if err := json.Unmarshal([]byte(region), &list); err == nil {
			return list, nil
		}
	}

	return freeTextFallback(trimmed, firstFrameIndex)
}

func strictParse(content string) ([]rawIssue, bool) {
	var envelope issueEnvelope
	if err := json.Unmarshal([]byte(content), &envelope); err == nil && envelope.Issues != nil {
		return envelope.Issues, true
	}
	var list []rawIssue
	if err := json.Unmarshal([]byte(content), &list); err == nil {
		return list, true
	}
	return nil, false
}

func freeTextFallback(content string, firstFrameIndex int) ([]rawIssue, error) {
	lowered := strings.ToLower(content)
	for _, marker := range cleanResponseMarkers {
		if strings.Contains(lowered, marker) {
			return nil, nil
		}
	}
	const limit = 300
	description := content
	if len(description) > limit {
		description = description[:limit] + "..."
	}
	return []rawIssue{{
		FrameIndex:  firstFrameIndex,
		Severity:    jobstore.SeverityLow,
		Kind:        jobstore.IssueOther,
		Description: "unstructured analyzer response: " + description,
	}}, nil
}

// normalizeIssue validates vocabulary and clamps the frame index into range.
func normalizeIssue(issue rawIssue, frameCount int) jobstore.IssueReport {
	severity := strings.ToLower(strings.TrimSpace(issue.Severity))
	switch severity {
	case jobstore.SeverityLow, jobstore.SeverityMedium, jobstore.SeverityHigh:
	default:
		severity = jobstore.SeverityMedium
	}
	kind := strings.ToLower(strings.TrimSpace(issue.Kind))
	switch kind {
	case jobstore.IssueOverlap, jobstore.IssueCrowding, jobstore.IssueOffFrame,
		jobstore.IssueIllegible, jobstore.IssueStaleElement, jobstore.IssueOther:
	default:
		kind = jobstore.IssueOther
	}
	index := issue.FrameIndex
	if index < 0 {
		index = 0
	}
	if frameCount > 0 && index >= frameCount {
		index = frameCount - 1
	}
	return jobstore.IssueReport{
		FrameIndex:   index,
		Severity:     severity,
		Kind:         kind,
		Description:  strings.TrimSpace(issue.Description),
		SuggestedFix: strings.TrimSpace(issue.SuggestedFix),
	}
}

type issueKey struct {
	frameIndex  int
	kind        string
	description string
}

// dedupeIssues drops exact repeats, keeping first occurrence order.
func dedupeIssues(issues []jobstore.IssueReport) []jobstore.IssueReport {
	seen := make(map[issueKey]struct{}, len(issues))
	out := issues[:0]
	for _, issue := range issues {
		key := issueKey{issue.FrameIndex, issue.Kind, issue.Description}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, issue)
	}
	return out
}
