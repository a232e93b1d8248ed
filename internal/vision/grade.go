package vision

import "scenesmith/internal/jobstore"

// acceptableThreshold is the most medium-or-high issues a video can carry and
// still grade acceptable.
const acceptableThreshold = 4

// goodTotalThreshold is the most issues of any severity a good video can carry.
const goodTotalThreshold = 2

// Grade summarizes an issue list into an overall quality verdict.
func Grade(issues []jobstore.IssueReport) string {
	high := 0
	mediumOrHigh := 0
	for _, issue := range issues {
		switch issue.Severity {
		case jobstore.SeverityHigh:
			high++
			mediumOrHigh++
		case jobstore.SeverityMedium:
			mediumOrHigh++
		}
	}
	if high == 0 && len(issues) <= goodTotalThreshold {
		return jobstore.QualityGradeGood
	}
	if mediumOrHigh <= acceptableThreshold {
		return jobstore.QualityGradeAcceptable
	}
	return jobstore.QualityGradePoor
}
