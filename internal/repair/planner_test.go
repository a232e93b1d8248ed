package repair

import (
	"context"
	"errors"
	"strings"
	"testing"

	"scenesmith/internal/jobstore"
	"scenesmith/internal/testsupport"
)

type fakeCompleter struct {
	response string
	err      error
	prompt   string
}

func (f *fakeCompleter) Complete(_ context.Context, _, userPrompt string) (string, error) {
	f.prompt = userPrompt
	return f.response, f.err
}

const originalScene = `from manim import *

class WaveDemo(Scene):
    def construct(self):
        title = Text("Waves")
        self.play(Write(title))
        self.play(Create(Circle()))
        self.play(Create(Square()))
        self.play(FadeOut(title))
        self.wait(1)
`

func sceneIssues() []jobstore.IssueReport {
	return []jobstore.IssueReport{
		{FrameIndex: 1, Severity: jobstore.SeverityHigh, Kind: jobstore.IssueOverlap, Description: "circle covers title", SuggestedFix: "shift circle down"},
		{FrameIndex: 1, Severity: jobstore.SeverityLow, Kind: jobstore.IssueCrowding, Description: "top edge crowded"},
		{FrameIndex: 3, Severity: jobstore.SeverityMedium, Kind: jobstore.IssueStaleElement, Description: "square remains on screen"},
	}
}

func newPlanner(t *testing.T, completer Completer) *Planner {
	t.Helper()
	return NewPlanner(completer, testsupport.NewConfig(t), nil)
}

func TestPlanAcceptsValidCandidate(t *testing.T) {
	fixed := strings.Replace(originalScene, "Circle()", "Circle().shift(DOWN)", 1)
	completer := &fakeCompleter{response: fixed}
	planner := newPlanner(t, completer)

	outcome, err := planner.Plan(context.Background(), originalScene, sceneIssues())
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if !outcome.Accepted {
		t.Fatalf("expected acceptance, got reason %q", outcome.Reason)
	}
	if len(outcome.Events) != 5 {
		t.Fatalf("expected 5 events in candidate, got %d", len(outcome.Events))
	}
	if !strings.Contains(completer.prompt, "circle covers title") {
		t.Fatal("brief should list issue descriptions")
	}
	if !strings.Contains(completer.prompt, "Animation step 1") {
		t.Fatal("brief should group issues by frame")
	}
}

func TestPlanRejectsNoOp(t *testing.T) {
	completer := &fakeCompleter{response: originalScene}
	planner := newPlanner(t, completer)

	outcome, err := planner.Plan(context.Background(), originalScene, sceneIssues())
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if outcome.Accepted {
		t.Fatal("identical candidate must be rejected")
	}
	if !strings.Contains(outcome.Reason, "identical") {
		t.Fatalf("unexpected reason %q", outcome.Reason)
	}
}

func TestPlanRejectsRenamedScene(t *testing.T) {
	renamed := strings.Replace(originalScene, "WaveDemo", "OtherDemo", 1)
	planner := newPlanner(t, &fakeCompleter{response: renamed})

	outcome, err := planner.Plan(context.Background(), originalScene, sceneIssues())
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if outcome.Accepted {
		t.Fatal("renamed scene class must be rejected")
	}
}

func TestPlanRejectsTruncation(t *testing.T) {
	truncated := "from manim import *\n\nclass WaveDemo(Scene):\n    def construct(self):\n        self.play(Write(Text(\"W\")))\n"
	planner := newPlanner(t, &fakeCompleter{response: truncated})

	outcome, err := planner.Plan(context.Background(), originalScene, sceneIssues())
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if outcome.Accepted {
		t.Fatal("truncated candidate must be rejected")
	}
}

func TestPlanRejectsStructuralLoss(t *testing.T) {
	// Same length but most play calls removed.
	gutted := `from manim import *

class WaveDemo(Scene):
    def construct(self):
        title = Text("Waves")
        # layout notes kept long enough to avoid the size floor while the
        # animation steps themselves have been stripped from the file body
        self.play(Write(title))
        label = Text("placeholder commentary to preserve file length only")
`
	planner := newPlanner(t, &fakeCompleter{response: gutted})

	outcome, err := planner.Plan(context.Background(), originalScene, sceneIssues())
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if outcome.Accepted {
		t.Fatal("candidate dropping most events must be rejected")
	}
	if !strings.Contains(outcome.Reason, "retention") {
		t.Fatalf("unexpected reason %q", outcome.Reason)
	}
}

func TestPlanPropagatesTransportErrors(t *testing.T) {
	planner := newPlanner(t, &fakeCompleter{err: errors.New("offline")})
	if _, err := planner.Plan(context.Background(), originalScene, sceneIssues()); err == nil {
		t.Fatal("expected error")
	}
}

func TestPlanWithoutIssues(t *testing.T) {
	planner := newPlanner(t, &fakeCompleter{})
	outcome, err := planner.Plan(context.Background(), originalScene, nil)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if outcome.Accepted {
		t.Fatal("nothing to repair should not be accepted")
	}
}
